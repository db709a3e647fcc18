/*
Copyright 2026 Skylark Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package auth provides credential descriptors for the bigtable clients.
//
// A Credentials value only describes how a client should authenticate; it
// performs no token exchange itself. Resolution into dial options happens
// inside ClientOptions, which delegates the actual OAuth flows to
// golang.org/x/oauth2. The Credentials interface is sealed: only the
// descriptors defined in this package satisfy it.
package auth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Credentials describes an authentication strategy for a client.
type Credentials interface {
	// clientOptions seals the interface and doubles as the dispatch point:
	// each descriptor knows how to turn itself into dial options.
	clientOptions(ctx context.Context) ([]option.ClientOption, error)
}

// ClientOptions resolves a credential descriptor into the option.ClientOption
// values to dial a client with.
func ClientOptions(ctx context.Context, creds Credentials) ([]option.ClientOption, error) {
	return creds.clientOptions(ctx)
}

type googleDefaultCredentials struct{}

// GoogleDefaultCredentials authenticates with Application Default
// Credentials: the GOOGLE_APPLICATION_CREDENTIALS environment variable, the
// gcloud configuration, or the attached service account, in that order.
func GoogleDefaultCredentials() Credentials {
	return googleDefaultCredentials{}
}

func (googleDefaultCredentials) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	// The transport layer resolves ADC when no explicit credentials are
	// passed, so no options are needed.
	return nil, nil
}

type insecureCredentials struct{}

// InsecureCredentials disables both authentication and transport security.
// Intended for talking to an emulator over a local connection.
func InsecureCredentials() Credentials {
	return insecureCredentials{}
}

func (insecureCredentials) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	return []option.ClientOption{
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}, nil
}

type accessTokenCredentials struct {
	token string
}

// AccessTokenCredentials authenticates with a fixed OAuth 2.0 access token.
// The token is never refreshed; once it expires requests will start failing
// with Unauthenticated.
func AccessTokenCredentials(token string) Credentials {
	return accessTokenCredentials{token: token}
}

func (c accessTokenCredentials) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token})
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

type serviceAccountCredentials struct {
	jsonKey []byte
	scopes  []string
}

// ServiceAccountCredentials authenticates as a service account using its
// JSON key file contents.
func ServiceAccountCredentials(jsonKey []byte, scopes ...string) Credentials {
	return serviceAccountCredentials{jsonKey: jsonKey, scopes: scopes}
}

func (c serviceAccountCredentials) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	creds, err := google.CredentialsFromJSON(ctx, c.jsonKey, c.scopes...)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

type errorCredentials struct {
	err error
}

// ErrorCredentials holds an error instead of a strategy. Resolving it fails
// with that error. Useful to defer a credential loading failure until the
// point where a client is actually built.
func ErrorCredentials(err error) Credentials {
	return errorCredentials{err: err}
}

func (c errorCredentials) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	return nil, c.err
}
