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

package bigtable

import (
	"context"
	"strings"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var (
	idempotentRetryCodes  = []codes.Code{codes.DeadlineExceeded, codes.Unavailable, codes.Aborted}
	isIdempotentRetryCode = make(map[codes.Code]bool)

	// INTERNAL errors are not retryable in general, except for a handful of
	// transport-level stream resets that the server cannot classify better.
	retryableInternalErrMsgs = []string{
		"stream terminated by RST_STREAM",
		"Received Rst stream",
		"RST_STREAM closed stream",
		"Received RST_STREAM",
	}

	defaultBackoff = gax.Backoff{
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 1.2,
	}

	clientOnlyRetryOption = newRetryOption(true)
	defaultRetryOption    = newRetryOption(false)
)

func init() {
	for _, code := range idempotentRetryCodes {
		isIdempotentRetryCode[code] = true
	}
}

func newRetryOption(disableRetryInfo bool) gax.CallOption {
	return gax.WithRetry(func() gax.Retryer {
		// Each retryer gets a fresh backoff so attempts within one operation
		// share state without leaking into other operations.
		return &retryer{
			backoff: gax.Backoff{
				Initial:    defaultBackoff.Initial,
				Max:        defaultBackoff.Max,
				Multiplier: defaultBackoff.Multiplier,
			},
			disableRetryInfo: disableRetryInfo,
		}
	})
}

// retryer implements gax.Retryer. It combines client-side exponential backoff
// with server-sent RetryInfo details. If an operation stops receiving
// RetryInfo after having used it, the client backoff is reset to its initial
// state rather than continuing from an inflated pause.
type retryer struct {
	backoff           gax.Backoff
	disableRetryInfo  bool
	usedRetryInfoLast bool
}

func (r *retryer) Retry(err error) (time.Duration, bool) {
	if !r.disableRetryInfo {
		apiErr, ok := apierror.FromError(err)
		if ok && apiErr != nil && apiErr.Details().RetryInfo != nil {
			r.usedRetryInfoLast = true
			return apiErr.Details().RetryInfo.GetRetryDelay().AsDuration(), true
		}
		if r.usedRetryInfoLast {
			r.backoff = gax.Backoff{
				Initial:    r.backoff.Initial,
				Max:        r.backoff.Max,
				Multiplier: r.backoff.Multiplier,
			}
		}
		r.usedRetryInfoLast = false
	}

	st, ok := status.FromError(err)
	if !ok {
		return 0, false
	}
	c := st.Code()
	if isIdempotentRetryCode[c] ||
		(c == codes.Internal && containsAny(err.Error(), retryableInternalErrMsgs)) {
		return r.backoff.Pause(), true
	}
	return 0, false
}

func containsAny(str string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(str, substr) {
			return true
		}
	}
	return false
}

// convertToGrpcStatusErr normalizes err into a gRPC status error and reports
// its code. Context errors map to their canonical codes.
func convertToGrpcStatusErr(err error) (codes.Code, error) {
	if err == nil {
		return codes.OK, nil
	}

	if errStatus, ok := status.FromError(err); ok {
		return errStatus.Code(), status.Error(errStatus.Code(), errStatus.Message())
	}

	ctxStatus := status.FromContextError(err)
	if ctxStatus.Code() != codes.Unknown {
		return ctxStatus.Code(), status.Error(ctxStatus.Code(), ctxStatus.Message())
	}

	return codes.Unknown, err
}

// mergeOutgoingMetadata returns a context populated by the existing outgoing
// metadata merged with the provided mds.
func mergeOutgoingMetadata(ctx context.Context, mds ...metadata.MD) context.Context {
	ctxMD, _ := metadata.FromOutgoingContext(ctx)
	// The ordering matters, hence why ctxMD comes first.
	allMDs := append([]metadata.MD{ctxMD}, mds...)
	return metadata.NewOutgoingContext(ctx, metadata.Join(allMDs...))
}

// gaxInvokeWithRecorder wraps f so that every attempt updates the metrics
// tracer, propagates routing cookies returned by the server, and records
// per-attempt latency, then invokes it through gax.Invoke with the supplied
// call options.
func gaxInvokeWithRecorder(ctx context.Context, mt *builtinMetricsTracer, method string,
	f func(ctx context.Context, headerMD, trailerMD *metadata.MD, _ gax.CallSettings) error, opts ...gax.CallOption) error {
	attemptHeaderMD := metadata.New(nil)
	attemptTrailerMD := metadata.New(nil)
	mt.setMethod(method)

	callWrapper := func(ctx context.Context, callSettings gax.CallSettings) error {
		op := &mt.currOp
		md := metadata.New(nil)
		for k, v := range op.cookies {
			md.Append(k, v)
		}

		existingMD, _ := metadata.FromOutgoingContext(ctx)
		newCtx := metadata.NewOutgoingContext(ctx, metadata.Join(existingMD, md))

		mt.recordAttemptStart()
		err := f(newCtx, &attemptHeaderMD, &attemptTrailerMD, callSettings)
		mt.recordAttemptCompletion(err)

		extractCookies(attemptHeaderMD, op)
		extractCookies(attemptTrailerMD, op)
		return err
	}

	return gax.Invoke(ctx, callWrapper, opts...)
}

// For routing cookie
const cookiePrefix = "x-goog-cbt-cookie-"

func extractCookies(md metadata.MD, op *opTracer) {
	for k, v := range md {
		if strings.HasPrefix(k, cookiePrefix) {
			op.cookies[k] = v[len(v)-1]
		}
	}
}
