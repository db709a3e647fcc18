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
	"errors"
	"fmt"
	"strings"
	"time"

	btapb "cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/skylark-io/bigtable/internal"
	btopt "github.com/skylark-io/bigtable/internal/option"
	"google.golang.org/api/option"
	gtransport "google.golang.org/api/transport/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	// AdminScope is the OAuth scope for Cloud Bigtable table admin operations.
	AdminScope = "https://www.googleapis.com/auth/bigtable.admin"

	adminAddr     = "bigtableadmin.googleapis.com:443"
	mtlsAdminAddr = "bigtableadmin.mtls.googleapis.com:443"
)

// ErrPartiallyUnavailable is returned when some locations (clusters) are
// unavailable. Both partial results (retrieved from available locations)
// and the error are returned when this exception occurred.
type ErrPartiallyUnavailable struct {
	Locations []string // unavailable locations
}

func (e ErrPartiallyUnavailable) Error() string {
	return fmt.Sprintf("Unavailable locations: %v", e.Locations)
}

// AdminClient is a client type for performing admin operations within a
// specific instance.
type AdminClient struct {
	connPool gtransport.ConnPool
	tClient  btapb.BigtableTableAdminClient

	project, instance string

	// Metadata to be sent with each request.
	md metadata.MD
}

// NewAdminClient creates a new AdminClient for a given project and instance.
func NewAdminClient(ctx context.Context, project, instance string, opts ...option.ClientOption) (*AdminClient, error) {
	o, err := btopt.DefaultClientOptions(adminAddr, mtlsAdminAddr, AdminScope, clientUserAgent)
	if err != nil {
		return nil, err
	}
	// Add gRPC client interceptors to supply client version information.
	o = append(o, btopt.ClientInterceptorOptions(nil, nil)...)
	o = append(o, opts...)
	connPool, err := gtransport.DialPool(ctx, o...)
	if err != nil {
		return nil, err
	}

	return &AdminClient{
		connPool: connPool,
		tClient:  btapb.NewBigtableTableAdminClient(connPool),
		project:  project,
		instance: instance,
		md: metadata.Pairs(
			resourcePrefixHeader, fmt.Sprintf("projects/%s/instances/%s", project, instance),
			"x-goog-api-client", gax.XGoogHeader("gl-go", "go", "gccl", internal.Version),
		),
	}, nil
}

// Close closes the AdminClient.
func (ac *AdminClient) Close() error {
	return ac.connPool.Close()
}

func (ac *AdminClient) instancePrefix() string {
	return fmt.Sprintf("projects/%s/instances/%s", ac.project, ac.instance)
}

func (ac *AdminClient) fullTableName(table string) string {
	return fmt.Sprintf("%s/tables/%s", ac.instancePrefix(), table)
}

// Tables returns a list of the tables in the instance.
func (ac *AdminClient) Tables(ctx context.Context) ([]string, error) {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	prefix := ac.instancePrefix()

	var names []string
	pageToken := ""
	for {
		req := &btapb.ListTablesRequest{
			Parent:    prefix,
			PageToken: pageToken,
		}
		var res *btapb.ListTablesResponse
		err := gaxInvoke(ctx, "ListTables", func(ctx context.Context) error {
			var err error
			res, err = ac.tClient.ListTables(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, tbl := range res.Tables {
			names = append(names, strings.TrimPrefix(tbl.Name, prefix+"/tables/"))
		}
		if res.NextPageToken == "" {
			return names, nil
		}
		pageToken = res.NextPageToken
	}
}

// TableConf contains all the information necessary to create a table with
// column families.
type TableConf struct {
	TableID   string
	SplitKeys []string
	// DeletionProtection protects the table and its column families from
	// deletion while set.
	DeletionProtection DeletionProtection
	// ColumnFamilies maps family names to their configuration.
	ColumnFamilies map[string]Family
}

// Family contains the configuration for a single column family.
type Family struct {
	GCPolicy GCPolicy

	// ValueType, if set, declares the type of values held by the family.
	// Aggregate families must be declared with an AggregateType before
	// AddIntToCell or MergeBytesToCell can target them.
	ValueType Type
}

// DeletionProtection indicates whether deletion protection is enabled,
// disabled, or left unspecified so the server picks the default.
type DeletionProtection int

// None indicates that deletion protection is not set.
const (
	None DeletionProtection = iota
	// Protected indicates that deletion protection is enabled.
	Protected
	// Unprotected indicates that deletion protection is disabled.
	Unprotected
)

// CreateTable creates a new table in the instance.
// This method may return before the table's creation is complete.
func (ac *AdminClient) CreateTable(ctx context.Context, table string) error {
	return ac.CreateTableFromConf(ctx, &TableConf{TableID: table})
}

// CreatePresplitTable creates a new table in the instance.
// The list of row keys will be used to initially split the table into
// multiple tablets. Given two split keys, "s1" and "s2", three tablets will
// be created, spanning the key ranges: [, s1), [s1, s2), [s2, ).
// This method may return before the table's creation is complete.
func (ac *AdminClient) CreatePresplitTable(ctx context.Context, table string, splitKeys []string) error {
	return ac.CreateTableFromConf(ctx, &TableConf{TableID: table, SplitKeys: splitKeys})
}

// CreateTableFromConf creates a new table in the instance from the given
// configuration.
func (ac *AdminClient) CreateTableFromConf(ctx context.Context, conf *TableConf) error {
	if conf.TableID == "" {
		return errors.New("TableID is required")
	}
	ctx = mergeOutgoingMetadata(ctx, ac.md)

	var reqSplits []*btapb.CreateTableRequest_Split
	for _, split := range conf.SplitKeys {
		reqSplits = append(reqSplits, &btapb.CreateTableRequest_Split{Key: []byte(split)})
	}

	tbl := btapb.Table{}
	switch conf.DeletionProtection {
	case Protected:
		tbl.DeletionProtection = true
	case Unprotected:
		tbl.DeletionProtection = false
	}
	if conf.ColumnFamilies != nil {
		tbl.ColumnFamilies = make(map[string]*btapb.ColumnFamily)
		for fam, cfg := range conf.ColumnFamilies {
			var gcPolicy *btapb.GcRule
			if cfg.GCPolicy != nil {
				gcPolicy = cfg.GCPolicy.proto()
			} else {
				gcPolicy = &btapb.GcRule{}
			}
			cf := &btapb.ColumnFamily{GcRule: gcPolicy}
			if cfg.ValueType != nil {
				cf.ValueType = cfg.ValueType.proto()
			}
			tbl.ColumnFamilies[fam] = cf
		}
	}

	req := &btapb.CreateTableRequest{
		Parent:        ac.instancePrefix(),
		TableId:       conf.TableID,
		Table:         &tbl,
		InitialSplits: reqSplits,
	}
	_, err := ac.tClient.CreateTable(ctx, req)
	return err
}

// CreateColumnFamily creates a new column family in a table.
func (ac *AdminClient) CreateColumnFamily(ctx context.Context, table, family string) error {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	req := &btapb.ModifyColumnFamiliesRequest{
		Name: ac.fullTableName(table),
		Modifications: []*btapb.ModifyColumnFamiliesRequest_Modification{{
			Id:  family,
			Mod: &btapb.ModifyColumnFamiliesRequest_Modification_Create{Create: &btapb.ColumnFamily{}},
		}},
	}
	_, err := ac.tClient.ModifyColumnFamilies(ctx, req)
	return err
}

// SetGCPolicy specifies which cells in a column family should be garbage collected.
// GC executes opportunistically in the background; table reads may return data
// matching the GC policy.
func (ac *AdminClient) SetGCPolicy(ctx context.Context, table, family string, policy GCPolicy) error {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	req := &btapb.ModifyColumnFamiliesRequest{
		Name: ac.fullTableName(table),
		Modifications: []*btapb.ModifyColumnFamiliesRequest_Modification{{
			Id:  family,
			Mod: &btapb.ModifyColumnFamiliesRequest_Modification_Update{Update: &btapb.ColumnFamily{GcRule: policy.proto()}},
		}},
	}
	_, err := ac.tClient.ModifyColumnFamilies(ctx, req)
	return err
}

// DeleteTable deletes a table and all of its data.
func (ac *AdminClient) DeleteTable(ctx context.Context, table string) error {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	req := &btapb.DeleteTableRequest{Name: ac.fullTableName(table)}
	_, err := ac.tClient.DeleteTable(ctx, req)
	return err
}

// DeleteColumnFamily deletes a column family in a table and all of its data.
func (ac *AdminClient) DeleteColumnFamily(ctx context.Context, table, family string) error {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	req := &btapb.ModifyColumnFamiliesRequest{
		Name: ac.fullTableName(table),
		Modifications: []*btapb.ModifyColumnFamiliesRequest_Modification{{
			Id:  family,
			Mod: &btapb.ModifyColumnFamiliesRequest_Modification_Drop{Drop: true},
		}},
	}
	_, err := ac.tClient.ModifyColumnFamilies(ctx, req)
	return err
}

// TableInfo represents information about a table.
type TableInfo struct {
	// DEPRECATED - This field is deprecated. Please use FamilyInfos instead.
	Families []string
	// FamilyInfos contains the family name and garbage collection policy of the table.
	FamilyInfos []FamilyInfo
	// DeletionProtection indicates whether the table is protected against data loss.
	DeletionProtection DeletionProtection
}

// FamilyInfo represents information about a column family.
type FamilyInfo struct {
	Name         string
	GCPolicy     string
	FullGCPolicy GCPolicy
}

// TableInfo retrieves information about a table.
func (ac *AdminClient) TableInfo(ctx context.Context, table string) (*TableInfo, error) {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	req := &btapb.GetTableRequest{
		Name: ac.fullTableName(table),
	}

	var res *btapb.Table
	err := gaxInvoke(ctx, "GetTable", func(ctx context.Context) error {
		var err error
		res, err = ac.tClient.GetTable(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	ti := &TableInfo{}
	for name, fam := range res.ColumnFamilies {
		ti.Families = append(ti.Families, name)
		ti.FamilyInfos = append(ti.FamilyInfos, FamilyInfo{
			Name:         name,
			GCPolicy:     GCRuleToString(fam.GcRule),
			FullGCPolicy: gcRuleToPolicy(fam.GcRule),
		})
	}
	if res.DeletionProtection {
		ti.DeletionProtection = Protected
	} else {
		ti.DeletionProtection = Unprotected
	}
	return ti, nil
}

// DropRowRange permanently deletes a row range from the specified table.
func (ac *AdminClient) DropRowRange(ctx context.Context, table, rowKeyPrefix string) error {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	req := &btapb.DropRowRangeRequest{
		Name:   ac.fullTableName(table),
		Target: &btapb.DropRowRangeRequest_RowKeyPrefix{RowKeyPrefix: []byte(rowKeyPrefix)},
	}
	_, err := ac.tClient.DropRowRange(ctx, req)
	return err
}

// DropAllRows permanently deletes all rows from the specified table.
func (ac *AdminClient) DropAllRows(ctx context.Context, table string) error {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	req := &btapb.DropRowRangeRequest{
		Name:   ac.fullTableName(table),
		Target: &btapb.DropRowRangeRequest_DeleteAllDataFromTable{DeleteAllDataFromTable: true},
	}
	_, err := ac.tClient.DropRowRange(ctx, req)
	return err
}

// genConsistencyToken generates a consistency token for a table.
func (ac *AdminClient) genConsistencyToken(ctx context.Context, table string) (string, error) {
	req := &btapb.GenerateConsistencyTokenRequest{
		Name: ac.fullTableName(table),
	}
	res, err := ac.tClient.GenerateConsistencyToken(ctx, req)
	if err != nil {
		return "", err
	}
	return res.GetConsistencyToken(), nil
}

// isConsistent checks if a token is consistent for a table.
func (ac *AdminClient) isConsistent(ctx context.Context, table, token string) (bool, error) {
	req := &btapb.CheckConsistencyRequest{
		Name:             ac.fullTableName(table),
		ConsistencyToken: token,
	}

	var res *btapb.CheckConsistencyResponse
	// Retry calls on retryable errors to avoid losing the token gathered before.
	err := gaxInvoke(ctx, "CheckConsistency", func(ctx context.Context) error {
		var err error
		res, err = ac.tClient.CheckConsistency(ctx, req)
		return err
	})
	if err != nil {
		return false, err
	}
	return res.GetConsistent(), nil
}

// WaitForReplication waits until all the writes committed before the call
// started have been propagated to all the clusters in the instance via
// replication.
func (ac *AdminClient) WaitForReplication(ctx context.Context, table string) error {
	ctx = mergeOutgoingMetadata(ctx, ac.md)
	// Get the token.
	prelude := func() (string, error) {
		return ac.genConsistencyToken(ctx, table)
	}
	token, err := prelude()
	if err != nil {
		return err
	}

	// Periodically check if the token is consistent.
	timer := time.NewTicker(time.Second * 10)
	defer timer.Stop()
	for {
		consistent, err := ac.isConsistent(ctx, table, token)
		if err != nil {
			return err
		}
		if consistent {
			return nil
		}
		// Sleep for a bit or until the ctx is cancelled.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// gaxInvoke retries the given admin call on transient gRPC failures. The
// whole operation, retries included, is traced under its method name.
func gaxInvoke(ctx context.Context, method string, f func(ctx context.Context) error) (err error) {
	ctx = startSpan(ctx, "skylark-io/bigtable.Admin."+method)
	defer func() { endSpan(ctx, err) }()
	err = gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		return f(ctx)
	}, defaultRetryOption)
	return err
}
