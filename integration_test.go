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
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// setupIntegration provisions a uniquely named table with one column family
// in whatever environment the test run is pointed at. Tests are skipped when
// no environment is available.
func setupIntegration(ctx context.Context, t *testing.T) (IntegrationEnv, *Client, *AdminClient, string, func()) {
	t.Helper()
	env, err := NewIntegrationEnv()
	if err != nil {
		t.Skipf("integration environment unavailable: %v", err)
	}

	client, err := env.NewClient()
	if err != nil {
		t.Fatal(err)
	}
	adminClient, err := env.NewAdminClient()
	if err != nil {
		t.Fatal(err)
	}

	table := fmt.Sprintf("it-table-%s", uuid.New().String()[:8])
	if err := adminClient.CreateTable(ctx, table); err != nil {
		t.Fatal(err)
	}
	if err := adminClient.CreateColumnFamily(ctx, table, "follows"); err != nil {
		t.Fatal(err)
	}

	cleanup := func() {
		adminClient.DeleteTable(ctx, table)
		adminClient.Close()
		client.Close()
		env.Close()
	}
	return env, client, adminClient, table, cleanup
}

func TestIntegration_ReadWrite(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, client, _, table, cleanup := setupIntegration(ctx, t)
	defer cleanup()

	tbl := client.Open(table)
	for _, key := range []string{"wmckinley", "gwashington", "jadams"} {
		mut := NewMutation()
		mut.Set("follows", "tjefferson", 1000, []byte("1"))
		if err := tbl.Apply(ctx, key, mut); err != nil {
			t.Fatalf("Apply(%q): %v", key, err)
		}
	}

	row, err := tbl.ReadRow(ctx, "jadams")
	if err != nil {
		t.Fatalf("ReadRow: %v", err)
	}
	if row == nil {
		t.Fatal("written row not found")
	}
	cells := row["follows"]
	if len(cells) != 1 || cells[0].Column != "follows:tjefferson" || !bytes.Equal(cells[0].Value, []byte("1")) {
		t.Errorf("unexpected cells %v", cells)
	}

	var keys []string
	err = tbl.ReadRows(ctx, InfiniteRange(""), func(r Row) bool {
		keys = append(keys, r.Key())
		return true
	})
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	want := []string{"gwashington", "jadams", "wmckinley"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("row keys mismatch (-want +got):\n%s", diff)
	}
}

func TestIntegration_FilteredRead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, client, _, table, cleanup := setupIntegration(ctx, t)
	defer cleanup()

	tbl := client.Open(table)
	mut := NewMutation()
	mut.Set("follows", "col1", 1000, []byte("v1"))
	mut.Set("follows", "col2", 1000, []byte("v2"))
	if err := tbl.Apply(ctx, "r1", mut); err != nil {
		t.Fatal(err)
	}

	row, err := tbl.ReadRow(ctx, "r1", RowFilter(ColumnFilter("col2")))
	if err != nil {
		t.Fatal(err)
	}
	cells := row["follows"]
	if len(cells) != 1 || cells[0].Column != "follows:col2" {
		t.Errorf("filter leaked extra cells: %v", cells)
	}

	// A stripped read keeps the cell but drops its value.
	row, err = tbl.ReadRow(ctx, "r1", RowFilter(ChainFilters(ColumnFilter("col1"), StripValueFilter())))
	if err != nil {
		t.Fatal(err)
	}
	cells = row["follows"]
	if len(cells) != 1 || len(cells[0].Value) != 0 {
		t.Errorf("strip_value left values behind: %v", cells)
	}
}

func TestIntegration_ApplyBulk(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, client, _, table, cleanup := setupIntegration(ctx, t)
	defer cleanup()

	tbl := client.Open(table)
	var keys []string
	var muts []*Mutation
	for i := 0; i < 5; i++ {
		keys = append(keys, fmt.Sprintf("bulk-%02d", i))
		mut := NewMutation()
		mut.Set("follows", "c", 1000, []byte{byte(i)})
		muts = append(muts, mut)
	}
	errs, err := tbl.ApplyBulk(ctx, keys, muts)
	if err != nil {
		t.Fatalf("ApplyBulk: %v", err)
	}
	if errs != nil {
		t.Fatalf("per-entry errors: %v", errs)
	}

	n := 0
	if err := tbl.ReadRows(ctx, PrefixRange("bulk-"), func(r Row) bool { n++; return true }); err != nil {
		t.Fatal(err)
	}
	if n != len(keys) {
		t.Errorf("got %d rows, want %d", n, len(keys))
	}
}

func TestIntegration_ConditionalMutation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, client, _, table, cleanup := setupIntegration(ctx, t)
	defer cleanup()

	tbl := client.Open(table)
	mut := NewMutation()
	mut.Set("follows", "c", 1000, []byte("present"))
	if err := tbl.Apply(ctx, "r1", mut); err != nil {
		t.Fatal(err)
	}

	onMatch := NewMutation()
	onMatch.Set("follows", "matched", 1000, []byte("yes"))
	cond := NewCondMutation(ColumnFilter("c"), onMatch, nil)

	var matched bool
	if err := tbl.Apply(ctx, "r1", cond, GetCondMutationResult(&matched)); err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Error("predicate should have matched")
	}

	row, err := tbl.ReadRow(ctx, "r1", RowFilter(ColumnFilter("matched")))
	if err != nil {
		t.Fatal(err)
	}
	if len(row["follows"]) != 1 {
		t.Errorf("conditional mutation not applied: %v", row)
	}
}

func TestIntegration_ReadModifyWrite(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, client, _, table, cleanup := setupIntegration(ctx, t)
	defer cleanup()

	tbl := client.Open(table)
	rmw := NewReadModifyWrite()
	rmw.AppendValue("follows", "c", []byte("ab"))
	rmw.Increment("follows", "n", 5)

	row, err := tbl.ApplyReadModifyWrite(ctx, "r1", rmw)
	if err != nil {
		t.Fatalf("ApplyReadModifyWrite: %v", err)
	}
	got := map[string][]byte{}
	for _, cell := range row["follows"] {
		got[cell.Column] = cell.Value
	}
	if !bytes.Equal(got["follows:c"], []byte("ab")) {
		t.Errorf("append produced %q", got["follows:c"])
	}
	if want := []byte{0, 0, 0, 0, 0, 0, 0, 5}; !bytes.Equal(got["follows:n"], want) {
		t.Errorf("increment produced %v, want %v", got["follows:n"], want)
	}
}

func TestIntegration_DropRowRange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, client, adminClient, table, cleanup := setupIntegration(ctx, t)
	defer cleanup()

	tbl := client.Open(table)
	for _, key := range []string{"a-1", "a-2", "b-1"} {
		mut := NewMutation()
		mut.Set("follows", "c", 1000, []byte("v"))
		if err := tbl.Apply(ctx, key, mut); err != nil {
			t.Fatal(err)
		}
	}

	if err := adminClient.DropRowRange(ctx, table, "a-"); err != nil {
		t.Fatalf("DropRowRange: %v", err)
	}

	var keys []string
	if err := tbl.ReadRows(ctx, InfiniteRange(""), func(r Row) bool {
		keys = append(keys, r.Key())
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b-1"}, keys); diff != "" {
		t.Errorf("surviving keys mismatch (-want +got):\n%s", diff)
	}
}

func TestIntegration_AdminTableLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	env, err := NewIntegrationEnv()
	if err != nil {
		t.Skipf("integration environment unavailable: %v", err)
	}
	defer env.Close()
	adminClient, err := env.NewAdminClient()
	if err != nil {
		t.Fatal(err)
	}
	defer adminClient.Close()

	table := fmt.Sprintf("it-admin-%s", uuid.New().String()[:8])
	if err := adminClient.CreateTable(ctx, table); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	defer adminClient.DeleteTable(ctx, table)

	tables, err := adminClient.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	found := false
	for _, name := range tables {
		if name == table {
			found = true
		}
	}
	if !found {
		t.Fatalf("created table %q not listed in %v", table, tables)
	}

	if err := adminClient.CreateColumnFamily(ctx, table, "fam"); err != nil {
		t.Fatalf("CreateColumnFamily: %v", err)
	}
	if err := adminClient.SetGCPolicy(ctx, table, "fam", MaxVersionsPolicy(2)); err != nil {
		t.Fatalf("SetGCPolicy: %v", err)
	}

	info, err := adminClient.TableInfo(ctx, table)
	if err != nil {
		t.Fatalf("TableInfo: %v", err)
	}
	famFound := false
	for _, fam := range info.FamilyInfos {
		if fam.Name == "fam" {
			famFound = true
			if fam.GCPolicy != MaxVersionsPolicy(2).String() {
				t.Errorf("GC policy = %q, want %q", fam.GCPolicy, MaxVersionsPolicy(2).String())
			}
		}
	}
	if !famFound {
		t.Errorf("family not reported in %v", info.FamilyInfos)
	}

	if err := adminClient.DeleteColumnFamily(ctx, table, "fam"); err != nil {
		t.Fatalf("DeleteColumnFamily: %v", err)
	}
	if err := adminClient.DeleteTable(ctx, table); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}
}

func TestIntegration_InstanceAdmin(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	env, err := NewIntegrationEnv()
	if err != nil {
		t.Skipf("integration environment unavailable: %v", err)
	}
	defer env.Close()

	iAdmin, err := env.NewInstanceAdminClient()
	if err != nil {
		t.Fatal(err)
	}
	if iAdmin == nil {
		t.Skip("instance administration unsupported in this environment")
	}
	defer iAdmin.Close()

	info, err := iAdmin.InstanceInfo(ctx, env.Config().Instance)
	if err != nil {
		t.Fatalf("InstanceInfo: %v", err)
	}
	if info.Name != env.Config().Instance {
		t.Errorf("instance name = %q, want %q", info.Name, env.Config().Instance)
	}
}
