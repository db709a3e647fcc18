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
	"testing"

	btpb "cloud.google.com/go/bigtable/apiv2/bigtablepb"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// chunk builders. A nil family/qualifier means "inherit from the previous
// cell", which is distinct from an empty value.

type chunkOpt func(*btpb.ReadRowsResponse_CellChunk)

func chunk(opts ...chunkOpt) *btpb.ReadRowsResponse_CellChunk {
	cc := &btpb.ReadRowsResponse_CellChunk{}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

func ckey(k string) chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) { cc.RowKey = []byte(k) }
}

func cfam(f string) chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) { cc.FamilyName = wrapperspb.String(f) }
}

func cqual(q string) chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) { cc.Qualifier = wrapperspb.Bytes([]byte(q)) }
}

func cts(ts int64) chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) { cc.TimestampMicros = ts }
}

func cval(v string) chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) { cc.Value = []byte(v) }
}

func cvalSize(n int32) chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) { cc.ValueSize = n }
}

func clabels(labels ...string) chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) { cc.Labels = labels }
}

func ccommit() chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) {
		cc.RowStatus = &btpb.ReadRowsResponse_CellChunk_CommitRow{CommitRow: true}
	}
}

func creset() chunkOpt {
	return func(cc *btpb.ReadRowsResponse_CellChunk) {
		cc.RowStatus = &btpb.ReadRowsResponse_CellChunk_ResetRow{ResetRow: true}
	}
}

func mustProcess(t *testing.T, cr *chunkReader, ccs ...*btpb.ReadRowsResponse_CellChunk) []Row {
	t.Helper()
	var rows []Row
	for _, cc := range ccs {
		row, err := cr.Process(cc)
		if err != nil {
			t.Fatalf("Process(%v): %v", cc, err)
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows
}

func TestSingleCellRow(t *testing.T) {
	cr := newChunkReader()
	rows := mustProcess(t, cr,
		chunk(ckey("r1"), cfam("fam"), cqual("col"), cts(100), cval("v"), ccommit()),
	)
	if err := cr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []Row{{
		"fam": []ReadItem{{Row: "r1", Column: "fam:col", Timestamp: 100, Value: []byte("v")}},
	}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestCarryOverOfKeyComponents(t *testing.T) {
	// Chunks after the first may omit the row key, family and qualifier;
	// omitted components are inherited from the previous cell.
	cr := newChunkReader()
	rows := mustProcess(t, cr,
		chunk(ckey("r1"), cfam("fam"), cqual("a"), cts(2), cval("v2")),
		chunk(cts(1), cval("v1")),
		chunk(cqual("b"), cts(3), cval("v3")),
		chunk(cfam("other"), cqual("a"), cts(4), cval("v4"), ccommit()),
	)
	if err := cr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []Row{{
		"fam": []ReadItem{
			{Row: "r1", Column: "fam:a", Timestamp: 2, Value: []byte("v2")},
			{Row: "r1", Column: "fam:a", Timestamp: 1, Value: []byte("v1")},
			{Row: "r1", Column: "fam:b", Timestamp: 3, Value: []byte("v3")},
		},
		"other": []ReadItem{
			{Row: "r1", Column: "other:a", Timestamp: 4, Value: []byte("v4")},
		},
	}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitCellValue(t *testing.T) {
	// A value split over several chunks is accumulated until a chunk with
	// value_size == 0 completes the cell.
	cr := newChunkReader()
	rows := mustProcess(t, cr,
		chunk(ckey("r1"), cfam("fam"), cqual("col"), cts(1), cval("part1-"), cvalSize(18)),
		chunk(cval("part2-"), cvalSize(18)),
		chunk(cval("part3"), ccommit()),
	)
	if err := cr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []Row{{
		"fam": []ReadItem{{Row: "r1", Column: "fam:col", Timestamp: 1, Value: []byte("part1-part2-part3")}},
	}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestMultipleRows(t *testing.T) {
	cr := newChunkReader()
	rows := mustProcess(t, cr,
		chunk(ckey("r1"), cfam("fam"), cqual("col"), cval("v1"), ccommit()),
		chunk(ckey("r2"), cfam("fam"), cqual("col"), cval("v2"), ccommit()),
	)
	if err := cr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(rows) != 2 || rows[0].Key() != "r1" || rows[1].Key() != "r2" {
		t.Errorf("got rows %v, want r1 then r2", rows)
	}
}

func TestLabelsAppliedPerCell(t *testing.T) {
	cr := newChunkReader()
	rows := mustProcess(t, cr,
		chunk(ckey("r1"), cfam("fam"), cqual("a"), clabels("lbl"), cval("v1")),
		chunk(cqual("b"), cval("v2"), ccommit()),
	)
	if err := cr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	items := rows[0]["fam"]
	if got, want := len(items), 2; got != want {
		t.Fatalf("got %d items, want %d", got, want)
	}
	if diff := cmp.Diff([]string{"lbl"}, items[0].Labels); diff != "" {
		t.Errorf("first cell labels mismatch (-want +got):\n%s", diff)
	}
	if items[1].Labels != nil {
		t.Errorf("labels leaked into second cell: %v", items[1].Labels)
	}
}

func TestResetRowDiscardsPartialRow(t *testing.T) {
	cr := newChunkReader()
	rows := mustProcess(t, cr,
		chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("discarded")),
		chunk(creset()),
		chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("kept"), ccommit()),
	)
	if err := cr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []Row{{
		"fam": []ReadItem{{Row: "r1", Column: "fam:a", Value: []byte("kept")}},
	}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestResetDuringSplitCell(t *testing.T) {
	cr := newChunkReader()
	rows := mustProcess(t, cr,
		chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("part"), cvalSize(8)),
		chunk(creset()),
		chunk(ckey("r2"), cfam("fam"), cqual("a"), cval("v"), ccommit()),
	)
	if len(rows) != 1 || rows[0].Key() != "r2" {
		t.Errorf("got rows %v, want single row r2", rows)
	}
}

func TestReverseScanOrder(t *testing.T) {
	cr := newReverseChunkReader()
	mustProcess(t, cr,
		chunk(ckey("r9"), cfam("fam"), cqual("a"), cval("v"), ccommit()),
		chunk(ckey("r5"), cfam("fam"), cqual("a"), cval("v"), ccommit()),
	)
	if _, err := cr.Process(chunk(ckey("r7"), cfam("fam"), cqual("a"), cval("v"), ccommit())); err == nil {
		t.Error("expected error for increasing key on reverse scan")
	}
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		desc   string
		chunks []*btpb.ReadRowsResponse_CellChunk
	}{
		{
			desc:   "new row missing row key",
			chunks: []*btpb.ReadRowsResponse_CellChunk{chunk(cfam("fam"), cqual("a"), cval("v"))},
		},
		{
			desc:   "new row missing family",
			chunks: []*btpb.ReadRowsResponse_CellChunk{chunk(ckey("r1"), cqual("a"), cval("v"))},
		},
		{
			desc:   "new row missing qualifier",
			chunks: []*btpb.ReadRowsResponse_CellChunk{chunk(ckey("r1"), cfam("fam"), cval("v"))},
		},
		{
			desc:   "reset between rows",
			chunks: []*btpb.ReadRowsResponse_CellChunk{chunk(creset())},
		},
		{
			desc: "duplicate row key",
			chunks: []*btpb.ReadRowsResponse_CellChunk{
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("v"), ccommit()),
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("v"), ccommit()),
			},
		},
		{
			desc: "decreasing row key",
			chunks: []*btpb.ReadRowsResponse_CellChunk{
				chunk(ckey("r2"), cfam("fam"), cqual("a"), cval("v"), ccommit()),
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("v"), ccommit()),
			},
		},
		{
			desc: "new row key mid row",
			chunks: []*btpb.ReadRowsResponse_CellChunk{
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("v")),
				chunk(ckey("r2"), cqual("b"), cval("v")),
			},
		},
		{
			desc: "family without qualifier mid row",
			chunks: []*btpb.ReadRowsResponse_CellChunk{
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("v")),
				chunk(cfam("other"), cval("v")),
			},
		},
		{
			desc: "commit mid cell",
			chunks: []*btpb.ReadRowsResponse_CellChunk{
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("part"), cvalSize(8), ccommit()),
			},
		},
		{
			desc: "reset carrying data",
			chunks: []*btpb.ReadRowsResponse_CellChunk{
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("v")),
				chunk(creset(), cval("v")),
			},
		},
		{
			desc: "key components during split cell",
			chunks: []*btpb.ReadRowsResponse_CellChunk{
				chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("part"), cvalSize(8)),
				chunk(cqual("b"), cval("rest")),
			},
		},
	}
	for _, tc := range tests {
		cr := newChunkReader()
		var err error
		for _, cc := range tc.chunks {
			if _, err = cr.Process(cc); err != nil {
				break
			}
		}
		if err == nil {
			t.Errorf("%s: expected error, got none", tc.desc)
		}
	}
}

func TestCloseWithPartialRow(t *testing.T) {
	cr := newChunkReader()
	mustProcess(t, cr, chunk(ckey("r1"), cfam("fam"), cqual("a"), cval("v")))
	if err := cr.Close(); err == nil {
		t.Error("expected error closing with uncommitted row")
	}
}
