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
	"time"

	btpb "cloud.google.com/go/bigtable/apiv2/bigtablepb"
)

func TestFilterString(t *testing.T) {
	tests := []struct {
		filter Filter
		want   string
	}{
		{RowKeyFilter("x"), "row(x)"},
		{FamilyFilter("fam"), "col(fam:)"},
		{ColumnFilter("col"), "col(.*:col)"},
		{ValueFilter("va.*ue"), "value_match(va.*ue)"},
		{LatestNFilter(3), "col(*,3)"},
		{StripValueFilter(), "strip_value()"},
		{LabelFilter("lbl"), "apply_label(lbl)"},
		{CellsPerRowOffsetFilter(10), "cells_per_row_offset(10)"},
		{CellsPerRowLimitFilter(2), "cells_per_row_limit(2)"},
		{PassAllFilter(), "passAllFilter()"},
		{BlockAllFilter(), "blockAllFilter()"},
		{ChainFilters(FamilyFilter("f"), LatestNFilter(1)), "(col(f:) | col(*,1))"},
		{InterleaveFilters(RowKeyFilter("a"), RowKeyFilter("b")), "(row(a) + row(b))"},
		{ColumnRangeFilter("f", "a", "b"), "columnRangeFilter(f,a,b)"},
		{ValueRangeFilter([]byte("lo"), []byte("hi")), "valueRangeFilter(lo,hi)"},
		{
			ConditionFilter(RowKeyFilter("p"), PassAllFilter(), BlockAllFilter()),
			"conditionFilter(row(p),passAllFilter(),blockAllFilter())",
		},
	}
	for _, tc := range tests {
		if got := tc.filter.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestChainFilterProto(t *testing.T) {
	f := ChainFilters(FamilyFilter("fam"), LatestNFilter(1)).proto()
	chain := f.GetChain()
	if chain == nil {
		t.Fatal("expected chain filter")
	}
	if got, want := len(chain.Filters), 2; got != want {
		t.Fatalf("got %d chained filters, want %d", got, want)
	}
	if got := chain.Filters[0].GetFamilyNameRegexFilter(); got != "fam" {
		t.Errorf("family regex = %q, want %q", got, "fam")
	}
	if got := chain.Filters[1].GetCellsPerColumnLimitFilter(); got != 1 {
		t.Errorf("cells per column limit = %d, want 1", got)
	}
}

func TestTimestampRangeFilterProto(t *testing.T) {
	start := time.Unix(10, 1000) // 10s and 1µs; truncated to ms
	end := time.Unix(20, 0)
	f := TimestampRangeFilter(start, end).proto().GetTimestampRangeFilter()
	if f == nil {
		t.Fatal("expected timestamp range filter")
	}
	if got, want := f.StartTimestampMicros, int64(10_000_000); got != want {
		t.Errorf("start = %d, want %d", got, want)
	}
	if got, want := f.EndTimestampMicros, int64(20_000_000); got != want {
		t.Errorf("end = %d, want %d", got, want)
	}
}

func TestColumnRangeFilterProtoBounds(t *testing.T) {
	r := ColumnRangeFilter("fam", "", "q").proto().GetColumnRangeFilter()
	if r.StartQualifier != nil {
		t.Errorf("expected unbounded start, got %v", r.StartQualifier)
	}
	if got := r.GetEndQualifierOpen(); string(got) != "q" {
		t.Errorf("end qualifier = %q, want %q", got, "q")
	}

	r = ColumnRangeFilter("fam", "q", "").proto().GetColumnRangeFilter()
	if got := r.GetStartQualifierClosed(); string(got) != "q" {
		t.Errorf("start qualifier = %q, want %q", got, "q")
	}
	if r.EndQualifier != nil {
		t.Errorf("expected unbounded end, got %v", r.EndQualifier)
	}
}

func TestConditionFilterNilBranches(t *testing.T) {
	cond := ConditionFilter(RowKeyFilter("p"), PassAllFilter(), nil).proto().GetCondition()
	if cond.PredicateFilter == nil {
		t.Error("missing predicate filter")
	}
	if cond.TrueFilter == nil {
		t.Error("missing true filter")
	}
	if cond.FalseFilter != nil {
		t.Error("false filter should be absent")
	}
}

func TestValueRangeFilterProtoUnbounded(t *testing.T) {
	r := ValueRangeFilter(nil, nil).proto().GetValueRangeFilter()
	if r.StartValue != nil || r.EndValue != nil {
		t.Errorf("expected fully unbounded value range, got %v", r)
	}
}

func TestFilterProtoKinds(t *testing.T) {
	// Spot check that each constructor maps to the right proto oneof.
	tests := []struct {
		filter Filter
		check  func(*btpb.RowFilter) bool
	}{
		{RowKeyFilter("x"), func(f *btpb.RowFilter) bool { return string(f.GetRowKeyRegexFilter()) == "x" }},
		{ValueFilter("v"), func(f *btpb.RowFilter) bool { return string(f.GetValueRegexFilter()) == "v" }},
		{StripValueFilter(), func(f *btpb.RowFilter) bool { return f.GetStripValueTransformer() }},
		{LabelFilter("l"), func(f *btpb.RowFilter) bool { return f.GetApplyLabelTransformer() == "l" }},
		{RowSampleFilter(0.5), func(f *btpb.RowFilter) bool { return f.GetRowSampleFilter() == 0.5 }},
		{PassAllFilter(), func(f *btpb.RowFilter) bool { return f.GetPassAllFilter() }},
		{BlockAllFilter(), func(f *btpb.RowFilter) bool { return f.GetBlockAllFilter() }},
		{CellsPerRowOffsetFilter(4), func(f *btpb.RowFilter) bool { return f.GetCellsPerRowOffsetFilter() == 4 }},
		{CellsPerRowLimitFilter(5), func(f *btpb.RowFilter) bool { return f.GetCellsPerRowLimitFilter() == 5 }},
	}
	for _, tc := range tests {
		if !tc.check(tc.filter.proto()) {
			t.Errorf("%s: proto mapping mismatch", tc.filter)
		}
	}
}
