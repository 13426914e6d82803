package extract

import (
	"reflect"
	"strings"
	"testing"
)

func TestObjectRecords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"flat", `x{"a":1}y`, []string{`{"a":1}`}},
		{"nested collapses child", `{"a":{"b":2},"c":3}`, []string{`{"a":{},"c":3}`, `{"b":2}`}},
		{"stray close ignored", `}}{"a":1}`, []string{`{"a":1}`}},
		{"unclosed ignored", `{"a":1`, nil},
		{"siblings in order", `[{"a":1},{"b":2}]`, []string{`{"a":1}`, `{"b":2}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, rec := range objectRecords(tt.in) {
				got = append(got, rec.text)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("objectRecords(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestObjectRecords_OversizedOwnTextDropped(t *testing.T) {
	big := `{"pad":"` + strings.Repeat("x", MaxRecordWindow) + `","child":{"a":1}}`

	recs := objectRecords(big)
	if len(recs) != 1 || recs[0].text != `{"a":1}` {
		t.Fatalf("expected only the child record, got %+v", recs)
	}
}

func TestObjectRecords_DeepNestingIsBounded(t *testing.T) {
	in := strings.Repeat("{", maxObjectDepth+10) + strings.Repeat("}", maxObjectDepth+10)

	recs := objectRecords(in)
	if len(recs) != maxObjectDepth {
		t.Fatalf("expected %d records, got %d", maxObjectDepth, len(recs))
	}
}
