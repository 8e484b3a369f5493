package internaldefs

import (
	"strings"
	"testing"
)

func TestFamiliesCoverEachCounterOnce(t *testing.T) {
	names := make(map[string]bool, len(CounterFamilies))
	ids := make(map[uint16]bool)
	for _, fam := range CounterFamilies {
		if !strings.HasPrefix(fam.Name, "sessionguard_") || !strings.HasSuffix(fam.Name, "_total") {
			t.Fatalf("unexpected family name %q", fam.Name)
		}
		if names[fam.Name] {
			t.Fatalf("duplicate family name %q", fam.Name)
		}
		names[fam.Name] = true

		if fam.Label == "" && len(fam.Series) != 1 {
			t.Fatalf("%s: unlabelled family must have one series, got %d", fam.Name, len(fam.Series))
		}
		values := make(map[string]bool, len(fam.Series))
		for _, s := range fam.Series {
			if ids[uint16(s.ID)] {
				t.Fatalf("counter id %d exported twice", s.ID)
			}
			ids[uint16(s.ID)] = true
			if fam.Label != "" && (s.Value == "" || values[s.Value]) {
				t.Fatalf("%s: bad or duplicate label value %q", fam.Name, s.Value)
			}
			values[s.Value] = true
		}
	}
	if len(ids) != 16 {
		t.Fatalf("expected all 16 counters exported, got %d", len(ids))
	}
}

func TestBoundsAlignWithSuffixes(t *testing.T) {
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatalf("expected 8 bounds, got %d/%d", len(HistogramBounds), len(HistogramBoundSuffix))
	}
	for i, le := range HistogramBounds {
		want := strings.ReplaceAll(le, ".", "_")
		if le == "+Inf" {
			want = "inf"
		}
		if HistogramBoundSuffix[i] != want {
			t.Fatalf("bound %d: suffix %q does not match %q", i, HistogramBoundSuffix[i], le)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
