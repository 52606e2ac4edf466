package search

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

func TestFuse_ReciprocalRank(t *testing.T) {
	dense := []string{"A", "B", "C"}
	sparse := []string{"B", "D", "A"}
	fused := Fuse(DefaultRRFConstant, dense, sparse)

	if got, want := FusedCodes(fused), []string{"B", "A", "D", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	want := map[string]float64{
		"A": 1.0/61 + 1.0/63,
		"B": 1.0/62 + 1.0/61,
		"C": 1.0 / 63,
		"D": 1.0 / 62,
	}
	for _, c := range fused {
		if math.Abs(c.Score-want[c.Code]) > 1e-12 {
			t.Errorf("score(%s) = %v, want %v", c.Code, c.Score, want[c.Code])
		}
	}
}

func TestFuse_Deterministic(t *testing.T) {
	dense := []string{"K35", "K36", "K37", "K38"}
	sparse := []string{"K38", "K37", "K36", "K35"}
	first := FusedCodes(Fuse(60, dense, sparse))
	for i := 0; i < 50; i++ {
		if got := FusedCodes(Fuse(60, dense, sparse)); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v != %v", i, got, first)
		}
	}
	// Mirror-image lists tie every code; first-seen order then decides.
	if want := []string{"K35", "K36", "K37", "K38"}; !reflect.DeepEqual(first, want) {
		t.Errorf("tie order = %v, want %v", first, want)
	}
}

func TestFuse_TieBreakAcrossLists(t *testing.T) {
	// X only in the dense list and Y only in the sparse list, both at rank 0.
	got := FusedCodes(Fuse(60, []string{"X"}, []string{"Y"}))
	if want := []string{"X", "Y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestFuse_SupersetScoresHigher(t *testing.T) {
	// X and Y sit at the same rank in the shared list and X also appears in
	// a second list, so X must never score below Y.
	for rank := 0; rank < 5; rank++ {
		for extra := 0; extra < 5; extra++ {
			shared := make([]string, 0, rank+1)
			other := make([]string, 0, rank+1)
			for i := 0; i < rank; i++ {
				shared = append(shared, fmt.Sprintf("s%d", i))
				other = append(other, fmt.Sprintf("o%d", i))
			}
			shared = append(shared, "X")
			other = append(other, "Y")
			second := make([]string, 0, extra+1)
			for i := 0; i < extra; i++ {
				second = append(second, fmt.Sprintf("e%d", i))
			}
			second = append(second, "X")

			scores := make(map[string]float64)
			for _, c := range Fuse(60, shared, other, second) {
				scores[c.Code] = c.Score
			}
			if scores["X"] < scores["Y"] {
				t.Errorf("rank=%d extra=%d: X=%v < Y=%v", rank, extra, scores["X"], scores["Y"])
			}
		}
	}
}

func TestFuse_Empty(t *testing.T) {
	for name, lists := range map[string][][]string{
		"no lists":    nil,
		"empty lists": {{}, {}},
		"nil lists":   {nil, nil},
	} {
		t.Run(name, func(t *testing.T) {
			fused := Fuse(60, lists...)
			if fused == nil || len(fused) != 0 {
				t.Errorf("Fuse = %v, want empty slice", fused)
			}
		})
	}
}

func TestFuse_OneSideEmpty(t *testing.T) {
	got := FusedCodes(Fuse(60, nil, []string{"B", "A"}))
	if want := []string{"B", "A"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func BenchmarkFuse(b *testing.B) {
	dense := make([]string, 20)
	sparse := make([]string, 20)
	for i := range dense {
		dense[i] = fmt.Sprintf("K%02d", i)
		sparse[i] = fmt.Sprintf("K%02d", 39-i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Fuse(DefaultRRFConstant, dense, sparse)
	}
}
