package cache

import (
	"math"
	"testing"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, err := e.Embed("summarize this quarterly report")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := e.Embed("summarize this quarterly report")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(a) != 64 {
		t.Fatalf("vector length = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLocalEmbedder_UnitLength(t *testing.T) {
	e := NewLocalEmbedder(128)

	vec, err := e.Embed("the quick brown fox")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("vector norm = %v, want 1.0", norm)
	}
}

func TestLocalEmbedder_TokenOrderInvariant(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, _ := e.Embed("please summarize this document")
	b, _ := e.Embed("summarize this document, please")

	if score := cosine(a, b); score < 0.999 {
		t.Errorf("cosine of reordered tokens = %v, want ~1.0", score)
	}
}

func TestLocalEmbedder_DistinctTextsDiverge(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, _ := e.Embed("summarize this quarterly report")
	b, _ := e.Embed("translate the menu into french")

	if score := cosine(a, b); score > 0.8 {
		t.Errorf("cosine of unrelated texts = %v, want well below a hit threshold", score)
	}
}

func TestLocalEmbedder_EmptyText(t *testing.T) {
	e := NewLocalEmbedder(64)

	if _, err := e.Embed(""); err == nil {
		t.Error("Embed(\"\") succeeded, want error")
	}
	if _, err := e.Embed("  \t "); err == nil {
		t.Error("Embed(whitespace) succeeded, want error")
	}
}

func TestLocalEmbedder_Dimensions(t *testing.T) {
	if got := NewLocalEmbedder(256).Dimensions(); got != 256 {
		t.Errorf("Dimensions() = %d, want 256", got)
	}
	// Invalid dimension counts fall back to a usable default.
	if got := NewLocalEmbedder(0).Dimensions(); got <= 0 {
		t.Errorf("Dimensions() = %d for zero config, want a positive default", got)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}
