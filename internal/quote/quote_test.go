package quote

import (
	"testing"
	"time"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"aapl":    "AAPL",
		" msft ":  "MSFT",
		"BRK.B":   "BRK.B",
		"GOOGL":   "GOOGL",
		"  ":      "",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeSymbols_DedupesAndDropsEmpty(t *testing.T) {
	got := NormalizeSymbols([]string{"aapl", "AAPL", "", " ", "msft", "aapl"})
	want := []string{"AAPL", "MSFT"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestValid(t *testing.T) {
	if (Quote{Price: 0}).Valid() {
		t.Error("zero price must not be valid")
	}
	if (Quote{Price: -1.5}).Valid() {
		t.Error("negative price must not be valid")
	}
	if !(Quote{Price: 0.01}).Valid() {
		t.Error("positive price must be valid")
	}
}

func TestAge(t *testing.T) {
	fetched := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	q := Quote{FetchedAt: fetched}
	if got := q.Age(fetched.Add(42 * time.Second)); got != 42*time.Second {
		t.Errorf("Age = %v, want 42s", got)
	}
}
