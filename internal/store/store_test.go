package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dex_trader/internal/core"

	"github.com/shopspring/decimal"
)

func sampleFill(orderID string, size float64) *core.Fill {
	return &core.Fill{
		OrderID:    orderID,
		Pair:       "SOL/USDC",
		Side:       core.SideBuy,
		FilledSize: decimal.NewFromFloat(size),
		AvgPrice:   decimal.NewFromFloat(101.5),
		FeePaid:    decimal.NewFromFloat(0.05),
		Venue:      "jupiter",
		Timestamp:  time.Now().UTC(),
	}
}

func roundTrip(t *testing.T, s core.IFillStore) {
	t.Helper()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveFill(ctx, sampleFill(id, float64(i+1))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	fills, err := s.LoadFills(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(fills) != 3 {
		t.Fatalf("loaded %d fills, want 3", len(fills))
	}

	// Append order is preserved.
	if fills[0].OrderID != "a" || fills[2].OrderID != "c" {
		t.Errorf("order not preserved: %s, %s, %s", fills[0].OrderID, fills[1].OrderID, fills[2].OrderID)
	}
	if !fills[1].FilledSize.Equal(decimal.NewFromInt(2)) {
		t.Errorf("size = %s, want 2", fills[1].FilledSize)
	}
	if !fills[0].AvgPrice.Equal(decimal.NewFromFloat(101.5)) {
		t.Errorf("price = %s, want 101.5", fills[0].AvgPrice)
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	roundTrip(t, s)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	roundTrip(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveFill(context.Background(), sampleFill("a", 1)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	fills, err := s2.LoadFills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 || fills[0].OrderID != "a" {
		t.Errorf("history lost across reopen: %v", fills)
	}
}

func TestMemoryStore_CopiesFills(t *testing.T) {
	s := NewMemoryStore()
	fill := sampleFill("a", 1)
	if err := s.SaveFill(context.Background(), fill); err != nil {
		t.Fatal(err)
	}

	fill.OrderID = "mutated"

	fills, _ := s.LoadFills(context.Background())
	if fills[0].OrderID != "a" {
		t.Error("store kept a reference to the caller's fill")
	}
}
