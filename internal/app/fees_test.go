package app

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAffordableTargets(t *testing.T) {
	estimates := map[string]decimal.Decimal{
		"1":   decimal.NewFromInt(25),
		"3":   decimal.NewFromInt(12),
		"6":   decimal.NewFromInt(8),
		"144": decimal.NewFromFloat(2.5),
	}

	got := affordableTargets(estimates, decimal.NewFromInt(10))
	want := []int{6, 144}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v in ascending order, got %v", want, got)
		}
	}

	if got := affordableTargets(estimates, decimal.NewFromInt(1)); len(got) != 0 {
		t.Fatalf("nothing fits under a 1 sat/vB ceiling, got %v", got)
	}
}
