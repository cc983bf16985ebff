package models

import (
	"math"
	"testing"
)

func TestBalanceDelta(t *testing.T) {
	cases := []struct {
		before, after uint64
		want          int64
	}{
		{100, 200, 100},
		{200, 100, -100},
		{0, math.MaxUint64, math.MaxInt64},
		{math.MaxUint64, 0, math.MinInt64},
		{math.MaxUint64 - 10, math.MaxUint64, 10},
	}
	for _, c := range cases {
		if got := BalanceDelta(c.before, c.after); got != c.want {
			t.Fatalf("BalanceDelta(%d, %d) = %d, want %d", c.before, c.after, got, c.want)
		}
	}
}
