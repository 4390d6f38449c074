package epoch

import "testing"

func TestMaxInt64(t *testing.T) {
	cases := []struct {
		a, b, want int64
	}{
		{5, 3, 5},
		{3, 5, 5},
		{-2, 0, 0},
		{0, -2, 0},
	}
	for _, c := range cases {
		if got := maxInt64(c.a, c.b); got != c.want {
			t.Errorf("maxInt64(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
