package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 20, 20},
		{"3", 1, 3},
		{"-1", 1, -1}, // caller clamps; parsing is faithful
		{"007", 1, 7},
		{"two", 20, 20},
		{" 3", 20, 20}, // padded input is malformed
		{"99999999999999999999", 20, 20},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Errorf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}
