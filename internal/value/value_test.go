package value

import "testing"

func TestTruthiness(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Bool(false), false},
		{Bool(true), true},
		{Nil(), true},
		{Number(0), true},
		{Object(Ref{Index: 1}), true},
	}
	for i, tc := range cases {
		if got := Truthy(tc.v); got != tc.want {
			t.Fatalf("case %d (%v): expected %v, got %v", i, tc.v.Kind, tc.want, got)
		}
	}
}
