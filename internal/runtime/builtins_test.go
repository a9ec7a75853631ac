package runtime

import "testing"

func TestSpecAccepts(t *testing.T) {
	cases := []struct {
		spec Spec
		argc int
		want bool
	}{
		{Spec{Arity: 1}, 1, true},
		{Spec{Arity: 1}, 2, false},
		{Spec{Arity: 0, MaxArity: -1}, 5, true},
		{Spec{Arity: 2, MaxArity: 3}, 3, true},
		{Spec{Arity: 2, MaxArity: 3}, 1, false},
		{Spec{Arity: 2, MaxArity: 3}, 4, false},
	}
	for i, tc := range cases {
		if got := tc.spec.Accepts(tc.argc); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}
