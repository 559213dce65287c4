package mathx

import "testing"

func TestFloorDivMod(t *testing.T) {
	cases := []struct {
		a, b, q, m int
	}{
		{0, 32, 0, 0},
		{31, 32, 0, 31},
		{32, 32, 1, 0},
		{-1, 32, -1, 31},
		{-32, 32, -1, 0},
		{-33, 32, -2, 31},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
		if c.q*c.b+Mod(c.a, c.b) != c.a {
			t.Fatalf("q*b+m != a for a=%d", c.a)
		}
	}
}

func TestBitsForAndNextPow2(t *testing.T) {
	bitsCases := map[int]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 256: 8, 257: 9}
	for n, want := range bitsCases {
		if got := BitsFor(n); got != want {
			t.Fatalf("BitsFor(%d)=%d want %d", n, got, want)
		}
	}
	powCases := map[int]int{0: 0, 1: 1, 2: 2, 3: 4, 5: 8, 9: 16, 16: 16}
	for v, want := range powCases {
		if got := NextPow2(v); got != want {
			t.Fatalf("NextPow2(%d)=%d want %d", v, got, want)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash2(7, 1, 2) != Hash2(7, 1, 2) {
		t.Fatalf("Hash2 not deterministic")
	}
	if Hash3(7, 1, 2, 3) == Hash3(8, 1, 2, 3) {
		t.Fatalf("Hash3 ignores seed")
	}
}
