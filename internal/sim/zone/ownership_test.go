package zone

import (
	"sync"
	"testing"
)

func cube(min, max int) CoordSet {
	s := CoordSet{}
	for x := min; x <= max; x++ {
		for y := min; y <= max; y++ {
			for z := min; z <= max; z++ {
				s.Add(Coord{X: x, Y: y, Z: z})
			}
		}
	}
	return s
}

func TestClaim_GrantsUnownedAndSkipsForeign(t *testing.T) {
	r := NewOwnershipRegistry(KindOxygen, nil)
	ws := WorldSpace("adastra:moon")
	a := Coord{X: 0, Y: 64, Z: 0}
	b := Coord{X: 10, Y: 64, Z: 0}

	got := r.Claim(ws, a, NewCoordSet(Coord{X: 1}, Coord{X: 2}))
	if len(got) != 2 {
		t.Fatalf("first claim: got %d want 2", len(got))
	}

	got = r.Claim(ws, b, NewCoordSet(Coord{X: 2}, Coord{X: 3}))
	if len(got) != 1 || !got.Has(Coord{X: 3}) {
		t.Fatalf("contested claim: got %v want only {3,0,0}", got.Sorted())
	}
	if owner, ok := r.OwnerOf(ws, Coord{X: 2}); !ok || owner != a {
		t.Fatalf("owner of contested coord: got %v,%v want %v", owner, ok, a)
	}
	if r.IsAvailable(ws, Coord{X: 3}) {
		t.Fatalf("claimed coord reported available")
	}
	if !r.IsAvailable(ws, Coord{X: 4}) {
		t.Fatalf("unclaimed coord reported taken")
	}
}

func TestClaim_Idempotent(t *testing.T) {
	r := NewOwnershipRegistry(KindGravity, nil)
	ws := WorldSpace("adastra:mars")
	owner := Coord{X: 5, Y: 5, Z: 5}
	req := cube(0, 2)

	first := r.Claim(ws, owner, req)
	second := r.Claim(ws, owner, req)
	if len(first) != len(req) || len(second) != len(req) {
		t.Fatalf("claim sizes: first=%d second=%d want %d", len(first), len(second), len(req))
	}
	for c := range req {
		if !second.Has(c) {
			t.Fatalf("re-claim missing %v", c)
		}
	}
	if got := r.OccupiedCount(ws); got != len(req) {
		t.Fatalf("occupied after re-claim: got %d want %d", got, len(req))
	}
}

func TestClaim_EmptyRequestCreatesNothing(t *testing.T) {
	r := NewOwnershipRegistry(KindOxygen, nil)
	if got := r.Claim("adastra:moon", Coord{}, nil); len(got) != 0 {
		t.Fatalf("empty claim granted %d", len(got))
	}
	if len(r.WorldSpaces()) != 0 {
		t.Fatalf("empty claim created world-space state")
	}
}

func TestRelease_IgnoresForeignAndUnowned(t *testing.T) {
	r := NewOwnershipRegistry(KindOxygen, nil)
	ws := WorldSpace("adastra:moon")
	a := Coord{X: 1}
	b := Coord{X: 2}
	r.Claim(ws, a, NewCoordSet(Coord{Y: 1}, Coord{Y: 2}))

	if n := r.Release(ws, b, NewCoordSet(Coord{Y: 1}, Coord{Y: 9})); n != 0 {
		t.Fatalf("foreign release removed %d", n)
	}
	if owner, ok := r.OwnerOf(ws, Coord{Y: 1}); !ok || owner != a {
		t.Fatalf("foreign release changed owner")
	}
	if n := r.Release("adastra:unknown", a, NewCoordSet(Coord{Y: 1})); n != 0 {
		t.Fatalf("release in unknown world-space removed %d", n)
	}

	if n := r.Release(ws, a, NewCoordSet(Coord{Y: 1}, Coord{Y: 2})); n != 2 {
		t.Fatalf("owner release: got %d want 2", n)
	}
	if n := r.Release(ws, a, NewCoordSet(Coord{Y: 1}, Coord{Y: 2})); n != 0 {
		t.Fatalf("second release: got %d want 0", n)
	}
	for _, c := range []Coord{{Y: 1}, {Y: 2}} {
		if _, ok := r.OwnerOf(ws, c); ok {
			t.Fatalf("%v still owned after release", c)
		}
	}
	if got := r.OccupiedCount(ws); got != 0 {
		t.Fatalf("occupied after release: got %d", got)
	}
}

func TestOccupiedCount_MatchesOwnership(t *testing.T) {
	r := NewOwnershipRegistry(KindOxygen, nil)
	ws := WorldSpace("adastra:venus")
	a := Coord{X: -1}
	b := Coord{X: 1}

	r.Claim(ws, a, cube(0, 3))
	r.Claim(ws, b, cube(2, 5))
	r.Release(ws, a, cube(0, 1))
	r.Claim(ws, b, cube(0, 1))
	r.Release(ws, b, cube(4, 5))

	owned := 0
	for c := range cube(-1, 6) {
		if _, ok := r.OwnerOf(ws, c); ok {
			owned++
		}
	}
	if got := r.OccupiedCount(ws); got != owned {
		t.Fatalf("occupied=%d owned=%d", got, owned)
	}
	if got := len(r.Owned(ws, a)) + len(r.Owned(ws, b)); got != owned {
		t.Fatalf("per-anchor totals=%d owned=%d", got, owned)
	}
}

func TestClaim_ConcurrentAtMostOneOwner(t *testing.T) {
	r := NewOwnershipRegistry(KindOxygen, nil)
	ws := WorldSpace("adastra:moon")
	req := cube(0, 4)

	const owners = 16
	results := make([]CoordSet, owners)
	var wg sync.WaitGroup
	for i := 0; i < owners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Claim(ws, Coord{X: 100 + i}, req)
		}(i)
	}
	wg.Wait()

	for c := range req {
		holders := 0
		var holder Coord
		for i, got := range results {
			if got.Has(c) {
				holders++
				holder = Coord{X: 100 + i}
			}
		}
		if holders != 1 {
			t.Fatalf("%v granted to %d owners", c, holders)
		}
		if owner, ok := r.OwnerOf(ws, c); !ok || owner != holder {
			t.Fatalf("%v owner=%v,%v want %v", c, owner, ok, holder)
		}
	}
	if got := r.OccupiedCount(ws); got != len(req) {
		t.Fatalf("occupied=%d want %d", got, len(req))
	}
}

func TestWorldSpaceIsolation(t *testing.T) {
	r := NewOwnershipRegistry(KindOxygen, nil)
	a := Coord{X: 7}
	origin := Coord{}

	r.Claim("alpha", a, NewCoordSet(origin))
	if !r.IsAvailable("beta", origin) {
		t.Fatalf("claim in alpha leaked into beta")
	}
	r.Claim("beta", a, NewCoordSet(origin))

	r.ClearWorldSpace("alpha")
	if !r.IsAvailable("alpha", origin) || r.OccupiedCount("alpha") != 0 {
		t.Fatalf("alpha not cleared")
	}
	if owner, ok := r.OwnerOf("beta", origin); !ok || owner != a {
		t.Fatalf("clearing alpha touched beta")
	}
}
