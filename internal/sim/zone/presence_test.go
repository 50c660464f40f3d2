package zone

import "testing"

type fakePlanets struct {
	loaded bool
	flags  map[WorldSpace]bool
	calls  int
}

func (p *fakePlanets) IsDataLoaded() bool { return p.loaded }

func (p *fakePlanets) Breathability(ws WorldSpace) (bool, bool) {
	p.calls++
	v, ok := p.flags[ws]
	return v, ok
}

type eye struct {
	ws  WorldSpace
	pos Vec3
}

func (e eye) WorldSpace() WorldSpace { return e.ws }
func (e eye) EyePos() Vec3           { return e.pos }

func TestWorldSpace_Namespace(t *testing.T) {
	if got := WorldSpace("adastra:moon").Namespace(); got != "adastra" {
		t.Fatalf("namespace: got %q", got)
	}
	if got := WorldSpace("overworld").Namespace(); got != HostNamespace {
		t.Fatalf("bare id namespace: got %q", got)
	}
}

func TestHasDefaultAtmosphere_Resolution(t *testing.T) {
	planets := &fakePlanets{loaded: true, flags: map[WorldSpace]bool{
		"adastra:moon":  false,
		"adastra:earth": true,
	}}
	s := NewPresenceStore("adastra", planets, SideHost, nil)

	if !s.HasDefaultAtmosphere("minecraft:the_nether") {
		t.Fatalf("foreign namespace must be breathable")
	}
	if s.HasDefaultAtmosphere("adastra:moon") {
		t.Fatalf("moon should not be breathable")
	}
	if !s.HasDefaultAtmosphere("adastra:earth") {
		t.Fatalf("earth should be breathable")
	}
	if !s.HasDefaultAtmosphere("adastra:unlisted") {
		t.Fatalf("unknown planet should fail open")
	}
}

func TestHasDefaultAtmosphere_FailsOpenUntilLoaded(t *testing.T) {
	planets := &fakePlanets{flags: map[WorldSpace]bool{"adastra:moon": false}}
	s := NewPresenceStore("adastra", planets, SideHost, nil)

	if !s.HasDefaultAtmosphere("adastra:moon") {
		t.Fatalf("unloaded planet data must fail open")
	}
	planets.loaded = true
	if s.HasDefaultAtmosphere("adastra:moon") {
		t.Fatalf("loaded planet data should be honoured")
	}
}

func TestInvalidateCache_Requeries(t *testing.T) {
	planets := &fakePlanets{loaded: true, flags: map[WorldSpace]bool{"adastra:moon": false}}
	s := NewPresenceStore("adastra", planets, SideHost, nil)

	s.HasDefaultAtmosphere("adastra:moon")
	s.HasDefaultAtmosphere("adastra:moon")
	if planets.calls != 1 {
		t.Fatalf("cached lookups hit provider %d times", planets.calls)
	}

	planets.flags["adastra:moon"] = true
	s.InvalidateCache()
	if !s.HasDefaultAtmosphere("adastra:moon") {
		t.Fatalf("stale value after invalidate")
	}
	if planets.calls != 2 {
		t.Fatalf("provider calls after invalidate: got %d want 2", planets.calls)
	}
}

func TestHasAtmosphere_Fallback(t *testing.T) {
	planets := &fakePlanets{loaded: true, flags: map[WorldSpace]bool{
		"adastra:moon":  false,
		"adastra:earth": true,
	}}
	s := NewPresenceStore("adastra", planets, SideHost, nil)
	in := Coord{X: 1, Y: 2, Z: 3}
	out := Coord{X: 9, Y: 9, Z: 9}

	s.SetZone("adastra:moon", in, true)
	if !s.HasAtmosphere("adastra:moon", in) || s.HasAtmosphere("adastra:moon", out) {
		t.Fatalf("unbreathable world must equal zone membership")
	}
	if !s.HasAtmosphere("adastra:earth", out) {
		t.Fatalf("breathable world must ignore zone membership")
	}

	e := eye{ws: "adastra:moon", pos: Vec3{X: 1.7, Y: 2.99, Z: 3.01}}
	if !s.HasAtmosphereAt(e) {
		t.Fatalf("eye position should floor into zone cell")
	}
	e.pos = Vec3{X: 0.99, Y: 2.5, Z: 3.5}
	if s.HasAtmosphereAt(e) {
		t.Fatalf("eye position outside zone cell reported breathable")
	}
}

func TestSetZones_CountsChanges(t *testing.T) {
	s := NewPresenceStore("adastra", nil, SideHost, nil)
	ws := WorldSpace("adastra:moon")
	set := cube(0, 1)

	if got := s.SetZones(ws, set, true); got != len(set) {
		t.Fatalf("add: got %d want %d", got, len(set))
	}
	if got := s.SetZones(ws, set, true); got != 0 {
		t.Fatalf("re-add: got %d want 0", got)
	}
	if got := s.ZoneCount(ws); got != len(set) {
		t.Fatalf("zone count: got %d", got)
	}
	if got := s.SetZones(ws, NewCoordSet(Coord{}, Coord{X: 50}), false); got != 1 {
		t.Fatalf("remove: got %d want 1", got)
	}
	s.ClearWorldSpace(ws)
	if s.ZoneCount(ws) != 0 || s.InZone(ws, Coord{X: 1, Y: 1, Z: 1}) {
		t.Fatalf("clear left zones behind")
	}
}

func TestSetZone_ClientSideIsNoop(t *testing.T) {
	s := NewPresenceStore("adastra", nil, SideClient, nil)
	s.SetZone("adastra:moon", Coord{}, true)
	if got := s.SetZones("adastra:moon", cube(0, 1), true); got != 0 {
		t.Fatalf("client batch changed %d", got)
	}
	if s.ZoneCount("adastra:moon") != 0 {
		t.Fatalf("client side mutated zones")
	}
}
