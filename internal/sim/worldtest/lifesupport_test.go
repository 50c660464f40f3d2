package worldtest

import (
	"testing"

	"lifesupport.ai/internal/protocol"
	"lifesupport.ai/internal/sim/atmosphere"
	"lifesupport.ai/internal/sim/zone"
)

const moonPlanets = "planets:\n  - world: adastra:moon\n    gravity: 0.166\n  - world: adastra:glacio\n    breathable: true\n    gravity: 0.38\n"

func TestSuffocation_OutsideZoneTakesPulses(t *testing.T) {
	h := NewHarness(t, moonPlanets)
	b := h.Spawn("adastra:moon", zone.Vec3{X: 0.5, Y: 64, Z: 0.5})

	h.StepFor(80)
	if b.Hits != 2 {
		t.Fatalf("hits after 80 ticks: got %d want 2", b.Hits)
	}
	if b.Health != 16 || b.AirLvl != 260 {
		t.Fatalf("health=%v air=%d", b.Health, b.AirLvl)
	}
	if b.Vel != (zone.Vec3{}) {
		t.Fatalf("pulse must not knock the body back: %#v", b.Vel)
	}
	if b.Frozen != 140 {
		t.Fatalf("frozen right after pulse: got %d want 140", b.Frozen)
	}
	h.StepFor(39)
	if b.Frozen != 14 {
		t.Fatalf("frozen should settle at the floor: got %d", b.Frozen)
	}
}

func TestSuffocation_SealedRoomProtects(t *testing.T) {
	h := NewHarness(t, moonPlanets)
	ws := zone.WorldSpace("adastra:moon")
	room := Box(zone.Coord{X: -2, Y: 64, Z: -2}, zone.Coord{X: 2, Y: 66, Z: 2})
	granted := h.Svc.ApplyOxygen(ws, zone.Coord{X: 0, Y: 63, Z: 0}, room)
	if len(granted) != len(room) {
		t.Fatalf("granted %d of %d", len(granted), len(room))
	}

	inside := h.Spawn(ws, zone.Vec3{X: 0.5, Y: 64, Z: 0.5})
	inside.EyeHeight = 1.62
	outside := h.Spawn(ws, zone.Vec3{X: 10.5, Y: 64, Z: 0.5})

	h.StepFor(120)
	if inside.Hits != 0 || inside.Frozen != 0 {
		t.Fatalf("inside body suffocated: %#v", inside)
	}
	if outside.Hits != 3 {
		t.Fatalf("outside hits: got %d want 3", outside.Hits)
	}

	// Walk out: the eye leaves the room.
	inside.Pos = zone.Vec3{X: 5.5, Y: 64, Z: 0.5}
	for inside.Hits == 0 {
		if inside.Ticks > 400 {
			t.Fatalf("no pulse after leaving the room")
		}
		h.Step()
	}
	if inside.Ticks%40 != 0 {
		t.Fatalf("pulse off cadence at tick %d", inside.Ticks)
	}

	// Walk back in: overlay clears immediately.
	inside.Pos = zone.Vec3{X: 0.5, Y: 64, Z: 0.5}
	outcomes := h.Step()
	if outcomes[0] != atmosphere.OutcomeOxygenated || inside.Frozen != 0 {
		t.Fatalf("re-entry: outcome=%v frozen=%d", outcomes[0], inside.Frozen)
	}
}

func TestSuffocation_BreathablePlanetAndForeignWorlds(t *testing.T) {
	h := NewHarness(t, moonPlanets)
	glacio := h.Spawn("adastra:glacio", zone.Vec3{})
	overworld := h.Spawn("minecraft:overworld", zone.Vec3{})
	unknown := h.Spawn("adastra:uncharted", zone.Vec3{})
	h.StepFor(200)
	for _, b := range []*Body{glacio, overworld, unknown} {
		if b.Hits != 0 {
			t.Fatalf("%s should be breathable", b.World)
		}
	}
}

func TestSuffocation_FailOpenUntilPlanetsLoad(t *testing.T) {
	h := NewHarness(t, "")
	b := h.Spawn("adastra:moon", zone.Vec3{})
	h.StepFor(80)
	if b.Hits != 0 {
		t.Fatalf("no planet data yet; expected breathable")
	}

	if err := h.Planets.LoadBytes([]byte(moonPlanets)); err != nil {
		t.Fatalf("load planets: %v", err)
	}
	h.StepFor(40)
	if b.Hits != 1 {
		t.Fatalf("hits after load: got %d want 1", b.Hits)
	}
}

func TestOverlappingDevices_RemoveDoesNotStealCoverage(t *testing.T) {
	h := NewHarness(t, moonPlanets)
	ws := zone.WorldSpace("adastra:moon")
	a := zone.Coord{X: 0, Y: 63, Z: 0}
	c := zone.Coord{X: 4, Y: 63, Z: 0}

	h.Svc.ApplyOxygen(ws, a, Box(zone.Coord{X: 0, Y: 64}, zone.Coord{X: 3, Y: 64}))
	got := h.Svc.ApplyOxygen(ws, c, Box(zone.Coord{X: 2, Y: 64}, zone.Coord{X: 5, Y: 64}))
	if len(got) != 2 {
		t.Fatalf("second device granted %d want 2", len(got))
	}

	b := h.Spawn(ws, zone.Vec3{X: 2.5, Y: 64, Z: 0.5})
	h.Svc.RemoveOxygen(ws, c)
	h.StepFor(80)
	if b.Hits != 0 {
		t.Fatalf("first device's coverage was removed by the second device")
	}
	if u := h.Svc.AuditUnsetZones(ws); len(u.Oxygen) != 0 {
		t.Fatalf("unset zones: %v", u.Oxygen)
	}

	h.Svc.RemoveOxygen(ws, a)
	h.StepFor(40)
	if b.Hits != 1 {
		t.Fatalf("expected suffocation once both devices are gone, hits=%d", b.Hits)
	}

	var releases int
	for _, ev := range h.Events {
		if ev.Action == protocol.ActionRelease {
			releases++
		}
	}
	if releases != 2 {
		t.Fatalf("release events: got %d want 2", releases)
	}
}

func TestUnloadWorldSpace_ForgetsEverything(t *testing.T) {
	h := NewHarness(t, moonPlanets)
	ws := zone.WorldSpace("adastra:moon")
	anchor := zone.Coord{X: 0, Y: 63, Z: 0}
	cells := Box(zone.Coord{X: 0, Y: 64}, zone.Coord{X: 2, Y: 64})
	h.Svc.ApplyOxygen(ws, anchor, cells)
	h.Svc.ApplyGravity(ws, anchor, cells, 1.0)

	h.Svc.UnloadWorldSpace(ws)
	if st := h.Svc.Stats(ws); st != (protocol.WorldStats{World: string(ws)}) {
		t.Fatalf("stats after unload: %#v", st)
	}

	// A fresh device after reload can claim the same cells.
	other := zone.Coord{X: 9, Y: 63, Z: 0}
	if got := h.Svc.ApplyOxygen(ws, other, cells); len(got) != len(cells) {
		t.Fatalf("reclaim after unload: %d of %d", len(got), len(cells))
	}
}

func TestClientSideBodiesAreSkipped(t *testing.T) {
	h := NewHarness(t, moonPlanets)
	b := h.Spawn("adastra:moon", zone.Vec3{})
	b.Client = true
	h.StepFor(80)
	if b.Hits != 0 || b.AirLvl != 300 {
		t.Fatalf("client body was touched: %#v", b)
	}
}
