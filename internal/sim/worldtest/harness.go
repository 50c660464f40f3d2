package worldtest

import (
	"testing"

	"lifesupport.ai/internal/protocol"
	"lifesupport.ai/internal/sim/atmosphere"
	"lifesupport.ai/internal/sim/lifesupport"
	"lifesupport.ai/internal/sim/planets"
	"lifesupport.ai/internal/sim/zone"
)

// Harness drives a lifesupport.Service with simulated bodies through its exported API:
// - Step()/StepFor() advance every body one tick and run the suffocation applier
// - Events records every zone event the service emitted
//
// It never touches package internals, so tests read like a host game loop.
type Harness struct {
	T       *testing.T
	Planets *planets.Catalog
	Svc     *lifesupport.Service

	Events []protocol.ZoneEvent

	bodies []*Body
}

// NewHarness loads planetsYAML (skipped when empty, leaving planet data unloaded).
func NewHarness(t *testing.T, planetsYAML string) *Harness {
	t.Helper()
	cat := planets.New()
	if planetsYAML != "" {
		if err := cat.LoadBytes([]byte(planetsYAML)); err != nil {
			t.Fatalf("load planets: %v", err)
		}
	}
	h := &Harness{T: t, Planets: cat}
	h.Svc = lifesupport.New(lifesupport.Config{
		Namespace:   "adastra",
		Planets:     cat,
		Side:        zone.SideHost,
		Suffocation: atmosphere.DefaultConfig(),
	})
	h.Svc.AddSink(h)
	return h
}

func (h *Harness) WriteZoneEvent(ev protocol.ZoneEvent) error {
	h.Events = append(h.Events, ev)
	return nil
}

// Spawn adds a body with full health and air at pos.
func (h *Harness) Spawn(ws zone.WorldSpace, pos zone.Vec3) *Body {
	b := &Body{
		World:  ws,
		Pos:    pos,
		Health: 20,
		AirLvl: 300,
		Max:    140,
	}
	h.bodies = append(h.bodies, b)
	return b
}

// Step advances one tick and returns the applier outcome for each body, in spawn order.
func (h *Harness) Step() []atmosphere.Outcome {
	out := make([]atmosphere.Outcome, len(h.bodies))
	for i, b := range h.bodies {
		b.Ticks++
		out[i] = h.Svc.Tick(b)
	}
	return out
}

func (h *Harness) StepFor(n int) {
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// Box returns every cell in the inclusive box lo..hi.
func Box(lo, hi zone.Coord) zone.CoordSet {
	s := zone.CoordSet{}
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				s.Add(zone.Coord{X: x, Y: y, Z: z})
			}
		}
	}
	return s
}

// Body is a minimal living entity. EyePos is Pos raised by EyeHeight.
type Body struct {
	World     zone.WorldSpace
	Pos       zone.Vec3
	EyeHeight float64

	Ticks  int
	Health float64
	AirLvl int
	Frozen int
	Max    int
	Vel    zone.Vec3
	Client bool
	Invuln bool
	Hits   int
}

func (b *Body) WorldSpace() zone.WorldSpace { return b.World }
func (b *Body) EyePos() zone.Vec3 {
	return zone.Vec3{X: b.Pos.X, Y: b.Pos.Y + b.EyeHeight, Z: b.Pos.Z}
}
func (b *Body) TickCount() int          { return b.Ticks }
func (b *Body) Alive() bool             { return b.Health > 0 }
func (b *Body) ClientSide() bool        { return b.Client }
func (b *Body) FrozenTicks() int        { return b.Frozen }
func (b *Body) SetFrozenTicks(n int)    { b.Frozen = n }
func (b *Body) FreezeMax() int          { return b.Max }
func (b *Body) Velocity() zone.Vec3     { return b.Vel }
func (b *Body) SetVelocity(v zone.Vec3) { b.Vel = v }
func (b *Body) Air() int                { return b.AirLvl }
func (b *Body) SetAir(n int)            { b.AirLvl = n }

func (b *Body) Hurt(kind atmosphere.DamageKind, amount float64) bool {
	if b.Invuln {
		return false
	}
	b.Health -= amount
	b.Hits++
	b.Vel = zone.Vec3{Y: 0.4}
	return true
}
