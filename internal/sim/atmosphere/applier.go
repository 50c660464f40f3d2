// Package atmosphere applies suffocation to entities standing outside breathable air.
//
// An entity without air takes a hit every IntervalTicks ticks. Each hit raises the freeze
// overlay to its maximum, and between hits the overlay fades toward a tenth of the
// maximum. It only clears once the entity is breathing again.
package atmosphere

import (
	"lifesupport.ai/internal/sim/zone"
)

// DamageKind tags a hit for the host damage subsystem.
type DamageKind string

const DamageOxygen DamageKind = "OXYGEN_DEPRIVATION"

// Entity is the slice of a living entity the applier reads and writes.
type Entity interface {
	zone.Locatable

	TickCount() int
	Alive() bool
	ClientSide() bool

	FrozenTicks() int
	SetFrozenTicks(n int)
	// FreezeMax is the frozen-tick count at which the overlay is fully shown.
	FreezeMax() int

	Velocity() zone.Vec3
	SetVelocity(v zone.Vec3)

	Air() int
	SetAir(n int)

	// Hurt reports whether the host accepted the hit.
	Hurt(kind DamageKind, amount float64) bool
}

// Breathing answers whether an entity currently has air.
type Breathing interface {
	HasAtmosphereAt(e zone.Locatable) bool
}

type Config struct {
	IntervalTicks int
	Damage        float64
	AirLoss       int
}

func DefaultConfig() Config {
	return Config{IntervalTicks: 40, Damage: 2.0, AirLoss: 20}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.IntervalTicks <= 0 {
		c.IntervalTicks = d.IntervalTicks
	}
	if c.Damage <= 0 {
		c.Damage = d.Damage
	}
	if c.AirLoss <= 0 {
		c.AirLoss = d.AirLoss
	}
	return c
}

type Applier struct {
	air Breathing
	cfg Config
}

func NewApplier(air Breathing, cfg Config) *Applier {
	return &Applier{air: air, cfg: cfg.normalized()}
}

func (a *Applier) Config() Config { return a.cfg }

// Outcome describes what Apply did to an entity this tick.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeOxygenated
	OutcomePulse
	OutcomeFade
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOxygenated:
		return "OXYGENATED"
	case OutcomePulse:
		return "PULSE"
	case OutcomeFade:
		return "FADE"
	default:
		return "SKIPPED"
	}
}

// Apply runs one tick of suffocation for e. It must be called once per entity per tick,
// host side only; calling it twice in a tick applies the damage twice.
func (a *Applier) Apply(e Entity) Outcome {
	if e == nil || e.ClientSide() || !e.Alive() {
		return OutcomeSkipped
	}
	if a.air.HasAtmosphereAt(e) {
		e.SetFrozenTicks(0)
		return OutcomeOxygenated
	}

	max := e.FreezeMax()
	if e.TickCount()%a.cfg.IntervalTicks == 0 {
		v := e.Velocity()
		// A rejected hit (invulnerability) still drains air and pulses the overlay.
		_ = e.Hurt(DamageOxygen, a.cfg.Damage)
		e.SetVelocity(v)
		e.SetAir(e.Air() - a.cfg.AirLoss)
		e.SetFrozenTicks(max)
		return OutcomePulse
	}

	e.SetFrozenTicks(FadeFrozen(e.FrozenTicks(), max))
	return OutcomeFade
}

// FadeFrozen returns the frozen-tick value one tick after cur while still suffocating.
// An entity that is not frozen stays unfrozen until the next pulse.
func FadeFrozen(cur, max int) int {
	if cur <= 0 {
		return 0
	}
	floor := max / 10
	if cur <= floor {
		return floor
	}
	step := max / 30
	if step < 4 {
		step = 4
	}
	next := cur - step
	if next < floor {
		next = floor
	}
	return next
}
