// Package lifesupport wires the ownership registries, the oxygen and gravity stores and the
// suffocation applier into one explicitly constructed service.
//
// Devices go through Apply*/Remove* so that ownership and zone state change in a safe
// order: zone state is cleared before ownership is released, and only set on coordinates
// the claim actually granted. Mutations of the service are serialized so a remove never
// interleaves with an apply for the same device. The registries and stores stay
// independently usable.
package lifesupport

import (
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"

	"lifesupport.ai/internal/protocol"
	"lifesupport.ai/internal/sim/atmosphere"
	"lifesupport.ai/internal/sim/zone"
)

// Sink receives every zone event the service emits.
type Sink interface {
	WriteZoneEvent(ev protocol.ZoneEvent) error
}

type Config struct {
	Namespace   string
	Planets     zone.PlanetData
	Side        zone.Side
	Suffocation atmosphere.Config
	Logger      *log.Logger
	// Now is used for event timestamps (defaults to time.Now).
	Now func() time.Time
}

type Service struct {
	OxygenOwners  *zone.OwnershipRegistry
	GravityOwners *zone.OwnershipRegistry
	Oxygen        *zone.PresenceStore
	Gravity       *zone.ScalarStore
	Applier       *atmosphere.Applier

	log *log.Logger
	now func() time.Time
	seq atomic.Uint64

	// mu orders Apply*, Remove* and UnloadWorldSpace against each other.
	mu deadlock.Mutex

	sinksMu sync.RWMutex
	sinks   []Sink
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	oxygen := zone.NewPresenceStore(cfg.Namespace, cfg.Planets, cfg.Side, logger)
	return &Service{
		OxygenOwners:  zone.NewOwnershipRegistry(zone.KindOxygen, logger),
		GravityOwners: zone.NewOwnershipRegistry(zone.KindGravity, logger),
		Oxygen:        oxygen,
		Gravity:       zone.NewScalarStore(cfg.Side, logger),
		Applier:       atmosphere.NewApplier(oxygen, cfg.Suffocation),
		log:           logger,
		now:           now,
	}
}

func (s *Service) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Service) emit(ev protocol.ZoneEvent) {
	ev.Type = protocol.TypeZoneEvent
	ev.Seq = s.seq.Add(1)
	ev.Time = s.now().UTC().Format(time.RFC3339Nano)

	s.sinksMu.RLock()
	defer s.sinksMu.RUnlock()
	for _, sink := range s.sinks {
		if err := sink.WriteZoneEvent(ev); err != nil {
			s.log.Printf("zone event sink: seq=%d action=%s: %v", ev.Seq, ev.Action, err)
		}
	}
}

func anchorRef(c zone.Coord) *[3]int {
	a := c.ToArray()
	return &a
}

func coordList(set zone.CoordSet) [][3]int {
	if len(set) == 0 {
		return nil
	}
	sorted := set.Sorted()
	out := make([][3]int, len(sorted))
	for i, c := range sorted {
		out[i] = c.ToArray()
	}
	return out
}

// ApplyOxygen makes requested the oxygen coverage of the device at anchor. Coordinates the
// device held but no longer requests are cleared and released first. The returned set is
// what the device actually covers now.
func (s *Service) ApplyOxygen(ws zone.WorldSpace, anchor zone.Coord, requested zone.CoordSet) zone.CoordSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.OxygenOwners.Owned(ws, anchor)
	if stale := prev.Minus(requested); len(stale) > 0 {
		changed := s.Oxygen.SetZones(ws, stale, false)
		s.OxygenOwners.Release(ws, anchor, stale)
		s.emit(protocol.ZoneEvent{
			World: string(ws), Kind: string(zone.KindOxygen), Action: protocol.ActionRelease,
			Anchor: anchorRef(anchor), Requested: len(stale), Changed: changed,
			Coords: coordList(stale), Reason: "RECONFIGURE",
		})
	}

	granted := s.OxygenOwners.Claim(ws, anchor, requested)
	changed := s.Oxygen.SetZones(ws, granted, true)
	s.emit(protocol.ZoneEvent{
		World: string(ws), Kind: string(zone.KindOxygen), Action: protocol.ActionClaim,
		Anchor: anchorRef(anchor), Requested: len(requested), Granted: len(granted), Changed: changed,
		Coords: coordList(granted.Minus(prev)),
	})
	return granted
}

// RemoveOxygen clears and releases everything the device at anchor holds.
func (s *Service) RemoveOxygen(ws zone.WorldSpace, anchor zone.Coord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.OxygenOwners.Owned(ws, anchor)
	if len(owned) == 0 {
		return 0
	}
	changed := s.Oxygen.SetZones(ws, owned, false)
	n := s.OxygenOwners.Release(ws, anchor, owned)
	s.emit(protocol.ZoneEvent{
		World: string(ws), Kind: string(zone.KindOxygen), Action: protocol.ActionRelease,
		Anchor: anchorRef(anchor), Requested: len(owned), Changed: changed,
		Coords: coordList(owned), Reason: "REMOVE",
	})
	return n
}

// ApplyGravity is ApplyOxygen for gravity; every granted coordinate gets multiplier.
func (s *Service) ApplyGravity(ws zone.WorldSpace, anchor zone.Coord, requested zone.CoordSet, multiplier float64) zone.CoordSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.GravityOwners.Owned(ws, anchor)
	if stale := prev.Minus(requested); len(stale) > 0 {
		changed := s.Gravity.ClearOverrides(ws, stale)
		s.GravityOwners.Release(ws, anchor, stale)
		s.emit(protocol.ZoneEvent{
			World: string(ws), Kind: string(zone.KindGravity), Action: protocol.ActionRelease,
			Anchor: anchorRef(anchor), Requested: len(stale), Changed: changed,
			Coords: coordList(stale), Reason: "RECONFIGURE",
		})
	}

	granted := s.GravityOwners.Claim(ws, anchor, requested)
	changed := s.Gravity.SetOverrides(ws, granted, multiplier)
	g := multiplier
	s.emit(protocol.ZoneEvent{
		World: string(ws), Kind: string(zone.KindGravity), Action: protocol.ActionClaim,
		Anchor: anchorRef(anchor), Requested: len(requested), Granted: len(granted), Changed: changed,
		Gravity: &g, Coords: coordList(granted.Minus(prev)),
	})
	return granted
}

func (s *Service) RemoveGravity(ws zone.WorldSpace, anchor zone.Coord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.GravityOwners.Owned(ws, anchor)
	if len(owned) == 0 {
		return 0
	}
	changed := s.Gravity.ClearOverrides(ws, owned)
	n := s.GravityOwners.Release(ws, anchor, owned)
	s.emit(protocol.ZoneEvent{
		World: string(ws), Kind: string(zone.KindGravity), Action: protocol.ActionRelease,
		Anchor: anchorRef(anchor), Requested: len(owned), Changed: changed,
		Coords: coordList(owned), Reason: "REMOVE",
	})
	return n
}

// UnloadWorldSpace drops every piece of state held for ws. Call it on world unload or reset.
func (s *Service) UnloadWorldSpace(ws zone.WorldSpace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Oxygen.ClearWorldSpace(ws)
	s.Gravity.ClearWorldSpace(ws)
	s.OxygenOwners.ClearWorldSpace(ws)
	s.GravityOwners.ClearWorldSpace(ws)
	s.Oxygen.InvalidateCache()
	s.log.Printf("world-space %s unloaded", ws)
	s.emit(protocol.ZoneEvent{World: string(ws), Action: protocol.ActionClearWorld})
}

// ReloadPlanetData forgets cached breathability after the planet catalog changes.
func (s *Service) ReloadPlanetData() {
	s.Oxygen.InvalidateCache()
	s.emit(protocol.ZoneEvent{Kind: string(zone.KindOxygen), Action: protocol.ActionInvalidateCache})
}

// Tick runs the suffocation applier for one entity.
func (s *Service) Tick(e atmosphere.Entity) atmosphere.Outcome {
	return s.Applier.Apply(e)
}

type Probe struct {
	OxygenOwner       *zone.Coord
	GravityOwner      *zone.Coord
	DefaultAtmosphere bool
	OxygenZone        bool
	Breathable        bool
	Gravity           *float64
}

func (s *Service) Probe(ws zone.WorldSpace, c zone.Coord) Probe {
	var p Probe
	if o, ok := s.OxygenOwners.OwnerOf(ws, c); ok {
		p.OxygenOwner = &o
	}
	if o, ok := s.GravityOwners.OwnerOf(ws, c); ok {
		p.GravityOwner = &o
	}
	p.DefaultAtmosphere = s.Oxygen.HasDefaultAtmosphere(ws)
	p.OxygenZone = s.Oxygen.InZone(ws, c)
	p.Breathable = p.DefaultAtmosphere || p.OxygenZone
	if g, ok := s.Gravity.TargetGravity(ws, c); ok {
		p.Gravity = &g
	}
	return p
}

func (s *Service) Stats(ws zone.WorldSpace) protocol.WorldStats {
	return protocol.WorldStats{
		World:           string(ws),
		OxygenOccupied:  s.OxygenOwners.OccupiedCount(ws),
		GravityOccupied: s.GravityOwners.OccupiedCount(ws),
		OxygenZones:     s.Oxygen.ZoneCount(ws),
		GravityZones:    s.Gravity.ZoneCount(ws),
	}
}

// WorldSpaces lists world-spaces that currently hold any ownership.
func (s *Service) WorldSpaces() []zone.WorldSpace {
	seen := map[zone.WorldSpace]bool{}
	var out []zone.WorldSpace
	for _, r := range []*zone.OwnershipRegistry{s.OxygenOwners, s.GravityOwners} {
		for _, ws := range r.WorldSpaces() {
			if !seen[ws] {
				seen[ws] = true
				out = append(out, ws)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnsetZones lists owned coordinates that carry no zone state.
type UnsetZones struct {
	Oxygen  []zone.Coord
	Gravity []zone.Coord
}

// AuditUnsetZones is a development check. Owning a coordinate without zone state is
// allowed, but outside of a device mid-apply it usually means a caller skipped a step.
func (s *Service) AuditUnsetZones(ws zone.WorldSpace) UnsetZones {
	var out UnsetZones
	oxy := zone.CoordSet{}
	s.OxygenOwners.Each(ws, func(c, _ zone.Coord) bool {
		if !s.Oxygen.InZone(ws, c) {
			oxy.Add(c)
		}
		return true
	})
	grav := zone.CoordSet{}
	s.GravityOwners.Each(ws, func(c, _ zone.Coord) bool {
		if !s.Gravity.IsOverridden(ws, c) {
			grav.Add(c)
		}
		return true
	})
	if len(oxy) > 0 {
		out.Oxygen = oxy.Sorted()
	}
	if len(grav) > 0 {
		out.Gravity = grav.Sorted()
	}
	return out
}
