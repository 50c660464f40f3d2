package zone

import (
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// PlanetData answers world-space level questions from the loaded planet catalog.
type PlanetData interface {
	IsDataLoaded() bool
	// Breathability reports the planet's declared flag; ok is false for unknown world-spaces.
	Breathability(ws WorldSpace) (breathable bool, ok bool)
}

// cellSet is a concurrent coordinate set with a running size.
type cellSet struct {
	m sync.Map // Coord -> struct{}
	n atomic.Int64
}

func (s *cellSet) add(c Coord) bool {
	if _, loaded := s.m.LoadOrStore(c, struct{}{}); loaded {
		return false
	}
	s.n.Add(1)
	return true
}

func (s *cellSet) remove(c Coord) bool {
	if _, loaded := s.m.LoadAndDelete(c); !loaded {
		return false
	}
	s.n.Add(-1)
	return true
}

func (s *cellSet) has(c Coord) bool {
	_, ok := s.m.Load(c)
	return ok
}

// PresenceStore tracks coordinates made breathable by devices, per world-space, on top of
// each world-space's own default atmosphere.
type PresenceStore struct {
	namespace string
	planets   PlanetData
	side      Side
	log       *log.Logger

	zones sync.Map // WorldSpace -> *cellSet
	cache sync.Map // WorldSpace -> bool
}

// NewPresenceStore builds an oxygen store. World-spaces outside namespace are always
// considered breathable.
func NewPresenceStore(namespace string, planets PlanetData, side Side, logger *log.Logger) *PresenceStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &PresenceStore{
		namespace: namespace,
		planets:   planets,
		side:      side,
		log:       logger,
	}
}

func (s *PresenceStore) HasDefaultAtmosphere(ws WorldSpace) bool {
	if v, ok := s.cache.Load(ws); ok {
		return v.(bool)
	}
	if ws.Namespace() != s.namespace {
		s.cache.Store(ws, true)
		return true
	}
	// Fail open while planets load; the answer is not cached so the real flag wins later.
	if s.planets == nil || !s.planets.IsDataLoaded() {
		return true
	}
	breathable, known := s.planets.Breathability(ws)
	if !known {
		breathable = true
	}
	s.cache.Store(ws, breathable)
	return breathable
}

func (s *PresenceStore) HasAtmosphere(ws WorldSpace, c Coord) bool {
	if s.HasDefaultAtmosphere(ws) {
		return true
	}
	return s.InZone(ws, c)
}

func (s *PresenceStore) HasAtmosphereAt(e Locatable) bool {
	return s.HasAtmosphere(e.WorldSpace(), Floor(e.EyePos()))
}

// InZone reports device-provided presence only, ignoring the default atmosphere.
func (s *PresenceStore) InZone(ws WorldSpace, c Coord) bool {
	v, ok := s.zones.Load(ws)
	if !ok {
		return false
	}
	return v.(*cellSet).has(c)
}

func (s *PresenceStore) cells(ws WorldSpace) *cellSet {
	v, _ := s.zones.LoadOrStore(ws, &cellSet{})
	return v.(*cellSet)
}

func (s *PresenceStore) SetZone(ws WorldSpace, c Coord, present bool) {
	if s.side == SideClient {
		return
	}
	if present {
		s.cells(ws).add(c)
		return
	}
	if v, ok := s.zones.Load(ws); ok {
		v.(*cellSet).remove(c)
	}
}

// SetZones flags or unflags a batch of coordinates and returns how many changed.
func (s *PresenceStore) SetZones(ws WorldSpace, coords CoordSet, present bool) int {
	if s.side == SideClient || len(coords) == 0 {
		return 0
	}
	changed := 0
	if present {
		cs := s.cells(ws)
		for c := range coords {
			if cs.add(c) {
				changed++
			}
		}
	} else if v, ok := s.zones.Load(ws); ok {
		cs := v.(*cellSet)
		for c := range coords {
			if cs.remove(c) {
				changed++
			}
		}
	}
	verb := "removed"
	if present {
		verb = "added"
	}
	s.log.Printf("oxygen zones %s: %s of %s entries %s", ws, humanize.Comma(int64(changed)), humanize.Comma(int64(len(coords))), verb)
	return changed
}

func (s *PresenceStore) InvalidateCache() {
	s.cache.Range(func(k, _ any) bool {
		s.cache.Delete(k)
		return true
	})
}

func (s *PresenceStore) ClearWorldSpace(ws WorldSpace) {
	s.zones.Delete(ws)
}

func (s *PresenceStore) ZoneCount(ws WorldSpace) int {
	v, ok := s.zones.Load(ws)
	if !ok {
		return 0
	}
	return int(v.(*cellSet).n.Load())
}
