package zone

import (
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

type valueMap struct {
	m sync.Map // Coord -> float64
	n atomic.Int64
}

// ScalarStore maps coordinates to a target gravity multiplier per world-space. A missing
// entry means ambient gravity, which is not the same thing as an override of 0.
type ScalarStore struct {
	side Side
	log  *log.Logger

	zones sync.Map // WorldSpace -> *valueMap
}

func NewScalarStore(side Side, logger *log.Logger) *ScalarStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ScalarStore{side: side, log: logger}
}

func (s *ScalarStore) TargetGravity(ws WorldSpace, c Coord) (float64, bool) {
	v, ok := s.zones.Load(ws)
	if !ok {
		return 0, false
	}
	g, ok := v.(*valueMap).m.Load(c)
	if !ok {
		return 0, false
	}
	return g.(float64), true
}

func (s *ScalarStore) TargetGravityAt(e Locatable) (float64, bool) {
	return s.TargetGravity(e.WorldSpace(), Floor(e.EyePos()))
}

func (s *ScalarStore) IsOverridden(ws WorldSpace, c Coord) bool {
	_, ok := s.TargetGravity(ws, c)
	return ok
}

func (s *ScalarStore) values(ws WorldSpace) *valueMap {
	v, _ := s.zones.LoadOrStore(ws, &valueMap{})
	return v.(*valueMap)
}

func (vm *valueMap) set(c Coord, g float64) bool {
	prev, loaded := vm.m.Swap(c, g)
	if !loaded {
		vm.n.Add(1)
		return true
	}
	return prev.(float64) != g
}

func (vm *valueMap) clear(c Coord) bool {
	if _, loaded := vm.m.LoadAndDelete(c); !loaded {
		return false
	}
	vm.n.Add(-1)
	return true
}

func (s *ScalarStore) SetOverride(ws WorldSpace, c Coord, gravity float64) {
	if s.side == SideClient {
		return
	}
	s.values(ws).set(c, gravity)
}

// SetOverrides applies one multiplier to every coordinate and returns how many entries
// were added or changed.
func (s *ScalarStore) SetOverrides(ws WorldSpace, coords CoordSet, gravity float64) int {
	if s.side == SideClient || len(coords) == 0 {
		return 0
	}
	vm := s.values(ws)
	changed := 0
	for c := range coords {
		if vm.set(c, gravity) {
			changed++
		}
	}
	s.log.Printf("gravity zones %s: %s of %s entries set to %.2fx", ws, humanize.Comma(int64(changed)), humanize.Comma(int64(len(coords))), gravity)
	return changed
}

func (s *ScalarStore) ClearOverride(ws WorldSpace, c Coord) {
	if s.side == SideClient {
		return
	}
	if v, ok := s.zones.Load(ws); ok {
		v.(*valueMap).clear(c)
	}
}

func (s *ScalarStore) ClearOverrides(ws WorldSpace, coords CoordSet) int {
	if s.side == SideClient || len(coords) == 0 {
		return 0
	}
	v, ok := s.zones.Load(ws)
	if !ok {
		return 0
	}
	vm := v.(*valueMap)
	changed := 0
	for c := range coords {
		if vm.clear(c) {
			changed++
		}
	}
	s.log.Printf("gravity zones %s: %s of %s entries cleared", ws, humanize.Comma(int64(changed)), humanize.Comma(int64(len(coords))))
	return changed
}

func (s *ScalarStore) ClearWorldSpace(ws WorldSpace) {
	s.zones.Delete(ws)
}

func (s *ScalarStore) ZoneCount(ws WorldSpace) int {
	v, ok := s.zones.Load(ws)
	if !ok {
		return 0
	}
	return int(v.(*valueMap).n.Load())
}
