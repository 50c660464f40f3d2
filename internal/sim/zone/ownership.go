package zone

import (
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

// Kind is the resource a registry arbitrates.
type Kind string

const (
	KindOxygen  Kind = "OXYGEN"
	KindGravity Kind = "GRAVITY"
)

// ledger holds one world-space's ownership. owners and occupied always change together
// under the registry mutex; readers may load from them without it.
type ledger struct {
	owners   sync.Map // Coord -> Coord (anchor)
	occupied sync.Map // Coord -> struct{}
	count    atomic.Int64
}

// OwnershipRegistry arbitrates exclusive ownership of coordinates among devices, per
// world-space, for a single resource kind.
//
// Claim, Release and ClearWorldSpace are serialized by one mutex shared across every
// world-space. The query methods never take that mutex and may observe a mutation in
// flight; a stale "available" answer only leads to a claim that Claim itself rejects.
type OwnershipRegistry struct {
	kind Kind
	log  *log.Logger

	mu     deadlock.Mutex
	spaces sync.Map // WorldSpace -> *ledger
}

func NewOwnershipRegistry(kind Kind, logger *log.Logger) *OwnershipRegistry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &OwnershipRegistry{kind: kind, log: logger}
}

func (r *OwnershipRegistry) Kind() Kind { return r.kind }

func (r *OwnershipRegistry) ledger(ws WorldSpace) *ledger {
	v, ok := r.spaces.Load(ws)
	if !ok {
		return nil
	}
	return v.(*ledger)
}

func (r *OwnershipRegistry) IsAvailable(ws WorldSpace, c Coord) bool {
	l := r.ledger(ws)
	if l == nil {
		return true
	}
	_, taken := l.occupied.Load(c)
	return !taken
}

// Claim grants owner every requested coordinate that is unowned or already owned by owner,
// and returns exactly those. Coordinates held by another anchor are left alone.
func (r *OwnershipRegistry) Claim(ws WorldSpace, owner Coord, requested CoordSet) CoordSet {
	granted := make(CoordSet, len(requested))
	if len(requested) == 0 {
		return granted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.ledger(ws)
	if l == nil {
		l = &ledger{}
		r.spaces.Store(ws, l)
	}

	contested := 0
	for c := range requested {
		cur, owned := l.owners.Load(c)
		switch {
		case !owned:
			l.owners.Store(c, owner)
			l.occupied.Store(c, struct{}{})
			l.count.Add(1)
			granted[c] = struct{}{}
		case cur.(Coord) == owner:
			granted[c] = struct{}{}
		default:
			contested++
		}
	}
	if contested > 0 {
		r.log.Printf("%s claim %s anchor=%v: %d of %d coordinates held by other anchors", r.kind, ws, owner, contested, len(requested))
	}
	return granted
}

// Release drops owner's hold on coords. Coordinates owner does not hold are ignored.
// It returns how many coordinates were actually released.
func (r *OwnershipRegistry) Release(ws WorldSpace, owner Coord, coords CoordSet) int {
	if len(coords) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.ledger(ws)
	if l == nil {
		return 0
	}
	n := 0
	for c := range coords {
		cur, owned := l.owners.Load(c)
		if !owned || cur.(Coord) != owner {
			continue
		}
		l.owners.Delete(c)
		l.occupied.Delete(c)
		l.count.Add(-1)
		n++
	}
	return n
}

func (r *OwnershipRegistry) ClearWorldSpace(ws WorldSpace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spaces.Delete(ws)
}

func (r *OwnershipRegistry) OccupiedCount(ws WorldSpace) int {
	l := r.ledger(ws)
	if l == nil {
		return 0
	}
	return int(l.count.Load())
}

func (r *OwnershipRegistry) OwnerOf(ws WorldSpace, c Coord) (Coord, bool) {
	l := r.ledger(ws)
	if l == nil {
		return Coord{}, false
	}
	v, ok := l.owners.Load(c)
	if !ok {
		return Coord{}, false
	}
	return v.(Coord), true
}

// Owned returns the coordinates currently held by owner.
func (r *OwnershipRegistry) Owned(ws WorldSpace, owner Coord) CoordSet {
	out := CoordSet{}
	l := r.ledger(ws)
	if l == nil {
		return out
	}
	l.owners.Range(func(k, v any) bool {
		if v.(Coord) == owner {
			out[k.(Coord)] = struct{}{}
		}
		return true
	})
	return out
}

// Each calls fn for every owned coordinate in ws until fn returns false.
func (r *OwnershipRegistry) Each(ws WorldSpace, fn func(c, owner Coord) bool) {
	l := r.ledger(ws)
	if l == nil {
		return
	}
	l.owners.Range(func(k, v any) bool {
		return fn(k.(Coord), v.(Coord))
	})
}

// WorldSpaces lists world-spaces with ownership state, sorted.
func (r *OwnershipRegistry) WorldSpaces() []WorldSpace {
	var out []WorldSpace
	r.spaces.Range(func(k, _ any) bool {
		out = append(out, k.(WorldSpace))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
