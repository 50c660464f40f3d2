package zone

import (
	"math"
	"sort"
	"strings"
)

// HostNamespace is the namespace assumed for world-space ids without an explicit prefix.
const HostNamespace = "minecraft"

// WorldSpace identifies an isolated world/dimension as "namespace:path".
type WorldSpace string

func (w WorldSpace) Namespace() string {
	ns, _, ok := strings.Cut(string(w), ":")
	if !ok {
		return HostNamespace
	}
	return ns
}

func (w WorldSpace) String() string { return string(w) }

type Coord struct {
	X int
	Y int
	Z int
}

func (c Coord) ToArray() [3]int { return [3]int{c.X, c.Y, c.Z} }

func CoordFromArray(a [3]int) Coord { return Coord{X: a[0], Y: a[1], Z: a[2]} }

func lessCoord(a, b Coord) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// Vec3 is a continuous position or velocity.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Floor returns the cell containing p.
func Floor(p Vec3) Coord {
	return Coord{
		X: int(math.Floor(p.X)),
		Y: int(math.Floor(p.Y)),
		Z: int(math.Floor(p.Z)),
	}
}

type CoordSet map[Coord]struct{}

func NewCoordSet(coords ...Coord) CoordSet {
	s := make(CoordSet, len(coords))
	for _, c := range coords {
		s[c] = struct{}{}
	}
	return s
}

func (s CoordSet) Add(c Coord) { s[c] = struct{}{} }

func (s CoordSet) Has(c Coord) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the members in X,Y,Z order.
func (s CoordSet) Sorted() []Coord {
	out := make([]Coord, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return lessCoord(out[i], out[j]) })
	return out
}

// Minus returns the members of s that are not in other.
func (s CoordSet) Minus(other CoordSet) CoordSet {
	out := CoordSet{}
	for c := range s {
		if !other.Has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Locatable is anything with a position inside a world-space.
type Locatable interface {
	WorldSpace() WorldSpace
	EyePos() Vec3
}

// Side says which half of the simulation a store instance lives on.
type Side int

const (
	SideHost Side = iota
	SideClient
)
