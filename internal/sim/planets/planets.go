package planets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"lifesupport.ai/internal/sim/zone"
)

type Def struct {
	World      string  `yaml:"world" json:"world"`
	Breathable bool    `yaml:"breathable" json:"breathable"`
	Gravity    float64 `yaml:"gravity" json:"gravity"`
}

type file struct {
	Planets []Def `yaml:"planets"`
}

type table struct {
	byWorld map[zone.WorldSpace]Def
	digest  string
}

// Catalog is the planet data provider. It reports not-loaded until the first successful
// Load; later loads swap the whole table at once.
type Catalog struct {
	cur atomic.Pointer[table]
}

func New() *Catalog { return &Catalog{} }

func (c *Catalog) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.LoadBytes(raw)
}

func (c *Catalog) LoadBytes(raw []byte) error {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("planets.yaml: %w", err)
	}
	byWorld := make(map[zone.WorldSpace]Def, len(f.Planets))
	for i, p := range f.Planets {
		p.World = strings.TrimSpace(p.World)
		if p.World == "" {
			return fmt.Errorf("planets.yaml: planets[%d] missing world", i)
		}
		if p.Gravity < 0 {
			return fmt.Errorf("planets.yaml: %s gravity must be >= 0", p.World)
		}
		ws := zone.WorldSpace(p.World)
		if _, dup := byWorld[ws]; dup {
			return fmt.Errorf("planets.yaml: duplicate world %s", p.World)
		}
		byWorld[ws] = p
	}
	sum := sha256.Sum256(raw)
	c.cur.Store(&table{byWorld: byWorld, digest: hex.EncodeToString(sum[:])})
	return nil
}

func (c *Catalog) IsDataLoaded() bool { return c.cur.Load() != nil }

func (c *Catalog) Breathability(ws zone.WorldSpace) (bool, bool) {
	p, ok := c.Get(ws)
	return p.Breathable, ok
}

func (c *Catalog) Gravity(ws zone.WorldSpace) (float64, bool) {
	p, ok := c.Get(ws)
	return p.Gravity, ok
}

func (c *Catalog) Get(ws zone.WorldSpace) (Def, bool) {
	t := c.cur.Load()
	if t == nil {
		return Def{}, false
	}
	p, ok := t.byWorld[ws]
	return p, ok
}

// Digest is the sha256 of the loaded file, empty before the first load.
func (c *Catalog) Digest() string {
	t := c.cur.Load()
	if t == nil {
		return ""
	}
	return t.digest
}

func (c *Catalog) List() []Def {
	t := c.cur.Load()
	if t == nil {
		return nil
	}
	out := make([]Def, 0, len(t.byWorld))
	for _, p := range t.byWorld {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].World < out[j].World })
	return out
}
