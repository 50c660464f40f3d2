package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lifesupport.ai/internal/protocol"
)

type Tuning struct {
	// ProtocolVersion must match the wire protocol this build speaks.
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`
	// Namespace owns the planets; world-spaces outside it always have air.
	Namespace string `yaml:"namespace" json:"namespace"`

	Suffocation Suffocation `yaml:"suffocation" json:"suffocation"`
	Locks       Locks       `yaml:"locks" json:"locks"`
	Limits      Limits      `yaml:"limits" json:"limits"`
	Observer    Observer    `yaml:"observer" json:"observer"`
}

type Suffocation struct {
	IntervalTicks int     `yaml:"interval_ticks" json:"interval_ticks"`
	Damage        float64 `yaml:"damage" json:"damage"`
	AirLoss       int     `yaml:"air_loss" json:"air_loss"`
}

type Locks struct {
	DeadlockDetection bool `yaml:"deadlock_detection" json:"deadlock_detection"`
	DeadlockTimeoutMs int  `yaml:"deadlock_timeout_ms" json:"deadlock_timeout_ms"`
}

type Limits struct {
	// MaxCoordsPerRequest caps one device apply over the API.
	MaxCoordsPerRequest int     `yaml:"max_coords_per_request" json:"max_coords_per_request"`
	MinGravity          float64 `yaml:"min_gravity" json:"min_gravity"`
	MaxGravity          float64 `yaml:"max_gravity" json:"max_gravity"`
}

type Observer struct {
	MaxClients   int `yaml:"max_clients" json:"max_clients"`
	SendBuffer   int `yaml:"send_buffer" json:"send_buffer"`
	WriteTimeout int `yaml:"write_timeout_ms" json:"write_timeout_ms"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: protocol.Version,
		Namespace:       "adastra",
		Suffocation: Suffocation{
			IntervalTicks: 40,
			Damage:        2.0,
			AirLoss:       20,
		},
		Locks: Locks{
			DeadlockDetection: false,
			DeadlockTimeoutMs: 30000,
		},
		Limits: Limits{
			MaxCoordsPerRequest: 65536,
			MinGravity:          0,
			MaxGravity:          10,
		},
		Observer: Observer{
			MaxClients:   64,
			SendBuffer:   256,
			WriteTimeout: 5000,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	t.Namespace = strings.TrimSpace(t.Namespace)
	if t.Namespace == "" {
		t.Namespace = d.Namespace
	}
	t.ProtocolVersion = strings.TrimSpace(t.ProtocolVersion)
	if t.Locks.DeadlockTimeoutMs <= 0 {
		t.Locks.DeadlockTimeoutMs = d.Locks.DeadlockTimeoutMs
	}
	if t.Limits.MaxCoordsPerRequest <= 0 {
		t.Limits.MaxCoordsPerRequest = d.Limits.MaxCoordsPerRequest
	}
	if t.Observer.SendBuffer <= 0 {
		t.Observer.SendBuffer = d.Observer.SendBuffer
	}
	if t.Observer.WriteTimeout <= 0 {
		t.Observer.WriteTimeout = d.Observer.WriteTimeout
	}
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q does not match server protocol %q", t.ProtocolVersion, protocol.Version)
	}
	if strings.Contains(t.Namespace, ":") {
		return fmt.Errorf("namespace %q must not contain ':'", t.Namespace)
	}
	if t.Suffocation.IntervalTicks <= 0 {
		return fmt.Errorf("suffocation.interval_ticks must be > 0")
	}
	if t.Suffocation.Damage <= 0 {
		return fmt.Errorf("suffocation.damage must be > 0")
	}
	if t.Suffocation.AirLoss <= 0 {
		return fmt.Errorf("suffocation.air_loss must be > 0")
	}
	if t.Limits.MinGravity < 0 || t.Limits.MaxGravity < t.Limits.MinGravity {
		return fmt.Errorf("limits: need 0 <= min_gravity <= max_gravity")
	}
	if t.Observer.MaxClients < 0 {
		return fmt.Errorf("observer.max_clients must be >= 0")
	}
	return nil
}
