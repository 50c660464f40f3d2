package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lifesupport.ai/internal/protocol"
)

func TestSchemas_ZoneEvent(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "zone_event.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	toAny := func(v any) any {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}

	anchor := [3]int{0, 63, 0}
	g := 0.38
	samples := []protocol.ZoneEvent{
		{Type: protocol.TypeZoneEvent, Seq: 1, Time: "2026-03-01T10:00:00Z", World: "adastra:moon", Kind: "OXYGEN", Action: protocol.ActionClaim, Anchor: &anchor, Requested: 2, Granted: 1, Changed: 1, Coords: [][3]int{{0, 64, 0}}},
		{Type: protocol.TypeZoneEvent, Seq: 2, Time: "2026-03-01T10:00:01Z", World: "adastra:glacio", Kind: "GRAVITY", Action: protocol.ActionClaim, Anchor: &anchor, Gravity: &g},
		{Type: protocol.TypeZoneEvent, Seq: 3, Time: "2026-03-01T10:00:02Z", World: "adastra:moon", Action: protocol.ActionClearWorld},
	}
	for _, ev := range samples {
		if err := s.Validate(toAny(ev)); err != nil {
			t.Fatalf("seq %d: %v", ev.Seq, err)
		}
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"type":"ZONE_EVENT","seq":1,"time":"t","action":"CLAIM","anchor":[1,2]}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("expected short anchor to be rejected")
	}
	_ = json.Unmarshal([]byte(`{"type":"ZONE_EVENT","seq":1,"time":"t","action":"CLAIM","owner":"x"}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}
