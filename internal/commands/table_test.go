package commands

import (
	"testing"
)

const testTable = `{
  "devices": [
    {
      "type": "media",
      "name": "music",
      "actions": [
        {"trigger_wildcard": "play *", "emit_topic": "play", "emit_template": "play %s"},
        {"trigger_wildcard": "set volume to *", "emit_topic": "volume", "emit_template": "%s"},
        {"trigger_regex": "stop (?:the )?music", "emit_topic": "stop", "emit_template": "stop"}
      ]
    },
    {
      "type": "utility",
      "name": "timer",
      "actions": [
        {"trigger_wildcard": "set a timer for *", "emit_topic": "set", "emit_template": "%s"}
      ]
    }
  ]
}`

func mustParse(t *testing.T) *Table {
	t.Helper()
	table, err := ParseTable([]byte(testTable))
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}
	return table
}

func TestTableWildcardMatch(t *testing.T) {
	table := mustParse(t)

	tests := []struct {
		text   string
		device string
		action string
		value  string
		ok     bool
	}{
		{"play Iron Man", "music", "play", "Iron Man", true},
		{"Play Iron Man.", "music", "play", "Iron Man", true},
		{"play Iron Man!?", "music", "play", "Iron Man", true},
		{"set volume to 50", "music", "volume", "50", true},
		{"stop the music", "music", "stop", "", true},
		{"stop music", "music", "stop", "", true},
		{"set a timer for 5 minutes", "timer", "set", "5 minutes", true},
		{"turn on the lights", "", "", "", false},
		{"playing around", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m, ok := table.Match(tt.text)
			if ok != tt.ok {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if !ok {
				return
			}
			if m.Device.Name != tt.device {
				t.Errorf("device = %q, want %q", m.Device.Name, tt.device)
			}
			if m.Action.EmitTopic != tt.action {
				t.Errorf("action = %q, want %q", m.Action.EmitTopic, tt.action)
			}
			if m.Value != tt.value {
				t.Errorf("value = %q, want %q", m.Value, tt.value)
			}
		})
	}
}

func TestActionExpand(t *testing.T) {
	table := mustParse(t)
	m, ok := table.Match("play Iron Man")
	if !ok {
		t.Fatal("expected match")
	}
	if got := m.Action.Expand(m.Value); got != "play Iron Man" {
		t.Errorf("Expand = %q, want %q", got, "play Iron Man")
	}
}

func TestParseTableRejectsBadInput(t *testing.T) {
	if _, err := ParseTable([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseTable([]byte(`{"devices":[{"name":"x","actions":[{}]}]}`)); err == nil {
		t.Error("expected error for action without trigger")
	}
	if _, err := ParseTable([]byte(`{"devices":[{"name":"x","actions":[{"trigger_regex":"("}]}]}`)); err == nil {
		t.Error("expected error for invalid regex")
	}
}

func TestDispatcherHandleText(t *testing.T) {
	table := mustParse(t)
	d := NewDispatcher(table)

	var gotAction, gotValue string
	d.Register("music", func(action, value string) Result {
		gotAction, gotValue = action, value
		return Spoken("done")
	})

	res, ok := d.HandleText("play Iron Man.")
	if !ok {
		t.Fatal("expected a match")
	}
	if res.Outcome != OutcomeSpoken || res.Text != "done" {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotAction != "play" || gotValue != "play Iron Man" {
		t.Errorf("callback got (%q, %q)", gotAction, gotValue)
	}

	if _, ok := d.HandleText("open the pod bay doors"); ok {
		t.Error("expected no match")
	}
}

func TestDispatcherUnregisteredDevice(t *testing.T) {
	table := mustParse(t)
	d := NewDispatcher(table)

	res, ok := d.HandleText("set a timer for 5 minutes")
	if !ok {
		t.Fatal("expected a match")
	}
	if res.Outcome != OutcomeSpoken {
		t.Errorf("expected spoken fallback for unregistered device, got %+v", res)
	}
}
