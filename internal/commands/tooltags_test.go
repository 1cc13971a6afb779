package commands

import (
	"fmt"
	"testing"
)

func TestProcessToolTags(t *testing.T) {
	d := NewDispatcher(nil)

	var calls []string
	d.Register("lights", func(action, value string) Result {
		calls = append(calls, action+":"+value)
		return Silent()
	})

	response := `Sure.<command>{"device":"lights","action":"on","value":"kitchen"}</command>` +
		`And also.<command>{"device":"lights","action":"off","value":"hall"}</command>`

	results := d.ProcessToolTags(response)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(calls) != 2 || calls[0] != "on:kitchen" || calls[1] != "off:hall" {
		t.Errorf("unexpected calls: %v", calls)
	}
}

func TestProcessToolTagsIgnoresMalformed(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("lights", func(action, value string) Result { return Silent() })

	tests := []string{
		`<command>not json</command>`,
		`<command>{"action":"on"}</command>`,
		`<command>{"device":"lights"}</command>`,
	}
	for _, resp := range tests {
		if results := d.ProcessToolTags(resp); len(results) != 0 {
			t.Errorf("expected malformed tag ignored in %q, got %d results", resp, len(results))
		}
	}
}

func TestProcessToolTagsChained(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("weather", func(action, value string) Result {
		return FeedLLM("The forecast is sunny.")
	})
	d.Register("lights", func(action, value string) Result {
		return Silent()
	})

	var followUps int
	followUp := func(systemMsg string) (string, error) {
		followUps++
		// The model reacts to the forecast by issuing another command
		if followUps == 1 {
			return `<command>{"device":"lights","action":"on","value":"porch"}</command>`, nil
		}
		return "All set.", nil
	}

	response := `<command>{"device":"weather","action":"get","value":"today"}</command>`
	results := d.ProcessToolTagsChained(response, followUp)

	if len(results) != 2 {
		t.Fatalf("expected 2 chained results, got %d", len(results))
	}
	if followUps != 1 {
		t.Errorf("expected 1 follow-up call, got %d", followUps)
	}
}

func TestProcessToolTagsChainedRecursionCap(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("loop", func(action, value string) Result {
		return FeedLLM("again")
	})

	// Every follow-up emits another command, forever
	followUp := func(systemMsg string) (string, error) {
		return `<command>{"device":"loop","action":"go","value":""}</command>`, nil
	}

	response := `<command>{"device":"loop","action":"go","value":""}</command>`
	results := d.ProcessToolTagsChained(response, followUp)

	if len(results) > maxToolRounds {
		t.Errorf("expected at most %d rounds, got %d results", maxToolRounds, len(results))
	}
}

func TestProcessToolTagsChainedFollowUpError(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("weather", func(action, value string) Result {
		return FeedLLM("forecast")
	})

	results := d.ProcessToolTagsChained(
		`<command>{"device":"weather","action":"get","value":""}</command>`,
		func(string) (string, error) { return "", fmt.Errorf("llm down") },
	)
	if len(results) != 1 {
		t.Errorf("expected 1 result despite follow-up failure, got %d", len(results))
	}
}

func TestStripToolTags(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Turning them on.<command>{"device":"x","action":"y"}</command>`, "Turning them on."},
		{`<command>{"a":1}</command>ok<command>{"b":2}</command>`, "ok"},
		{"plain text", "plain text"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripToolTags(tt.in); got != tt.want {
			t.Errorf("StripToolTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
