// Package commands maps recognized text and LLM tool tags onto in-process
// device callbacks.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Action is one trigger pattern on a device. Either TriggerWildcard (with
// `*` capturing the value argument) or TriggerRegex (with one capture
// group) must be set; the regex wins when both are present.
type Action struct {
	TriggerWildcard string `json:"trigger_wildcard"`
	TriggerRegex    string `json:"trigger_regex"`
	EmitTopic       string `json:"emit_topic"`
	EmitTemplate    string `json:"emit_template"`

	re *regexp.Regexp
}

// Device groups the actions of one named target.
type Device struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Actions []Action `json:"actions"`
}

// Table is the startup-loaded command table.
type Table struct {
	Devices []Device `json:"devices"`
}

// Match is a successful lookup of recognized text against the table.
type Match struct {
	Device *Device
	Action *Action
	// Value is the captured argument with trailing punctuation trimmed,
	// empty when the pattern has no capture.
	Value string
}

// LoadTable reads and compiles a command table from a JSON file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses and compiles a command table from JSON bytes.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse command table: %w", err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) compile() error {
	for di := range t.Devices {
		for ai := range t.Devices[di].Actions {
			a := &t.Devices[di].Actions[ai]

			pattern := a.TriggerRegex
			if pattern == "" {
				if a.TriggerWildcard == "" {
					return fmt.Errorf("device %q: action without trigger", t.Devices[di].Name)
				}
				pattern = wildcardToRegex(a.TriggerWildcard)
			}

			re, err := regexp.Compile("(?i)^" + pattern + "$")
			if err != nil {
				return fmt.Errorf("device %q: bad trigger %q: %w", t.Devices[di].Name, pattern, err)
			}
			a.re = re
		}
	}
	return nil
}

// wildcardToRegex turns "play *" into a regex with one capture for the
// argument.
func wildcardToRegex(wildcard string) string {
	parts := strings.Split(wildcard, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, "(.+)")
}

// Match looks the recognized text up in the table. The first matching
// action wins, in file order.
func (t *Table) Match(text string) (*Match, bool) {
	text = strings.TrimSpace(text)
	for di := range t.Devices {
		for ai := range t.Devices[di].Actions {
			a := &t.Devices[di].Actions[ai]
			groups := a.re.FindStringSubmatch(text)
			if groups == nil {
				continue
			}

			value := ""
			if len(groups) > 1 {
				value = strings.TrimRight(strings.TrimSpace(groups[1]), ".,!?;:")
			}
			return &Match{Device: &t.Devices[di], Action: a, Value: value}, true
		}
	}
	return nil, false
}

// Expand fills the action's emit template with the captured value.
func (a *Action) Expand(value string) string {
	if a.EmitTemplate == "" {
		return value
	}
	if strings.Contains(a.EmitTemplate, "%s") {
		return fmt.Sprintf(a.EmitTemplate, value)
	}
	return a.EmitTemplate
}
