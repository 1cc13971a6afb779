package commands

import (
	"fmt"
	"log"
	"strings"
)

// Outcome classifies what the pipeline should do with a callback result.
type Outcome int

const (
	// OutcomeSilent means the command was handled with nothing to say.
	OutcomeSilent Outcome = iota
	// OutcomeSpoken means the result text should be spoken directly.
	OutcomeSpoken
	// OutcomeFeedLLM means the result text should be fed back to the LLM
	// as a system message before responding.
	OutcomeFeedLLM
)

// Result is what a device callback returns.
type Result struct {
	Outcome Outcome
	Text    string
}

// Silent returns a result with nothing to say.
func Silent() Result {
	return Result{Outcome: OutcomeSilent}
}

// Spoken returns a result to be spoken as-is.
func Spoken(text string) Result {
	return Result{Outcome: OutcomeSpoken, Text: text}
}

// FeedLLM returns a result to be routed through the LLM.
func FeedLLM(text string) Result {
	return Result{Outcome: OutcomeFeedLLM, Text: text}
}

// Callback executes one action on a device. value may be empty.
type Callback func(action, value string) Result

// Dispatcher routes matched text and tool tags to device callbacks.
type Dispatcher struct {
	table     *Table
	callbacks map[string]Callback
}

// NewDispatcher creates a dispatcher over the given table. Devices without
// a registered callback match but report an error result when invoked.
func NewDispatcher(table *Table) *Dispatcher {
	return &Dispatcher{
		table:     table,
		callbacks: make(map[string]Callback),
	}
}

// Register installs the callback for a device name.
func (d *Dispatcher) Register(device string, cb Callback) {
	d.callbacks[strings.ToLower(device)] = cb
}

// HandleText matches recognized text against the table and invokes the
// callback on success. The second return is false when no pattern matched.
func (d *Dispatcher) HandleText(text string) (Result, bool) {
	if d.table == nil {
		return Result{}, false
	}

	m, ok := d.table.Match(text)
	if !ok {
		return Result{}, false
	}

	log.Printf("🎯 Direct command: device=%s action=%s value=%q", m.Device.Name, m.Action.EmitTopic, m.Value)
	return d.invoke(m.Device.Name, m.Action.EmitTopic, m.Action.Expand(m.Value)), true
}

// Invoke executes a named device action directly.
func (d *Dispatcher) Invoke(device, action, value string) Result {
	return d.invoke(device, action, value)
}

func (d *Dispatcher) invoke(device, action, value string) Result {
	cb, ok := d.callbacks[strings.ToLower(device)]
	if !ok {
		log.Printf("⚠️  No callback registered for device %q", device)
		return Spoken(fmt.Sprintf("I don't know how to control %s.", device))
	}
	return cb(action, value)
}
