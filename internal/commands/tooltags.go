package commands

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"
)

// toolTagRe captures the JSON payload of one <command> span.
var toolTagRe = regexp.MustCompile(`(?s)<command>(.*?)</command>`)

// toolPayload is the compact JSON inside a tool tag.
type toolPayload struct {
	Device string `json:"device"`
	Action string `json:"action"`
	Value  string `json:"value"`
}

// maxToolRounds caps chained tool execution so a model emitting tags in
// its follow-up output cannot loop forever.
const maxToolRounds = 4

// ProcessToolTags executes every <command> span in an LLM response and
// returns the collected callback results. Malformed payloads are logged
// and skipped.
func (d *Dispatcher) ProcessToolTags(response string) []Result {
	var results []Result
	for _, groups := range toolTagRe.FindAllStringSubmatch(response, -1) {
		payload := strings.TrimSpace(groups[1])

		var cmd toolPayload
		if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
			log.Printf("⚠️  Ignoring malformed tool tag: %v", err)
			continue
		}
		if cmd.Device == "" || cmd.Action == "" {
			log.Printf("⚠️  Ignoring incomplete tool tag: %q", payload)
			continue
		}

		log.Printf("🔧 Tool tag: device=%s action=%s value=%q", cmd.Device, cmd.Action, cmd.Value)
		results = append(results, d.invoke(cmd.Device, cmd.Action, cmd.Value))
	}
	return results
}

// ProcessToolTagsChained runs ProcessToolTags, then feeds FeedLLM results
// through followUp and processes tags in those responses too, up to
// maxToolRounds. followUp is typically a synchronous LLM call with the
// result as a system message.
func (d *Dispatcher) ProcessToolTagsChained(response string, followUp func(systemMsg string) (string, error)) []Result {
	var all []Result
	current := response

	for round := 0; round < maxToolRounds; round++ {
		results := d.ProcessToolTags(current)
		all = append(all, results...)

		next := ""
		for _, r := range results {
			if r.Outcome == OutcomeFeedLLM && followUp != nil {
				reply, err := followUp(r.Text)
				if err != nil {
					log.Printf("⚠️  Tool follow-up failed: %v", err)
					continue
				}
				next += reply
			}
		}
		if next == "" {
			break
		}
		current = next
	}
	return all
}

// StripToolTags removes <command> spans from a response so they are never
// spoken.
func StripToolTags(text string) string {
	return strings.TrimSpace(toolTagRe.ReplaceAllString(text, ""))
}
