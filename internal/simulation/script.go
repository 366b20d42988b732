// Package simulation generates a scripted WhatsApp conversation for a business
// profile and replays it turn by turn.
package simulation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Speaker identifies who sent a turn.
type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerAgent    Speaker = "agent"
)

// Playback delay bounds in milliseconds.
const (
	MinTurnDelayMS     = 800
	MaxTurnDelayMS     = 2500
	DefaultTurnDelayMS = 1200
)

var speakerAliases = map[string]Speaker{
	"agent":       SpeakerAgent,
	"bot":         SpeakerAgent,
	"assistant":   SpeakerAgent,
	"atendente":   SpeakerAgent,
	"funcionario": SpeakerAgent,
	"funcionário": SpeakerAgent,
	"customer":    SpeakerCustomer,
	"user":        SpeakerCustomer,
	"cliente":     SpeakerCustomer,
}

// NormalizeSpeaker maps provider spellings onto customer/agent. Unknown values
// are returned lower-cased and unchanged otherwise.
func NormalizeSpeaker(raw string) Speaker {
	key := strings.ToLower(strings.TrimSpace(raw))
	if s, ok := speakerAliases[key]; ok {
		return s
	}
	return Speaker(key)
}

// ScriptTurn is one generated message.
type ScriptTurn struct {
	ID      int     `json:"id"`
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
	DelayMS int     `json:"delay_ms"`
}

// ConversationScript is a validated, non-empty sequence of turns whose last
// turn belongs to the agent. Only ValidateScript produces one.
type ConversationScript struct {
	turns []ScriptTurn
}

// Turns returns a copy of the script turns.
func (s ConversationScript) Turns() []ScriptTurn {
	out := make([]ScriptTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s ConversationScript) Len() int { return len(s.turns) }

// ValidateScript parses an LLM reply. It accepts iff the text is JSON with a
// non-empty "simulation" array of objects whose last element is spoken by the
// agent. Earlier turns with an unknown speaker are attributed to the customer.
// It never panics.
func ValidateScript(text string) (ConversationScript, bool) {
	var envelope struct {
		Simulation json.RawMessage `json:"simulation"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &envelope); err != nil {
		return ConversationScript{}, false
	}
	var raw []map[string]any
	if len(envelope.Simulation) == 0 || json.Unmarshal(envelope.Simulation, &raw) != nil {
		return ConversationScript{}, false
	}
	if len(raw) == 0 {
		return ConversationScript{}, false
	}

	turns := make([]ScriptTurn, 0, len(raw))
	for _, obj := range raw {
		if obj == nil {
			return ConversationScript{}, false
		}
		turns = append(turns, ScriptTurn{
			ID:      intField(obj, "id"),
			Speaker: NormalizeSpeaker(stringField(obj, "sender", "speaker", "role", "from")),
			Text:    strings.TrimSpace(stringField(obj, "content", "text", "message")),
			DelayMS: clampDelay(obj["delay"]),
		})
	}
	last := len(turns) - 1
	if turns[last].Speaker != SpeakerAgent {
		return ConversationScript{}, false
	}
	for i := range turns[:last] {
		if turns[i].Speaker != SpeakerAgent {
			turns[i].Speaker = SpeakerCustomer
		}
	}
	resequence(turns)
	return ConversationScript{turns: turns}, true
}

func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			return s
		}
	}
	return ""
}

func intField(obj map[string]any, key string) int {
	n, ok := number(obj[key])
	if !ok || n != math.Trunc(n) {
		return 0
	}
	return int(n)
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func clampDelay(v any) int {
	n, ok := number(v)
	if !ok {
		return DefaultTurnDelayMS
	}
	switch {
	case n < MinTurnDelayMS:
		return MinTurnDelayMS
	case n > MaxTurnDelayMS:
		return MaxTurnDelayMS
	}
	return int(math.Round(n))
}

// resequence rewrites ids to 1..n unless they are already strictly increasing
// positive integers.
func resequence(turns []ScriptTurn) {
	prev := 0
	monotonic := true
	for _, t := range turns {
		if t.ID <= prev {
			monotonic = false
			break
		}
		prev = t.ID
	}
	if monotonic {
		return
	}
	for i := range turns {
		turns[i].ID = i + 1
	}
}
