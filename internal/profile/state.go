package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentSchemaVersion is the schema written by this build.
const CurrentSchemaVersion = 1

var (
	ErrUnsupportedSchema = errors.New("profile: unsupported state schema")
	ErrStateNotFound     = errors.New("profile: state not found")
)

// State is the persisted form of a visitor's session profile.
type State struct {
	SchemaVersion int             `json:"schema_version"`
	SessionID     string          `json:"session_id"`
	Profile       BusinessProfile `json:"profile"`
	Template      string          `json:"template,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewState returns a fresh state at the current schema version.
func NewState(sessionID string, bp BusinessProfile, template string, now time.Time) State {
	if bp.Personality == "" {
		bp.Personality = DefaultPersonality
	}
	return State{
		SchemaVersion: CurrentSchemaVersion,
		SessionID:     sessionID,
		Profile:       bp,
		Template:      template,
		UpdatedAt:     now.UTC(),
	}
}

// legacyState is the unversioned shape that stored the profile fields flat.
type legacyState struct {
	SessionID    string `json:"session_id"`
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	BusinessInfo string `json:"businessInfo"`
	Personality  string `json:"personality"`
	Template     string `json:"template"`
}

// DecodeState parses persisted bytes, upgrading version 0 documents and
// rejecting versions newer than CurrentSchemaVersion.
func DecodeState(data []byte) (State, error) {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return State{}, fmt.Errorf("profile: decode state: %w", err)
	}
	switch {
	case probe.SchemaVersion == 0:
		var legacy legacyState
		if err := json.Unmarshal(data, &legacy); err != nil {
			return State{}, fmt.Errorf("profile: decode legacy state: %w", err)
		}
		return upgradeLegacy(legacy), nil
	case probe.SchemaVersion > CurrentSchemaVersion || probe.SchemaVersion < 0:
		return State{}, fmt.Errorf("%w: version %d", ErrUnsupportedSchema, probe.SchemaVersion)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("profile: decode state: %w", err)
	}
	return st, nil
}

func upgradeLegacy(l legacyState) State {
	personality := l.Personality
	if !ValidPersonality(personality) {
		personality = DefaultPersonality
	}
	template := l.Template
	if template == "" {
		template = l.BusinessType
	}
	return State{
		SchemaVersion: CurrentSchemaVersion,
		SessionID:     l.SessionID,
		Profile: BusinessProfile{
			Name:        l.BusinessName,
			Category:    l.BusinessType,
			Description: l.BusinessInfo,
			Personality: personality,
		},
		Template: template,
	}
}

// EncodeState serializes st at the current schema version.
func EncodeState(st State) ([]byte, error) {
	st.SchemaVersion = CurrentSchemaVersion
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("profile: encode state: %w", err)
	}
	return data, nil
}
