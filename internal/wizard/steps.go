// Package wizard drives a visitor through configure, test and publish.
package wizard

import "errors"

// Step is a wizard stage.
type Step string

const (
	StepConfigure Step = "configure"
	StepTest      Step = "test"
	StepPublish   Step = "publish"
)

func (s Step) valid() bool {
	switch s {
	case StepConfigure, StepTest, StepPublish:
		return true
	}
	return false
}

var (
	ErrSessionNotFound = errors.New("wizard: session not found")
	ErrUnknownTemplate = errors.New("wizard: unknown template")
	ErrInvalidStep     = errors.New("wizard: invalid step")
	ErrNotConfigured   = errors.New("wizard: business profile is not configured")
	ErrUpgradeRequired = errors.New("wizard: an active subscription is required")
)

// StepStatus tells the client which steps it may enter.
type StepStatus struct {
	ID        Step   `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

func stepStatuses(configured bool) []StepStatus {
	return []StepStatus{
		{ID: StepConfigure, Name: "1. Configurar", Available: true},
		{ID: StepTest, Name: "2. Testar", Available: configured},
		{ID: StepPublish, Name: "3. Publicar", Available: configured},
	}
}
