package internal

import (
	"fmt"
	"strings"
)

// Action is a lifecycle operation applied uniformly to every container app
// in a batch.
type Action string

const (
	ActionStart Action = "Start"
	ActionStop  Action = "Stop"
)

// ParseAction converts a case-insensitive action name into an Action.
func ParseAction(name string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "start":
		return ActionStart, nil
	case "stop":
		return ActionStop, nil
	default:
		return "", fmt.Errorf("unknown lifecycle action %q (expected start or stop)", name)
	}
}

// Verb returns the lowercase form used in span names and metric labels.
func (a Action) Verb() string {
	return strings.ToLower(string(a))
}

// Phase is a step of a single lifecycle run.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseEmpty       Phase = "empty"
	PhaseProcessing  Phase = "processing"
	PhaseDone        Phase = "done"
)
