package activity

import (
	"strings"
	"time"
)

// Run event verbs.
const (
	VerbRunStarted     = "run.started"
	VerbRunSplit       = "run.split"
	VerbRunSkipped     = "run.skipped"
	VerbRunManualSplit = "run.manual_split"
	VerbRunReset       = "run.reset"
	VerbRunEnded       = "run.ended"
)

// ObjectTypeRun is the object type of every run event.
const ObjectTypeRun = "run"

// RunEventInput describes the common fields of run events.
type RunEventInput struct {
	RunID      string
	RunnerID   string
	Channel    string
	Route      string
	Split      string
	Index      int
	Old        string
	Current    string
	Hits       int
	HasHits    bool
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildRunStartedEvent builds the event for an automatic start.
func BuildRunStartedEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunStarted, input)
}

// BuildRunSplitEvent builds the event for an automatic split.
func BuildRunSplitEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunSplit, input)
}

// BuildRunSkippedEvent builds the event for a skipped split.
func BuildRunSkippedEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunSkipped, input)
}

// BuildRunManualSplitEvent builds the event for a split the runner is
// expected to press.
func BuildRunManualSplitEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunManualSplit, input)
}

// BuildRunResetEvent builds the event for a reset, automatic or manual.
func BuildRunResetEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunReset, input)
}

// BuildRunEndedEvent builds the event for a finished run.
func BuildRunEndedEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunEnded, input)
}

func buildRunEvent(verb string, input RunEventInput) Event {
	metadata := ensureMetadata(cloneMap(input.Metadata))
	metadata["index"] = input.Index
	if route := strings.TrimSpace(input.Route); route != "" {
		metadata["route"] = route
	}
	if split := strings.TrimSpace(input.Split); split != "" {
		metadata["split"] = split
	}
	if input.Old != "" {
		metadata["old_scene"] = input.Old
	}
	if input.Current != "" {
		metadata["current_scene"] = input.Current
	}
	if input.HasHits {
		metadata["hits"] = input.Hits
	}

	objectID := strings.TrimSpace(input.RunID)
	if objectID == "" {
		objectID = ObjectTypeRun
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.RunnerID),
		ObjectType: ObjectTypeRun,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
