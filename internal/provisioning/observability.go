package provisioning

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Observer defines the interface for structured observability during provisioning.
type Observer interface {
	// Printf logs a free-form message.
	Printf(format string, v ...any)

	// Event emits a structured event.
	Event(event Event)

	// Progress reports progress for a phase.
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields.
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "network", "peering")
	Message   string            // Human-readable message
	Resource  string            // Resource name/ID if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceCreating EventType = "resource.creating"
	EventResourceCreated  EventType = "resource.created"
	EventResourceExists   EventType = "resource.exists"
	EventResourceSkipped  EventType = "resource.skipped"
	EventResourceFailed   EventType = "resource.failed"
	EventResourceDeleting EventType = "resource.deleting"
	EventResourceDeleted  EventType = "resource.deleted"

	EventUnitApplying  EventType = "unit.applying"
	EventUnitApplied   EventType = "unit.applied"
	EventUnitFailed    EventType = "unit.failed"
	EventUnitSkipped   EventType = "unit.skipped"
	EventUnitDrifted   EventType = "unit.drifted"
	EventUnitDestroyed EventType = "unit.destroyed"

	EventValidationWarning EventType = "validation.warning"
	EventProgress          EventType = "progress"
)

// LogObserver implements Observer on top of a logr.Logger. Failure events
// are logged as errors; everything else at verbosity 0, except progress,
// which is logged at verbosity 1.
type LogObserver struct {
	log           logr.Logger
	contextFields map[string]string
}

// NewLogObserver creates an observer writing to log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log, contextFields: map[string]string{}}
}

// NewDiscardObserver returns an observer that drops everything.
func NewDiscardObserver() *LogObserver {
	return NewLogObserver(logr.Discard())
}

// Printf implements Observer.
func (o *LogObserver) Printf(format string, v ...any) {
	o.log.Info(fmt.Sprintf(format, v...), o.keysAndValues(nil)...)
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	kv := []any{"event", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	kv = append(kv, o.keysAndValues(event.Fields)...)

	switch event.Type {
	case EventPhaseFailed, EventResourceFailed, EventUnitFailed:
		o.log.Error(nil, event.Message, kv...)
	case EventProgress:
		o.log.V(1).Info(event.Message, kv...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// Progress implements Observer.
func (o *LogObserver) Progress(phase string, current, total int) {
	msg := fmt.Sprintf("%d/%d", current, total)
	if total > 0 {
		msg = fmt.Sprintf("%d/%d (%d%%)", current, total, current*100/total)
	}
	o.Event(Event{Type: EventProgress, Phase: phase, Message: msg})
}

// WithFields implements Observer.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	merged := mergeFields(o.contextFields, fields)
	return &LogObserver{log: o.log, contextFields: merged}
}

// keysAndValues merges context fields under event fields into a sorted
// logr key/value list.
func (o *LogObserver) keysAndValues(fields map[string]string) []any {
	merged := mergeFields(o.contextFields, fields)

	kv := make([]any, 0, 2*len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		kv = append(kv, k, merged[k])
	}
	return kv
}

func mergeFields(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	maps.Copy(merged, base)
	maps.Copy(merged, extra)
	return merged
}

// RecordingObserver keeps every event in memory. It is safe for concurrent
// use and is meant for tests.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
	fields map[string]string
	parent *RecordingObserver
}

// NewRecordingObserver returns an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{fields: map[string]string{}}
}

func (r *RecordingObserver) root() *RecordingObserver {
	if r.parent != nil {
		return r.parent
	}
	return r
}

// Printf implements Observer.
func (r *RecordingObserver) Printf(format string, v ...any) {
	r.Event(Event{Message: fmt.Sprintf(format, v...)})
}

// Event implements Observer.
func (r *RecordingObserver) Event(event Event) {
	merged := mergeFields(r.fields, event.Fields)
	event.Fields = merged

	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.events = append(root.events, event)
}

// Progress implements Observer.
func (r *RecordingObserver) Progress(phase string, current, total int) {
	r.Event(Event{Type: EventProgress, Phase: phase, Message: fmt.Sprintf("%d/%d", current, total)})
}

// WithFields implements Observer.
func (r *RecordingObserver) WithFields(fields map[string]string) Observer {
	merged := mergeFields(r.fields, fields)
	return &RecordingObserver{fields: merged, parent: r.root()}
}

// Events returns a copy of the recorded events.
func (r *RecordingObserver) Events() []Event {
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return slices.Clone(root.events)
}

// OfType returns the recorded events of one type.
func (r *RecordingObserver) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: "starting",
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogResourceCreating logs a resource creation start event.
func LogResourceCreating(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceCreating,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("creating %s", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceCreated logs a successful resource creation event.
func LogResourceCreated(observer Observer, phase, resourceType, resourceName, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s created", resourceType),
		Fields:   map[string]string{"type": resourceType, "id": resourceID},
	})
}

// LogResourceExists logs when a resource already exists and is reused.
func LogResourceExists(observer Observer, phase, resourceType, resourceName, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceExists,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s already exists", resourceType),
		Fields:   map[string]string{"type": resourceType, "id": resourceID},
	})
}

// LogResourceSkipped logs a resource the provider cannot create.
func LogResourceSkipped(observer Observer, phase, resourceType, resourceName, reason string) {
	observer.Event(Event{
		Type:     EventResourceSkipped,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s skipped: %s", resourceType, reason),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceDeleting logs a resource deletion start event.
func LogResourceDeleting(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleting,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("deleting %s", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceDeleted logs a successful resource deletion event.
func LogResourceDeleted(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleted,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s deleted", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}
