package chronosdk

// TimerEventKind namespaces the events broadcast to a user's room.
type TimerEventKind string

const (
	TimerEventTimerStarted     TimerEventKind = "timer.started"
	TimerEventTimerStopped     TimerEventKind = "timer.stopped"
	TimerEventTimerUpdated     TimerEventKind = "timer.updated"
	TimerEventEntryCreated     TimerEventKind = "entry.created"
	TimerEventEntryUpdated     TimerEventKind = "entry.updated"
	TimerEventEntryDeleted     TimerEventKind = "entry.deleted"
	TimerEventShortcutsUpdated TimerEventKind = "shortcuts.updated"
)

// TimerEvent is the payload fanned out to every device in a user's room.
// Delivery is best-effort and at-most-once: events advise clients that
// state changed, they are never a substitute for fetching it.
type TimerEvent struct {
	Kind  TimerEventKind `json:"kind"`
	Timer *ActiveTimer   `json:"timer,omitempty"`
	Entry *TimeEntry     `json:"entry,omitempty"`
}
