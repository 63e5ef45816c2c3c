package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind names the resource kind a table holds. Handles of different kinds
// live in different tables and are never interchangeable.
type Kind string

const (
	KindOptions     Kind = "options"
	KindArrayOutput Kind = "array_output"
	KindKeyManager  Kind = "key_manager"
)

// DefaultMaxHandles bounds the number of live handles per table.
const DefaultMaxHandles = 1 << 16

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Kind   Kind
	Handle Handle
	Live   int
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
// Observers run synchronously on the calling goroutine and must not
// call back into the table that emitted the event.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
// Function values are not comparable, so an ObserverFunc cannot be
// passed to Unsubscribe.
type ObserverFunc func(Event)

// OnResourceEvent calls f(e).
func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
