package duty

// EventType names a fact the engine produced. The hosting service decides
// what, if anything, to tell people about it; the engine itself never
// formats or delivers a message.
type EventType string

const (
	EventInstanceCreated   EventType = "instance_created"
	EventInstanceCompleted EventType = "instance_completed"
)

// Event is an explicit return value standing in for the ambient domain
// events of older designs: callers collect them and fan them out.
type Event struct {
	Type     EventType
	Instance Instance
}

func CreatedEvent(i Instance) Event {
	return Event{Type: EventInstanceCreated, Instance: i}
}

func CompletedEvent(i Instance) Event {
	return Event{Type: EventInstanceCompleted, Instance: i}
}
