package realtime

// Events pushed to connected clients
const (
	EventFirCreated = "firCreated"
	EventFirUpdated = "firUpdated"
	EventNewMessage = "newMessage"
)

// Broadcaster pushes events to connected clients. Delivery is best effort and
// at most once, so implementations never report errors to the caller.
type Broadcaster interface {
	// Publish sends event to every connected client
	Publish(event string, payload interface{})
	// PublishTo sends event to the clients that joined room
	PublishTo(room, event string, payload interface{})
}

// Fanout publishes every event to each of its broadcasters in order
type Fanout []Broadcaster

// Publish implements Broadcaster
func (f Fanout) Publish(event string, payload interface{}) {
	for _, b := range f {
		if b != nil {
			b.Publish(event, payload)
		}
	}
}

// PublishTo implements Broadcaster
func (f Fanout) PublishTo(room, event string, payload interface{}) {
	for _, b := range f {
		if b != nil {
			b.PublishTo(room, event, payload)
		}
	}
}

// Nop drops every event
type Nop struct{}

// Publish implements Broadcaster
func (Nop) Publish(string, interface{}) {}

// PublishTo implements Broadcaster
func (Nop) PublishTo(string, string, interface{}) {}
