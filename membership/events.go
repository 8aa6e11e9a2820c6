package membership

// Event describes a single membership change of the member at Address, as
// observed by the member at From. A nil state means the member was (or is)
// unknown.
type Event struct {
	From    Address
	Address Address
	Old     *State
	New     *State
}

// Listener consumes membership events. Events for the same address are
// delivered in causal order, but there is no ordering across addresses.
type Listener interface {
	HandleEvent(Event) error
}

// ListenerFunc is an adapter to allow the use of ordinary functions as listeners.
type ListenerFunc func(Event) error

// HandleEvent calls f(e).
func (f ListenerFunc) HandleEvent(e Event) error {
	return f(e)
}

var _ Listener = ListenerFunc(nil)
