package sim

// Env bundles the virtual clock and the event bus shared by every component
// of one simulation. The Simulation owns the Env; entities keep a non-owning
// reference so they can read the time and publish lifecycle events.
type Env struct {
	Clock *Clock
	Bus   *EventBus
}

// NewEnv returns a fresh environment with the clock at zero and an empty bus.
func NewEnv() *Env {
	return &Env{
		Clock: NewClock(),
		Bus:   NewEventBus(),
	}
}
