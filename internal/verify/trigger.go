package verify

// Trigger coalesces verification nudges. Any number of Nudge calls while a
// cycle is pending collapse into a single queued cycle; Nudge never blocks.
// The discord events listener and admin tooling hold a Trigger through the
// "verifier.trigger" service.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger creates an armed trigger.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Nudge requests a verification cycle. Non-blocking.
func (t *Trigger) Nudge() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the trigger loop consumes.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}
