package kernel

// Trigger is the capability every external invalidation source must expose.
// Arm is called each time the owning cell computes a value after being
// empty (its first read, and the first read after every invalidation);
// callback must be invoked (from any goroutine) whenever the trigger wants
// its cell invalidated. Disarm releases whatever resources Arm acquired and
// is called at most once per successful Arm.
//
// Implementations must treat callback as idempotent and cheap: per the
// concurrency model, it should do nothing but enqueue an invalidation.
type Trigger interface {
	Arm(callback func()) error
	Disarm()
}

// NoopTrigger is a constant trigger for cells with no external invalidation
// source. Arming and disarming it are no-ops.
type NoopTrigger struct{}

// Arm implements Trigger.
func (NoopTrigger) Arm(func()) error { return nil }

// Disarm implements Trigger.
func (NoopTrigger) Disarm() {}
