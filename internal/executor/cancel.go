package executor

import "context"

// Cancel signals the cancellation context for a running job run, if one is
// still registered. Returns false if the run isn't currently executing
// (already finished, or the id was never submitted). This is the
// structural fix the teacher's scheduler never had: it can fire-and-forget
// a job but never stop one already in flight.
func (e *Executor) Cancel(runID int64) bool {
	v, ok := e.cancels.Load(runID)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// IsRunning reports whether runID currently holds a cancellation entry,
// i.e. is mid-dispatch right now.
func (e *Executor) IsRunning(runID int64) bool {
	_, ok := e.cancels.Load(runID)
	return ok
}
