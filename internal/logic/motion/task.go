package motion

import "github.com/cjeanneret/PiStep/internal/logic/profile"

// Task is the handle of one rotation pass.
type Task struct {
	plan *profile.Plan
	done chan struct{}
	err  error
}

func newTask(plan *profile.Plan) *Task {
	return &Task{plan: plan, done: make(chan struct{})}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Wait blocks until the pass completes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done is closed when the pass completes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Running reports whether the pass is still in progress.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Plan returns the compiled schedule the task executes.
func (t *Task) Plan() *profile.Plan {
	return t.plan
}
