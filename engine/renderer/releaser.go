package renderer

// releaser collects destroy calls and runs them in reverse order. A
// constructor defers release so that an error on any path tears down what
// was created so far; on success the owner takes the stack over.
type releaser struct {
	fns []func()
}

func (r *releaser) push(fn func()) {
	r.fns = append(r.fns, fn)
}

// release runs the stack, last pushed first. Calling it twice is a no-op.
func (r *releaser) release() {
	for i := len(r.fns) - 1; i >= 0; i-- {
		r.fns[i]()
	}
	r.fns = nil
}

// take moves the stack into a new releaser, leaving r empty.
func (r *releaser) take() releaser {
	out := releaser{fns: r.fns}
	r.fns = nil
	return out
}
