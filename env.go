package calc

// Env is one frame of the immutable binding chain used by LET and LAMBDA.
// binding never mutates a frame, so a lambda can hold its frame handle and
// later callers still see the environment it closed over.
type Env struct {
	parent  *Env
	key     string // folded name
	name    string
	value   Value
	omitted bool
}

// Bind returns a new frame binding name on top of e
func (e *Env) Bind(name string, v Value) *Env {
	return &Env{parent: e, key: foldKey(name), name: name, value: v}
}

// bindOmitted binds a lambda parameter the caller did not supply
func (e *Env) bindOmitted(name string) *Env {
	return &Env{parent: e, key: foldKey(name), name: name, omitted: true}
}

// Lookup finds the innermost binding for name
func (e *Env) Lookup(name string) (Value, bool) {
	f := e.find(name)
	if f == nil {
		return nil, false
	}
	return f.value, true
}

// IsOmitted reports whether name is a lambda parameter that was left out of
// the call. ok is false when name is not bound.
func (e *Env) IsOmitted(name string) (omitted bool, ok bool) {
	f := e.find(name)
	if f == nil {
		return false, false
	}
	return f.omitted, true
}

func (e *Env) find(name string) *Env {
	if e == nil {
		return nil
	}
	key := foldKey(name)
	for f := e; f != nil; f = f.parent {
		if f.key == key {
			return f
		}
	}
	return nil
}

// Depth returns the number of frames in the chain
func (e *Env) Depth() int {
	n := 0
	for f := e; f != nil; f = f.parent {
		n++
	}
	return n
}
