package vm

import "sync"

// ---------------------------------------------------------------------------
// StaticStore: process-wide static field storage
// ---------------------------------------------------------------------------

// StaticStore holds one slot vector per loaded class. A class's vector is
// created at type defaults when the class is first initialized, populated
// by its static initializer exactly once, and persists for the lifetime
// of the class registry.
type StaticStore struct {
	mu    sync.RWMutex
	slots map[*Class][]Value
}

// NewStaticStore creates an empty static store.
func NewStaticStore() *StaticStore {
	return &StaticStore{slots: make(map[*Class][]Value)}
}

// install creates the class's vector with every slot at its field kind's
// default. Called once per class by the initialization sequencer, before
// the static initializer body runs, so initializer reads never see an
// undefined value.
func (s *StaticStore) install(c *Class) {
	vec := make([]Value, len(c.Statics))
	for i, f := range c.Statics {
		vec[i] = DefaultValue(f.Kind)
	}
	s.mu.Lock()
	s.slots[c] = vec
	s.mu.Unlock()
}

// Get returns the static slot value. Panics if the class's vector does
// not exist; the sequencer installs it before any access.
func (s *StaticStore) Get(c *Class, slot int) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.slots[c]
	if !ok {
		panic("StaticStore.Get: class not initialized: " + c.Name)
	}
	return vec[slot]
}

// Set stores into the static slot.
func (s *StaticStore) Set(c *Class, slot int, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.slots[c]
	if !ok {
		panic("StaticStore.Set: class not initialized: " + c.Name)
	}
	vec[slot] = v
}

// Installed returns true if the class's vector exists.
func (s *StaticStore) Installed(c *Class) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[c]
	return ok
}

// ---------------------------------------------------------------------------
// Initialization sequencer: static path
// ---------------------------------------------------------------------------

// EnsureInitialized makes the class ready for static access or instance
// construction. It is idempotent: the side-effecting branch runs at most
// once per class process-wide. Sequencing per class:
//
//  1. superclass initialized first, transitively
//  2. static slots installed at type defaults
//  3. static initializer body, which may read and write static fields
//  4. state set to InitDone
//
// A reentrant call from the class's own static initializer returns
// immediately (slots are already at defaults). Concurrent first use from
// another context blocks until the winner finishes. If the initializer
// throws, the class is marked InitFailed permanently and this call, and
// every later one, returns a fresh InitializerError wrapping the original
// throwable.
func (vm *VM) EnsureInitialized(in *Interp, c *Class) *Throwable {
	c.initMu.Lock()
	for {
		switch c.initState {
		case InitDone:
			c.initMu.Unlock()
			return nil
		case InitFailed:
			cause := c.initErr
			c.initMu.Unlock()
			return vm.initializerError(in, c, cause)
		case InitRunning:
			if c.initOwner == in {
				// First use from the class's own initializer: statics
				// are at defaults, reads are defined.
				c.initMu.Unlock()
				return nil
			}
			c.initCond.Wait()
		case InitNone:
			c.initState = InitRunning
			c.initOwner = in
			c.initMu.Unlock()

			cause := vm.runStaticInit(in, c)

			c.initMu.Lock()
			c.initOwner = nil
			if cause != nil {
				c.initState = InitFailed
				c.initErr = cause
			} else {
				c.initState = InitDone
			}
			c.initCond.Broadcast()
			// Loop re-reads the final state.
		}
	}
}

// runStaticInit performs the side-effecting branch. Returns the original
// throwable on failure.
func (vm *VM) runStaticInit(in *Interp, c *Class) *Throwable {
	if c.Superclass != nil {
		if t := vm.EnsureInitialized(in, c.Superclass); t != nil {
			return t
		}
	}

	vm.Statics.install(c)

	if c.StaticInit == nil {
		return nil
	}
	vm.log.Debugf("running static initializer for %s", c.Name)
	out := in.invoke(c.StaticInit, Nil, nil)
	if out.kind == outcomeThrow {
		vm.log.Errorf("static initializer of %s threw %s", c.Name, out.thrown)
		return out.thrown
	}
	return nil
}

// initializerError wraps the original static-initializer throwable in a
// fresh InitializerError. Every first-use after the failure gets its own
// wrapper with its own trace; the cause is shared and unchanged.
func (vm *VM) initializerError(in *Interp, c *Class, cause *Throwable) *Throwable {
	return newCausedThrowable(in, vm.InitializerErrorClass,
		"initialization of class "+c.Name+" failed: "+cause.String(), cause)
}

// ---------------------------------------------------------------------------
// Initialization sequencer: instance path
// ---------------------------------------------------------------------------

// ConstructInstance builds a fully initialized instance of the class.
// Sequencing:
//
//  1. the class and, transitively, every ancestor is initialized
//  2. one slot per field in the full inheritance chain, at type defaults
//  3. instance initializers run top-down, root ancestor first; each sees
//     its own and inherited fields, while more-derived fields are still
//     at their defaults
//  4. the requested constructor body runs
//
// Any throw during an initializer or the constructor propagates as a
// construction failure; the partial instance is discarded and never
// published. An empty ctorName skips step 4.
func (vm *VM) ConstructInstance(in *Interp, c *Class, ctorName string, args []Value) (Value, *Throwable) {
	if t := vm.EnsureInitialized(in, c); t != nil {
		return Nil, t
	}

	inst := NewInstance(c)
	recv := vm.Retain(inst)

	for _, ancestor := range c.Chain() {
		if ancestor.InstanceInit == nil {
			continue
		}
		out := in.invoke(ancestor.InstanceInit, recv, nil)
		if out.kind == outcomeThrow {
			vm.release(inst)
			return Nil, out.thrown
		}
	}

	if ctorName != "" {
		ctor := c.LookupMethod(ctorName)
		if ctor == nil {
			panic("ConstructInstance: no constructor " + ctorName + " on " + c.Name)
		}
		out := in.invoke(ctor, recv, args)
		if out.kind == outcomeThrow {
			vm.release(inst)
			return Nil, out.thrown
		}
	}
	return recv, nil
}
