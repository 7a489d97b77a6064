package vm

import "sync"

// ---------------------------------------------------------------------------
// Field: declared field metadata
// ---------------------------------------------------------------------------

// Field describes one declared field of a class. Instance fields occupy a
// slot in the instance slot table; static fields occupy a slot in the
// class's static store vector.
type Field struct {
	Name   string
	Kind   Kind
	Static bool

	// Slot is the resolved slot index: for instance fields, an index into
	// the instance slot table (inherited fields first); for static fields,
	// an index into the declaring class's static vector. Assigned when the
	// field is added to its class.
	Slot int

	// Class is the declaring class. Assigned when the field is added.
	Class *Class
}

// ---------------------------------------------------------------------------
// Class initialization states
// ---------------------------------------------------------------------------

// InitState is the per-class initialization state. The class's static
// side effects run at most once per process; a throwing static
// initializer moves the class to InitFailed permanently.
type InitState uint8

const (
	InitNone InitState = iota
	InitRunning
	InitDone
	InitFailed
)

// ---------------------------------------------------------------------------
// Class: runtime class representation
// ---------------------------------------------------------------------------

// Class represents a loaded class. The superclass chain is single
// inheritance and acyclic; the loader guarantees both, and the core does
// no structural validation.
type Class struct {
	Name       string
	Superclass *Class // nil for the root class

	// Fields declared by this class itself (not inherited).
	Fields  []*Field // instance fields, declaration order
	Statics []*Field // static fields, declaration order

	// Methods declared by this class itself, by name. Lookup walks the
	// superclass chain.
	Methods map[string]*Method

	// StaticInit runs once, before any static field of the class is read
	// or any instance constructed. Optional.
	StaticInit *Method

	// InstanceInit holds this class's instance field initializer
	// expressions. During construction these run top-down from the root
	// ancestor, after all slots are at defaults and before the
	// constructor body. Optional.
	InstanceInit *Method

	// NumSlots is the total instance slot count including inherited fields.
	NumSlots int

	// Initialization state cell. Guarded by initMu so the side-effecting
	// branch of EnsureInitialized runs at most once process-wide even
	// under concurrent first use from multiple execution contexts.
	initMu    sync.Mutex
	initCond  *sync.Cond
	initState InitState
	initOwner *Interp    // context currently running the static initializer
	initErr   *Throwable // original throwable for InitFailed

	allFields []*Field // cached full chain slot table, root-first
}

// NewClass creates a new class with the given name and superclass.
// Instance slot numbering continues from the superclass.
func NewClass(name string, superclass *Class) *Class {
	c := &Class{
		Name:       name,
		Superclass: superclass,
		Methods:    make(map[string]*Method),
	}
	if superclass != nil {
		c.NumSlots = superclass.NumSlots
	}
	c.initCond = sync.NewCond(&c.initMu)
	return c
}

// AddField declares an instance field and assigns its slot.
func (c *Class) AddField(name string, kind Kind) *Field {
	f := &Field{Name: name, Kind: kind, Slot: c.NumSlots, Class: c}
	c.Fields = append(c.Fields, f)
	c.NumSlots++
	c.allFields = nil
	return f
}

// AddStaticField declares a static field and assigns its slot in the
// class's static vector.
func (c *Class) AddStaticField(name string, kind Kind) *Field {
	f := &Field{Name: name, Kind: kind, Static: true, Slot: len(c.Statics), Class: c}
	c.Statics = append(c.Statics, f)
	return f
}

// AddMethod registers a method on this class and binds its declaring class.
func (c *Class) AddMethod(m *Method) *Method {
	m.Class = c
	c.Methods[m.Name] = m
	return m
}

// LookupMethod finds a method by name, walking the superclass chain.
// Returns nil if not found.
func (c *Class) LookupMethod(name string) *Method {
	for current := c; current != nil; current = current.Superclass {
		if m, ok := current.Methods[name]; ok {
			return m
		}
	}
	return nil
}

// SlotIndex returns the instance slot index for a field by name, searching
// this class first and then the superclass chain. Returns -1 if not found.
func (c *Class) SlotIndex(name string) int {
	for current := c; current != nil; current = current.Superclass {
		for _, f := range current.Fields {
			if f.Name == name {
				return f.Slot
			}
		}
	}
	return -1
}

// StaticField returns the declared static field by name, searching the
// superclass chain. Returns nil if not found.
func (c *Class) StaticField(name string) *Field {
	for current := c; current != nil; current = current.Superclass {
		for _, f := range current.Statics {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// AllFields returns the full instance slot table, built by walking the
// ancestor chain once, root-first. The result is cached; index i of the
// returned slice declares slot i.
func (c *Class) AllFields() []*Field {
	if c.allFields != nil {
		return c.allFields
	}
	var chain []*Class
	for current := c; current != nil; current = current.Superclass {
		chain = append(chain, current)
	}
	fields := make([]*Field, 0, c.NumSlots)
	for i := len(chain) - 1; i >= 0; i-- {
		fields = append(fields, chain[i].Fields...)
	}
	c.allFields = fields
	return fields
}

// IsSubclassOf returns true if c is other or a subclass of other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Superclass {
		if current == other {
			return true
		}
	}
	return false
}

// Chain returns the inheritance chain from the root ancestor down to c.
func (c *Class) Chain() []*Class {
	var reversed []*Class
	for current := c; current != nil; current = current.Superclass {
		reversed = append(reversed, current)
	}
	chain := make([]*Class, len(reversed))
	for i, cl := range reversed {
		chain[len(reversed)-1-i] = cl
	}
	return chain
}

// String implements the Stringer interface.
func (c *Class) String() string {
	return c.Name
}

// ---------------------------------------------------------------------------
// ClassTable: Global class registry
// ---------------------------------------------------------------------------

// ClassTable manages registered classes by name.
// It's thread-safe for concurrent access.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates a new empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make(map[string]*Class),
	}
}

// Register adds a class to the table.
// Returns the previous class with this name, or nil.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	old := ct.classes[c.Name]
	ct.classes[c.Name] = c
	return old
}

// Lookup finds a class by name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}

// Has returns true if a class with this name is registered.
func (ct *ClassTable) Has(name string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	_, ok := ct.classes[name]
	return ok
}

// All returns all registered classes.
func (ct *ClassTable) All() []*Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	result := make([]*Class, 0, len(ct.classes))
	for _, c := range ct.classes {
		result = append(result, c)
	}
	return result
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}
