package image

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/litevm/litevm/vm"
)

// ---------------------------------------------------------------------------
// Linker: materialize an image into a live VM
// ---------------------------------------------------------------------------

// Linker loads image classes into a VM's class table. Linking is
// all-or-nothing: problems across the whole image are collected and
// reported together, and a failed link registers nothing.
type Linker struct {
	machine *vm.VM
	log     commonlog.Logger
}

// NewLinker creates a linker targeting the given VM.
func NewLinker(machine *vm.VM) *Linker {
	return &Linker{
		machine: machine,
		log:     commonlog.GetLogger("litevm.image"),
	}
}

// Link materializes every class in the image and registers them. The
// image's classes may reference each other and the VM's built-ins in
// any order.
func (l *Linker) Link(img *Image) error {
	records := make(map[string]*ClassRecord, len(img.Classes))
	var errs *multierror.Error
	for i := range img.Classes {
		rec := &img.Classes[i]
		if rec.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("class %d: empty name", i))
			continue
		}
		if _, dup := records[rec.Name]; dup {
			errs = multierror.Append(errs, fmt.Errorf("class %s: declared twice", rec.Name))
			continue
		}
		if l.machine.Classes.Has(rec.Name) {
			errs = multierror.Append(errs, fmt.Errorf("class %s: already registered", rec.Name))
			continue
		}
		records[rec.Name] = rec
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	staged := make(map[string]*vm.Class, len(records))
	lookup := func(name string) *vm.Class {
		if c, ok := staged[name]; ok {
			return c
		}
		return l.machine.Classes.Lookup(name)
	}

	// Create classes superclass-first. Each round materializes every
	// record whose superclass is already available; a record whose
	// superclass is elsewhere in the image waits for a later round. No
	// progress in a round means a superclass cycle.
	pending := make(map[string]*ClassRecord, len(records))
	for name, rec := range records {
		if rec.Super != "" && lookup(rec.Super) == nil {
			if _, inImage := records[rec.Super]; !inImage {
				errs = multierror.Append(errs, fmt.Errorf("class %s: unknown superclass %q", name, rec.Super))
				continue
			}
		}
		pending[name] = rec
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	for len(pending) > 0 {
		progressed := false
		for name, rec := range pending {
			super := l.machine.ObjectClass
			if rec.Super != "" {
				if super = lookup(rec.Super); super == nil {
					continue // superclass not staged yet
				}
			}
			staged[name] = l.createClass(rec, super)
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			for name := range pending {
				errs = multierror.Append(errs, fmt.Errorf("class %s: superclass cycle", name))
			}
			return errs.ErrorOrNil()
		}
	}

	// All classes exist; now build methods, whose handler tables may
	// name any class from the image or the built-ins.
	for name, rec := range records {
		if err := l.populateMethods(staged[name], rec, lookup); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("class %s: %w", name, err))
		}
	}
	if err := l.checkEntry(img, lookup); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	for _, c := range staged {
		l.machine.RegisterClass(c)
	}
	l.log.Infof("linked image %s: %d classes", img.Name, len(staged))
	return nil
}

func (l *Linker) createClass(rec *ClassRecord, super *vm.Class) *vm.Class {
	c := vm.NewClass(rec.Name, super)
	for _, f := range rec.Fields {
		c.AddField(f.Name, vm.Kind(f.Kind))
	}
	for _, f := range rec.Statics {
		c.AddStaticField(f.Name, vm.Kind(f.Kind))
	}
	return c
}

func (l *Linker) populateMethods(c *vm.Class, rec *ClassRecord, lookup func(string) *vm.Class) error {
	var errs *multierror.Error
	for i := range rec.Methods {
		m, err := l.buildMethod(&rec.Methods[i], lookup)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("method %s: %w", rec.Methods[i].Name, err))
			continue
		}
		c.AddMethod(m)
	}
	if rec.StaticInit != nil {
		m, err := l.buildMethod(rec.StaticInit, lookup)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("static initializer: %w", err))
		} else {
			m.Class = c
			m.Static = true
			c.StaticInit = m
		}
	}
	if rec.InstanceInit != nil {
		m, err := l.buildMethod(rec.InstanceInit, lookup)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("instance initializer: %w", err))
		} else {
			m.Class = c
			c.InstanceInit = m
		}
	}
	return errs.ErrorOrNil()
}

func (l *Linker) buildMethod(rec *MethodRecord, lookup func(string) *vm.Class) (*vm.Method, error) {
	if len(rec.Code) == 0 {
		return nil, fmt.Errorf("empty code")
	}
	m := &vm.Method{
		Name:   rec.Name,
		Static: rec.Static,
	}
	var err error
	if m.Params, err = decodeKinds(rec.Params); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if m.Locals, err = decodeKinds(rec.Locals); err != nil {
		return nil, fmt.Errorf("locals: %w", err)
	}
	m.Code = append([]byte(nil), rec.Code...)

	m.Literals = make([]vm.Value, len(rec.Literals))
	for i := range rec.Literals {
		v, err := decodeLiteral(&rec.Literals[i])
		if err != nil {
			return nil, fmt.Errorf("literal %d: %w", i, err)
		}
		m.Literals[i] = v
	}

	m.Handlers = make([]vm.HandlerEntry, len(rec.Handlers))
	for i, h := range rec.Handlers {
		if h.Start < 0 || h.End <= h.Start || h.Target < 0 || h.Target >= len(rec.Code) {
			return nil, fmt.Errorf("handler %d: malformed range [%d, %d) -> %d", i, h.Start, h.End, h.Target)
		}
		if h.Target >= h.Start && h.Target < h.End {
			return nil, fmt.Errorf("handler %d: target %d inside its own guarded range", i, h.Target)
		}
		entry := vm.HandlerEntry{Start: h.Start, End: h.End, Target: h.Target, Finally: h.Finally}
		if !h.Finally && h.Catch != "" {
			filter := lookup(h.Catch)
			if filter == nil {
				return nil, fmt.Errorf("handler %d: unknown catch class %q", i, h.Catch)
			}
			entry.Catch = filter
		}
		m.Handlers[i] = entry
	}

	m.Lines = make([]vm.LineEntry, len(rec.Lines))
	for i, ln := range rec.Lines {
		m.Lines[i] = vm.LineEntry{Offset: ln.Offset, Line: ln.Line}
	}
	return m, nil
}

func (l *Linker) checkEntry(img *Image, lookup func(string) *vm.Class) error {
	if img.Entry.Class == "" {
		return nil
	}
	c := lookup(img.Entry.Class)
	if c == nil {
		return fmt.Errorf("entry point: unknown class %q", img.Entry.Class)
	}
	m := c.LookupMethod(img.Entry.Method)
	if m == nil {
		return fmt.Errorf("entry point: no method %s.%s", img.Entry.Class, img.Entry.Method)
	}
	if !m.Static {
		return fmt.Errorf("entry point: %s.%s is not static", img.Entry.Class, img.Entry.Method)
	}
	return nil
}

func decodeKinds(raw []uint8) ([]vm.Kind, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	kinds := make([]vm.Kind, len(raw))
	for i, k := range raw {
		if k > uint8(vm.KindDouble) {
			return nil, fmt.Errorf("slot %d: unknown kind %d", i, k)
		}
		kinds[i] = vm.Kind(k)
	}
	return kinds, nil
}

// ---------------------------------------------------------------------------
// Literal codec
// ---------------------------------------------------------------------------

func decodeLiteral(rec *LiteralRecord) (vm.Value, error) {
	switch rec.Kind {
	case LitNil:
		return vm.Nil, nil
	case LitBool:
		return vm.FromBool(rec.Bool), nil
	case LitInt:
		if rec.Int > vm.MaxSmallInt || rec.Int < vm.MinSmallInt {
			return vm.Nil, fmt.Errorf("integer %d out of range", rec.Int)
		}
		return vm.FromSmallInt(rec.Int), nil
	case LitFloat:
		return vm.FromFloat64(rec.Float), nil
	case LitString:
		return vm.Str(rec.Str), nil
	default:
		return vm.Nil, fmt.Errorf("unknown literal kind %d", rec.Kind)
	}
}

func encodeLiteral(v vm.Value) (LiteralRecord, error) {
	switch {
	case v.IsNil():
		return LiteralRecord{Kind: LitNil}, nil
	case v.IsBool():
		return LiteralRecord{Kind: LitBool, Bool: v.Bool()}, nil
	case v.IsSmallInt():
		return LiteralRecord{Kind: LitInt, Int: v.SmallInt()}, nil
	case v.IsFloat():
		return LiteralRecord{Kind: LitFloat, Float: v.Float64()}, nil
	case v.IsString():
		return LiteralRecord{Kind: LitString, Str: v.StringOf()}, nil
	default:
		return LiteralRecord{}, fmt.Errorf("literal %v is not serializable", v)
	}
}

// ---------------------------------------------------------------------------
// Export: snapshot assembled classes back into image records
// ---------------------------------------------------------------------------

// Export builds an image from classes already present in a VM. Methods
// and classes are emitted in sorted order so the canonical encoding is
// reproducible.
func Export(machine *vm.VM, name string, entry EntryPoint, classNames []string) (*Image, error) {
	img := &Image{
		Version: FormatVersion,
		Name:    name,
		Entry:   entry,
	}
	sorted := append([]string(nil), classNames...)
	sort.Strings(sorted)

	var errs *multierror.Error
	for _, className := range sorted {
		c := machine.Classes.Lookup(className)
		if c == nil {
			errs = multierror.Append(errs, fmt.Errorf("class %s: not registered", className))
			continue
		}
		rec, err := exportClass(c)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("class %s: %w", className, err))
			continue
		}
		img.Classes = append(img.Classes, *rec)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return img, nil
}

func exportClass(c *vm.Class) (*ClassRecord, error) {
	rec := &ClassRecord{Name: c.Name}
	if c.Superclass != nil {
		rec.Super = c.Superclass.Name
	}
	for _, f := range c.Fields {
		rec.Fields = append(rec.Fields, FieldRecord{Name: f.Name, Kind: uint8(f.Kind)})
	}
	for _, f := range c.Statics {
		rec.Statics = append(rec.Statics, FieldRecord{Name: f.Name, Kind: uint8(f.Kind)})
	}

	names := make([]string, 0, len(c.Methods))
	for name := range c.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := c.Methods[name]
		if m.IsNative() {
			continue
		}
		mr, err := exportMethod(m)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", name, err)
		}
		rec.Methods = append(rec.Methods, *mr)
	}

	if c.StaticInit != nil && !c.StaticInit.IsNative() {
		mr, err := exportMethod(c.StaticInit)
		if err != nil {
			return nil, fmt.Errorf("static initializer: %w", err)
		}
		rec.StaticInit = mr
	}
	if c.InstanceInit != nil && !c.InstanceInit.IsNative() {
		mr, err := exportMethod(c.InstanceInit)
		if err != nil {
			return nil, fmt.Errorf("instance initializer: %w", err)
		}
		rec.InstanceInit = mr
	}
	return rec, nil
}

func exportMethod(m *vm.Method) (*MethodRecord, error) {
	rec := &MethodRecord{
		Name:   m.Name,
		Static: m.Static,
		Code:   append([]byte(nil), m.Code...),
	}
	for _, k := range m.Params {
		rec.Params = append(rec.Params, uint8(k))
	}
	for _, k := range m.Locals {
		rec.Locals = append(rec.Locals, uint8(k))
	}
	for _, v := range m.Literals {
		lr, err := encodeLiteral(v)
		if err != nil {
			return nil, err
		}
		rec.Literals = append(rec.Literals, lr)
	}
	for _, h := range m.Handlers {
		hr := HandlerRecord{Start: h.Start, End: h.End, Target: h.Target, Finally: h.Finally}
		if h.Catch != nil {
			hr.Catch = h.Catch.Name
		}
		rec.Handlers = append(rec.Handlers, hr)
	}
	for _, ln := range m.Lines {
		rec.Lines = append(rec.Lines, LineRecord{Offset: ln.Offset, Line: ln.Line})
	}
	return rec, nil
}
