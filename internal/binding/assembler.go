// Package binding assembles the descriptor sets a pass binds for its draws
// or dispatches.
//
// The assembler never transitions anything. With validation enabled it
// checks that every image is already in the layout the binding requires
// and that its barrier has been flushed, and rejects the set otherwise.
package binding

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
)

var (
	// ErrUnknownSet is returned when the program has no layout for the
	// requested binding set.
	ErrUnknownSet = fmt.Errorf("%w: program has no layout for binding set", gpuerr.ErrConfiguration)

	// ErrSchema is returned when bindings do not match the program's slots.
	ErrSchema = fmt.Errorf("%w: bindings do not match program schema", gpuerr.ErrConfiguration)

	// ErrNotTransitioned is returned when an image is bound in a layout other
	// than its recorded one, or before its barrier was flushed.
	ErrNotTransitioned = fmt.Errorf("%w: image bound before its transition", gpuerr.ErrOrdering)
)

// Binding is one slot of a descriptor set.
type Binding struct {
	Slot uint32

	// Exactly one of Image and Buffer is set.
	Image  *resource.Image
	Buffer *resource.Buffer

	// RequiredLayout is the layout Image must be in at build time.
	RequiredLayout resource.Layout

	// Sampler accompanies sampled images.
	Sampler *resource.Sampler
}

// ImageBinding returns a binding of img in the given layout.
func ImageBinding(slot uint32, img *resource.Image, layout resource.Layout, sampler *resource.Sampler) Binding {
	return Binding{Slot: slot, Image: img, RequiredLayout: layout, Sampler: sampler}
}

// BufferBinding returns a binding of the whole buffer.
func BufferBinding(slot uint32, buf *resource.Buffer) Binding {
	return Binding{Slot: slot, Buffer: buf}
}

// DescriptorSet is a bind group built for one program. It is valid until
// the Assembler that built it is reset.
type DescriptorSet struct {
	group    hal.BindGroup
	program  *program.Program
	index    uint32
	bindings []Binding
}

// Group returns the hal bind group.
func (s *DescriptorSet) Group() hal.BindGroup { return s.group }

// Program returns the program the set was built for.
func (s *DescriptorSet) Program() *program.Program { return s.program }

// Index returns the bind group index the set is bound at.
func (s *DescriptorSet) Index() uint32 { return s.index }

// Len returns the number of slots in the set. Companion samplers do not
// count as slots.
func (s *DescriptorSet) Len() int { return len(s.bindings) }

// Slots returns the slot numbers of the set in binding order.
func (s *DescriptorSet) Slots() []uint32 {
	slots := make([]uint32, len(s.bindings))
	for i, b := range s.bindings {
		slots[i] = b.Slot
	}
	return slots
}

// Binding returns the binding of a slot.
func (s *DescriptorSet) Binding(slot uint32) (Binding, bool) {
	for _, b := range s.bindings {
		if b.Slot == slot {
			return b, true
		}
	}
	return Binding{}, false
}

// Assembler builds descriptor sets against the state recorded in a
// resource table. Sets built since the last Reset stay alive until the next
// Reset or Close.
type Assembler struct {
	table    *resource.Table
	validate bool
	live     []*DescriptorSet
}

// NewAssembler returns an assembler checking bindings against table.
// With validate off, layout and ordering checks are skipped; schema checks
// always run.
func NewAssembler(table *resource.Table, validate bool) *Assembler {
	return &Assembler{table: table, validate: validate}
}

// Live returns the number of descriptor sets not yet released.
func (a *Assembler) Live() int { return len(a.live) }

// Build creates the descriptor set of prog at binding set index set.
func (a *Assembler) Build(prog *program.Program, set uint32, bindings []Binding) (*DescriptorSet, error) {
	if prog == nil {
		return nil, fmt.Errorf("build set %d: %w", set, program.ErrUnknownProgram)
	}
	layout := prog.SetLayout(set)
	if layout == nil {
		return nil, fmt.Errorf("%s set %d: %w", prog.Name(), set, ErrUnknownSet)
	}
	if err := a.check(prog, bindings); err != nil {
		return nil, fmt.Errorf("%s: %w", prog.Name(), err)
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(bindings)*2)
	for _, b := range bindings {
		if b.Buffer != nil {
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: b.Slot,
				Resource: gputypes.BufferBinding{
					Buffer: b.Buffer.Raw().NativeHandle(),
					Offset: 0,
					Size:   b.Buffer.Size(),
				},
			})
			continue
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  b.Slot,
			Resource: gputypes.TextureViewBinding{TextureView: b.Image.View().NativeHandle()},
		})
		if b.Sampler != nil {
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  program.SamplerBindingBase + b.Slot,
				Resource: gputypes.SamplerBinding{Sampler: b.Sampler.Raw().NativeHandle()},
			})
		}
	}

	group, err := a.table.Device().CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   prog.Name() + "_set",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, gpuerr.Device("create "+prog.Name()+" bind group", err)
	}
	ds := &DescriptorSet{
		group:    group,
		program:  prog,
		index:    set,
		bindings: append([]Binding(nil), bindings...),
	}
	a.live = append(a.live, ds)
	return ds, nil
}

func (a *Assembler) check(prog *program.Program, bindings []Binding) error {
	schema := prog.Schema()
	if len(bindings) != len(schema) {
		return fmt.Errorf("%d bindings for %d slots: %w", len(bindings), len(schema), ErrSchema)
	}
	seen := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		slot, ok := prog.Slot(b.Slot)
		if !ok {
			return fmt.Errorf("slot %d not declared: %w", b.Slot, ErrSchema)
		}
		if seen[b.Slot] {
			return fmt.Errorf("slot %d bound twice: %w", b.Slot, ErrSchema)
		}
		seen[b.Slot] = true

		if slot.Kind.IsBuffer() {
			if b.Buffer == nil || b.Image != nil {
				return fmt.Errorf("slot %d (%s) wants a %v buffer: %w", b.Slot, slot.Name, slot.Kind, ErrSchema)
			}
			continue
		}
		if b.Image == nil || b.Buffer != nil {
			return fmt.Errorf("slot %d (%s) wants a %v image: %w", b.Slot, slot.Name, slot.Kind, ErrSchema)
		}
		if (slot.Sampler != program.SamplerNone) != (b.Sampler != nil) {
			return fmt.Errorf("slot %d (%s) sampler mismatch: %w", b.Slot, slot.Name, ErrSchema)
		}
		if !a.table.Owns(b.Image) {
			return fmt.Errorf("slot %d: %w", b.Slot, resource.ErrForeignImage)
		}
		if !a.validate {
			continue
		}
		state := a.table.State(b.Image)
		if state.Layout != b.RequiredLayout {
			return fmt.Errorf("slot %d: %v is %v, binding requires %v: %w",
				b.Slot, b.Image, state.Layout, b.RequiredLayout, ErrNotTransitioned)
		}
		if a.table.Pending(b.Image) {
			return fmt.Errorf("slot %d: %v has an unflushed barrier: %w", b.Slot, b.Image, ErrNotTransitioned)
		}
	}
	return nil
}

// Reset destroys every descriptor set built since the previous Reset. It
// must only be called once the GPU work that used them has completed.
func (a *Assembler) Reset() {
	device := a.table.Device()
	for i := len(a.live) - 1; i >= 0; i-- {
		device.DestroyBindGroup(a.live[i].group)
		a.live[i].group = nil
	}
	a.live = a.live[:0]
}
