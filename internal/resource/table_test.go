package resource

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/gputest"
)

const (
	colorUsage  = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding
	shadowUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
)

func newTestTable(t *testing.T) (*Table, *Allocation) {
	t.Helper()
	device, _, cleanup := gputest.NoopDevice(t)
	t.Cleanup(cleanup)
	table := NewTable(device)
	t.Cleanup(table.Close)
	alloc, err := table.Allocate(Batch{
		Images: []ImageDesc{
			{Label: "shadow_map", Width: 2048, Height: 2048, Format: gputypes.TextureFormatDepth16Unorm, Usage: shadowUsage},
			{Label: "variance", Width: 2048, Height: 2048, Format: gputypes.TextureFormatRG32Float, Usage: colorUsage},
		},
		Buffers: []BufferDesc{
			{Label: "constants", Size: 256, Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		},
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	return table, alloc
}

func TestTransitionUpdatesStateImmediately(t *testing.T) {
	table, alloc := newTestTable(t)
	img := alloc.Image("variance")

	if got := table.State(img).Layout; got != LayoutUndefined {
		t.Fatalf("initial layout = %v, want Undefined", got)
	}
	err := table.Transition(img, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment, AspectColor)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	want := State{StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment, AspectColor}
	if got := table.State(img); got != want {
		t.Errorf("State = %v, want %v", got, want)
	}
	if !table.Pending(img) {
		t.Error("transition should be pending until flushed")
	}
}

func TestTransitionIdempotent(t *testing.T) {
	table, alloc := newTestTable(t)
	img := alloc.Image("shadow_map")
	enc := gputest.NewEncoder()

	target := State{StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly, AspectDepth}
	for range 2 {
		if err := table.Transition(img, target.Stage, target.Access, target.Layout, target.Aspect); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if got := table.State(img); got != target {
			t.Fatalf("State = %v, want %v", got, target)
		}
	}
	if n := table.Flush(enc); n != 1 {
		t.Fatalf("first Flush emitted %d barriers, want 1", n)
	}

	before := table.State(img)
	if err := table.Transition(img, target.Stage, target.Access, target.Layout, target.Aspect); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if table.Pending(img) {
		t.Error("repeating the current state must not schedule a barrier")
	}
	if got := table.State(img); got != before {
		t.Errorf("State changed from %v to %v", before, got)
	}
	if n := table.Flush(enc); n != 0 {
		t.Errorf("second Flush emitted %d barriers, want 0", n)
	}
}

func TestFlushCollapsesToFinalState(t *testing.T) {
	table, alloc := newTestTable(t)
	img := alloc.Image("variance")
	enc := gputest.NewEncoder()

	steps := []State{
		{StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment, AspectColor},
		{StageComputeShader, AccessShaderWrite, LayoutGeneral, AspectColor},
		{StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly, AspectColor},
	}
	for _, s := range steps {
		if err := table.Transition(img, s.Stage, s.Access, s.Layout, s.Aspect); err != nil {
			t.Fatalf("Transition(%v): %v", s, err)
		}
	}
	if n := table.Flush(enc); n != 1 {
		t.Fatalf("Flush emitted %d barriers, want 1", n)
	}
	events := enc.Filter(gputest.OpBarriers)
	if len(events) != 1 || len(events[0].Barriers) != 1 {
		t.Fatalf("barrier events = %+v, want one call with one barrier", events)
	}
	b := events[0].Barriers[0]
	if b.Usage.OldUsage != gputypes.TextureUsageNone {
		t.Errorf("OldUsage = %v, want None", b.Usage.OldUsage)
	}
	if b.Usage.NewUsage != gputypes.TextureUsageTextureBinding {
		t.Errorf("NewUsage = %v, want TextureBinding", b.Usage.NewUsage)
	}
	if got := table.History(img); len(got) != 3 || got[2] != steps[2] {
		t.Errorf("History = %v, want %v", got, steps)
	}
}

func TestFlushOrderAndOldUsage(t *testing.T) {
	table, alloc := newTestTable(t)
	shadow := alloc.Image("shadow_map")
	variance := alloc.Image("variance")
	enc := gputest.NewEncoder()

	mustTransition(t, table, variance, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	mustTransition(t, table, shadow, StageDepthTests, AccessDepthStencilWrite, LayoutDepthStencilAttachment)
	table.Flush(enc)

	mustTransition(t, table, shadow, StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly)
	table.Flush(enc)

	events := enc.Filter(gputest.OpBarriers)
	if len(events) != 2 {
		t.Fatalf("got %d barrier calls, want 2", len(events))
	}
	first := events[0].Barriers
	if len(first) != 2 {
		t.Fatalf("first flush has %d barriers, want 2", len(first))
	}
	if first[0].Range.Aspect != gputypes.TextureAspectAll || first[1].Range.Aspect != gputypes.TextureAspectDepthOnly {
		t.Errorf("barriers out of program order: %+v", first)
	}
	second := events[1].Barriers[0]
	if second.Usage.OldUsage != gputypes.TextureUsageRenderAttachment ||
		second.Usage.NewUsage != gputypes.TextureUsageTextureBinding {
		t.Errorf("second barrier usage = %+v, want RenderAttachment -> TextureBinding", second.Usage)
	}
}

func TestTransitionRejectsIncompatibleLayout(t *testing.T) {
	table, alloc := newTestTable(t)
	shadow := alloc.Image("shadow_map")
	variance := alloc.Image("variance")

	tests := []struct {
		name   string
		img    *Image
		access Access
		layout Layout
		aspect Aspect
	}{
		{"depth as color", shadow, AccessColorAttachmentWrite, LayoutColorAttachment, AspectDepth},
		{"color as depth", variance, AccessDepthStencilWrite, LayoutDepthStencilAttachment, AspectColor},
		{"no storage usage", shadow, AccessShaderWrite, LayoutGeneral, AspectDepth},
		{"no copy usage", variance, AccessTransferRead, LayoutTransferSrc, AspectColor},
		{"write in read-only", variance, AccessShaderWrite, LayoutShaderReadOnly, AspectColor},
		{"wrong aspect", shadow, AccessShaderRead, LayoutShaderReadOnly, AspectColor},
		{"present owned image", variance, AccessNone, LayoutPresent, AspectColor},
		{"undefined", variance, AccessNone, LayoutUndefined, AspectColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := table.State(tt.img)
			err := table.Transition(tt.img, StageFragmentShader, tt.access, tt.layout, tt.aspect)
			if !errors.Is(err, ErrLayoutUsage) || !errors.Is(err, gpuerr.ErrConfiguration) {
				t.Fatalf("err = %v, want ErrLayoutUsage", err)
			}
			if got := table.State(tt.img); got != before {
				t.Errorf("rejected transition changed state to %v", got)
			}
		})
	}
}

func TestTransitionForeignImage(t *testing.T) {
	table, _ := newTestTable(t)
	_, otherAlloc := newTestTable(t)
	err := table.Transition(otherAlloc.Image("variance"), StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly, AspectColor)
	if !errors.Is(err, ErrForeignImage) {
		t.Errorf("err = %v, want ErrForeignImage", err)
	}
}

func TestPresentEmitsNoBarrier(t *testing.T) {
	table, _ := newTestTable(t)
	target := importTarget(t, table)
	enc := gputest.NewEncoder()
	mustTransition(t, table, target, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	table.Flush(enc)
	mustTransition(t, table, target, StageBottomOfPipe, AccessNone, LayoutPresent)
	if n := table.Flush(enc); n != 0 {
		t.Errorf("present flush emitted %d barriers, want 0", n)
	}
	want := State{StageBottomOfPipe, AccessNone, LayoutPresent, AspectColor}
	if got := table.State(target); got != want {
		t.Errorf("State = %v, want %v", got, want)
	}

	// The next frame starts from the hal usage that was actually emitted.
	mustTransition(t, table, target, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	table.Flush(enc)
	events := enc.Filter(gputest.OpBarriers)
	last := events[len(events)-1].Barriers[0]
	if last.Usage.OldUsage != gputypes.TextureUsageRenderAttachment {
		t.Errorf("OldUsage after present = %v, want RenderAttachment", last.Usage.OldUsage)
	}
}

func TestReleaseImported(t *testing.T) {
	table, _ := newTestTable(t)
	target := importTarget(t, table)
	mustTransition(t, table, target, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	table.Release(target)
	if table.PendingCount() != 0 {
		t.Errorf("released image left %d pending barriers", table.PendingCount())
	}
	err := table.Transition(target, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment, AspectColor)
	if !errors.Is(err, ErrForeignImage) {
		t.Errorf("err = %v, want ErrForeignImage", err)
	}
}

func TestBufferWrite(t *testing.T) {
	table, alloc := newTestTable(t)
	_, queue, cleanup := gputest.NoopDevice(t)
	defer cleanup()

	buf := alloc.Buffer("constants")
	if err := buf.Write(queue, 0, make([]byte, 128)); err != nil {
		t.Errorf("Write: %v", err)
	}
	err := buf.Write(queue, 200, make([]byte, 128))
	if !errors.Is(err, gpuerr.ErrConfiguration) {
		t.Errorf("overflowing Write err = %v, want ErrConfiguration", err)
	}
	_ = table
}

func TestClosedTable(t *testing.T) {
	table, alloc := newTestTable(t)
	img := alloc.Image("variance")
	table.Close()
	if err := table.Transition(img, StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly, AspectColor); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Transition after Close err = %v, want ErrTableClosed", err)
	}
	if _, err := table.Allocate(Batch{}); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Allocate after Close err = %v, want ErrTableClosed", err)
	}
}

func TestRollbackRestoresCheckpoint(t *testing.T) {
	table, alloc := newTestTable(t)
	shadow := alloc.Image("shadow_map")
	variance := alloc.Image("variance")
	enc := gputest.NewEncoder()

	mustTransition(t, table, shadow, StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly)
	table.Flush(enc)
	want := table.State(shadow)
	cp := table.Checkpoint()

	// Work recorded into an encoder that is later discarded.
	mustTransition(t, table, shadow, StageDepthTests, AccessDepthStencilWrite, LayoutDepthStencilAttachment)
	table.Flush(enc)
	mustTransition(t, table, variance, StageComputeShader, AccessShaderWrite, LayoutGeneral)
	table.Rollback(cp)

	if got := table.State(shadow); got != want {
		t.Errorf("shadow state = %v, want %v", got, want)
	}
	if got := table.State(variance).Layout; got != LayoutUndefined {
		t.Errorf("variance layout = %v, want Undefined", got)
	}
	if table.PendingCount() != 0 {
		t.Errorf("%d barriers pending after rollback", table.PendingCount())
	}
	if n := len(table.History(shadow)); n != 1 {
		t.Errorf("shadow history has %d entries, want 1", n)
	}

	// The shadow map must be moved back to an attachment from TextureBinding.
	next := gputest.NewEncoder()
	mustTransition(t, table, shadow, StageDepthTests, AccessDepthStencilWrite, LayoutDepthStencilAttachment)
	if n := table.Flush(next); n != 1 {
		t.Fatalf("Flush emitted %d barriers, want 1", n)
	}
	b := next.Filter(gputest.OpBarriers)[0].Barriers[0]
	if b.Usage.OldUsage != gputypes.TextureUsageTextureBinding ||
		b.Usage.NewUsage != gputypes.TextureUsageRenderAttachment {
		t.Errorf("barrier usage = %+v, want TextureBinding -> RenderAttachment", b.Usage)
	}
}

func mustTransition(t *testing.T, table *Table, img *Image, stage Stage, access Access, layout Layout) {
	t.Helper()
	if err := table.Transition(img, stage, access, layout, img.Aspect()); err != nil {
		t.Fatalf("Transition(%s, %v): %v", img.Label(), layout, err)
	}
}

func importTarget(t *testing.T, table *Table) *Image {
	t.Helper()
	alloc, err := table.Allocate(Batch{Images: []ImageDesc{{
		Label: "backing", Width: 64, Height: 64,
		Format: gputypes.TextureFormatBGRA8Unorm, Usage: gputypes.TextureUsageRenderAttachment,
	}}})
	if err != nil {
		t.Fatalf("Allocate backing: %v", err)
	}
	backing := alloc.Images[0]
	target, err := table.Import(ImportDesc{
		Label:   "target",
		Texture: backing.Texture(),
		View:    backing.View(),
		Format:  gputypes.TextureFormatBGRA8Unorm,
		Usage:   gputypes.TextureUsageRenderAttachment,
		Width:   64,
		Height:  64,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	return target
}
