package frame

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/gputest"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
	"github.com/gogpu/shadowmap/model"
)

const (
	testShadowSize = 256
	testWidth      = 64
	testHeight     = 48
)

var variants = map[string]PlanConfig{
	"forward":         {},
	"forward_vsm":     {Variance: true},
	"deferred":        {Deferred: true},
	"deferred_vsm":    {Variance: true, Deferred: true},
	"forward_overlay": {Overlay: true},
	"deferred_vsm_ov": {Variance: true, Deferred: true, Overlay: true},
}

type rig struct {
	device *gputest.Device
	table  *resource.Table
	orch   *Orchestrator
	target *resource.Image
}

func newRig(t *testing.T, cfg PlanConfig) *rig {
	t.Helper()
	device := gputest.NewDevice()
	table := resource.NewTable(device)
	t.Cleanup(table.Close)

	reg, err := program.NewRegistry(device, program.Options{VertexLayout: model.VertexLayout()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(reg.Close)

	orch, err := NewOrchestrator(device, &noop.Queue{}, table, reg, model.DemoScene(), Config{
		Plan:       cfg,
		ShadowSize: testShadowSize,
		Width:      testWidth,
		Height:     testHeight,
		Validate:   true,
		ClearColor: gputypes.Color{R: 0.1, G: 0.1, B: 0.1, A: 1},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	t.Cleanup(orch.Close)

	tex, err := device.CreateTexture(&hal.TextureDescriptor{Label: "swapchain"})
	if err != nil {
		t.Fatal(err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "swapchain"})
	if err != nil {
		t.Fatal(err)
	}
	target, err := table.Import(resource.ImportDesc{
		Label:   "swapchain",
		Texture: tex,
		View:    view,
		Format:  gputypes.TextureFormatBGRA8Unorm,
		Usage:   gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		Width:   testWidth,
		Height:  testHeight,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	return &rig{device: device, table: table, orch: orch, target: target}
}

func testUniforms(cfg PlanConfig) Uniforms {
	return Uniforms{
		CameraProjView: model.DefaultCamera().ProjView(float32(testWidth) / testHeight),
		LightMatrix:    model.DefaultLight().ProjView(mgl32.Vec3{}),
		LightDir:       model.DefaultLight().Dir(),
		ScreenSize:     [2]float32{testWidth, testHeight},
		Variance:       cfg.Variance,
		Deferred:       cfg.Deferred,
	}
}

// frame writes the uniforms and records one frame.
func (r *rig) frame(t *testing.T) *gputest.Encoder {
	t.Helper()
	if err := r.orch.WriteUniforms(testUniforms(r.orch.Plan().Config)); err != nil {
		t.Fatalf("WriteUniforms: %v", err)
	}
	if _, err := r.orch.RecordFrame(r.target); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	return r.device.LastEncoder()
}

func TestBuildPlanSteps(t *testing.T) {
	tests := []struct {
		name string
		cfg  PlanConfig
		want []StepKind
	}{
		{"forward", PlanConfig{}, []StepKind{StepShadowDepth, StepComposite}},
		{"forward_vsm", PlanConfig{Variance: true}, []StepKind{StepShadowVariance, StepBlur, StepComposite}},
		{"deferred", PlanConfig{Deferred: true}, []StepKind{StepShadowDepth, StepGBuffer, StepComposite}},
		{"deferred_vsm", PlanConfig{Variance: true, Deferred: true},
			[]StepKind{StepShadowVariance, StepBlur, StepGBuffer, StepComposite}},
		{"overlay", PlanConfig{Overlay: true}, []StepKind{StepShadowDepth, StepComposite, StepOverlay}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, tt.cfg)
			plan := BuildPlan(tt.cfg, r.orch.Images())
			if got := plan.Kinds(); !slices.Equal(got, tt.want) {
				t.Errorf("steps = %v, want %v", got, tt.want)
			}
			if got := r.orch.Plan().Kinds(); !slices.Equal(got, tt.want) {
				t.Errorf("orchestrator steps = %v, want %v", got, tt.want)
			}
			if plan.SceneWalks() != ScenePasses(tt.cfg) {
				t.Errorf("SceneWalks = %d, ScenePasses = %d", plan.SceneWalks(), ScenePasses(tt.cfg))
			}
			progs := Programs(tt.cfg)
			for i, step := range plan.Steps {
				if progs[i] != step.Program {
					t.Errorf("Programs[%d] = %s, step program %s", i, progs[i], step.Program)
				}
			}
			last := plan.Steps[len(plan.Steps)-1]
			if tt.cfg.Overlay {
				last = plan.Steps[len(plan.Steps)-2]
			}
			if last.Kind != StepComposite || last.Program != CompositeProgram(tt.cfg) {
				t.Errorf("last content step = %v %s", last.Kind, last.Program)
			}
		})
	}
}

func TestShadowDescriptorsStayDistinct(t *testing.T) {
	r := newRig(t, PlanConfig{Variance: true})
	imgs := r.orch.Images()
	depth := BuildPlan(PlanConfig{}, imgs).Steps[0].Descriptor
	vsm := BuildPlan(PlanConfig{Variance: true}, imgs).Steps[0].Descriptor

	if depth.Program() == vsm.Program() || depth.Shape() == vsm.Shape() {
		t.Fatal("depth-only and variance shadow passes share a descriptor shape")
	}
	if len(depth.Colors()) != 0 {
		t.Error("depth-only shadow pass has color targets")
	}
	if c := vsm.Colors(); len(c) != 1 || c[0].Image != imgs.TempVariance {
		t.Error("variance shadow pass should write the squared-depth image")
	}
}

// P4: the composite schema is a pure function of the configuration.
func TestCompositeSchema(t *testing.T) {
	tests := []struct {
		cfg  PlanConfig
		want []uint32
	}{
		{PlanConfig{}, []uint32{0, 1}},
		{PlanConfig{Variance: true}, []uint32{0, 1, 2}},
		{PlanConfig{Deferred: true}, []uint32{0, 1, 3, 4, 5}},
		{PlanConfig{Variance: true, Deferred: true}, []uint32{0, 1, 2, 3, 4, 5}},
	}
	device := gputest.NewDevice()
	reg, err := program.NewRegistry(device, program.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	for _, tt := range tests {
		got := CompositeSchema(tt.cfg)
		if !slices.Equal(got, tt.want) {
			t.Errorf("CompositeSchema(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
		prog, err := reg.Lookup(CompositeProgram(tt.cfg))
		if err != nil {
			t.Fatal(err)
		}
		var declared []uint32
		for _, s := range prog.Schema() {
			declared = append(declared, s.Index)
		}
		if !slices.Equal(declared, tt.want) {
			t.Errorf("%s declares %v, want %v", prog.Name(), declared, tt.want)
		}
	}
}

// P4: the recorded composite set matches the schema for its configuration.
func TestCompositeSetMatchesSchema(t *testing.T) {
	for name, cfg := range variants {
		t.Run(name, func(t *testing.T) {
			r := newRig(t, cfg)
			r.frame(t)
			set := r.orch.CompositeSet()
			if set == nil {
				t.Fatal("no composite set recorded")
			}
			if got, want := set.Slots(), CompositeSchema(cfg); !slices.Equal(got, want) {
				t.Errorf("composite slots = %v, want %v", got, want)
			}
			wantLen := 2
			if cfg.Variance {
				wantLen = 3
			}
			if cfg.Deferred {
				wantLen += 3
			}
			if set.Len() != wantLen {
				t.Errorf("composite set has %d slots, want %d", set.Len(), wantLen)
			}
		})
	}
}

// P5: every variant ends with the target presentable and no access.
func TestTerminalStateIsPresent(t *testing.T) {
	want := resource.State{
		Stage:  resource.StageBottomOfPipe,
		Access: resource.AccessNone,
		Layout: resource.LayoutPresent,
		Aspect: resource.AspectColor,
	}
	for name, cfg := range variants {
		t.Run(name, func(t *testing.T) {
			r := newRig(t, cfg)
			for frame := range 2 {
				enc := r.frame(t)
				if got := r.table.State(r.target); got != want {
					t.Errorf("frame %d: target state = %v, want %v", frame, got, want)
				}
				if r.table.Pending(r.target) || r.table.PendingCount() != 0 {
					t.Errorf("frame %d: barriers left pending", frame)
				}
				ops := enc.Ops()
				if ops[0] != gputest.OpBegin || ops[len(ops)-1] != gputest.OpEnd {
					t.Errorf("frame %d: encoder not closed: %v", frame, ops)
				}
			}
		})
	}
}

type trace map[string][]usage

// P1: the per-image state sequence of one frame matches the hand-traced
// pass list.
func TestStateHistoryMatchesTrace(t *testing.T) {
	tests := []struct {
		name string
		cfg  PlanConfig
		want trace
	}{
		{"forward", PlanConfig{}, trace{
			LabelShadow:    {depthWrite, fragmentRead},
			LabelMainDepth: {depthWrite},
			"swapchain":    {colorWrite, present},
		}},
		{"forward_vsm", PlanConfig{Variance: true}, trace{
			LabelTempVariance: {colorWrite, computeRead},
			LabelShadow:       {depthWrite, fragmentRead},
			LabelVariance:     {computeWrite, fragmentRead},
			LabelMainDepth:    {depthWrite},
			"swapchain":       {colorWrite, present},
		}},
		{"deferred", PlanConfig{Deferred: true}, trace{
			LabelShadow:    {depthWrite, fragmentRead},
			LabelNormal:    {colorWrite, fragmentRead},
			LabelAlbedo:    {colorWrite, fragmentRead},
			LabelMainDepth: {depthWrite, fragmentRead},
			"swapchain":    {colorWrite, present},
		}},
		{"deferred_vsm_overlay", PlanConfig{Variance: true, Deferred: true, Overlay: true}, trace{
			LabelTempVariance: {colorWrite, computeRead},
			LabelShadow:       {depthWrite, fragmentRead},
			LabelVariance:     {computeWrite, fragmentRead},
			LabelNormal:       {colorWrite, fragmentRead},
			LabelAlbedo:       {colorWrite, fragmentRead},
			LabelMainDepth:    {depthWrite, fragmentRead},
			"swapchain":       {colorWrite, present},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, tt.cfg)
			// The second frame starts from the states the first one left.
			for frame := range 2 {
				r.frame(t)
				seen := map[string]bool{}
				for _, rec := range r.table.Records() {
					seen[rec.Image.Label()] = true
				}
				for label := range seen {
					if _, ok := tt.want[label]; !ok {
						t.Errorf("frame %d: unexpected transitions of %s", frame, label)
					}
				}
				for label, usages := range tt.want {
					// A frame's first transition to the state the previous
					// frame left is a no-op.
					if frame > 0 && usages[0] == usages[len(usages)-1] {
						usages = usages[1:]
					}
					img := r.image(label)
					got := r.table.History(img)
					if len(got) != len(usages) {
						t.Errorf("frame %d: %s history = %v, want %d states", frame, label, got, len(usages))
						continue
					}
					for i, u := range usages {
						want := resource.State{Stage: u.stage, Access: u.access, Layout: u.layout, Aspect: img.Aspect()}
						if got[i] != want {
							t.Errorf("frame %d: %s state %d = %v, want %v", frame, label, i, got[i], want)
						}
					}
				}
			}
		})
	}
}

func (r *rig) image(label string) *resource.Image {
	if label == r.target.Label() {
		return r.target
	}
	imgs := r.orch.Images()
	for _, img := range []*resource.Image{imgs.Shadow, imgs.TempVariance, imgs.Variance, imgs.Normal, imgs.Albedo, imgs.MainDepth} {
		if img != nil && img.Label() == label {
			return img
		}
	}
	return nil
}

// The write, compute read/write, shader read chain of the variance images
// must keep its program order.
func TestVarianceChainOrder(t *testing.T) {
	r := newRig(t, PlanConfig{Variance: true})
	r.frame(t)

	type step struct {
		label  string
		layout resource.Layout
	}
	want := []step{
		{LabelTempVariance, resource.LayoutColorAttachment},
		{LabelShadow, resource.LayoutDepthStencilAttachment},
		{LabelTempVariance, resource.LayoutShaderReadOnly},
		{LabelVariance, resource.LayoutGeneral},
		{LabelShadow, resource.LayoutShaderReadOnly},
		{LabelVariance, resource.LayoutShaderReadOnly},
		{LabelMainDepth, resource.LayoutDepthStencilAttachment},
		{"swapchain", resource.LayoutColorAttachment},
		{"swapchain", resource.LayoutPresent},
	}
	recs := r.table.Records()
	if len(recs) != len(want) {
		t.Fatalf("%d transitions, want %d", len(recs), len(want))
	}
	for i, w := range want {
		if recs[i].Image.Label() != w.label || recs[i].State.Layout != w.layout {
			t.Errorf("transition %d = %s %v, want %s %v", i, recs[i].Image.Label(), recs[i].State.Layout, w.label, w.layout)
		}
	}
}

func TestBlurDispatchCoversShadowMap(t *testing.T) {
	r := newRig(t, PlanConfig{Variance: true})
	enc := r.frame(t)
	d := enc.Filter(gputest.OpDispatch)
	if len(d) != 1 {
		t.Fatalf("%d dispatches, want 1", len(d))
	}
	n := uint32(testShadowSize / 32)
	if d[0].X != n || d[0].Y != n || d[0].Z != 1 {
		t.Errorf("dispatch = %dx%dx%d, want %dx%dx1", d[0].X, d[0].Y, d[0].Z, n, n)
	}
}

func TestScenarioTwoInstances(t *testing.T) {
	r := newRig(t, PlanConfig{})
	enc := r.frame(t)

	type draw struct {
		count, first uint32
		base         int32
	}
	want := []draw{{36, 0, 0}, {6, 36, 24}}

	// Split the draws by render pass.
	var passes [][]draw
	for _, ev := range enc.Events() {
		switch ev.Op {
		case gputest.OpBeginRender:
			passes = append(passes, nil)
		case gputest.OpDrawIndexed:
			last := len(passes) - 1
			passes[last] = append(passes[last], draw{ev.IndexCount, ev.FirstIndex, ev.BaseVertex})
		}
	}
	if len(passes) != 2 {
		t.Fatalf("%d render passes, want shadow and composite", len(passes))
	}
	for i, name := range []string{"shadow", "composite"} {
		if !slices.Equal(passes[i], want) {
			t.Errorf("%s draws = %v, want %v", name, passes[i], want)
		}
	}

	set := r.orch.CompositeSet()
	if set.Len() != 2 {
		t.Fatalf("composite set has %d slots, want 2", set.Len())
	}
	if b, _ := set.Binding(program.SlotConstants); b.Buffer == nil || b.Buffer.Label() != LabelConstants {
		t.Error("slot 0 is not the uniform buffer")
	}
	if b, _ := set.Binding(program.SlotShadowMap); b.Image != r.orch.Images().Shadow {
		t.Error("slot 1 is not the shadow map")
	}

	st := r.table.State(r.target)
	if st.Layout != resource.LayoutPresent || st.Access != resource.AccessNone {
		t.Errorf("target state = %v, want present with no access", st)
	}
	if got := r.orch.Arena().Used(); got != 6 {
		t.Errorf("arena slots used = %d, want 6", got)
	}
}

func TestOverlayDoesNotTransition(t *testing.T) {
	plain := newRig(t, PlanConfig{Variance: true})
	withOverlay := newRig(t, PlanConfig{Variance: true, Overlay: true})
	plain.frame(t)
	enc := withOverlay.frame(t)

	a, b := plain.table.Records(), withOverlay.table.Records()
	if len(a) != len(b) {
		t.Fatalf("overlay changed the transition count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Image.Label() != b[i].Image.Label() || a[i].State != b[i].State {
			t.Errorf("transition %d differs: %s %v vs %s %v", i, a[i].Image.Label(), a[i].State, b[i].Image.Label(), b[i].State)
		}
	}

	// The overlay is the last pass: one full-screen draw after the last
	// render pass begins.
	events := enc.Events()
	lastBegin := -1
	for i, ev := range events {
		if ev.Op == gputest.OpBeginRender {
			lastBegin = i
		}
	}
	rp := events[lastBegin].RenderPass
	if rp.Label != "overlay" || rp.ColorAttachments[0].LoadOp != gputypes.LoadOpLoad {
		t.Errorf("last render pass = %q, want the overlay loading the target", rp.Label)
	}
	var draws int
	for _, ev := range events[lastBegin:] {
		if ev.Op == gputest.OpDraw && ev.VertexCount == 3 {
			draws++
		}
	}
	if draws != 1 {
		t.Errorf("overlay draws = %d, want 1", draws)
	}
}

func TestRecordFrameRequiresUniforms(t *testing.T) {
	r := newRig(t, PlanConfig{})
	_, err := r.orch.RecordFrame(r.target)
	if !errors.Is(err, ErrUniformsNotWritten) || !errors.Is(err, gpuerr.ErrOrdering) {
		t.Fatalf("err = %v, want ErrUniformsNotWritten", err)
	}
	if len(r.device.Encoders()) != 0 {
		t.Error("encoder created before the uniforms were checked")
	}

	r.frame(t)
	if _, err := r.orch.RecordFrame(r.target); !errors.Is(err, ErrUniformsNotWritten) {
		t.Errorf("second frame without uniforms: err = %v", err)
	}
}

func TestRecordFrameForeignTarget(t *testing.T) {
	r := newRig(t, PlanConfig{})
	other := newRig(t, PlanConfig{})
	if err := r.orch.WriteUniforms(testUniforms(PlanConfig{})); err != nil {
		t.Fatal(err)
	}
	if _, err := r.orch.RecordFrame(other.target); !errors.Is(err, resource.ErrForeignImage) {
		t.Fatalf("err = %v, want ErrForeignImage", err)
	}
}

func TestRecordFrameEncoderFailure(t *testing.T) {
	r := newRig(t, PlanConfig{})
	r.device.FailEncoder = true
	if err := r.orch.WriteUniforms(testUniforms(PlanConfig{})); err != nil {
		t.Fatal(err)
	}
	if _, err := r.orch.RecordFrame(r.target); !errors.Is(err, gpuerr.ErrDevice) {
		t.Fatalf("err = %v, want ErrDevice", err)
	}
}

func TestRecordFrameDiscardsOnFailure(t *testing.T) {
	r := newRig(t, PlanConfig{})
	if err := r.orch.WriteUniforms(testUniforms(PlanConfig{})); err != nil {
		t.Fatal(err)
	}
	// The composite set is the frame's first device creation.
	r.device.FailAt = r.device.Created() + 1

	cmd, err := r.orch.RecordFrame(r.target)
	if !errors.Is(err, gpuerr.ErrDevice) || !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("err = %v, want the injected device error", err)
	}
	if cmd != nil {
		t.Error("partial command buffer returned")
	}
	enc := r.device.LastEncoder()
	ops := enc.Ops()
	if ops[len(ops)-1] != gputest.OpDiscard {
		t.Errorf("last op = %v, want discard", ops[len(ops)-1])
	}
	if len(enc.Filter(gputest.OpEnd)) != 0 {
		t.Error("failed frame was closed")
	}
	if b, e := len(enc.Filter(gputest.OpBeginRender)), len(enc.Filter(gputest.OpEndPass)); b != e {
		t.Errorf("%d passes begun, %d ended", b, e)
	}
	if r.table.State(r.target).Layout == resource.LayoutPresent {
		t.Error("failed frame reached the present transition")
	}
}

func TestNewOrchestratorAllocatesPerVariant(t *testing.T) {
	fwd := newRig(t, PlanConfig{}).orch.Images()
	if fwd.Shadow == nil || fwd.MainDepth == nil {
		t.Fatal("forward frame is missing its shadow or depth image")
	}
	if fwd.Variance != nil || fwd.TempVariance != nil || fwd.Normal != nil || fwd.Albedo != nil {
		t.Error("forward frame allocated variance or G-buffer images")
	}

	all := newRig(t, PlanConfig{Variance: true, Deferred: true}).orch.Images()
	for _, img := range []*resource.Image{all.Shadow, all.TempVariance, all.Variance, all.Normal, all.Albedo, all.MainDepth} {
		if img == nil {
			t.Fatal("deferred variance frame is missing an image")
		}
	}
	if e := all.Shadow.Extent(); e.Width != testShadowSize || e.Height != testShadowSize {
		t.Errorf("shadow extent = %dx%d", e.Width, e.Height)
	}
	if e := all.Normal.Extent(); e.Width != testWidth || e.Height != testHeight {
		t.Errorf("G-buffer extent = %dx%d", e.Width, e.Height)
	}
}

func TestNewOrchestratorRejectsZeroExtent(t *testing.T) {
	device := gputest.NewDevice()
	table := resource.NewTable(device)
	defer table.Close()
	_, err := NewOrchestrator(device, &noop.Queue{}, table, nil, model.DemoScene(), Config{Width: 64, Height: 64})
	if !errors.Is(err, gpuerr.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestNewOrchestratorRollsBackOnFailure(t *testing.T) {
	device := gputest.NewDevice()
	table := resource.NewTable(device)
	defer table.Close()
	reg, err := program.NewRegistry(device, program.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	before := device.Live()
	device.FailAt = device.Created() + 3
	_, err = NewOrchestrator(device, &noop.Queue{}, table, reg, model.DemoScene(), Config{
		ShadowSize: 64, Width: 64, Height: 64,
	})
	if !errors.Is(err, gpuerr.ErrDevice) {
		t.Fatalf("err = %v, want ErrDevice", err)
	}
	if device.Live() != before {
		t.Errorf("%d objects leaked", device.Live()-before)
	}
}

type barrierKey struct {
	texture  hal.Texture
	from, to gputypes.TextureUsage
}

func barriers(enc *gputest.Encoder) []barrierKey {
	var keys []barrierKey
	for _, ev := range enc.Filter(gputest.OpBarriers) {
		for _, b := range ev.Barriers {
			keys = append(keys, barrierKey{b.Texture, b.Usage.OldUsage, b.Usage.NewUsage})
		}
	}
	return keys
}

func TestFailedFrameRestoresState(t *testing.T) {
	for _, name := range []string{"forward_vsm", "deferred_vsm_ov"} {
		t.Run(name, func(t *testing.T) {
			r := newRig(t, variants[name])
			r.frame(t)
			before := r.device.Created()
			steady := barriers(r.frame(t))
			perFrame := r.device.Created() - before
			if perFrame == 0 {
				t.Fatal("frame creates no device objects")
			}

			// Fail each creation of a frame in turn, the blur set included.
			for k := 1; k <= perFrame; k++ {
				if err := r.orch.WriteUniforms(testUniforms(r.orch.Plan().Config)); err != nil {
					t.Fatal(err)
				}
				r.device.FailAt = r.device.Created() + k
				if _, err := r.orch.RecordFrame(r.target); !errors.Is(err, gputest.ErrInjected) {
					t.Fatalf("creation %d: err = %v, want the injected failure", k, err)
				}
				r.device.FailAt = 0
				if r.table.PendingCount() != 0 {
					t.Errorf("creation %d: %d barriers pending after the failed frame", k, r.table.PendingCount())
				}

				if got := barriers(r.frame(t)); !slices.Equal(got, steady) {
					t.Errorf("creation %d: next frame barriers = %v, want %v", k, got, steady)
				}
			}
		})
	}
}
