package shadowmap

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/shadowmap/internal/gputest"
	"github.com/gogpu/shadowmap/internal/resource"
	"github.com/gogpu/shadowmap/model"
)

func testConfig(opts ...Option) Config {
	base := []Option{WithShadowResolution(64), WithViewport(32, 24)}
	return NewConfig(append(base, opts...)...)
}

func newTestRenderer(t *testing.T, opts ...Option) (*gputest.Device, *Renderer) {
	t.Helper()
	device := gputest.NewDevice()
	r, err := NewRenderer(device, &noop.Queue{}, testConfig(opts...), nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Close)
	return device, r
}

func TestRendererPasses(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{"forward", nil, []string{"shadow_depth", "composite"}},
		{"forward_vsm", []Option{WithShadowMode(ShadowVariance)},
			[]string{"shadow_variance", "blur", "composite"}},
		{"deferred", []Option{WithShadingMode(ShadingDeferred)},
			[]string{"shadow_depth", "gbuffer", "composite"}},
		{"deferred_vsm_overlay", []Option{WithShadowMode(ShadowVariance), WithShadingMode(ShadingDeferred), WithDebugOverlay(true)},
			[]string{"shadow_variance", "blur", "gbuffer", "composite", "overlay"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestRenderer(t, tt.opts...)
			if got := r.Passes(); !slices.Equal(got, tt.want) {
				t.Errorf("Passes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderFrameLeavesTargetPresent(t *testing.T) {
	for _, opts := range [][]Option{
		nil,
		{WithShadowMode(ShadowVariance)},
		{WithShadingMode(ShadingDeferred)},
		{WithShadowMode(ShadowVariance), WithShadingMode(ShadingDeferred), WithDebugOverlay(true)},
	} {
		_, r := newTestRenderer(t, opts...)
		target, err := r.CreateTarget()
		if err != nil {
			t.Fatalf("CreateTarget: %v", err)
		}
		for range 2 {
			if err := r.RenderFrame(target); err != nil {
				t.Fatalf("RenderFrame: %v", err)
			}
			st := r.table.State(target.img)
			if st.Layout != resource.LayoutPresent || st.Access != resource.AccessNone {
				t.Errorf("%v/%v: target state = %v", r.cfg.Shadow, r.cfg.Shading, st)
			}
		}
		if r.Frames() != 2 {
			t.Errorf("Frames() = %d, want 2", r.Frames())
		}
	}
}

func TestRecordFrameDrawsDemoScene(t *testing.T) {
	device, r := newTestRenderer(t)
	target, err := r.CreateTarget()
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if _, err := r.RecordFrame(target); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	// Shadow and forward composite each draw the cube and the plane.
	if n := len(device.LastEncoder().Filter(gputest.OpDrawIndexed)); n != 4 {
		t.Errorf("%d indexed draws, want 4", n)
	}
}

func TestUniformsFollowConfig(t *testing.T) {
	_, r := newTestRenderer(t, WithShadowMode(ShadowVariance), WithClearColor(gputypes.Color{R: 1, A: 1}))
	u := r.Uniforms()
	if !u.Variance || u.Deferred {
		t.Errorf("flags = variance %v deferred %v", u.Variance, u.Deferred)
	}
	if u.ScreenSize != [2]float32{32, 24} {
		t.Errorf("ScreenSize = %v", u.ScreenSize)
	}
	if u.ClearColor.R != 1 {
		t.Errorf("ClearColor = %v", u.ClearColor)
	}
	if d := u.LightDir.Len(); d < 0.999 || d > 1.001 {
		t.Errorf("light direction length = %v, want 1", d)
	}
}

func TestSnapshot(t *testing.T) {
	device, r := newTestRenderer(t)
	target, err := r.CreateTarget()
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if _, err := r.Snapshot(target); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("Snapshot before rendering: err = %v, want ErrNotRendered", err)
	}
	if err := r.RenderFrame(target); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	img, err := r.Snapshot(target)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("snapshot bounds = %v", b)
	}
	enc := device.LastEncoder()
	if n := len(enc.Filter(gputest.OpCopyToBuffer)); n != 1 {
		t.Errorf("%d texture copies, want 1", n)
	}
	if st := r.table.State(target.img); st.Layout != resource.LayoutPresent {
		t.Errorf("target left in %v", st.Layout)
	}
	// The snapshot goes through TransferSrc and back.
	hist := r.table.History(target.img)
	if len(hist) < 2 || hist[len(hist)-2].Layout != resource.LayoutTransferSrc {
		t.Errorf("history = %v", hist)
	}
}

func targetBarriers(enc *gputest.Encoder, tex hal.Texture) []hal.TextureUsageTransition {
	var usages []hal.TextureUsageTransition
	for _, ev := range enc.Filter(gputest.OpBarriers) {
		for _, b := range ev.Barriers {
			if b.Texture == tex {
				usages = append(usages, b.Usage)
			}
		}
	}
	return usages
}

func TestFailedSnapshotRestoresState(t *testing.T) {
	device, r := newTestRenderer(t)
	target, err := r.CreateTarget()
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	for range 2 {
		if err := r.RenderFrame(target); err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
	}
	steady := targetBarriers(device.LastEncoder(), target.texture)

	device.FailEnd = true
	if _, err := r.Snapshot(target); !errors.Is(err, ErrDevice) {
		t.Fatalf("Snapshot: err = %v, want ErrDevice", err)
	}
	device.FailEnd = false
	if r.table.PendingCount() != 0 {
		t.Errorf("%d barriers pending after the failed snapshot", r.table.PendingCount())
	}
	if st := r.table.State(target.img); st.Layout != resource.LayoutPresent {
		t.Errorf("target left in %v", st.Layout)
	}

	if err := r.RenderFrame(target); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if got := targetBarriers(device.LastEncoder(), target.texture); !slices.Equal(got, steady) {
		t.Errorf("target barriers = %v, want %v", got, steady)
	}
}

func TestSnapshotRequiresCopySource(t *testing.T) {
	device, r := newTestRenderer(t)
	tex, _ := device.CreateTexture(&hal.TextureDescriptor{Label: "swapchain"})
	view, _ := device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "swapchain"})
	target, err := r.ImportTarget(tex, view, 0)
	if err != nil {
		t.Fatalf("ImportTarget: %v", err)
	}
	if err := r.RenderFrame(target); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if _, err := r.Snapshot(target); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	r.ReleaseTarget(target)
	if _, err := r.RecordFrame(target); !errors.Is(err, ErrConfiguration) {
		t.Errorf("RecordFrame on released target: err = %v", err)
	}
}

func TestDecodeRowsSwapsBGRA(t *testing.T) {
	data := make([]byte, 2*256)
	copy(data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	copy(data[256:], []byte{9, 10, 11, 12, 13, 14, 15, 16})
	img := decodeRows(data, 2, 2, 256, true)
	want := []byte{3, 2, 1, 4, 7, 6, 5, 8, 11, 10, 9, 12, 15, 14, 13, 16}
	if !slices.Equal(img.Pix, want) {
		t.Errorf("Pix = %v, want %v", img.Pix, want)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	device := gputest.NewDevice()
	r, err := NewRenderer(device, &noop.Queue{}, testConfig(WithShadowMode(ShadowVariance), WithDebugOverlay(true)), nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	target, err := r.CreateTarget()
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if err := r.RenderFrame(target); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	r.Close()
	r.Close()
	if n := device.Live(); n != 0 {
		t.Errorf("%d objects alive after Close", n)
	}
	if err := r.RenderFrame(target); !errors.Is(err, ErrClosed) || !errors.Is(err, ErrOrdering) {
		t.Errorf("RenderFrame after Close: err = %v", err)
	}
}

func TestNewRendererRollsBack(t *testing.T) {
	device := gputest.NewDevice()
	// The first two creations upload the demo scene; the third is the
	// first frame graph image.
	device.FailAt = 3
	if _, err := NewRenderer(device, &noop.Queue{}, testConfig(), nil); !errors.Is(err, ErrDevice) {
		t.Fatalf("err = %v, want ErrDevice", err)
	}
	if n := device.Live(); n != 0 {
		t.Errorf("%d objects alive after failed NewRenderer", n)
	}
}

func TestNewRendererKeepsCallerScene(t *testing.T) {
	device := gputest.NewDevice()
	queue := &noop.Queue{}
	scene := model.DemoScene()
	if err := scene.Upload(device, queue); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	r, err := NewRenderer(device, queue, testConfig(), scene)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	r.Close()
	if scene.VertexBuffer() == nil {
		t.Error("Close released a scene the caller uploaded")
	}
	scene.Release(device)
}

func TestNewRendererRejectsConfig(t *testing.T) {
	device := gputest.NewDevice()
	if _, err := NewRenderer(device, &noop.Queue{}, testConfig(WithViewport(0, 24)), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
	if _, err := NewRenderer(nil, nil, testConfig(), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("nil device: err = %v, want ErrConfiguration", err)
	}
	if device.Created() != 0 {
		t.Errorf("%d objects created for a rejected config", device.Created())
	}
}

type halProvider struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (p halProvider) Device() gpucontext.Device             { return nil }
func (p halProvider) Queue() gpucontext.Queue               { return nil }
func (p halProvider) Adapter() gpucontext.Adapter           { return nil }
func (p halProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }
func (p halProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (p halProvider) HalDevice() any                        { return p.device }
func (p halProvider) HalQueue() any                         { return p.queue }

func TestNewRendererFromProvider(t *testing.T) {
	p := halProvider{device: gputest.NewDevice(), queue: &noop.Queue{}, format: gputypes.TextureFormatRGBA8Unorm}
	r, err := NewRendererFromProvider(p, testConfig(), nil)
	if err != nil {
		t.Fatalf("NewRendererFromProvider: %v", err)
	}
	defer r.Close()
	if r.Config().TargetFormat != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("TargetFormat = %v, want the surface format", r.Config().TargetFormat)
	}

	p.device = nil
	if _, err := NewRendererFromProvider(p, testConfig(), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("nil HalDevice: err = %v", err)
	}
}
