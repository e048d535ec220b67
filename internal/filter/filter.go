// Package filter runs the simple_compute sample: every value minus the mean
// of the seven-value window centred on it, on the GPU, with a CPU
// reference to compare against.
package filter

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/binding"
	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/parallel"
	"github.com/gogpu/shadowmap/internal/pass"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
)

const (
	// Radius is the number of neighbours on each side of the window.
	Radius = 3
	// Divisor divides the window sum. Windows clipped by the array bounds
	// are still divided by the full window size.
	Divisor = 2*Radius + 1

	// Seed and Bound parameterize RandomInput in the sample.
	Seed  = 42
	Bound = 1e6
)

// RandomInput returns n values uniformly drawn from [-bound, bound].
func RandomInput(n int, seed uint64, bound float32) []float32 {
	rng := rand.New(rand.NewPCG(seed, 0))
	values := make([]float32, n)
	for i := range values {
		values[i] = -bound + rng.Float32()*2*bound
	}
	return values
}

// Reference computes the filter on the CPU.
func Reference(values []float32) []float32 {
	out := make([]float32, len(values))
	reference(values, out, 0, len(values))
	return out
}

// ReferenceParallel computes the filter on the CPU, split into chunks run
// by pool. The result equals Reference.
func ReferenceParallel(pool *parallel.Pool, values []float32) []float32 {
	out := make([]float32, len(values))
	pool.For(len(values), chunkSize, func(lo, hi int) {
		reference(values, out, lo, hi)
	})
	return out
}

// chunkSize is the number of outputs one ReferenceParallel task computes.
const chunkSize = 4096

func reference(values, out []float32, lo, hi int) {
	n := len(values)
	for i := lo; i < hi; i++ {
		var sum float32
		for j := max(i-Radius, 0); j <= min(i+Radius, n-1); j++ {
			sum += values[j]
		}
		out[i] = values[i] - sum/Divisor
	}
}

// Stats summarizes a result.
type Stats struct {
	Sum  float32
	Mean float32
	Size int
}

// Summarize returns the sum and mean of values.
func Summarize(values []float32) Stats {
	var sum float32
	for _, v := range values {
		sum += v
	}
	s := Stats{Sum: sum, Size: len(values)}
	if len(values) > 0 {
		s.Mean = sum / float32(len(values))
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("sum: %g\t size: %d\t mean: %g", s.Sum, s.Size, s.Mean)
}

// Filter dispatches the simple_compute program.
type Filter struct {
	device hal.Device
	queue  hal.Queue
	prog   *program.Program
}

// New returns a filter using the registry's simple_compute program.
func New(device hal.Device, queue hal.Queue, reg *program.Registry) (*Filter, error) {
	prog, err := reg.Lookup(program.Filter)
	if err != nil {
		return nil, err
	}
	return &Filter{device: device, queue: queue, prog: prog}, nil
}

// Job holds the buffers of one run. It must be closed once the GPU is done
// with it.
type Job struct {
	n         int
	table     *resource.Table
	assembler *binding.Assembler

	values   *resource.Buffer
	result   *resource.Buffer
	params   *resource.Buffer
	readback *resource.Buffer
}

// Len returns the number of values.
func (j *Job) Len() int { return j.n }

// Result decodes the read-back buffer.
func (j *Job) Result() []float32 {
	return decode(j.readback.Mapped()[:j.n*4])
}

// Close releases the job's buffers and descriptor set.
func (j *Job) Close() {
	j.assembler.Reset()
	j.table.Close()
}

// Prepare allocates the job buffers and uploads values and the length.
func (f *Filter) Prepare(values []float32) (_ *Job, err error) {
	if len(values) == 0 {
		return nil, gpuerr.Configf("filter: no values")
	}
	size := uint64(len(values)) * 4
	table := resource.NewTable(f.device)
	alloc, err := table.Allocate(resource.Batch{Buffers: []resource.BufferDesc{
		{Label: "values", Size: size, Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{Label: "result", Size: size, Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc},
		{Label: "params", Size: 16, Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{Label: "readback", Size: size, Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst, HostVisible: true},
	}})
	if err != nil {
		table.Close()
		return nil, fmt.Errorf("filter: %w", err)
	}
	j := &Job{
		n:         len(values),
		table:     table,
		assembler: binding.NewAssembler(table, true),
		values:    alloc.Buffer("values"),
		result:    alloc.Buffer("result"),
		params:    alloc.Buffer("params"),
		readback:  alloc.Buffer("readback"),
	}
	defer func() {
		if err != nil {
			j.Close()
		}
	}()

	if err := j.values.Write(f.queue, 0, encode(values)); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params, uint32(len(values)))
	if err := j.params.Write(f.queue, 0, params); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return j, nil
}

// Record records the dispatch over the job and the copy of the result into
// the read-back buffer.
func (f *Filter) Record(j *Job) (_ hal.CommandBuffer, err error) {
	enc, err := f.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: program.Filter})
	if err != nil {
		return nil, gpuerr.Device("create command encoder", err)
	}
	if err := enc.BeginEncoding(program.Filter); err != nil {
		return nil, gpuerr.Device("begin encoding", err)
	}
	defer func() {
		if err != nil {
			enc.DiscardEncoding()
		}
	}()

	r, err := pass.NewRecorder(enc, j.table, f.prog, pass.Dispatch(program.Filter, program.Filter, uint32(j.n), 1))
	if err != nil {
		return nil, err
	}
	if err := f.dispatch(r, j); err != nil {
		r.Abort()
		return nil, err
	}

	enc.CopyBufferToBuffer(j.result.Raw(), j.readback.Raw(), []hal.BufferCopy{{Size: uint64(j.n) * 4}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, gpuerr.Device("end encoding", err)
	}
	return cmd, nil
}

func (f *Filter) dispatch(r *pass.Recorder, j *Job) error {
	if err := r.Barriers(); err != nil {
		return err
	}
	if err := r.BeginTargets(); err != nil {
		return err
	}
	set, err := j.assembler.Build(f.prog, f.prog.SetIndex(), []binding.Binding{
		binding.BufferBinding(0, j.values),
		binding.BufferBinding(1, j.result),
		binding.BufferBinding(2, j.params),
	})
	if err != nil {
		return err
	}
	if err := r.BindResources(set); err != nil {
		return err
	}
	if err := r.Dispatch(uint32(j.n), 1); err != nil {
		return err
	}
	return r.End()
}

// Run filters values on the GPU and waits for the result.
func (f *Filter) Run(values []float32) ([]float32, error) {
	j, err := f.Prepare(values)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	cmd, err := f.Record(j)
	if err != nil {
		return nil, err
	}
	defer f.device.FreeCommandBuffer(cmd)
	idx, err := f.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return nil, gpuerr.Device("submit", err)
	}
	if f.queue.PollCompleted() < idx {
		if err := f.device.WaitIdle(); err != nil {
			return nil, gpuerr.Device("wait idle", err)
		}
	}
	return j.Result(), nil
}

func encode(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decode(buf []byte) []float32 {
	values := make([]float32, len(buf)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return values
}
