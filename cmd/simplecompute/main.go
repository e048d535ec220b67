// Command simplecompute runs the windowed-mean filter on the GPU and on the
// CPU and prints both summaries.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/shadowmap"
	"github.com/gogpu/shadowmap/internal/filter"
	"github.com/gogpu/shadowmap/internal/parallel"
	"github.com/gogpu/shadowmap/internal/program"
)

func main() {
	var (
		backend = flag.String("backend", "vulkan", "hal backend: vulkan or noop")
		length  = flag.Int("n", 1<<16, "number of values")
		seed    = flag.Uint64("seed", filter.Seed, "random seed")
		workers = flag.Int("workers", 0, "CPU reference workers, 0 means GOMAXPROCS")
	)
	flag.Parse()
	if *length <= 0 {
		log.Fatalf("-n must be positive, got %d", *length)
	}

	b := gputypes.BackendVulkan
	if *backend == "noop" {
		b = gputypes.BackendEmpty
	}
	dev, err := shadowmap.OpenDevice(b)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Close()

	reg, err := program.NewRegistry(dev.Device, program.Options{Only: []string{program.Filter}})
	if err != nil {
		log.Fatalf("Failed to create programs: %v", err)
	}
	defer reg.Close()
	f, err := filter.New(dev.Device, dev.Queue, reg)
	if err != nil {
		log.Fatalf("Failed to create filter: %v", err)
	}

	values := filter.RandomInput(*length, *seed, filter.Bound)

	start := time.Now()
	gpu, err := f.Run(values)
	if err != nil {
		log.Fatalf("GPU run failed: %v", err)
	}
	report("GPU", filter.Summarize(gpu), time.Since(start))

	pool := parallel.NewPool(*workers)
	defer pool.Close()
	start = time.Now()
	cpu := filter.ReferenceParallel(pool, values)
	report("CPU", filter.Summarize(cpu), time.Since(start))
}

func report(name string, s filter.Stats, d time.Duration) {
	fmt.Printf("%s\n%v\ntime: %.3f ms\n", name, s, float64(d.Microseconds())/1000)
}
