package shadowmap

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
)

// Device is a headless hal device opened by OpenDevice.
type Device struct {
	Device  hal.Device
	Queue   hal.Queue
	Adapter gputypes.AdapterInfo

	instance hal.Instance
}

// OpenDevice opens a device on a registered hal backend, preferring a
// discrete or integrated GPU. Backends register themselves when their
// package is imported, for example
//
//	import _ "github.com/gogpu/wgpu/hal/vulkan"
//
// The noop backend of github.com/gogpu/wgpu/hal/noop registers as
// gputypes.BackendEmpty.
func OpenDevice(backend gputypes.Backend) (*Device, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, gpuerr.Configf("shadowmap: %v backend not available", backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, gpuerr.Device("create instance", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no %v adapters found", gpuerr.ErrDevice, backend)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, gpuerr.Device("open device", err)
	}
	Logger().Info("shadowmap: device opened", "backend", backend, "adapter", selected.Info.Name)
	return &Device{
		Device:   openDev.Device,
		Queue:    openDev.Queue,
		Adapter:  selected.Info,
		instance: instance,
	}, nil
}

// Close destroys the device and its instance. Everything created on the
// device must be released first.
func (d *Device) Close() {
	if d.Device != nil {
		d.Device.Destroy()
		d.Device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}
