package draw

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/resource"
)

// SlotAlign is the dynamic uniform offset alignment of the arena.
const SlotAlign = 256

// ErrArenaExhausted is returned when a frame needs more draw-constant slots
// than the arena holds.
var ErrArenaExhausted = fmt.Errorf("%w: draw constants arena exhausted", gpuerr.ErrConfiguration)

// Arena is a host-side image of the draw-constants buffer. Each push writes
// one SlotAlign-aligned slot; the slot is selected at draw time with a
// dynamic offset. Upload copies the used slots to the GPU.
type Arena struct {
	buf      *resource.Buffer
	data     []byte
	reserved int
	used     int
}

// NewArena wraps a uniform buffer of at least one slot.
func NewArena(buf *resource.Buffer) *Arena {
	return &Arena{buf: buf, data: make([]byte, buf.Size())}
}

// Buffer returns the backing buffer.
func (a *Arena) Buffer() *resource.Buffer { return a.buf }

// Capacity returns the number of slots the buffer holds.
func (a *Arena) Capacity() int { return int(a.buf.Size() / SlotAlign) }

// Used returns the number of slots written since the last Reserve.
func (a *Arena) Used() int { return a.used }

// Remaining returns the reserved slots not yet written.
func (a *Arena) Remaining() int { return a.reserved - a.used }

// Reserve starts a new frame needing n slots.
func (a *Arena) Reserve(n int) error {
	if n > a.Capacity() {
		return fmt.Errorf("need %d slots, have %d: %w", n, a.Capacity(), ErrArenaExhausted)
	}
	a.reserved = n
	a.used = 0
	return nil
}

// Push writes data into the next slot and returns its byte offset.
func (a *Arena) Push(data []byte) (uint32, error) {
	if a.used >= a.reserved {
		return 0, fmt.Errorf("slot %d of %d reserved: %w", a.used+1, a.reserved, ErrArenaExhausted)
	}
	off := a.used * SlotAlign
	copy(a.data[off:off+SlotAlign], data)
	a.used++
	return uint32(off), nil
}

// Upload writes the used slots to the buffer.
func (a *Arena) Upload(queue hal.Queue) error {
	if a.used == 0 {
		return nil
	}
	return a.buf.Write(queue, 0, a.data[:a.used*SlotAlign])
}
