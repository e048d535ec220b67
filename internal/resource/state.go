package resource

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Stage is a set of pipeline stages that consume or produce an image state.
type Stage uint32

const (
	StageTopOfPipe Stage = 1 << iota
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
)

// StageDepthTests covers both depth test stages.
const StageDepthTests = StageEarlyFragmentTests | StageLateFragmentTests

var stageNames = []string{
	"TopOfPipe", "VertexShader", "FragmentShader", "EarlyFragmentTests",
	"LateFragmentTests", "ColorAttachmentOutput", "ComputeShader", "Transfer",
	"BottomOfPipe",
}

func (s Stage) String() string { return bitNames(uint32(s), stageNames) }

// Access is a set of memory accesses performed in a Stage.
// The zero value is no access.
type Access uint32

// AccessNone means no pending access.
const AccessNone Access = 0

const (
	AccessShaderRead Access = 1 << iota
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
)

const accessWrites = AccessShaderWrite | AccessColorAttachmentWrite |
	AccessDepthStencilWrite | AccessTransferWrite

var accessNames = []string{
	"ShaderRead", "ShaderWrite", "ColorAttachmentRead", "ColorAttachmentWrite",
	"DepthStencilRead", "DepthStencilWrite", "TransferRead", "TransferWrite",
}

// Writes reports whether a contains any write access.
func (a Access) Writes() bool { return a&accessWrites != 0 }

func (a Access) String() string {
	if a == AccessNone {
		return "None"
	}
	return bitNames(uint32(a), accessNames)
}

// Layout is the memory layout an image is kept in between operations.
type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthStencilAttachment:
		return "DepthStencilAttachment"
	case LayoutDepthStencilReadOnly:
		return "DepthStencilReadOnly"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutPresent:
		return "Present"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// Readable reports whether a shader may read an image kept in l.
func (l Layout) Readable() bool {
	return l == LayoutShaderReadOnly || l == LayoutGeneral || l == LayoutDepthStencilReadOnly
}

// textureUsage maps a layout to the hal usage that puts a texture into it.
// Present has no hal usage: the swapchain performs that transition itself.
func (l Layout) textureUsage() (gputypes.TextureUsage, bool) {
	switch l {
	case LayoutUndefined:
		return gputypes.TextureUsageNone, true
	case LayoutGeneral:
		return gputypes.TextureUsageStorageBinding, true
	case LayoutColorAttachment, LayoutDepthStencilAttachment, LayoutDepthStencilReadOnly:
		return gputypes.TextureUsageRenderAttachment, true
	case LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding, true
	case LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc, true
	case LayoutTransferDst:
		return gputypes.TextureUsageCopyDst, true
	default:
		return 0, false
	}
}

// Aspect selects the planes of an image a state applies to.
type Aspect uint8

const (
	AspectColor Aspect = iota
	AspectDepth
)

func (a Aspect) String() string {
	if a == AspectDepth {
		return "Depth"
	}
	return "Color"
}

func (a Aspect) textureAspect() gputypes.TextureAspect {
	if a == AspectDepth {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// AspectOf returns the natural aspect of a texture format.
func AspectOf(f gputypes.TextureFormat) Aspect {
	if f.HasDepth() {
		return AspectDepth
	}
	return AspectColor
}

// State is the recorded pipeline state of an image.
type State struct {
	Stage  Stage
	Access Access
	Layout Layout
	Aspect Aspect
}

func (s State) String() string {
	return fmt.Sprintf("{%v %v %v %v}", s.Stage, s.Access, s.Layout, s.Aspect)
}

func bitNames(v uint32, names []string) string {
	if v == 0 {
		return "None"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}
