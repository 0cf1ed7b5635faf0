package resolver

import (
	"github.com/goliatone/go-autosplit/layering"
)

// Layout describes where the anchors live in a given game build and how to
// validate them.
type Layout struct {
	// Module is the image whose address range holds both anchor tables.
	Module string

	// SceneOffsets are candidate offsets of the active scene root relative to
	// the module base. SceneChain is followed from a candidate to reach the
	// characters of the active scene path, which must start with ScenePrefix.
	SceneOffsets []uint64
	SceneChain   []uint64
	ScenePrefix  string

	// ManagerOffsets are candidate offsets of the game manager root.
	// ManagerChain is followed from a candidate to reach the manager struct.
	ManagerOffsets []uint64
	ManagerChain   []uint64
	// ManagerSceneName and ManagerNextScene are field offsets inside the
	// manager struct, each holding a pointer to a managed string.
	ManagerSceneName uint64
	ManagerNextScene uint64

	// PreMenuScene is the intro scene during which no manager exists.
	PreMenuScene string

	ScanStride     uint64
	StringCapacity int
}

// DefaultLayout returns the layout of the supported 64-bit builds.
func DefaultLayout() Layout {
	return Layout{
		Module: "UnityPlayer.so",
		SceneOffsets: []uint64{
			0x01a058e0,
			0x01a0a5e0,
			0x019f9c60,
			0x01a14320,
		},
		SceneChain:  []uint64{0x48, 0x10, 0x0},
		ScenePrefix: "Assets/",
		ManagerOffsets: []uint64{
			0x01a1c0a8,
			0x01a1f6b8,
			0x01a0e130,
		},
		ManagerChain:     []uint64{0x20, 0x18, 0x10},
		ManagerSceneName: 0x1e8,
		ManagerNextScene: 0x1f0,
		PreMenuScene:     "Pre_Menu_Intro",
		ScanStride:       8,
		StringCapacity:   255,
	}
}

// LayoutWith layers override over DefaultLayout. Zero and empty fields of
// override keep the default value.
func LayoutWith(override Layout) Layout {
	return layering.MergeLayers(override, DefaultLayout())
}

func (l Layout) stride() uint64 {
	if l.ScanStride == 0 {
		return 8
	}
	return l.ScanStride
}

func (l Layout) capacity() int {
	if l.StringCapacity <= 0 {
		return 255
	}
	return l.StringCapacity
}
