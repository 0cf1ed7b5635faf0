// Package memtest builds synthetic process images for tests: mapped modules,
// heap blocks, pointer chains and encoded strings.
package memtest

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/goliatone/go-autosplit/pkg/memory"
)

// HeapBase is where Alloc starts handing out blocks.
const HeapBase memory.Address = 0x7f0000000000

type region struct {
	base memory.Address
	data []byte
}

func (r region) contains(addr memory.Address, n int) bool {
	return addr >= r.base && uint64(addr-r.base)+uint64(n) <= uint64(len(r.data))
}

// Image is an in-memory memory.Process. It is not safe for concurrent use.
type Image struct {
	regions []region
	modules []memory.Module
	next    memory.Address
	dead    bool
	reads   int
}

// New returns an empty image with a live process.
func New() *Image {
	return &Image{next: HeapBase}
}

// AddModule maps a zeroed module of size bytes at base.
func (im *Image) AddModule(name string, base memory.Address, size uint64) memory.Module {
	m := memory.Module{Name: name, Base: base, Size: size}
	im.modules = append(im.modules, m)
	im.mapRegion(base, int(size))
	return m
}

// Alloc maps a zeroed heap block and returns its address.
func (im *Image) Alloc(size int) memory.Address {
	if size <= 0 {
		size = 16
	}
	addr := im.next
	im.mapRegion(addr, size)
	// leave a gap so that overreads fail like unmapped memory
	im.next = addr.Add(uint64(align(size, 16) + 0x100))
	return addr
}

func (im *Image) mapRegion(base memory.Address, size int) {
	im.regions = append(im.regions, region{base: base, data: make([]byte, size)})
	sort.Slice(im.regions, func(i, j int) bool { return im.regions[i].base < im.regions[j].base })
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}

// ReadAt implements memory.Reader.
func (im *Image) ReadAt(addr memory.Address, buf []byte) error {
	im.reads++
	if im.dead {
		return &memory.ReadError{Addr: addr, Size: len(buf), Err: fmt.Errorf("process exited")}
	}
	for _, r := range im.regions {
		if r.contains(addr, len(buf)) {
			off := uint64(addr - r.base)
			copy(buf, r.data[off:off+uint64(len(buf))])
			return nil
		}
	}
	return &memory.ReadError{Addr: addr, Size: len(buf), Err: fmt.Errorf("unmapped")}
}

// Module implements memory.Process.
func (im *Image) Module(name string) (memory.Module, error) {
	for _, m := range im.modules {
		if memory.SameModule(m.Name, name) {
			return m, nil
		}
	}
	return memory.Module{}, fmt.Errorf("%w: %s", memory.ErrModuleNotFound, name)
}

// Alive implements memory.Process.
func (im *Image) Alive() bool { return !im.dead }

// Kill makes the process report as exited and fail every read.
func (im *Image) Kill() { im.dead = true }

// Reads returns how many ReadAt calls were served.
func (im *Image) Reads() int { return im.reads }

// Write copies b to addr. It panics when the destination is not mapped.
func (im *Image) Write(addr memory.Address, b []byte) {
	for _, r := range im.regions {
		if r.contains(addr, len(b)) {
			off := uint64(addr - r.base)
			copy(r.data[off:], b)
			return
		}
	}
	panic(fmt.Sprintf("memtest: write of %d bytes at %s is not mapped", len(b), addr))
}

func (im *Image) WritePointer(addr, value memory.Address) {
	im.WriteU64(addr, uint64(value))
}

func (im *Image) WriteU64(addr memory.Address, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	im.Write(addr, b[:])
}

func (im *Image) WriteU32(addr memory.Address, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	im.Write(addr, b[:])
}

func (im *Image) WriteI32(addr memory.Address, v int32) { im.WriteU32(addr, uint32(v)) }

func (im *Image) WriteF32(addr memory.Address, v float32) { im.WriteU32(addr, math.Float32bits(v)) }

func (im *Image) WriteBool(addr memory.Address, v bool) {
	if v {
		im.Write(addr, []byte{1})
		return
	}
	im.Write(addr, []byte{0})
}

// WriteCString writes s followed by a NUL byte.
func (im *Image) WriteCString(addr memory.Address, s string) {
	im.Write(addr, append([]byte(s), 0))
}

// NewCString allocates and writes a NUL terminated string.
func (im *Image) NewCString(s string) memory.Address {
	addr := im.Alloc(len(s) + 1)
	im.WriteCString(addr, s)
	return addr
}

// NewMonoString allocates a managed string object holding s.
func (im *Image) NewMonoString(s string) memory.Address {
	raw, err := memory.EncodeUTF16(s)
	if err != nil {
		panic(err)
	}
	addr := im.Alloc(memory.MonoStringDataOffset + len(raw) + 2)
	im.WriteI32(addr.Add(memory.MonoStringLengthOffset), int32(len(raw)/2))
	im.Write(addr.Add(memory.MonoStringDataOffset), raw)
	return addr
}

// Chain builds pointer blocks so that memory.Follow(im, base, offsets...)
// returns target. The pointer stored at base is overwritten; intermediate
// blocks are freshly allocated.
func (im *Image) Chain(base memory.Address, offsets []uint64, target memory.Address) {
	if len(offsets) == 0 {
		return
	}
	cur := base
	for i, off := range offsets {
		var block memory.Address
		if i == len(offsets)-1 {
			if uint64(target) < off {
				panic(fmt.Sprintf("memtest: target %s below offset %#x", target, off))
			}
			block = target - memory.Address(off)
		} else {
			block = im.Alloc(int(off) + memory.PointerSize)
		}
		im.WritePointer(cur, block)
		cur = block.Add(off)
	}
}
