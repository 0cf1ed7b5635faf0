package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Scalar lists the fixed-size values that can be read directly.
type Scalar interface {
	~bool | ~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64 | ~float32 | ~float64
}

// ReadBytes reads n bytes at addr.
func ReadBytes(r Reader, addr Address, n int) ([]byte, error) {
	if n < 0 {
		return nil, readError(addr, n, fmt.Errorf("negative size"))
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if err := r.ReadAt(addr, buf); err != nil {
		return nil, readError(addr, n, err)
	}
	return buf, nil
}

// Read decodes one little-endian scalar at addr.
func Read[T Scalar](r Reader, addr Address) (T, error) {
	var value T
	size := binary.Size(value)
	buf, err := ReadBytes(r, addr, size)
	if err != nil {
		return value, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &value); err != nil {
		return value, readError(addr, size, err)
	}
	return value, nil
}

// ReadAt follows offsets from base and decodes a scalar at the result.
func ReadAt[T Scalar](r Reader, base Address, offsets ...uint64) (T, error) {
	var zero T
	addr, err := Follow(r, base, offsets...)
	if err != nil {
		return zero, err
	}
	return Read[T](r, addr)
}

// ReadPointer reads a pointer-sized value at addr.
func ReadPointer(r Reader, addr Address) (Address, error) {
	value, err := Read[uint64](r, addr)
	if err != nil {
		return 0, err
	}
	return Address(value), nil
}

func ReadBool(r Reader, addr Address) (bool, error)   { return Read[bool](r, addr) }
func ReadU8(r Reader, addr Address) (uint8, error)    { return Read[uint8](r, addr) }
func ReadI32(r Reader, addr Address) (int32, error)   { return Read[int32](r, addr) }
func ReadU32(r Reader, addr Address) (uint32, error)  { return Read[uint32](r, addr) }
func ReadI64(r Reader, addr Address) (int64, error)   { return Read[int64](r, addr) }
func ReadU64(r Reader, addr Address) (uint64, error)  { return Read[uint64](r, addr) }
func ReadF32(r Reader, addr Address) (float32, error) { return Read[float32](r, addr) }

// Follow walks a pointer chain. For each offset the current address is
// dereferenced and the offset added, so the result is the address of the
// final value, not the value itself. A zero pointer at any level fails.
func Follow(r Reader, base Address, offsets ...uint64) (Address, error) {
	cur := base
	for _, off := range offsets {
		next, err := ReadPointer(r, cur)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			return 0, &ReadError{Addr: cur, Size: PointerSize, Err: ErrNullPointer}
		}
		cur = next.Add(off)
	}
	return cur, nil
}

// Path is a base address plus the offsets of a pointer chain.
type Path struct {
	Base    Address
	Offsets []uint64
}

// Resolve walks the chain and returns the final address.
func (p Path) Resolve(r Reader) (Address, error) {
	return Follow(r, p.Base, p.Offsets...)
}

func (p Path) String() string {
	return fmt.Sprintf("%s%x", p.Base, p.Offsets)
}
