package memory

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// PointerSize is the width of a pointer in the target process.
const PointerSize = 8

var (
	// ErrReadFailed marks every failed read of target memory.
	ErrReadFailed = errors.New("memory: read failed")
	// ErrNullPointer is reported when a pointer chain hits a zero pointer.
	ErrNullPointer = errors.New("memory: null pointer")

	ErrModuleNotFound      = errors.New("memory: module not found")
	ErrProcessNotFound     = errors.New("memory: process not found")
	ErrUnsupportedPlatform = errors.New("memory: process attach not supported on this platform")
)

// Address is a location in the target process address space.
type Address uint64

// Add returns the address offset by off bytes.
func (a Address) Add(off uint64) Address {
	return a + Address(off)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Module describes a mapped image in the target process.
type Module struct {
	Name string
	Base Address
	Size uint64
}

// End returns the first address past the module.
func (m Module) End() Address {
	return m.Base.Add(m.Size)
}

// Contains reports whether [addr, addr+n) lies fully inside the module.
func (m Module) Contains(addr Address, n uint64) bool {
	return addr >= m.Base && uint64(addr-m.Base)+n <= m.Size
}

// Reader reads raw bytes from a target address space.
type Reader interface {
	ReadAt(addr Address, buf []byte) error
}

// Process is a handle on a running target process.
type Process interface {
	Reader
	Module(name string) (Module, error)
	Alive() bool
}

// ReadError reports a failed read together with its location.
type ReadError struct {
	Addr Address
	Size int
	Err  error
}

func (e *ReadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("memory: read %d bytes at %s failed", e.Size, e.Addr)
	}
	return fmt.Sprintf("memory: read %d bytes at %s: %v", e.Size, e.Addr, e.Err)
}

func (e *ReadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets every ReadError match ErrReadFailed.
func (e *ReadError) Is(target error) bool {
	return target == ErrReadFailed
}

func readError(addr Address, size int, err error) error {
	var re *ReadError
	if errors.As(err, &re) {
		return err
	}
	return &ReadError{Addr: addr, Size: size, Err: err}
}

// SameModule compares module names the way loaders report them: by base
// name and without regard to case.
func SameModule(a, b string) bool {
	return strings.EqualFold(filepath.Base(a), filepath.Base(b))
}
