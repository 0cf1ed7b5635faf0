package memory

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Mono string object layout on 64-bit runtimes.
const (
	MonoStringLengthOffset = 0x10
	MonoStringDataOffset   = 0x14
)

const cstringChunk = 64

// ReadCString reads a NUL terminated byte string of at most capacity bytes.
// Reads are chunked so that a string ending near the end of a mapping can
// still be decoded.
func ReadCString(r Reader, addr Address, capacity int) (string, error) {
	if capacity <= 0 {
		return "", readError(addr, capacity, fmt.Errorf("capacity must be positive"))
	}
	out := make([]byte, 0, min(capacity, cstringChunk))
	for len(out) < capacity {
		n := min(cstringChunk, capacity-len(out))
		chunk, err := ReadBytes(r, addr.Add(uint64(len(out))), n)
		if err != nil {
			if n > 1 {
				// retry byte by byte up to the mapping edge
				for len(out) < capacity {
					b, berr := Read[uint8](r, addr.Add(uint64(len(out))))
					if berr != nil {
						return "", berr
					}
					if b == 0 {
						return string(out), nil
					}
					out = append(out, b)
				}
				break
			}
			return "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk...)
	}
	return string(out), nil
}

// ReadMonoString decodes a managed string object at addr. Strings longer
// than capacity characters are rejected as torn or foreign reads.
func ReadMonoString(r Reader, addr Address, capacity int) (string, error) {
	length, err := ReadI32(r, addr.Add(MonoStringLengthOffset))
	if err != nil {
		return "", err
	}
	if length < 0 || int(length) > capacity {
		return "", &ReadError{Addr: addr, Size: int(length) * 2, Err: fmt.Errorf("string length %d out of range", length)}
	}
	if length == 0 {
		return "", nil
	}
	raw, err := ReadBytes(r, addr.Add(MonoStringDataOffset), int(length)*2)
	if err != nil {
		return "", err
	}
	return DecodeUTF16(raw)
}

// ReadMonoStringRef reads the pointer stored at addr and decodes the string
// object it points to.
func ReadMonoStringRef(r Reader, addr Address, capacity int) (string, error) {
	ptr, err := ReadPointer(r, addr)
	if err != nil {
		return "", err
	}
	if ptr == 0 {
		return "", &ReadError{Addr: addr, Size: PointerSize, Err: ErrNullPointer}
	}
	return ReadMonoString(r, ptr, capacity)
}

// DecodeUTF16 decodes little-endian UTF-16 bytes.
func DecodeUTF16(raw []byte) (string, error) {
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("memory: decode utf-16: %w", err)
	}
	return string(decoded), nil
}

// EncodeUTF16 is the inverse of DecodeUTF16.
func EncodeUTF16(s string) ([]byte, error) {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("memory: encode utf-16: %w", err)
	}
	return encoded, nil
}
