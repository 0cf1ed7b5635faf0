package resolver

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-autosplit/pkg/memory"
)

// Kind is the stored type of a field reading.
type Kind int

const (
	KindBool Kind = iota
	KindI32
	KindU32
	KindI64
	KindF32
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindI32:
		return "i32"
	case KindU32:
		return "u32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name into its Kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "bool":
		return KindBool, nil
	case "i32", "int", "int32":
		return KindI32, nil
	case "u32", "uint32":
		return KindU32, nil
	case "i64", "int64":
		return KindI64, nil
	case "f32", "float", "float32":
		return KindF32, nil
	case "string":
		return KindString, nil
	default:
		return 0, fmt.Errorf("resolver: unknown field kind %q", value)
	}
}

// Field names a typed value reachable from the game manager. The first offset
// is relative to the manager struct; each following offset dereferences the
// current address first, as in memory.Follow.
type Field struct {
	Name    string
	Kind    Kind
	Offsets []uint64
}

// ReadField reads f relative to the game manager. Integers are widened to
// int64 and floats to float64 so that callers compare a single type per
// family.
func (r *Resolver) ReadField(f Field) (any, error) {
	if len(f.Offsets) == 0 {
		return nil, fmt.Errorf("resolver: field %q has no offsets", f.Name)
	}
	manager, err := r.Manager()
	if err != nil {
		return nil, err
	}
	addr, err := memory.Follow(r.proc, manager.Add(f.Offsets[0]), f.Offsets[1:]...)
	if err != nil {
		return nil, err
	}

	switch f.Kind {
	case KindBool:
		return memory.ReadBool(r.proc, addr)
	case KindI32:
		v, err := memory.ReadI32(r.proc, addr)
		return int64(v), err
	case KindU32:
		v, err := memory.ReadU32(r.proc, addr)
		return int64(v), err
	case KindI64:
		return memory.ReadI64(r.proc, addr)
	case KindF32:
		v, err := memory.ReadF32(r.proc, addr)
		return float64(v), err
	case KindString:
		return memory.ReadMonoStringRef(r.proc, addr, r.layout.capacity())
	default:
		return nil, fmt.Errorf("resolver: field %q has unknown kind %d", f.Name, f.Kind)
	}
}

// Readings maps field names to their values for one tick.
type Readings map[string]any

// ReadFields reads every field, skipping those that fail this tick. The
// returned slice lists the names of failed fields.
func (r *Resolver) ReadFields(fields []Field) (Readings, []string) {
	out := make(Readings, len(fields))
	var failed []string
	for _, f := range fields {
		v, err := r.ReadField(f)
		if err != nil {
			failed = append(failed, f.Name)
			continue
		}
		out[f.Name] = v
	}
	return out, failed
}
