package resolver

import (
	"context"
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/pkg/memory"
)

const scanChunk = 4096

// scan walks the whole module at the layout stride and returns the first
// candidate accepted by valid. Each candidate is passed together with the
// pointer value stored at it. Unreadable chunks are skipped.
func (r *Resolver) scan(ctx context.Context, mod memory.Module, table string, valid func(addr, word memory.Address) bool) (Anchor, bool, error) {
	stride := r.layout.stride()
	log := r.log.WithFields(logrus.Fields{
		"table":  table,
		"module": mod.Name,
		"size":   mod.Size,
	})
	log.Warn("offset table exhausted, scanning module")

	for start := uint64(0); start < mod.Size; start += scanChunk {
		if err := ctx.Err(); err != nil {
			return Anchor{}, false, err
		}
		end := min(start+scanChunk+memory.PointerSize, mod.Size)
		buf, err := memory.ReadBytes(r.proc, mod.Base.Add(start), int(end-start))
		if err != nil {
			continue
		}
		// first candidate at or after start on the stride grid
		first := (start + stride - 1) / stride * stride
		for off := first; off < start+scanChunk && off+memory.PointerSize <= end; off += stride {
			rel := off - start
			word := memory.Address(binary.LittleEndian.Uint64(buf[rel : rel+memory.PointerSize]))
			if word == 0 {
				continue
			}
			addr := mod.Base.Add(off)
			if valid(addr, word) {
				log.WithFields(logrus.Fields{
					"offset": memory.Address(off).String(),
					"addr":   addr.String(),
				}).Info("anchor found by scan, add the offset to the table")
				return Anchor{Addr: addr, Offset: off}, true, nil
			}
		}
	}
	return Anchor{}, false, nil
}
