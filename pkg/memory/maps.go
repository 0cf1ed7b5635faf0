package memory

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// parseMaps groups the file backed mappings of a /proc/<pid>/maps listing
// into modules. A module spans from its lowest to its highest mapping, so it
// may contain unmapped gaps.
func parseMaps(r io.Reader) ([]Module, error) {
	var modules []Module
	index := map[string]int{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		start, end, path, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}
		name := filepath.Base(path)
		if i, seen := index[path]; seen {
			m := &modules[i]
			if start < m.Base {
				m.Size += uint64(m.Base - start)
				m.Base = start
			}
			if end > m.End() {
				m.Size = uint64(end - m.Base)
			}
			continue
		}
		index[path] = len(modules)
		modules = append(modules, Module{Name: name, Base: start, Size: uint64(end - start)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("memory: parse maps: %w", err)
	}
	return modules, nil
}

func parseMapsLine(line string) (start, end Address, path string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return 0, 0, "", false
	}
	lo, hi, found := strings.Cut(fields[0], "-")
	if !found {
		return 0, 0, "", false
	}
	s, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return 0, 0, "", false
	}
	e, err := strconv.ParseUint(hi, 16, 64)
	if err != nil || e <= s {
		return 0, 0, "", false
	}
	path = strings.Join(fields[5:], " ")
	if strings.HasPrefix(path, "[") {
		return 0, 0, "", false
	}
	return Address(s), Address(e), path, true
}
