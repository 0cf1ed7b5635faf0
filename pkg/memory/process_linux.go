//go:build linux

package memory

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type linuxProcess struct {
	pid     int
	modules []Module
}

// Attach finds a running process by name and opens it for reading. The name
// matches the kernel comm value, the executable base name or the first
// command line argument, which covers native and Wine hosted games.
func Attach(name string) (Process, error) {
	pid, err := FindPID(name)
	if err != nil {
		return nil, err
	}
	return AttachPID(pid)
}

// AttachPID opens the process with the given pid.
func AttachPID(pid int) (Process, error) {
	modules, err := readModules(pid)
	if err != nil {
		return nil, err
	}
	return &linuxProcess{pid: pid, modules: modules}, nil
}

// FindPID scans /proc for a process matching name.
func FindPID(name string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, fmt.Errorf("memory: list processes: %w", err)
	}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		if processMatches(pid, name) {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrProcessNotFound, name)
}

func processMatches(pid int, name string) bool {
	dir := filepath.Join("/proc", strconv.Itoa(pid))
	if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
		value := strings.TrimSpace(string(comm))
		// comm is truncated to 15 bytes by the kernel
		if value == name || (len(name) > 15 && value == name[:15]) {
			return true
		}
	}
	if exe, err := os.Readlink(filepath.Join(dir, "exe")); err == nil && SameModule(exe, name) {
		return true
	}
	if cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil && len(cmdline) > 0 {
		first, _, _ := bytes.Cut(cmdline, []byte{0})
		arg := strings.ReplaceAll(string(first), `\`, "/")
		if SameModule(arg, name) {
			return true
		}
	}
	return false
}

func readModules(pid int) ([]Module, error) {
	f, err := os.Open(filepath.Join("/proc", strconv.Itoa(pid), "maps"))
	if err != nil {
		return nil, fmt.Errorf("memory: open maps for %d: %w", pid, err)
	}
	defer f.Close()
	return parseMaps(f)
}

func (p *linuxProcess) ReadAt(addr Address, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		return &ReadError{Addr: addr, Size: len(buf), Err: err}
	}
	if n != len(buf) {
		return &ReadError{Addr: addr, Size: len(buf), Err: fmt.Errorf("short read %d", n)}
	}
	return nil
}

func (p *linuxProcess) Module(name string) (Module, error) {
	for _, m := range p.modules {
		if SameModule(m.Name, name) {
			return m, nil
		}
	}
	// modules may load after attach
	modules, err := readModules(p.pid)
	if err == nil {
		p.modules = modules
		for _, m := range p.modules {
			if SameModule(m.Name, name) {
				return m, nil
			}
		}
	}
	return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

func (p *linuxProcess) Alive() bool {
	if err := unix.Kill(p.pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	_, err := os.Stat(filepath.Join("/proc", strconv.Itoa(p.pid)))
	return err == nil
}
