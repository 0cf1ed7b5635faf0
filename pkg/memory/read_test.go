package memory_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-autosplit/pkg/memory"
	"github.com/goliatone/go-autosplit/pkg/memory/memtest"
)

func TestFollowWalksPointerChain(t *testing.T) {
	im := memtest.New()
	mod := im.AddModule("UnityPlayer.so", 0x400000, 0x1000)
	value := im.Alloc(64)
	im.WriteI32(value, 42)

	base := mod.Base.Add(0x80)
	im.Chain(base, []uint64{0x10, 0x28, 0x8}, value)

	got, err := memory.Follow(im, base, 0x10, 0x28, 0x8)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if got != value {
		t.Fatalf("expected %s, got %s", value, got)
	}
	n, err := memory.ReadAt[int32](im, base, 0x10, 0x28, 0x8)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d err=%v", n, err)
	}
}

func TestFollowReportsNullPointer(t *testing.T) {
	im := memtest.New()
	mod := im.AddModule("game", 0x400000, 0x100)

	_, err := memory.Follow(im, mod.Base, 0x10)
	if !errors.Is(err, memory.ErrNullPointer) {
		t.Fatalf("expected null pointer error, got %v", err)
	}
	if !errors.Is(err, memory.ErrReadFailed) {
		t.Fatalf("null pointer must also be a read failure, got %v", err)
	}
}

func TestReadFailureIsDistinctFromZero(t *testing.T) {
	im := memtest.New()
	addr := im.Alloc(8)

	ok, err := memory.ReadBool(im, addr)
	if err != nil || ok {
		t.Fatalf("expected false without error, got %v err=%v", ok, err)
	}
	_, err = memory.ReadBool(im, 0x10)
	var re *memory.ReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected ReadError, got %T %v", err, err)
	}
	if re.Addr != 0x10 {
		t.Fatalf("expected failing address 0x10, got %s", re.Addr)
	}
}

func TestReadCStringStopsAtNulAndCapacity(t *testing.T) {
	im := memtest.New()
	addr := im.NewCString("Assets/Scenes/Town.unity")

	got, err := memory.ReadCString(im, addr, 128)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "Assets/Scenes/Town.unity" {
		t.Fatalf("unexpected string %q", got)
	}
	got, err = memory.ReadCString(im, addr, 6)
	if err != nil || got != "Assets" {
		t.Fatalf("expected capacity bound, got %q err=%v", got, err)
	}
}

func TestReadCStringNearMappingEdge(t *testing.T) {
	im := memtest.New()
	// an allocation smaller than the read chunk
	addr := im.NewCString("abc")
	got, err := memory.ReadCString(im, addr, 200)
	if err != nil || got != "abc" {
		t.Fatalf("expected abc, got %q err=%v", got, err)
	}
}

func TestReadMonoString(t *testing.T) {
	im := memtest.New()
	obj := im.NewMonoString("Crossroads_01")
	got, err := memory.ReadMonoString(im, obj, 64)
	if err != nil || got != "Crossroads_01" {
		t.Fatalf("expected Crossroads_01, got %q err=%v", got, err)
	}

	if _, err := memory.ReadMonoString(im, obj, 4); !errors.Is(err, memory.ErrReadFailed) {
		t.Fatalf("expected overlong string to fail, got %v", err)
	}

	holder := im.Alloc(8)
	im.WritePointer(holder, obj)
	got, err = memory.ReadMonoStringRef(im, holder, 64)
	if err != nil || got != "Crossroads_01" {
		t.Fatalf("expected ref read, got %q err=%v", got, err)
	}
}

func TestParseModuleNamesAreCaseInsensitive(t *testing.T) {
	if !memory.SameModule("/games/hk/UnityPlayer.so", "unityplayer.so") {
		t.Fatalf("expected base name match")
	}
	if memory.SameModule("libc.so.6", "UnityPlayer.so") {
		t.Fatalf("unexpected match")
	}
	if !strings.Contains(memory.Address(0x10).String(), "0x10") {
		t.Fatalf("address should print in hex")
	}
}
