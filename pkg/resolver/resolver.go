// Package resolver locates the active scene and game manager structures inside
// a running game and keeps them valid across scene loads.
//
// Every operation is retryable. A failed lookup reports ErrNotFound and leaves
// the resolver ready to try again on the next tick.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/internal/logging"
	"github.com/goliatone/go-autosplit/pkg/memory"
)

var (
	// ErrNotFound reports that an anchor could not be located this attempt.
	ErrNotFound = errors.New("resolver: anchor not found")
	// ErrPreMenu reports that the game is still in its intro scene, where the
	// manager structure may not exist yet.
	ErrPreMenu = fmt.Errorf("%w: pre-menu intro scene", ErrNotFound)
)

// Anchor is a validated root address inside the target process.
type Anchor struct {
	// Addr holds the root pointer.
	Addr memory.Address
	// Offset is Addr relative to the module base.
	Offset uint64

	dirty bool
}

// Found reports whether the anchor has been located.
func (a Anchor) Found() bool { return a.Addr != 0 }

// Dirty reports whether the anchor was invalidated and awaits AttemptClean.
func (a Anchor) Dirty() bool { return a.dirty }

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger routes resolver diagnostics to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Resolver) {
		r.log = logging.Component(log, "resolver")
	}
}

// Resolver owns the process handle and both anchors.
type Resolver struct {
	proc   memory.Process
	layout Layout
	log    logrus.FieldLogger

	scene   Anchor
	manager Anchor
}

// New returns a resolver over proc using layout.
func New(proc memory.Process, layout Layout, opts ...Option) *Resolver {
	r := &Resolver{
		proc:   proc,
		layout: layout,
		log:    logging.Component(nil, "resolver"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Layout returns the layout the resolver validates against.
func (r *Resolver) Layout() Layout { return r.layout }

// SceneAnchor returns the active scene anchor.
func (r *Resolver) SceneAnchor() Anchor { return r.scene }

// ManagerAnchor returns the game manager anchor.
func (r *Resolver) ManagerAnchor() Anchor { return r.manager }

// Reset discards both anchors. Call it when the process detaches.
func (r *Resolver) Reset() {
	r.scene = Anchor{}
	r.manager = Anchor{}
}

func (r *Resolver) module() (memory.Module, error) {
	mod, err := r.proc.Module(r.layout.Module)
	if err != nil {
		return memory.Module{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return mod, nil
}

// LocateActiveScene finds the active scene anchor, first through the offset
// table and then by scanning the module. Once found the anchor is kept until
// Reset.
func (r *Resolver) LocateActiveScene(ctx context.Context) (Anchor, error) {
	if r.scene.Found() {
		return r.scene, nil
	}
	mod, err := r.module()
	if err != nil {
		return Anchor{}, err
	}

	valid := func(addr memory.Address) bool { return r.validScene(addr) }
	if anchor, ok := r.fromTable(mod, r.layout.SceneOffsets, valid); ok {
		r.scene = anchor
		r.log.WithField("addr", anchor.Addr.String()).Info("active scene anchor located")
		return anchor, nil
	}

	anchor, ok, err := r.scan(ctx, mod, "scene", func(addr, word memory.Address) bool {
		return r.validSceneFrom(addr, word)
	})
	if err != nil {
		return Anchor{}, err
	}
	if !ok {
		return Anchor{}, ErrNotFound
	}
	r.scene = anchor
	return anchor, nil
}

// LocateGameManager finds the game manager anchor whose embedded scene name
// equals scene. It reports ErrPreMenu without scanning during the intro.
func (r *Resolver) LocateGameManager(ctx context.Context, scene string) (Anchor, error) {
	if scene == r.layout.PreMenuScene {
		return Anchor{}, ErrPreMenu
	}
	if scene == "" {
		return Anchor{}, ErrNotFound
	}
	mod, err := r.module()
	if err != nil {
		return Anchor{}, err
	}
	anchor, err := r.locateManager(ctx, mod, scene)
	if err != nil {
		return Anchor{}, err
	}
	r.manager = anchor
	return anchor, nil
}

func (r *Resolver) locateManager(ctx context.Context, mod memory.Module, scene string) (Anchor, error) {
	valid := func(addr memory.Address) bool { return r.validManager(addr, scene) }
	if anchor, ok := r.fromTable(mod, r.layout.ManagerOffsets, valid); ok {
		r.log.WithFields(logrus.Fields{
			"addr":  anchor.Addr.String(),
			"scene": scene,
		}).Info("game manager anchor located")
		return anchor, nil
	}
	anchor, ok, err := r.scan(ctx, mod, "manager", func(addr, word memory.Address) bool {
		return r.validManagerFrom(addr, word, scene)
	})
	if err != nil {
		return Anchor{}, err
	}
	if !ok {
		return Anchor{}, ErrNotFound
	}
	return anchor, nil
}

// MarkDirty invalidates the game manager anchor. The resolver never does this
// on its own.
func (r *Resolver) MarkDirty() {
	r.manager.dirty = true
}

// IsDirty reports whether the game manager anchor awaits AttemptClean.
func (r *Resolver) IsDirty() bool {
	return r.manager.dirty
}

// AttemptClean revalidates a dirty game manager anchor against scene. The
// strategies run cheapest first: the cached manager, the previous offset from
// a fresh module base, the offset table, then a scan. The dirty bit is
// cleared on the first success and kept on failure.
func (r *Resolver) AttemptClean(ctx context.Context, scene string) error {
	if !r.manager.dirty {
		return nil
	}
	if scene == r.layout.PreMenuScene {
		return ErrPreMenu
	}
	if scene == "" {
		return ErrNotFound
	}

	if r.manager.Found() && r.validManager(r.manager.Addr, scene) {
		r.manager.dirty = false
		return nil
	}

	mod, err := r.module()
	if err != nil {
		return err
	}
	if r.manager.Found() {
		addr := mod.Base.Add(r.manager.Offset)
		if mod.Contains(addr, memory.PointerSize) && r.validManager(addr, scene) {
			r.manager = Anchor{Addr: addr, Offset: r.manager.Offset}
			r.log.WithField("addr", addr.String()).Debug("game manager anchor revalidated at previous offset")
			return nil
		}
	}

	anchor, err := r.locateManager(ctx, mod, scene)
	if err != nil {
		return err
	}
	r.manager = anchor
	return nil
}

func (r *Resolver) fromTable(mod memory.Module, offsets []uint64, valid func(memory.Address) bool) (Anchor, bool) {
	for _, off := range offsets {
		addr := mod.Base.Add(off)
		if !mod.Contains(addr, memory.PointerSize) {
			continue
		}
		if valid(addr) {
			return Anchor{Addr: addr, Offset: off}, true
		}
	}
	return Anchor{}, false
}

func (r *Resolver) validScene(addr memory.Address) bool {
	word, err := memory.ReadPointer(r.proc, addr)
	if err != nil {
		return false
	}
	return r.validSceneFrom(addr, word)
}

// validSceneFrom checks a candidate whose pointer value was already read.
func (r *Resolver) validSceneFrom(addr, word memory.Address) bool {
	chars, err := followFrom(r.proc, addr, word, r.layout.SceneChain)
	if err != nil {
		return false
	}
	prefix := r.layout.ScenePrefix
	got, err := memory.ReadCString(r.proc, chars, max(len(prefix), 1))
	return err == nil && got == prefix
}

func (r *Resolver) validManager(addr memory.Address, scene string) bool {
	word, err := memory.ReadPointer(r.proc, addr)
	if err != nil {
		return false
	}
	return r.validManagerFrom(addr, word, scene)
}

func (r *Resolver) validManagerFrom(addr, word memory.Address, scene string) bool {
	manager, err := followFrom(r.proc, addr, word, r.layout.ManagerChain)
	if err != nil {
		return false
	}
	name, err := memory.ReadMonoStringRef(r.proc, manager.Add(r.layout.ManagerSceneName), r.layout.capacity())
	return err == nil && name == scene
}

// followFrom continues a pointer chain whose first dereference produced word.
// An empty chain resolves to addr itself.
func followFrom(rd memory.Reader, addr, word memory.Address, chain []uint64) (memory.Address, error) {
	if len(chain) == 0 {
		return addr, nil
	}
	if word == 0 {
		return 0, &memory.ReadError{Addr: addr, Size: memory.PointerSize, Err: memory.ErrNullPointer}
	}
	return memory.Follow(rd, word.Add(chain[0]), chain[1:]...)
}

// Manager returns the address of the game manager struct.
func (r *Resolver) Manager() (memory.Address, error) {
	if !r.manager.Found() {
		return 0, ErrNotFound
	}
	return memory.Follow(r.proc, r.manager.Addr, r.layout.ManagerChain...)
}

// ScenePath reads the active scene asset path.
func (r *Resolver) ScenePath() (string, error) {
	if !r.scene.Found() {
		return "", ErrNotFound
	}
	chars, err := memory.Follow(r.proc, r.scene.Addr, r.layout.SceneChain...)
	if err != nil {
		return "", err
	}
	p, err := memory.ReadCString(r.proc, chars, r.layout.capacity())
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(p, r.layout.ScenePrefix) {
		return "", &memory.ReadError{Addr: chars, Size: len(p), Err: fmt.Errorf("unexpected scene path %q", p)}
	}
	return p, nil
}

// CurrentScene reads the active scene name.
func (r *Resolver) CurrentScene() (string, error) {
	p, err := r.ScenePath()
	if err != nil {
		return "", err
	}
	return SceneName(p), nil
}

// ManagerScene reads the scene name stored in the game manager.
func (r *Resolver) ManagerScene() (string, error) {
	return r.managerString(r.layout.ManagerSceneName)
}

// NextScene reads the scene the game manager is loading, empty when idle.
func (r *Resolver) NextScene() (string, error) {
	return r.managerString(r.layout.ManagerNextScene)
}

func (r *Resolver) managerString(off uint64) (string, error) {
	manager, err := r.Manager()
	if err != nil {
		return "", err
	}
	return memory.ReadMonoStringRef(r.proc, manager.Add(off), r.layout.capacity())
}

// SceneName turns an asset path such as "Assets/Scenes/Town.unity" into the
// scene name "Town".
func SceneName(assetPath string) string {
	return strings.TrimSuffix(path.Base(assetPath), ".unity")
}
