package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrUnknownMacro is returned by Expand for names no script registered.
var ErrUnknownMacro = errors.New("scripting: unknown macro")

// Macro is a named dice shortcut registered by a script.
type Macro struct {
	// Name is the lowercase name used with the macro command.
	Name string
	// Help is the one-line description shown when listing macros.
	Help string
	// Notation is the fixed dice notation, or empty for function macros.
	Notation string
	// File is the script that registered the macro.
	File string

	fn *lua.LFunction
}

// Manager owns one sandboxed LState holding every loaded macro and expands
// macros into dice notation.
//
// Manager is safe for concurrent use. The LState is single-threaded, so
// macro calls are serialized.
type Manager struct {
	mu     sync.Mutex
	state  *lua.LState
	macros map[string]*Macro
	limit  int
	logger *zap.Logger
}

// NewManager creates a Manager with no macros loaded.
//
// Precondition: logger must be non-nil; instLimit >= 0 (0 uses DefaultInstructionLimit).
// Postcondition: Returns a non-nil Manager.
func NewManager(logger *zap.Logger, instLimit int) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		macros: make(map[string]*Macro),
		limit:  instLimit,
		logger: logger,
	}
}

// LoadDir creates a fresh VM, registers the rollbot module, then executes
// every *.lua file in dir in lexicographic order. On success the new VM and
// its macros replace the previously loaded set.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the number of macros loaded, or an error leaving
// the previous set in place.
func (m *Manager) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scripting: reading macro dir %q: %w", dir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := NewSandboxedState()
	macros := make(map[string]*Macro)
	loader := &macroLoader{macros: macros, logger: m.logger}
	loader.register(L)

	for _, path := range luaFiles {
		loader.file = path
		err := RunLimited(ctx, L, m.limit, func() error {
			return L.DoFile(path)
		})
		if err != nil {
			L.Close()
			return 0, fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	old := m.state
	m.state = L
	m.macros = macros
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}

	m.logger.Info("macros loaded",
		zap.String("dir", dir),
		zap.Int("files", len(luaFiles)),
		zap.Int("macros", len(macros)),
	)
	return len(macros), nil
}

// Macros returns the loaded macros sorted by name.
func (m *Manager) Macros() []Macro {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Macro, 0, len(m.macros))
	for _, mac := range m.macros {
		cp := *mac
		cp.fn = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Expand turns the macro name plus caller arguments into dice notation.
// Notation macros append args to their notation; function macros receive
// args as strings and must return a string.
//
// Postcondition: Returns notation, or ErrUnknownMacro, ErrInstructionLimit
// or a Lua runtime error.
func (m *Manager) Expand(ctx context.Context, name string, args []string) (string, error) {
	name = strings.ToLower(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	mac, ok := m.macros[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownMacro, name)
	}

	if mac.fn == nil {
		if len(args) == 0 {
			return mac.Notation, nil
		}
		return mac.Notation + " " + strings.Join(args, " "), nil
	}

	L := m.state
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = lua.LString(a)
	}

	var ret lua.LValue
	err := RunLimited(ctx, L, m.limit, func() error {
		if err := L.CallByParam(lua.P{Fn: mac.fn, NRet: 1, Protect: true}, largs...); err != nil {
			return err
		}
		ret = L.Get(-1)
		L.Pop(1)
		return nil
	})
	if err != nil {
		m.logger.Warn("macro failed",
			zap.String("macro", name),
			zap.String("file", mac.File),
			zap.Error(err),
		)
		return "", fmt.Errorf("scripting: macro %q: %w", name, err)
	}

	s, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("scripting: macro %q returned %s, want string", name, ret.Type())
	}
	if ce := m.logger.Check(zap.DebugLevel, "macro expanded"); ce != nil {
		ce.Write(zap.String("macro", name), zap.Strings("args", args), zap.String("notation", string(s)))
	}
	return string(s), nil
}

// Close releases the VM. Expand returns ErrUnknownMacro afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
	m.macros = make(map[string]*Macro)
}
