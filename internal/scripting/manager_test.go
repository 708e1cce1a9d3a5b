package scripting_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/rollbot/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core), 0)
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func TestManager_NotationMacro(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "basic.lua", `
		rollbot.macro("attack", "d20 to hit", "1d20")
	`)
	n, err := mgr.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := mgr.Expand(context.Background(), "attack", nil)
	require.NoError(t, err)
	assert.Equal(t, "1d20", out)

	out, err = mgr.Expand(context.Background(), "ATTACK", []string{"1d4", "1d6"})
	require.NoError(t, err)
	assert.Equal(t, "1d20 1d4 1d6", out)
}

func TestManager_FunctionMacro(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "fn.lua", `
		rollbot.macro("fireball", "Nd6 fire damage, default 8", function(n)
			n = tonumber(n) or 8
			return n .. "d6"
		end)
	`)
	_, err := mgr.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	out, err := mgr.Expand(context.Background(), "fireball", nil)
	require.NoError(t, err)
	assert.Equal(t, "8d6", out)

	out, err = mgr.Expand(context.Background(), "fireball", []string{"3"})
	require.NoError(t, err)
	assert.Equal(t, "3d6", out)
}

func TestManager_CleanHelper(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "clean.lua", `
		rollbot.macro("echo", "cleaned args", function(...)
			return rollbot.clean(table.concat({...}, " "))
		end)
	`)
	_, err := mgr.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	out, err := mgr.Expand(context.Background(), "echo", []string{"2D6", "plus", "1d8!"})
	require.NoError(t, err)
	assert.Equal(t, "2d6 1d8", out)
}

func TestManager_UnknownMacro(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Expand(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, scripting.ErrUnknownMacro)
}

func TestManager_NonStringReturn(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `
		rollbot.macro("num", "returns a number", function() return 42 end)
	`)
	_, err := mgr.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	_, err = mgr.Expand(context.Background(), "num", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want string")
}

func TestManager_RuntimeError_WarnLog(t *testing.T) {
	mgr, logs := newTestManager(t)
	dir := writeTempLua(t, "err.lua", `
		rollbot.macro("boom", "always fails", function() error("intentional error") end)
	`)
	_, err := mgr.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	_, err = mgr.Expand(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("macro failed").Len())
}

func TestManager_RunawayMacroHitsLimit(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core), 1000)
	defer mgr.Close()
	dir := writeTempLua(t, "loop.lua", `
		rollbot.macro("spin", "never returns", function() while true do end end)
		rollbot.macro("ok", "fine", function() return "1d6" end)
	`)
	_, err := mgr.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	_, err = mgr.Expand(context.Background(), "spin", nil)
	assert.ErrorIs(t, err, scripting.ErrInstructionLimit)

	out, err := mgr.Expand(context.Background(), "ok", nil)
	require.NoError(t, err, "budget resets between calls")
	assert.Equal(t, "1d6", out)
}

func TestManager_LoadDir_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `this is not valid lua @@@@`},
		{"duplicate", `rollbot.macro("a", "", "1d4") rollbot.macro("a", "", "1d6")`},
		{"bad body", `rollbot.macro("a", "", 12)`},
		{"empty name", `rollbot.macro("", "", "1d4")`},
		{"spaced name", `rollbot.macro("two words", "", "1d4")`},
		{"sandboxed", `os.exit(1)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, _ := newTestManager(t)
			_, err := mgr.LoadDir(context.Background(), writeTempLua(t, "x.lua", tt.src))
			assert.Error(t, err)
		})
	}
}

func TestManager_LoadDir_FailureKeepsPreviousSet(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.LoadDir(context.Background(), writeTempLua(t, "good.lua", `rollbot.macro("a", "", "1d4")`))
	require.NoError(t, err)

	_, err = mgr.LoadDir(context.Background(), writeTempLua(t, "bad.lua", `@@@`))
	require.Error(t, err)

	out, err := mgr.Expand(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "1d4", out)
}

func TestManager_LoadDir_MissingDir(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.LoadDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestManager_LoadDir_MultipleFiles_OrderedByName(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`sides = 12`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`
		rollbot.macro("big", "uses a.lua", "1d" .. sides)
	`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0644))
	_, err := mgr.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	macros := mgr.Macros()
	require.Len(t, macros, 1)
	assert.Equal(t, "big", macros[0].Name)
	assert.Equal(t, "uses a.lua", macros[0].Help)
	assert.Equal(t, "1d12", macros[0].Notation)
	assert.Equal(t, filepath.Join(dir, "b.lua"), macros[0].File)
}

func TestManager_LuaLog(t *testing.T) {
	mgr, logs := newTestManager(t)
	_, err := mgr.LoadDir(context.Background(), writeTempLua(t, "log.lua", `
		rollbot.log.info("hello from lua")
		rollbot.log.warn("careful")
	`))
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("hello from lua").FilterField(zap.String("source", "lua")).Len())
	assert.Equal(t, 1, logs.FilterMessage("careful").Len())
}

func TestManager_Close(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.LoadDir(context.Background(), writeTempLua(t, "a.lua", `rollbot.macro("a", "", "1d4")`))
	require.NoError(t, err)
	mgr.Close()
	_, err = mgr.Expand(context.Background(), "a", nil)
	assert.ErrorIs(t, err, scripting.ErrUnknownMacro)
	assert.Empty(t, mgr.Macros())
}

func TestNewManager_PanicsOnNilLogger(t *testing.T) {
	assert.Panics(t, func() {
		scripting.NewManager(nil, 0)
	})
}

func TestProperty_ExpandConcurrent_NoRace(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.LoadDir(context.Background(), writeTempLua(t, "c.lua", `
		rollbot.macro("n", "Nd6", function(n) return n .. "d6" end)
	`))
	require.NoError(t, err)

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				out, err := mgr.Expand(context.Background(), "n", []string{"3"})
				assert.NoError(t, err)
				assert.Equal(t, "3d6", out)
			}
		}()
	}
	wg.Wait()
}

func TestProperty_NotationMacroAppendsArgs(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.LoadDir(context.Background(), writeTempLua(t, "p.lua", `rollbot.macro("base", "", "1d20")`))
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		args := rapid.SliceOfN(rapid.StringMatching(`[1-9]d[1-9]`), 0, 5).Draw(rt, "args")
		out, err := mgr.Expand(context.Background(), "base", args)
		require.NoError(rt, err)
		want := "1d20"
		for _, a := range args {
			want += " " + a
		}
		assert.Equal(rt, want, out)
	})
}
