package scripting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/rollbot/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug", "package"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	err := L.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
		local t = {}
		table.insert(t, 1)
		assert(#t == 1, "table.insert failed")
	`)
	assert.NoError(t, err)
}

func TestRunLimited_InstructionLimitExceeded(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	err := scripting.RunLimited(context.Background(), L, 10, func() error {
		return L.DoString(`while true do end`)
	})
	assert.ErrorIs(t, err, scripting.ErrInstructionLimit)
}

func TestRunLimited_DefaultLimit_NormalScriptRuns(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	err := scripting.RunLimited(context.Background(), L, 0, func() error {
		return L.DoString(`local x = 1 + 1`)
	})
	assert.NoError(t, err)
}

func TestRunLimited_BudgetIsPerRun(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	require.NoError(t, L.DoString(`function step(n) local s = 0 for i = 1, n do s = s + i end return s end`))

	for i := 0; i < 5; i++ {
		err := scripting.RunLimited(context.Background(), L, 500, func() error {
			return L.CallByParam(lua.P{Fn: L.GetGlobal("step"), NRet: 1, Protect: true}, lua.LNumber(20))
		})
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, lua.LNumber(210), L.Get(-1))
		L.Pop(1)
	}
}

func TestRunLimited_CancelledContext(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := scripting.RunLimited(ctx, L, 0, func() error {
		return L.DoString(`while true do end`)
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, scripting.ErrInstructionLimit)
}

func TestRunLimited_ContextRemoved(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	require.NoError(t, scripting.RunLimited(context.Background(), L, 0, func() error { return nil }))
	assert.Nil(t, L.Context())
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := scripting.NewSandboxedState()
		defer L.Close()
		err := scripting.RunLimited(context.Background(), L, limit, func() error {
			return L.DoString(`while true do end`)
		})
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
