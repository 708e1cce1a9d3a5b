package scripting

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/rollbot/internal/dice"
)

// macroLoader collects macros registered while a directory loads.
type macroLoader struct {
	macros map[string]*Macro
	logger *zap.Logger
	file   string
}

// register installs the rollbot global table into L:
//
//	rollbot.macro(name, help, notation|function)
//	rollbot.clean(text)            -- dice-notation cleaning
//	rollbot.log.debug|info|warn(msg)
//
// Precondition: L must be from NewSandboxedState.
func (ml *macroLoader) register(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "macro", L.NewFunction(ml.luaMacro))
	L.SetField(mod, "clean", L.NewFunction(luaClean))

	logTbl := L.NewTable()
	L.SetField(logTbl, "debug", L.NewFunction(ml.luaLog(zap.DebugLevel)))
	L.SetField(logTbl, "info", L.NewFunction(ml.luaLog(zap.InfoLevel)))
	L.SetField(logTbl, "warn", L.NewFunction(ml.luaLog(zap.WarnLevel)))
	L.SetField(mod, "log", logTbl)

	L.SetGlobal("rollbot", mod)
}

func (ml *macroLoader) luaMacro(L *lua.LState) int {
	name := strings.ToLower(strings.TrimSpace(L.CheckString(1)))
	help := L.CheckString(2)
	if name == "" || strings.ContainsAny(name, " \t") {
		L.ArgError(1, "macro name must be a single non-empty word")
		return 0
	}
	if prev, ok := ml.macros[name]; ok {
		L.RaiseError("macro %q already registered by %s", name, prev.File)
		return 0
	}

	mac := &Macro{Name: name, Help: help, File: ml.file}
	switch body := L.Get(3).(type) {
	case lua.LString:
		mac.Notation = string(body)
	case *lua.LFunction:
		mac.fn = body
	default:
		L.ArgError(3, "notation string or function expected")
		return 0
	}
	ml.macros[name] = mac
	return 0
}

func luaClean(L *lua.LState) int {
	L.Push(lua.LString(dice.Clean(L.CheckString(1))))
	return 1
}

func (ml *macroLoader) luaLog(level zapcore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		if ce := ml.logger.Check(level, msg); ce != nil {
			ce.Write(zap.String("source", "lua"))
		}
		return 0
	}
}
