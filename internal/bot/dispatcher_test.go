package bot_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/rollbot/internal/bot"
	"github.com/cory-johannsen/rollbot/internal/command"
	"github.com/cory-johannsen/rollbot/internal/config"
	"github.com/cory-johannsen/rollbot/internal/dice"
	"github.com/cory-johannsen/rollbot/internal/scripting"
)

type stubMacros struct {
	expansions map[string]string
	err        error
}

func (s *stubMacros) Expand(_ context.Context, name string, args []string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	n, ok := s.expansions[name]
	if !ok {
		return "", scripting.ErrUnknownMacro
	}
	if len(args) > 0 {
		n += " " + strings.Join(args, " ")
	}
	return n, nil
}

func (s *stubMacros) Macros() []scripting.Macro {
	var out []scripting.Macro
	for name, n := range s.expansions {
		out = append(out, scripting.Macro{Name: name, Help: "rolls " + n, Notation: n})
	}
	return out
}

func newDispatcher(t *testing.T, cfg config.BotConfig, macros bot.MacroSource, seq ...int) *bot.Dispatcher {
	t.Helper()
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	logger := zaptest.NewLogger(t)
	if len(seq) == 0 {
		seq = []int{0}
	}
	roller := dice.NewLoggedRoller(dice.NewSequenceSource(seq...), logger, 1000)
	return bot.NewDispatcher(cfg, command.DefaultRegistry(), roller, macros, logger)
}

func TestDispatch_ChatIgnored(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	for _, line := range []string{"", "hello", "roll 2d6", "   ", "I want !roll"} {
		_, ok := d.Dispatch(context.Background(), "ana", line)
		assert.False(t, ok, "line %q should be ignored", line)
	}
}

func TestDispatch_BarePrefixIgnored(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	_, ok := d.Dispatch(context.Background(), "ana", "!")
	assert.False(t, ok)
}

func TestDispatch_Roll(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil, 2, 3, 11)
	reply, ok := d.Dispatch(context.Background(), "ana", "!roll 2d6 1d20")
	require.True(t, ok)
	assert.Equal(t, bot.KindResult, reply.Kind)
	assert.Equal(t, "Result: 19.\n2 x d6 - 7\n  3\n  4\n1 x d20 - 12", reply.Text)
	assert.False(t, reply.Quit)
}

func TestDispatch_RollAlias(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil, 4)
	reply, ok := d.Dispatch(context.Background(), "ana", "!r 1d20")
	require.True(t, ok)
	assert.Equal(t, "1 x d20 - 5", reply.Text)
}

func TestDispatch_RollError(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil, 0)
	reply, ok := d.Dispatch(context.Background(), "ana", "!roll 1d6 0d4")
	require.True(t, ok)
	assert.Equal(t, bot.KindError, reply.Kind)
	assert.Contains(t, reply.Text, "VALID DICE:\n1 x d6 - 1")
}

func TestDispatch_RollNothing(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	reply, ok := d.Dispatch(context.Background(), "ana", "!roll")
	require.True(t, ok)
	assert.Equal(t, bot.KindError, reply.Kind)
	assert.Equal(t, "Nothing to roll. Try something like 2d6 1d20.", reply.Text)
}

func TestDispatch_CodeBlock(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{CodeBlock: true}, nil, 4)
	reply, ok := d.Dispatch(context.Background(), "ana", "!roll 1d20")
	require.True(t, ok)
	assert.Equal(t, "```\n1 x d20 - 5\n```", reply.Text)

	reply, _ = d.Dispatch(context.Background(), "ana", "!roll")
	assert.True(t, strings.HasPrefix(reply.Text, "```\n"))
	assert.True(t, strings.HasSuffix(reply.Text, "\n```"))
}

func TestDispatch_CustomPrefix(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{Prefix: "rb:"}, nil, 4)
	_, ok := d.Dispatch(context.Background(), "ana", "!roll 1d20")
	assert.False(t, ok)
	reply, ok := d.Dispatch(context.Background(), "ana", "rb:roll 1d20")
	require.True(t, ok)
	assert.Equal(t, "1 x d20 - 5", reply.Text)
}

func TestDispatch_AmI(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	reply, ok := d.Dispatch(context.Background(), "ana", "!ami a wizard?")
	require.True(t, ok)
	assert.Equal(t, bot.KindInfo, reply.Kind)
	assert.Equal(t, "Yes, ana, you are a wizard.", reply.Text)
}

func TestAmI(t *testing.T) {
	tests := []struct {
		author, text, want string
	}{
		{"ana", "cool?", "Yes, ana, you are cool."},
		{"bo", "  the best??  ", "Yes, bo, you are the best."},
		{"cy", "", "Yes, cy, you are ."},
		{"di", "what? really?", "Yes, di, you are what really."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bot.AmI(tt.author, tt.text))
	}
}

func TestDispatch_Help(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	reply, ok := d.Dispatch(context.Background(), "ana", "!help")
	require.True(t, ok)
	for _, want := range []string{"!roll, !r <dice...>", "!ami", "!macro, !m", "!quit, !exit"} {
		assert.Contains(t, reply.Text, want)
	}
}

func TestDispatch_Unknown(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	reply, ok := d.Dispatch(context.Background(), "ana", "!fireball 8d6")
	require.True(t, ok)
	assert.Equal(t, `Unknown command "fireball". Try !help.`, reply.Text)
}

func TestDispatch_Quit(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	reply, ok := d.Dispatch(context.Background(), "ana", "!quit")
	require.True(t, ok)
	assert.True(t, reply.Quit)
}

func TestDispatch_MacroNoneLoaded(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil)
	reply, ok := d.Dispatch(context.Background(), "ana", "!macro attack")
	require.True(t, ok)
	assert.Equal(t, "No macros are loaded.", reply.Text)
}

func TestDispatch_MacroExpandsAndRolls(t *testing.T) {
	macros := &stubMacros{expansions: map[string]string{"attack": "1d20"}}
	d := newDispatcher(t, config.BotConfig{}, macros, 4, 2)
	reply, ok := d.Dispatch(context.Background(), "ana", "!m attack 1d4")
	require.True(t, ok)
	assert.Equal(t, bot.KindResult, reply.Kind)
	assert.Equal(t, "Result: 8.\n1 x d20 - 5\n1 x d4 - 3", reply.Text)
}

func TestDispatch_MacroList(t *testing.T) {
	macros := &stubMacros{expansions: map[string]string{"attack": "1d20"}}
	d := newDispatcher(t, config.BotConfig{}, macros)
	reply, ok := d.Dispatch(context.Background(), "ana", "!macro")
	require.True(t, ok)
	assert.Contains(t, reply.Text, "Macros:")
	assert.Contains(t, reply.Text, "attack")
	assert.Contains(t, reply.Text, "rolls 1d20")
}

func TestDispatch_MacroUnknown(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, &stubMacros{expansions: map[string]string{}})
	reply, ok := d.Dispatch(context.Background(), "ana", "!macro nope")
	require.True(t, ok)
	assert.Equal(t, bot.KindError, reply.Kind)
	assert.Contains(t, reply.Text, `No macro named "nope"`)
}

func TestDispatch_MacroFailure(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, &stubMacros{err: errors.New("lua exploded")})
	reply, ok := d.Dispatch(context.Background(), "ana", "!macro boom")
	require.True(t, ok)
	assert.Equal(t, bot.KindError, reply.Kind)
	assert.Equal(t, `Macro "boom" failed.`, reply.Text)
}

func TestProperty_RollRepliesAreNeverEmpty(t *testing.T) {
	d := newDispatcher(t, config.BotConfig{}, nil, 1, 2, 3)
	rapid.Check(t, func(rt *rapid.T) {
		operand := rapid.StringMatching(`[0-9dxyz ]{0,24}`).Draw(rt, "operand")
		reply, ok := d.Dispatch(context.Background(), "ana", "!roll "+operand)
		require.True(rt, ok)
		assert.NotEmpty(rt, reply.Text)
		assert.NotEqual(rt, bot.KindInfo, reply.Kind)
	})
}
