// Package bot turns chat lines into replies. It is transport-agnostic:
// the telnet session handler and any other front end feed it lines and
// deliver whatever it returns.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rollbot/internal/command"
	"github.com/cory-johannsen/rollbot/internal/config"
	"github.com/cory-johannsen/rollbot/internal/scripting"
)

// Evaluator rolls a full dice command line such as "!roll 2d6".
type Evaluator interface {
	Evaluate(ctx context.Context, raw string) (string, error)
}

// MacroSource expands named macros into dice notation.
type MacroSource interface {
	Expand(ctx context.Context, name string, args []string) (string, error)
	Macros() []scripting.Macro
}

// ReplyKind classifies a reply so front ends can style it.
type ReplyKind int

const (
	// KindResult is a successful roll.
	KindResult ReplyKind = iota
	// KindError is a failed roll or command.
	KindError
	// KindInfo is help text, listings and conversational replies.
	KindInfo
)

// Reply is the bot's answer to one line.
type Reply struct {
	Text string
	Kind ReplyKind
	// Quit asks the front end to end the session after sending Text.
	Quit bool
}

// Dispatcher resolves prefixed commands and runs them.
type Dispatcher struct {
	cfg      config.BotConfig
	registry *command.Registry
	roller   Evaluator
	macros   MacroSource
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher. macros may be nil, in which case the
// macro command reports that no macros are loaded.
//
// Precondition: registry, roller and logger must be non-nil; cfg.Prefix non-empty.
func NewDispatcher(cfg config.BotConfig, registry *command.Registry, roller Evaluator, macros MacroSource, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		roller:   roller,
		macros:   macros,
		logger:   logger,
	}
}

// Dispatch handles one chat line from author.
//
// Postcondition: ok is false when line is ordinary chat (no prefix) and
// nothing should be sent.
func (d *Dispatcher) Dispatch(ctx context.Context, author, line string) (Reply, bool) {
	parsed := command.Parse(line, d.cfg.Prefix)
	if !parsed.Prefixed {
		return Reply{}, false
	}
	if parsed.Command == "" {
		return Reply{}, false
	}

	cmd, ok := d.registry.Resolve(parsed.Command)
	if !ok {
		return d.info(fmt.Sprintf("Unknown command %q. Try %shelp.", parsed.Command, d.cfg.Prefix)), true
	}

	switch cmd.Handler {
	case command.HandlerRoll:
		return d.roll(ctx, author, strings.TrimSpace(line)), true
	case command.HandlerMacro:
		return d.macro(ctx, author, parsed), true
	case command.HandlerAmI:
		return d.info(AmI(author, parsed.RawArgs)), true
	case command.HandlerHelp:
		return d.info(d.help()), true
	case command.HandlerQuit:
		return Reply{Text: "Goodbye!", Kind: KindInfo, Quit: true}, true
	default:
		d.logger.Error("command has no handler",
			zap.String("command", cmd.Name),
			zap.String("handler", cmd.Handler),
		)
		return d.info(fmt.Sprintf("%s is not available.", cmd.Name)), true
	}
}

func (d *Dispatcher) roll(ctx context.Context, author, raw string) Reply {
	out, err := d.roller.Evaluate(ctx, raw)
	if err != nil {
		d.logger.Debug("roll rejected", zap.String("author", author), zap.Error(err))
		return Reply{Text: d.wrap(err.Error()), Kind: KindError}
	}
	return Reply{Text: d.wrap(out), Kind: KindResult}
}

func (d *Dispatcher) macro(ctx context.Context, author string, parsed command.ParseResult) Reply {
	if d.macros == nil {
		return d.info("No macros are loaded.")
	}
	if len(parsed.Args) == 0 {
		return d.info(d.listMacros())
	}

	name := parsed.Args[0]
	notation, err := d.macros.Expand(ctx, name, parsed.Args[1:])
	if err != nil {
		if errors.Is(err, scripting.ErrUnknownMacro) {
			return Reply{Text: fmt.Sprintf("No macro named %q. Try %smacro to list them.", name, d.cfg.Prefix), Kind: KindError}
		}
		return Reply{Text: fmt.Sprintf("Macro %q failed.", name), Kind: KindError}
	}
	d.logger.Debug("macro dispatched",
		zap.String("author", author),
		zap.String("macro", name),
		zap.String("notation", notation),
	)
	// The evaluator strips the leading word, so the macro name stands in
	// for the command token.
	return d.roll(ctx, author, name+" "+notation)
}

func (d *Dispatcher) listMacros() string {
	macros := d.macros.Macros()
	if len(macros) == 0 {
		return "No macros are loaded."
	}
	var b strings.Builder
	b.WriteString("Macros:")
	for _, m := range macros {
		fmt.Fprintf(&b, "\n  %-12s %s", m.Name, m.Help)
	}
	return b.String()
}

func (d *Dispatcher) help() string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, cmd := range d.registry.Commands() {
		names := d.cfg.Prefix + cmd.Name
		for _, a := range cmd.Aliases {
			names += ", " + d.cfg.Prefix + a
		}
		if cmd.Usage != "" {
			names += " " + cmd.Usage
		}
		fmt.Fprintf(&b, "\n  %-28s %s", names, cmd.Help)
	}
	return b.String()
}

func (d *Dispatcher) info(text string) Reply {
	return Reply{Text: d.wrap(text), Kind: KindInfo}
}

func (d *Dispatcher) wrap(text string) string {
	if !d.cfg.CodeBlock {
		return text
	}
	return CodeBlock(text)
}

// CodeBlock fences text in a ``` block.
func CodeBlock(text string) string {
	return "```\n" + text + "\n```"
}

// AmI answers "!ami <text>" with "Yes, <author>, you are <text>." where
// question marks are dropped from text.
func AmI(author, text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "?", ""))
	return fmt.Sprintf("Yes, %s, you are %s.", author, text)
}
