// Package handlers provides Telnet session handling for the roll bot.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rollbot/internal/bot"
	"github.com/cory-johannsen/rollbot/internal/config"
	"github.com/cory-johannsen/rollbot/internal/frontend/telnet"
)

// MaxNameLength bounds the display name a client may choose.
const MaxNameLength = 32

// Dispatcher answers chat lines. *bot.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, author, line string) (bot.Reply, bool)
}

// RollSessionHandler implements telnet.SessionHandler. It asks the client
// for a display name, then feeds every line to the dispatcher and writes
// back its replies.
type RollSessionHandler struct {
	cfg        config.BotConfig
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewRollSessionHandler creates a RollSessionHandler.
//
// Precondition: dispatcher and logger must be non-nil.
// Postcondition: Returns a handler ready to serve sessions.
func NewRollSessionHandler(cfg config.BotConfig, dispatcher Dispatcher, logger *zap.Logger) *RollSessionHandler {
	return &RollSessionHandler{cfg: cfg, dispatcher: dispatcher, logger: logger}
}

// HandleSession implements telnet.SessionHandler.
//
// Postcondition: Returns nil on clean quit, or an error if the session ended abnormally.
func (h *RollSessionHandler) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	start := time.Now()
	addr := conn.RemoteAddr().String()

	if h.cfg.Greeting != "" {
		if err := conn.WriteLine(h.colorize(telnet.Cyan, h.cfg.Greeting)); err != nil {
			return fmt.Errorf("sending greeting: %w", err)
		}
	}

	name, err := h.askName(ctx, conn)
	if err != nil {
		return err
	}
	logger := h.logger.With(zap.String("remote_addr", addr), zap.String("author", name))
	logger.Info("author joined")

	if err := conn.WriteLine(h.colorize(telnet.Cyan, fmt.Sprintf("Welcome, %s. Type %shelp for commands.", name, h.cfg.Prefix))); err != nil {
		return fmt.Errorf("sending welcome: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteLine(h.colorize(telnet.Yellow, "Server shutting down. Goodbye!"))
			return ctx.Err()
		default:
		}

		if err := conn.WritePrompt(h.colorize(telnet.BrightWhite, "> ")); err != nil {
			return fmt.Errorf("writing prompt: %w", err)
		}

		line, err := conn.ReadLine()
		if errors.Is(err, telnet.ErrLineTooLong) {
			if err := conn.WriteLine(h.colorize(telnet.Red, "That line is too long.")); err != nil {
				return fmt.Errorf("writing reply: %w", err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		reply, ok := h.dispatcher.Dispatch(ctx, name, line)
		if !ok {
			continue
		}
		if err := conn.WriteLine(h.render(reply)); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
		if reply.Quit {
			logger.Info("author quit", zap.Duration("session_duration", time.Since(start)))
			return nil
		}
	}
}

// askName prompts until the client gives a non-empty display name.
func (h *RollSessionHandler) askName(ctx context.Context, conn *telnet.Conn) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := conn.WritePrompt(h.colorize(telnet.BrightWhite, "What should I call you? ")); err != nil {
			return "", fmt.Errorf("writing name prompt: %w", err)
		}
		line, err := conn.ReadLine()
		if err != nil && !errors.Is(err, telnet.ErrLineTooLong) {
			return "", fmt.Errorf("reading name: %w", err)
		}
		if name := CleanName(line); name != "" {
			return name, nil
		}
	}
}

// CleanName collapses whitespace, drops escape sequences and caps the length.
func CleanName(raw string) string {
	name := strings.Join(strings.Fields(telnet.StripANSI(raw)), " ")
	if r := []rune(name); len(r) > MaxNameLength {
		name = strings.TrimSpace(string(r[:MaxNameLength]))
	}
	return name
}

func (h *RollSessionHandler) render(reply bot.Reply) string {
	switch reply.Kind {
	case bot.KindResult:
		return h.colorize(telnet.Green, reply.Text)
	case bot.KindError:
		return h.colorize(telnet.Red, reply.Text)
	default:
		return h.colorize(telnet.Cyan, reply.Text)
	}
}

func (h *RollSessionHandler) colorize(color, text string) string {
	if !h.cfg.Color {
		return text
	}
	return telnet.Colorize(color, text)
}
