// Package main provides the roll bot: a Telnet chat front end that answers
// prefixed dice commands, plus an optional WebSocket chat front end and an
// optional gRPC roll service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rollbot/internal/bot"
	"github.com/cory-johannsen/rollbot/internal/command"
	"github.com/cory-johannsen/rollbot/internal/config"
	"github.com/cory-johannsen/rollbot/internal/dice"
	"github.com/cory-johannsen/rollbot/internal/frontend/handlers"
	"github.com/cory-johannsen/rollbot/internal/frontend/telnet"
	"github.com/cory-johannsen/rollbot/internal/frontend/wschat"
	"github.com/cory-johannsen/rollbot/internal/observability"
	"github.com/cory-johannsen/rollbot/internal/rollserver"
	"github.com/cory-johannsen/rollbot/internal/scripting"
	"github.com/cory-johannsen/rollbot/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty uses defaults and ROLLBOT_ environment overrides")
	macroDir := flag.String("macros", "", "directory of Lua macro files; overrides scripting.macro_dir")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *macroDir != "" {
		cfg.Scripting.MacroDir = *macroDir
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting roll bot",
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.Bool("grpc_enabled", cfg.GRPC.Enabled),
		zap.String("prefix", cfg.Bot.Prefix),
		zap.String("dice_source", cfg.Dice.Source),
		zap.Bool("tracing", cfg.Tracing.Endpoint != ""),
	)

	ctx := context.Background()
	shutdownTelemetry, err := observability.SetupTelemetry(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing telemetry", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("flushing telemetry", zap.Error(err))
		}
	}()

	roller := dice.NewLoggedRoller(newSource(cfg.Dice), logger, cfg.Dice.MaxDice)

	var macros bot.MacroSource
	if cfg.Scripting.MacroDir != "" {
		mgr := scripting.NewManager(logger, cfg.Scripting.InstructionLimit)
		defer mgr.Close()
		if _, err := mgr.LoadDir(ctx, cfg.Scripting.MacroDir); err != nil {
			logger.Fatal("loading macros", zap.Error(err))
		}
		macros = mgr
	}

	dispatcher := bot.NewDispatcher(cfg.Bot, command.DefaultRegistry(), roller, macros, logger)
	sessionHandler := handlers.NewRollSessionHandler(cfg.Bot, dispatcher, logger)
	telnetAcceptor := telnet.NewAcceptor(cfg.Telnet, sessionHandler, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("telnet", &server.FuncService{
		StartFn: func() error {
			return telnetAcceptor.ListenAndServe()
		},
		StopFn: func() {
			telnetAcceptor.Stop()
		},
	})

	if cfg.WebSocket.Enabled {
		wsServer := wschat.NewServer(cfg.WebSocket, dispatcher, logger)
		lifecycle.Add("websocket", &server.FuncService{
			StartFn: wsServer.ListenAndServe,
			StopFn:  wsServer.Stop,
		})
	}

	if cfg.GRPC.Enabled {
		grpcServer := rollserver.NewGRPCServer(rollserver.NewServer(roller, cfg.GRPC.EvaluateTimeout, logger), logger)
		lifecycle.Add("grpc", &server.FuncService{
			StartFn: func() error {
				lis, err := net.Listen("tcp", cfg.GRPC.Addr())
				if err != nil {
					return fmt.Errorf("listening on %s: %w", cfg.GRPC.Addr(), err)
				}
				logger.Info("gRPC server listening",
					zap.String("addr", lis.Addr().String()),
				)
				return grpcServer.Serve(lis)
			},
			StopFn: func() {
				grpcServer.GracefulStop()
			},
		})
	}

	logger.Info("roll bot initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Defaults()
	}
	return config.Load(path)
}

func newSource(cfg config.DiceConfig) dice.Source {
	if cfg.Source == "seeded" {
		return dice.NewSeededSource(cfg.Seed)
	}
	return dice.NewCryptoSource()
}
