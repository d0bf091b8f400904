// Package main provides the drawing-and-guessing game server. It accepts
// client connections over TCP (and optionally WebSocket), coordinates game
// rooms, and broadcasts per-recipient state updates.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/sketch/internal/config"
	"github.com/cory-johannsen/sketch/internal/dispatch"
	"github.com/cory-johannsen/sketch/internal/game/registry"
	"github.com/cory-johannsen/sketch/internal/game/room"
	"github.com/cory-johannsen/sketch/internal/game/words"
	"github.com/cory-johannsen/sketch/internal/observability"
	"github.com/cory-johannsen/sketch/internal/server"
	"github.com/cory-johannsen/sketch/internal/session"
	"github.com/cory-johannsen/sketch/internal/transport/tcp"
	"github.com/cory-johannsen/sketch/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting sketch server",
		zap.String("tcp_addr", cfg.TCP.Addr()),
		zap.Bool("websocket_enabled", cfg.WebSocket.Enabled),
	)

	// Load the word list
	var pool []string
	if cfg.Game.WordsFile != "" {
		loaded, err := words.LoadFile(cfg.Game.WordsFile)
		if err != nil {
			logger.Fatal("loading word list", zap.Error(err))
		}
		pool = loaded
		logger.Info("word list loaded",
			zap.String("path", cfg.Game.WordsFile),
			zap.Int("words", len(pool)),
		)
	}

	// Build services
	roomOpts := room.Options{
		MaxPlayers:   cfg.Game.MaxPlayers,
		MaxRounds:    cfg.Game.MaxRounds,
		GuessPoints:  cfg.Game.GuessPoints,
		DrawerBonus:  cfg.Game.DrawerBonus,
		RoundSeconds: cfg.Game.RoundSeconds,
	}
	reg := registry.New(roomOpts, func() room.WordSource {
		return words.NewSource(pool, time.Now().UnixNano())
	})

	sessOpts := session.Options{
		QueueSize:         cfg.Session.QueueSize,
		MessagesPerSecond: cfg.Session.MessagesPerSecond,
		Burst:             cfg.Session.Burst,
		MaxDecodeFailures: cfg.Session.MaxDecodeFailures,
	}
	dispatcher := dispatch.New(reg, sessOpts, logger)
	tcpAcceptor := tcp.NewAcceptor(cfg.TCP, dispatcher, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("tcp", &server.FuncService{
		StartFn: func() error {
			return tcpAcceptor.ListenAndServe()
		},
		StopFn: func() {
			tcpAcceptor.Stop()
		},
	})

	if cfg.WebSocket.Enabled {
		wsServer := ws.NewServer(cfg.WebSocket, dispatcher, logger)
		lifecycle.Add("websocket", &server.FuncService{
			StartFn: func() error {
				return wsServer.ListenAndServe()
			},
			StopFn: func() {
				wsServer.Stop()
			},
		})
	}

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
