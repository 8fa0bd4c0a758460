// Package node provides a reusable ledger node that can be embedded
// in any binary (daemon, tests, etc.).
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/oyster/config"
	"github.com/Klingon-tech/oyster/internal/catalog"
	"github.com/Klingon-tech/oyster/internal/events"
	olog "github.com/Klingon-tech/oyster/internal/log"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/internal/mirror"
	"github.com/Klingon-tech/oyster/internal/rpc"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/internal/stream"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// Node is a fully-initialized ledger node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db       storage.DB
	engine   *ledger.Engine
	catalog  *catalog.Service
	operator types.Address

	// Event delivery
	dispatcher *events.Dispatcher

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, storage, operator identity, sinks, bootstrap, RPC) but does NOT
// start event delivery. Call Start() for that.
//
// passphrase unlocks the operator keyring named by cfg.Node.Keyring.
func New(cfg *config.Config, passphrase []byte) (_ *Node, err error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := expandHome(cfg.LogsDir())
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "oyster.log")
	}
	if err := olog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := olog.Node

	logger.Info().
		Str("datadir", cfg.DataDir).
		Str("storage", cfg.Storage.Backend).
		Msg("Starting Oyster Ledger Node")

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	// Release whatever was opened when a later step fails.
	defer func() {
		if err != nil {
			n.Stop()
		}
	}()

	// ── 2. Open storage ─────────────────────────────────────────────
	n.db, err = openStorage(cfg)
	if err != nil {
		return nil, err
	}

	// ── 3. Ledger engine ────────────────────────────────────────────
	n.engine, err = ledger.New(n.db)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := n.engine.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("ledger state: %w", err)
	}

	// ── 4. Operator identity ────────────────────────────────────────
	n.operator, err = loadOperator(cfg, passphrase)
	if err != nil {
		return nil, fmt.Errorf("operator identity: %w", err)
	}
	logger.Info().
		Str("keyring", cfg.Node.Keyring).
		Str("operator", n.operator.String()).
		Msg("Operator identity unlocked")

	// ── 5. Event sinks ──────────────────────────────────────────────
	n.dispatcher = events.NewDispatcher(n.engine.Outbox(), cfg.Dispatch.Interval, cfg.Dispatch.BatchSize, olog.Events)
	if err := n.setupSinks(); err != nil {
		return nil, err
	}
	n.engine.SetCommitHook(n.dispatcher.Notify)

	// ── 6. Catalog ──────────────────────────────────────────────────
	n.catalog = catalog.NewService(n.engine, catalog.NewStore(n.db), n.operator, olog.Catalog)

	// ── 7. Bootstrap ────────────────────────────────────────────────
	if err := n.bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	// ── 8. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := cfg.RPCListenAddr()
		srv := rpc.New(rpcAddr, n.engine, cfg.RPC)
		srv.SetCatalog(n.catalog)
		if err := srv.Start(); err != nil {
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		n.rpcServer = srv
		logger.Info().Str("addr", srv.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

// setupSinks registers the log sink and every enabled external sink.
func (n *Node) setupSinks() error {
	n.dispatcher.Register(events.NewLogSink(olog.Events))

	if n.cfg.Mirror.Enabled {
		sink, err := mirror.Connect(n.ctx, n.cfg.Mirror.DSN, olog.Mirror)
		if err != nil {
			return fmt.Errorf("connect mirror: %w", err)
		}
		n.dispatcher.Register(sink)
		n.logger.Info().Msg("Postgres mirror enabled")
	}

	if n.cfg.Stream.Enabled {
		producer, err := stream.NewProducer(strings.Join(n.cfg.Stream.Brokers, ","))
		if err != nil {
			return fmt.Errorf("connect stream: %w", err)
		}
		n.dispatcher.Register(stream.New(producer, n.cfg.Stream.Topic, olog.Stream))
		n.logger.Info().
			Strs("brokers", n.cfg.Stream.Brokers).
			Str("topic", n.cfg.Stream.Topic).
			Msg("Kafka stream enabled")
	}
	return nil
}

// Start launches event delivery.
func (n *Node) Start() error {
	n.dispatcher.Start(n.ctx)

	pending, err := n.engine.Outbox().Len()
	if err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	n.logger.Info().
		Bool("bootstrapped", n.engine.Bootstrapped()).
		Int("rights_ledgers", len(n.engine.Ledgers())).
		Int("pending_events", pending).
		Msg("Node started successfully")
	return nil
}

// Stop shuts down RPC, flushes pending events and closes storage. It is
// safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		if n.rpcServer != nil {
			if err := n.rpcServer.Stop(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				n.logger.Warn().Err(err).Msg("RPC shutdown")
			}
		}
		if n.dispatcher != nil {
			n.dispatcher.Stop()
		}
		n.cancel()
		if n.db != nil {
			if err := n.db.Close(); err != nil {
				n.logger.Warn().Err(err).Msg("close database")
			}
		}
		n.logger.Info().Msg("Goodbye!")
	})
}

// RPCAddr returns the RPC listen address, or "" when RPC is disabled.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Engine returns the ledger engine.
func (n *Node) Engine() *ledger.Engine { return n.engine }

// Catalog returns the asset catalog.
func (n *Node) Catalog() *catalog.Service { return n.catalog }

// Operator returns the operator address.
func (n *Node) Operator() types.Address { return n.operator }

// Flush delivers pending events synchronously.
func (n *Node) Flush(ctx context.Context) (int, error) {
	return n.dispatcher.Flush(ctx)
}
