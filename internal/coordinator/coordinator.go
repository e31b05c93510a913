// ABOUTME: Coordinator orchestrator: wires store, log, components, HTTP server
// ABOUTME: Owns startup order, background loops, and graceful shutdown

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/threadworks/heddle/internal/capacity"
	"github.com/threadworks/heddle/internal/config"
	"github.com/threadworks/heddle/internal/deadletter"
	"github.com/threadworks/heddle/internal/dedupe"
	"github.com/threadworks/heddle/internal/httpapi"
	"github.com/threadworks/heddle/internal/mailbox"
	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/stats"
	"github.com/threadworks/heddle/internal/store"
	"github.com/threadworks/heddle/internal/stream"
	"github.com/threadworks/heddle/internal/work"
)

// dedupeTTL bounds how long processed work item IDs are remembered for
// redelivery suppression.
const dedupeTTL = 30 * time.Minute

// Coordinator assembles and runs the whole service.
type Coordinator struct {
	cfg    *config.Config
	logger *slog.Logger

	store store.Store
	log   stream.Log
	seen  *dedupe.Cache

	Registry    *registry.Registry
	Mailboxes   *mailbox.Service
	Router      *work.Router
	DeadLetters *deadletter.Manager
	Capacity    *capacity.Controller
	Stats       *stats.Aggregator

	scanner   *registry.IdleScanner
	discovery *registry.Discovery
	scaler    *capacity.AutoScaler
	metrics   *httpapi.Metrics

	httpServer *http.Server
}

// New builds a Coordinator from config. Standalone mode runs everything
// in-process over SQLite and the memory log; otherwise NATS JetStream
// backs both the store and the log.
func New(cfg *config.Config, logger *slog.Logger) (*Coordinator, error) {
	c := &Coordinator{cfg: cfg, logger: logger}

	if err := c.openBackends(); err != nil {
		return nil, err
	}
	if err := c.buildComponents(); err != nil {
		c.closeBackends()
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) openBackends() error {
	if c.cfg.Standalone.Enabled {
		st, err := store.NewSQLiteStore(c.cfg.Standalone.DatabasePath, c.logger)
		if err != nil {
			return fmt.Errorf("opening standalone store: %w", err)
		}
		c.store = st
		c.log = stream.NewMemoryLog()
		c.logger.Info("standalone mode", "database", c.cfg.Standalone.DatabasePath)
		return nil
	}

	natsStore, err := store.NewNATSStore(c.cfg.NATS.URL, c.logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	log, err := stream.NewNATSLog(natsStore.Conn())
	if err != nil {
		_ = natsStore.Close()
		return fmt.Errorf("opening jetstream: %w", err)
	}
	c.store = natsStore
	c.log = log
	c.logger.Info("connected to NATS", "url", c.cfg.NATS.URL)
	return nil
}

func (c *Coordinator) buildComponents() error {
	ctx := context.Background()
	coord := c.cfg.Coordinator

	agentKV, err := c.store.Bucket(ctx, store.BucketAgents)
	if err != nil {
		return fmt.Errorf("opening agent bucket: %w", err)
	}
	workKV, err := c.store.Bucket(ctx, store.BucketWorkItems)
	if err != nil {
		return fmt.Errorf("opening work bucket: %w", err)
	}
	dlKV, err := c.store.Bucket(ctx, store.BucketDeadLetters)
	if err != nil {
		return fmt.Errorf("opening dead-letter bucket: %w", err)
	}
	targetKV, err := c.store.Bucket(ctx, store.BucketTargets)
	if err != nil {
		return fmt.Errorf("opening target bucket: %w", err)
	}

	c.seen = dedupe.New(dedupeTTL, 10000)

	c.Registry = registry.New(agentKV, c.logger)
	c.Mailboxes = mailbox.New(c.log, coord.ProjectID, coord.MailboxMaxMsgs, coord.MailboxMaxAge, c.logger)
	c.Router = work.NewRouter(workKV, c.log, coord.ProjectID, c.logger)
	c.DeadLetters = deadletter.NewManager(dlKV, c.Router, c.logger)

	c.Capacity = capacity.NewController(targetKV, coord.SpinUpCooldown, coord.ProbeTimeout, c.logger)
	c.Capacity.RegisterSpawner("local-command", capacity.LocalCommandSpawner{})

	c.Stats = stats.New(c.Registry, c.Router, coord.ProjectID, c.logger)

	c.scanner = registry.NewIdleScanner(c.Registry, c.Mailboxes,
		coord.IdleTimeout, coord.IdleScanInterval, coord.ShutdownGrace, c.logger)
	c.discovery = registry.NewDiscovery(agentKV, coord.IdleScanInterval, c.logger)
	if coord.AutoSpinUp {
		c.scaler = capacity.NewAutoScaler(c.Capacity, c.Registry, c.Router,
			coord.IdleScanInterval, c.logger)
	}

	if c.cfg.Metrics.Enabled {
		c.metrics = httpapi.NewMetrics()
		c.metrics.ObserveAgentsOnline(func() float64 {
			agents, err := c.Registry.List(context.Background(),
				registry.Filter{Status: registry.StatusOnline})
			if err != nil {
				return 0
			}
			return float64(len(agents))
		})
	}
	api := httpapi.NewServer(c.Registry, c.Mailboxes, c.Router, c.DeadLetters,
		c.Capacity, c.Stats, c.metrics, c.logger)

	c.httpServer = &http.Server{
		Addr:              c.cfg.Server.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// NewConsumer builds a delivery loop bound to this coordinator's backends.
// Embedded workers and the fake agent share one dedup cache per process.
func (c *Coordinator) NewConsumer() *work.Consumer {
	var escalator work.Escalator = c.DeadLetters
	if c.metrics != nil {
		escalator = meteredEscalator{inner: c.DeadLetters, metrics: c.metrics}
	}
	consumer := work.NewConsumer(c.Router, escalator, c.seen, c.log,
		c.cfg.Coordinator.ProjectID, c.cfg.Coordinator.MaxDeliver, c.logger)
	if c.metrics != nil {
		consumer.OnCompleted(func(work.Item) { c.metrics.WorkCompletedTotal.Inc() })
	}
	return consumer
}

// meteredEscalator counts dead-letter escalations that reach the store.
type meteredEscalator struct {
	inner   work.Escalator
	metrics *httpapi.Metrics
}

func (e meteredEscalator) Escalate(ctx context.Context, item work.Item, reason string) error {
	if err := e.inner.Escalate(ctx, item, reason); err != nil {
		return err
	}
	e.metrics.DeadLettersTotal.Inc()
	return nil
}

// Run starts the HTTP server and background loops, then blocks until ctx
// is cancelled or the server fails.
func (c *Coordinator) Run(ctx context.Context) error {
	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()

	var loops sync.WaitGroup
	loops.Add(1)
	go func() {
		defer loops.Done()
		c.scanner.Run(loopCtx)
	}()
	loops.Add(1)
	go func() {
		defer loops.Done()
		c.discovery.Run(loopCtx)
	}()
	if c.scaler != nil {
		loops.Add(1)
		go func() {
			defer loops.Done()
			c.scaler.Run(loopCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("HTTP server listening", "addr", c.httpServer.Addr)
		if err := c.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		c.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		c.logger.Error("server error", "error", serverErr)
	}

	stopLoops()
	loops.Wait()

	shutdownErr := c.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown drains the HTTP server and closes the backends. Uses a
// fresh context since the run context is already cancelled.
func (c *Coordinator) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := c.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	c.closeBackends()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.logger.Info("coordinator stopped")
	return nil
}

func (c *Coordinator) closeBackends() {
	if c.seen != nil {
		c.seen.Close()
	}
	if c.log != nil {
		if err := c.log.Close(); err != nil {
			c.logger.Warn("closing log failed", "error", err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("closing store failed", "error", err)
		}
	}
}
