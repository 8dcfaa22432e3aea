package app

import (
	"context"
	"errors"
	"time"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/daemon"
	"github.com/calehh/dao-keeper/ledger"
	"github.com/calehh/dao-keeper/metrics"
	"github.com/calehh/dao-keeper/relay"
	"github.com/calehh/dao-keeper/service"
	"github.com/calehh/dao-keeper/store"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// KeeperApp owns every long lived component. The daemon and the relayer are
// only built when their configuration validates; otherwise the HTTP handlers
// answer with the validation error and the ledger is never contacted.
type KeeperApp struct {
	cfg    *config.Config
	logger cmtlog.Logger

	registry *prometheus.Registry
	metrics  metrics.Metrics
	store    *store.Store
	ledger   *ledger.Client
	daemon   *daemon.Daemon
	relayer  *relay.Relayer
	service  *service.Service

	daemonErr error
	relayErr  error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewKeeperApp(cfg *config.Config, logger cmtlog.Logger) (app *KeeperApp, err error) {
	logger = logger.With("module", "app")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(logger, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	app = &KeeperApp{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		metrics:   m,
		store:     st,
		daemonErr: cfg.ValidateDaemon(),
		relayErr:  cfg.ValidateRelay(),
		done:      make(chan struct{}),
	}
	if app.daemonErr != nil {
		logger.Error("daemon disabled", "err", app.daemonErr)
	}
	if app.relayErr != nil {
		logger.Error("relay disabled", "err", app.relayErr)
	}

	if app.daemonErr == nil || app.relayErr == nil {
		app.ledger, err = ledger.Dial(logger, cfg)
		if err != nil {
			st.Close()
			return nil, err
		}
		logger.Info("ledger client ready", "rpc", cfg.Ledger.RPCURL, "relayer", app.ledger.RelayerAddress().Hex())
	}
	if app.daemonErr == nil {
		app.daemon = daemon.New(logger, app.ledger, m, st)
	}
	if app.relayErr == nil {
		opts := relay.Options{}
		if fwd, ok := cfg.ForwarderAddress(); ok {
			opts.Forwarder = fwd
		}
		if common.IsHexAddress(cfg.Ledger.DAOAddress) {
			opts.Target = cfg.DAOAddress()
		}
		app.relayer = relay.New(logger, app.ledger, opts, m, st)
	}

	svcOpts := service.Options{
		ListenAddr: cfg.ListenAddress,
		ScannerErr: app.daemonErr,
		RelayerErr: app.relayErr,
		History:    st,
		Gatherer:   registry,
		RateLimit:  cfg.Relay.RateLimit,
		RateBurst:  cfg.Relay.RateBurst,
	}
	// interfaces must stay nil when the component is disabled
	if app.daemon != nil {
		svcOpts.Scanner = app.daemon
	}
	if app.relayer != nil {
		svcOpts.Relayer = app.relayer
	}
	app.service = service.NewService(logger, svcOpts)
	return app, nil
}

func (app *KeeperApp) Daemon() (*daemon.Daemon, error) {
	return app.daemon, app.daemonErr
}

func (app *KeeperApp) Relayer() (*relay.Relayer, error) {
	return app.relayer, app.relayErr
}

func (app *KeeperApp) Service() *service.Service {
	return app.service
}

// Start runs the scan trigger, when configured, and serves HTTP until Stop.
func (app *KeeperApp) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	if app.daemon != nil && app.cfg.Daemon.ScanInterval > 0 {
		go app.scanLoop(ctx, app.cfg.Daemon.ScanInterval)
	} else {
		close(app.done)
	}
	return app.service.Start()
}

func (app *KeeperApp) scanLoop(ctx context.Context, interval time.Duration) {
	defer close(app.done)
	app.logger.Info("scan trigger started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := app.daemon.Scan(ctx)
			if errors.Is(err, daemon.ErrScanInProgress) {
				app.logger.Debug("scan skipped, another scan is running")
				continue
			}
			if err != nil {
				app.logger.Error("scheduled scan fail", "err", err)
				continue
			}
			app.logger.Info("scheduled scan", "executed", len(res.Executed), "skipped", len(res.Skipped))
		}
	}
}

func (app *KeeperApp) Stop(ctx context.Context) {
	if app.cancel != nil {
		app.cancel()
		select {
		case <-app.done:
		case <-ctx.Done():
		}
	}
	if err := app.service.Stop(ctx); err != nil {
		app.logger.Error("stop http service fail", "err", err)
	}
	if app.ledger != nil {
		app.ledger.Close()
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error("close store fail", "err", err)
	}
}
