// Command talvaultd is the stablecoin protocol's process entrypoint: it
// loads configuration, opens the durable event log, replays or
// initializes protocol state, and starts the oracle driver, the
// pending-transfer retry worker, and the HTTP surface. Grounded on the
// general shape of cmd/nhb/main.go's config-load -> store-open ->
// subsystem-start -> serve sequence, adapted to this protocol's much
// smaller subsystem set, and on services/lendingd/main.go for the
// telemetry-init -> listen -> signal.NotifyContext shutdown sequence.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"talvault/config"
	"talvault/event"
	"talvault/eventstore"
	"talvault/guard"
	"talvault/httpapi"
	"talvault/internal/obslog"
	"talvault/internal/obsmetrics"
	"talvault/internal/obstrace"
	"talvault/ledgerclient"
	"talvault/liquidation"
	"talvault/liquiditypool"
	"talvault/oracle"
	"talvault/principal"
	"talvault/protocolstate"
	"talvault/rpcservice"
	"talvault/transfer"
	"talvault/vault"
	"talvault/xrcclient"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "talvaultd.toml", "path to talvaultd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := obslog.Setup("talvaultd", cfg.Env, cfg.LogFilePath)

	shutdownTelemetry, err := obstrace.Init(context.Background(), obstrace.Config{
		ServiceName: "talvaultd",
		Environment: cfg.Env,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	store, events, err := openState(cfg, logger)
	if err != nil {
		log.Fatalf("open state: %v", err)
	}
	defer events.Close()
	store.SelfTest = cfg.SelfTestInvariants

	httpClient := &http.Client{Timeout: 10 * time.Second}
	executor := transfer.NewExecutor(
		ledgerclient.New(httpClient, cfg.TalerLedgerEndpoint),
		ledgerclient.New(httpClient, cfg.CkbtcLedgerEndpoint),
		protocolstate.CkbtcTransferFee,
	)
	oracleClient := xrcclient.New(httpClient, cfg.XrcEndpoint)

	guards := guard.NewPrincipalGuards(cfg.MaxConcurrentGuards)
	clock := func() uint64 { return uint64(time.Now().UnixNano()) }

	vaultService := vault.NewService(store, executor, events, guards, clock, logger)
	vaultService.MaxVaultsPerRedemption = cfg.MaxVaultsPerRedemption
	poolService := liquiditypool.NewService(store, executor, events, guards, logger)
	liquidationEngine := liquidation.NewEngine(store, events, logger)

	rpc := rpcservice.NewService(store, events, vaultService, poolService, clock, logger)

	metrics := obsmetrics.Get()

	driver := oracle.NewDriver(store, oracleClient, liquidationEngine, logger)
	driver.Interval = time.Duration(cfg.OracleIntervalSeconds) * time.Second
	driver.OnFetch = func(result string) {
		metrics.OracleFetches.WithLabelValues(result).Inc()
	}

	worker := transfer.NewWorker(store, executor, events, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go driver.Run(ctx)
	go runPendingTransferLoop(ctx, worker, time.Duration(cfg.PendingTransferInterval)*time.Second)
	go refreshMetricsLoop(ctx, store, metrics)

	handler := httpapi.New(httpapi.Config{
		Service:     rpc,
		Metrics:     metrics,
		LogFilePath: cfg.LogFilePath,
	})

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}

	server := &http.Server{Handler: handler}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("talvaultd listening", "address", cfg.ListenAddress)
		serverErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("forced server stop", "error", err)
			_ = server.Close()
		}
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve http: %v", err)
		}
	}
}

// openState opens the durable event log and either replays it into a
// protocolstate.State (an existing deployment) or bootstraps a fresh one
// by appending the Init event the config describes (first run), matching
// event.go's §4.9 contract that the first log entry must be Init.
func openState(cfg *config.Config, logger *slog.Logger) (*protocolstate.Store, *eventstore.Store, error) {
	store, err := eventstore.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	entries, err := store.ReadAll()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	if len(entries) == 0 {
		initArgs, err := initArgsFromConfig(cfg)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		if _, err := store.Append(event.KindInit, event.InitPayload{
			XrcPrincipal:         initArgs.XrcPrincipal,
			TalerLedgerPrincipal: initArgs.TalerLedgerPrincipal,
			CkbtcLedgerPrincipal: initArgs.CkbtcLedgerPrincipal,
			FeeE8S:               initArgs.FeeE8S,
			DeveloperPrincipal:   initArgs.DeveloperPrincipal,
		}); err != nil {
			store.Close()
			return nil, nil, err
		}
		logger.Info("bootstrapped fresh protocol state from Init payload")
		return protocolstate.NewStore(protocolstate.NewFromInit(initArgs)), store, nil
	}

	state := event.Replay(entries)
	logger.Info("replayed protocol state from event log", "entries", len(entries))
	return protocolstate.NewStore(state), store, nil
}

func initArgsFromConfig(cfg *config.Config) (protocolstate.InitArgs, error) {
	xrc, err := parsePrincipalOrZero(cfg.XrcPrincipal)
	if err != nil {
		return protocolstate.InitArgs{}, err
	}
	taler, err := parsePrincipalOrZero(cfg.TalerLedgerPrincipal)
	if err != nil {
		return protocolstate.InitArgs{}, err
	}
	ckbtc, err := parsePrincipalOrZero(cfg.CkbtcLedgerPrincipal)
	if err != nil {
		return protocolstate.InitArgs{}, err
	}
	developer, err := principal.Parse(cfg.DeveloperPrincipal)
	if err != nil {
		return protocolstate.InitArgs{}, err
	}
	return protocolstate.InitArgs{
		XrcPrincipal:         xrc,
		TalerLedgerPrincipal: taler,
		CkbtcLedgerPrincipal: ckbtc,
		FeeE8S:               cfg.FeeE8S,
		DeveloperPrincipal:   developer,
	}, nil
}

func parsePrincipalOrZero(s string) (principal.Principal, error) {
	if strings.TrimSpace(s) == "" {
		return principal.Anonymous, nil
	}
	return principal.Parse(s)
}

// runPendingTransferLoop drives transfer.Worker on the configured cadence
// until ctx is cancelled. Worker.Run already reschedules itself at
// transfer.RetryInterval while pending entries remain; this outer loop
// instead re-enters Run every interval so a deployment-level
// PendingTransferIntervalSeconds override takes effect even when the
// protocol has been quiescent for a while.
func runPendingTransferLoop(ctx context.Context, worker *transfer.Worker, interval time.Duration) {
	if interval <= 0 {
		interval = transfer.RetryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	worker.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			worker.Run(ctx)
		}
	}
}

// refreshMetricsLoop recomputes every /metrics gauge from the live state
// once per second through Store.Read (which holds the store's mutex)
// rather than hooking every mutation site individually.
func refreshMetricsLoop(ctx context.Context, store *protocolstate.Store, metrics *obsmetrics.Registry) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Read(func(s *protocolstate.State) {
				metrics.RefreshFromState(s)
			})
		}
	}
}
