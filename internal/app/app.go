package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "chargecore/libs/redis"

	"chargecore/internal/bridge"
	"chargecore/internal/clients"
	"chargecore/internal/commands"
	"chargecore/internal/config"
	"chargecore/internal/events"
	"chargecore/internal/handlers"
	"chargecore/internal/httpapi"
	"chargecore/internal/ledger"
	"chargecore/internal/logpipe"
	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
	"chargecore/internal/registry"
	"chargecore/internal/ws"
)

// App wires all dependencies for the central system.
type App struct {
	httpServer *http.Server
	shipper    *logpipe.Shipper
	fileStore  *logpipe.FileStore
	pending    *ocpp.PendingCalls
	bridge     *bridge.Bridge
	redis      *goredis.Client
	logger     *zap.Logger
}

// New builds the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	var redisClient *goredis.Client
	var seed ledger.SeedStore
	if cfg.Redis.Addr != "" {
		client, err := libredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.Warn("redis unavailable, transaction ids fall back to in-memory seed", zap.Error(err))
			seed = ledger.NewMemorySeedStore()
		} else {
			redisClient = client
			seed = ledger.NewRedisSeedStore(client)
		}
	} else {
		seed = ledger.NewMemorySeedStore()
	}

	seedCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	txLedger, err := ledger.New(seedCtx, seed, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	pending := ocpp.NewPendingCalls(cfg.CallTimeout(), logger)

	fileStore, err := logpipe.NewFileStore(cfg.LogPipeline.Dir, logger)
	if err != nil {
		return nil, err
	}
	sink := logpipe.NewHTTPSink(cfg.LogPipeline.SinkURL, cfg.Billing.Secret, logger)
	shipper := logpipe.NewShipper(logpipe.ShipperConfig{
		Mode:          cfg.LogPipeline.Mode,
		FlushInterval: cfg.LogPipeline.FlushInterval,
		BatchSize:     cfg.LogPipeline.BatchSize,
		MaxBacklog:    cfg.LogPipeline.MaxBacklog,
	}, fileStore, sink, logger)

	sender := ocpp.NewCallSender(reg, pending, shipper, logger)
	dispatcher := commands.NewDispatcher(sender, logger)

	eventsClient := clients.NewEventsClient(cfg.Billing.EventsURL, cfg.Billing.Secret, logger)
	busBridge := bridge.New(bridge.Config{
		URL:            cfg.Bridge.URL,
		Secret:         cfg.Bridge.Secret,
		Channels:       cfg.Bridge.Channels,
		ReconnectDelay: cfg.Bridge.ReconnectDelay,
		PingInterval:   cfg.Bridge.PingInterval,
	}, dispatcher, logger)
	emitter := events.NewEmitter(logger, eventsClient, busBridge)

	router := ocpp.NewRouter()
	parser := ocpp.NewParser()
	processor := ocpp.NewProcessor(parser, router, pending, shipper, logger)

	router.Register(protocol.ActionBootNotification,
		handlers.NewBootNotificationHandler(reg, sender, emitter, cfg.HeartbeatInterval(), cfg.ConfigFollowUpDelay(), logger))
	router.Register(protocol.ActionHeartbeat, handlers.NewHeartbeatHandler(reg))
	router.Register(protocol.ActionStatusNotification, handlers.NewStatusNotificationHandler(reg, emitter))
	router.Register(protocol.ActionAuthorize, handlers.NewAuthorizeHandler(handlers.AcceptAllAuthorizer{}))
	router.Register(protocol.ActionStartTransaction, handlers.NewStartTransactionHandler(txLedger, emitter, logger))
	router.Register(protocol.ActionStopTransaction, handlers.NewStopTransactionHandler(txLedger, emitter, logger))
	router.Register(protocol.ActionMeterValues, handlers.NewMeterValuesHandler(txLedger, emitter, logger))
	router.Register(protocol.ActionDataTransfer, handlers.NewStatusAckHandler(protocol.ActionDataTransfer, logger))
	router.Register(protocol.ActionChangeAvailability, handlers.NewStatusAckHandler(protocol.ActionChangeAvailability, logger))
	router.Register(protocol.ActionChangeConfiguration, handlers.NewStatusAckHandler(protocol.ActionChangeConfiguration, logger))
	router.Register(protocol.ActionFirmwareStatusNotification, handlers.NewAckHandler(protocol.ActionFirmwareStatusNotification, logger))
	router.Register(protocol.ActionDiagnosticsStatusNotification, handlers.NewAckHandler(protocol.ActionDiagnosticsStatusNotification, logger))
	router.Register(protocol.ActionSecurityEventNotification, handlers.NewAckHandler(protocol.ActionSecurityEventNotification, logger))
	router.RegisterResult(protocol.ActionGetConfiguration, handlers.NewGetConfigurationResultHandler(reg, logger))

	observer := &connectionObserver{pending: pending, shipper: shipper}
	wsServer := ws.NewServer(reg, processor, observer, cfg.WriteTimeout(), cfg.ReadTimeout(), logger)

	api := httpapi.NewServer(cfg.ControlPlane.Secret, reg, txLedger, dispatcher, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp/", wsServer.HandleWS)
	mux.Handle("/", api.Routes())

	httpServer := &http.Server{
		Addr:        cfg.HTTPAddress(),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return &App{
		httpServer: httpServer,
		shipper:    shipper,
		fileStore:  fileStore,
		pending:    pending,
		bridge:     busBridge,
		redis:      redisClient,
		logger:     logger,
	}, nil
}

// Run starts the background loops and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.shipper.Run(ctx)
	go a.pending.Run(ctx)
	go a.bridge.Run(ctx)

	go func() {
		a.logger.Info("starting central system", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.fileStore != nil {
		a.fileStore.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}

// connectionObserver fails in-flight calls when a charge point drops and keeps
// lifecycle transitions in the durable log alongside the frames.
type connectionObserver struct {
	pending *ocpp.PendingCalls
	shipper *logpipe.Shipper
}

func (o *connectionObserver) ConnectionOpened(chargePointID string) {
	o.shipper.Record(chargePointID, "lifecycle", []byte(`{"event":"connected"}`))
}

func (o *connectionObserver) ConnectionClosed(chargePointID string) {
	o.pending.FailForChargePoint(chargePointID)
	o.shipper.Record(chargePointID, "lifecycle", []byte(`{"event":"disconnected"}`))
}
