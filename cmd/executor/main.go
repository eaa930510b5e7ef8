package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"hypercopy/internal/auth"
	"hypercopy/internal/broker"
	"hypercopy/internal/cache"
	"hypercopy/internal/client/hyperliquid"
	"hypercopy/internal/config"
	cronrunner "hypercopy/internal/cron"
	"hypercopy/internal/db"
	"hypercopy/internal/events"
	"hypercopy/internal/handler"
	"hypercopy/internal/logger"
	"hypercopy/internal/metrics"
	"hypercopy/internal/oracle"
	"hypercopy/internal/paas"
	gormrepository "hypercopy/internal/repository/gorm"
	"hypercopy/internal/risk"
	"hypercopy/internal/service"

	_ "hypercopy/docs"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("HC_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("HC_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("invalid config: %w", err))
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}
	store := gormrepository.New(dbConn.Gorm)

	readiness := map[string]handler.Pinger{"db": store}
	var kv cache.Store = cache.NewMemoryStore()
	if strings.EqualFold(cfg.Cache.Kind, "redis") {
		rs := cache.NewRedisStore(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPass,
			DB:       cfg.Cache.RedisDB,
		})
		defer rs.Client.Close()
		kv = rs
		readiness["cache"] = rs
	}
	kv = cache.Prefixed{Store: kv, Prefix: cfg.Cache.Prefix}

	hlCfg := cfg.Broker.Hyperliquid
	hlHost := hlCfg.BaseURL
	if strings.TrimSpace(hlHost) == "" && hlCfg.Testnet {
		hlHost = hyperliquid.TestnetURL
	}
	hlClient := hyperliquid.NewClient(&http.Client{Timeout: hlCfg.Timeout}, hlHost)

	var priceOracle oracle.PriceOracle
	var markStream *oracle.Stream
	switch strings.ToLower(cfg.Oracle.Kind) {
	case "static":
		priceOracle = oracle.NewStatic(cfg.Oracle.StaticMarks)
	case "stream":
		wsURL := cfg.Oracle.WSURL
		if wsURL == "" && hlCfg.Testnet {
			wsURL = oracle.TestnetWSURL
		}
		markStream = oracle.NewStream(oracle.StreamOptions{
			URL:          wsURL,
			MaxStaleness: cfg.Oracle.MaxStaleness,
			Logger:       logger,
		}, oracle.NewHyperliquidREST(hlClient, time.Second))
		priceOracle = markStream
	default:
		priceOracle = oracle.NewHyperliquidREST(hlClient, time.Second)
	}

	var venue broker.Broker
	var trader *hyperliquid.Trader
	switch strings.ToLower(cfg.Broker.Kind) {
	case "hyperliquid":
		signer, err := hyperliquid.NewSigner(hlCfg.PrivateKey)
		if err != nil {
			logger.Fatal("hyperliquid signer init failed", zap.Error(err))
		}
		trader = &hyperliquid.Trader{
			Client:  hlClient,
			Signer:  signer,
			Vault:   hlCfg.VaultAddress,
			Mainnet: !hlCfg.Testnet,
		}
		venue = &broker.Hyperliquid{
			Client: hlClient,
			Trader: trader,
			Oracle: priceOracle,
			Opts: broker.HyperliquidOptions{
				AccountAddress: hlCfg.AccountAddress,
				BuilderAddress: hlCfg.BuilderAddress,
				BuilderFeeBps:  hlCfg.BuilderFeeBps,
				SlippageBps:    hlCfg.SlippageBps,
			},
		}
	default:
		venue = broker.NewSim(priceOracle, kv)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	paasClient := paas.NewClient(cfg.Events.PaaSBaseURL, cfg.Events.PaaSAPIKey, cfg.Events.Timeout)
	publisher := &events.Multi{Timeout: cfg.Events.Timeout, Logger: logger, Metrics: recorder}
	if len(cfg.Events.KafkaBrokers) > 0 {
		publisher.Sinks = append(publisher.Sinks, events.NewKafka(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
	}
	if cfg.Events.WebhookURL != "" {
		publisher.Sinks = append(publisher.Sinks, &events.Webhook{
			URL:  cfg.Events.WebhookURL,
			HTTP: &http.Client{Timeout: cfg.Events.Timeout},
		})
	}
	if paasClient != nil {
		publisher.Sinks = append(publisher.Sinks, &events.PaaSLog{Client: paasClient})
	}
	defer publisher.Close()

	riskMgr := &risk.Manager{Config: cfg.Risk, Store: store, Logger: logger}

	owner := cfg.Executor.ClaimOwner
	if owner == "" {
		host, _ := os.Hostname()
		owner = host + "-" + uuid.NewString()[:8]
	}
	lifecycle := &service.Lifecycle{
		Store:       store,
		Broker:      venue,
		Oracle:      priceOracle,
		Risk:        riskMgr,
		Events:      publisher,
		Metrics:     recorder,
		Logger:      logger,
		Owner:       owner,
		PlanTimeout: cfg.Executor.PlanTimeout,
	}

	settingsSvc := &service.SystemSettingsService{Store: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	intake := &service.Intake{
		Store:  store,
		Oracle: priceOracle,
		Dedupe: kv,
		Config: cfg.Intake,
		Events: publisher,
		Logger: logger,
	}
	scheduler := &service.Scheduler{
		Lifecycle: lifecycle,
		Store:     store,
		Flags:     settingsSvc,
		Config:    cfg.Executor,
		Metrics:   recorder,
		Logger:    logger,
	}
	stopMonitor := &service.StopLossMonitor{
		Lifecycle: lifecycle,
		Store:     store,
		Flags:     settingsSvc,
		Config:    cfg.Executor,
		Metrics:   recorder,
		Logger:    logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	handler.RegisterValidators()

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	engine.Use(paas.AuditMiddleware(paasClient, logger))
	if cfg.Auth.JWTSecret != "" {
		engine.Use(auth.Middleware(&auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer}))
	} else {
		logger.Warn("auth.jwt_secret is empty; API is unauthenticated")
	}

	healthHandler := &handler.HealthHandler{Deps: readiness}
	healthHandler.Register(engine)
	paas.RegisterDocs(engine)
	execHandler := &handler.ExecutionHandler{
		Store:     store,
		Intake:    intake,
		Lifecycle: lifecycle,
		Scheduler: scheduler,
	}
	execHandler.Register(engine)
	markHandler := &handler.MarkHandler{Oracle: priceOracle}
	markHandler.Register(engine)
	settingsHandler := &handler.SystemSettingsHandler{Settings: settingsSvc}
	settingsHandler.Register(engine)
	brokerHandler := &handler.BrokerHandler{
		DefaultBuilder: hlCfg.BuilderAddress,
		DefaultFeeBps:  hlCfg.BuilderFeeBps,
		Logger:         logger,
	}
	if trader != nil {
		brokerHandler.Approver = trader
	}
	brokerHandler.Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if markStream != nil {
		go func() {
			if err := markStream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mark stream stopped", zap.Error(err))
			}
		}()
	}

	// Resume runs before the first sweep so stale claims from a crashed
	// process are reconciled instead of skipped.
	if cfg.Executor.ResumeOnStartup && settingsSvc.IsEnabled(ctx, service.FeatureResumeOnStartup, true) {
		res, err := lifecycle.ResumeInflight(ctx)
		if err != nil {
			logger.Warn("resume in-flight plans failed", zap.Error(err))
		} else {
			logger.Info("resumed in-flight plans",
				zap.Int("checked", res.Checked),
				zap.Int("changed", res.Changed),
				zap.Int("errored", res.Errored),
			)
		}
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Executor.Enabled {
		if _, err := cronRunner.Add(cfg.Executor.SubmitInterval, scheduler.Run); err != nil {
			logger.Fatal("schedule submission sweep failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Executor.StopLossInterval, stopMonitor.Run); err != nil {
			logger.Fatal("schedule stop-loss monitor failed", zap.Error(err))
		}
	} else {
		logger.Info("executor disabled; plans are only submitted through the API")
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.String("broker", venue.Name()),
			zap.String("owner", owner),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}
