package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/btnalit/routeros-aiops/internal/ai"
	"github.com/btnalit/routeros-aiops/internal/analysiscache"
	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/collector"
	"github.com/btnalit/routeros-aiops/internal/config"
	"github.com/btnalit/routeros-aiops/internal/decision"
	"github.com/btnalit/routeros-aiops/internal/dedup"
	"github.com/btnalit/routeros-aiops/internal/device"
	"github.com/btnalit/routeros-aiops/internal/logging"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/noise"
	"github.com/btnalit/routeros-aiops/internal/notify"
	"github.com/btnalit/routeros-aiops/internal/pipeline"
	"github.com/btnalit/routeros-aiops/internal/preprocessor"
	"github.com/btnalit/routeros-aiops/internal/remediation"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
	"github.com/btnalit/routeros-aiops/internal/rules"
	"github.com/btnalit/routeros-aiops/internal/snapshot"
	"github.com/btnalit/routeros-aiops/internal/syslogd"
)

const (
	metricsAddr = ":9135"
	// auditRetentionDays matches the 90-day retention of decisions and
	// feedback.
	auditRetentionDays = 90
	// sweepInterval drives the daily retention sweeps and auto snapshots.
	sweepInterval = 24 * time.Hour

	analysisCacheTTL = 30 * time.Minute
	analysisCacheMax = 512
)

func runServer() {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "aiops"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "aiops"})

	log.Info().Str("version", Version).Str("dataDir", cfg.DataDir).Msg("Starting aiops")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	paths := cfg.Paths()

	auditLog, err := audit.New(paths.AuditDir(), auditRetentionDays)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit log")
	}

	client := device.NewLocalClient("")

	metricsCfg, err := config.NewMetricsConfigStore(paths.MetricsConfigFile())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load metrics config")
	}
	if err := metricsCfg.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("Metrics config watcher unavailable, edits require restart")
	}

	coll, err := collector.New(client, metricsCfg, paths, cfg.DeviceTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize collector")
	}

	ruleEngine, err := rules.New(paths.RulesFile(), paths.AlertEventsDir(), auditLog, coll)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize rule engine")
	}

	var analyzer ai.Analyzer = ai.Noop{}
	if cfg.LLMEndpoint != "" {
		analyzer = ai.NewClient(cfg.LLMEndpoint, cfg.LLMModel, cfg.LLMTimeout)
		log.Info().Str("endpoint", cfg.LLMEndpoint).Str("model", cfg.LLMModel).Msg("LLM analyzer enabled")
	}

	noiseFilter, err := noise.New(paths.MaintenanceFile(), paths.KnownIssuesFile(), paths.FeedbackDir(), analyzer, auditLog)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize noise filter")
	}

	analysisCache := analysiscache.New(analysisCacheTTL, analysisCacheMax)
	analysisCache.Start(ctx)

	rootCause, err := rootcause.New(paths.AnalysisDir(), analyzer, analysisCache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize root-cause analyzer")
	}

	hub := notify.NewHub()
	hub.Register("log", notify.LogSender{})
	if cfg.WebhookURL != "" {
		hub.Register("webhook", notify.NewWebhook(cfg.WebhookURL, 10*time.Second))
		log.Info().Msg("Webhook notification channel registered")
	}

	snapshots, err := snapshot.New(paths.SnapshotsDir(), client, auditLog)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot store")
	}

	remEngine, err := remediation.NewEngine(paths.RemediationDir(), client, snapshots, auditLog)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize remediation engine")
	}
	responder := &remediation.Responder{Engine: remEngine, Analyzer: rootCause}

	decisionEngine, err := decision.New(paths.DecisionRulesFile(), paths.DecisionHistoryDir(), auditLog, hub, responder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize decision engine")
	}

	pre := preprocessor.New(preprocessor.DefaultConfig(), client, cfg.DeviceTimeout)

	dedupCache := dedup.NewCache(dedup.DefaultTTL)
	dedupCache.Start(ctx)

	pipe := pipeline.New(pre, dedupCache, noiseFilter, rootCause, decisionEngine, auditLog)

	receiver, err := syslogd.NewReceiver(paths.SyslogConfigFile(), paths.SyslogEventsDir(), cfg.SyslogListen)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize syslog receiver")
	}

	// Alert events feed the pipeline; the rule engine stays unaware of the
	// stages downstream of it.
	ruleEngine.OnAlert(func(event *models.AlertEvent, rule *models.AlertRule) {
		pipe.HandleAlert(ctx, event)
	})
	ruleEngine.OnResolved(func(event *models.AlertEvent, reason string, announce bool) {
		if announce {
			decisionEngine.NotifyRecovery(ctx, event, reason)
		}
	})
	ruleEngine.SetAutoResponder(func(rule *models.AlertRule, event *models.AlertEvent) (string, error) {
		return responder.Execute(ctx, pre.FromAlertEvent(event), nil)
	})
	coll.OnSamples(ruleEngine.Evaluate)

	startMetricsServer(ctx, metricsAddr)
	coll.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return receiver.Start(ctx)
	})
	g.Go(func() error {
		pipe.Run(ctx, receiver.Messages())
		return nil
	})
	g.Go(func() error {
		runSweeps(ctx, auditLog, snapshots, decisionEngine, rootCause, noiseFilter, remEngine)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Component failed")
	}

	coll.Stop()
	stats := pipe.Stats()
	log.Info().
		Int64("processed", stats.Processed).
		Int64("filtered", stats.Filtered).
		Int64("deduplicated", stats.Deduplicated).
		Int64("decided", stats.Decided).
		Msg("aiops stopped")
}

// runSweeps takes a daily auto snapshot and runs every retention sweep until
// the context is cancelled.
func runSweeps(ctx context.Context, auditLog *audit.Log, snapshots *snapshot.Store, decisions *decision.Engine, rootCause *rootcause.Analyzer, noiseFilter *noise.Filter, remEngine *remediation.Engine) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := snapshots.Create(ctx, snapshot.TriggerAuto); err != nil {
				log.Debug().Err(err).Msg("scheduled snapshot skipped")
			}
			auditLog.Sweep()
			decisions.Sweep()
			rootCause.Sweep()
			noiseFilter.SweepFeedback()
			remEngine.Sweep()
		}
	}
}
