package main

import (
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/taskforge/internal/config"
	"github.com/jordigilh/taskforge/pkg/adapter"
	"github.com/jordigilh/taskforge/pkg/adapter/anthropicadapter"
	"github.com/jordigilh/taskforge/pkg/adapter/httpadapter"
	"github.com/jordigilh/taskforge/pkg/adapter/mockadapter"
	"github.com/jordigilh/taskforge/pkg/classifier"
	"github.com/jordigilh/taskforge/pkg/events"
	"github.com/jordigilh/taskforge/pkg/metrics"
	"github.com/jordigilh/taskforge/pkg/orchestrator"
	"github.com/jordigilh/taskforge/pkg/safety"
	"github.com/jordigilh/taskforge/pkg/stagegate"
	"github.com/jordigilh/taskforge/pkg/task"
	"github.com/jordigilh/taskforge/pkg/validation"
	"github.com/jordigilh/taskforge/pkg/verification"
)

// app bundles the wiring shared by every subcommand that talks to a
// live orchestrator.
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	orch  *orchestrator.Orchestrator
	redis *task.RedisBroadcaster // nil unless TASKSTORE_REDIS_ADDR is set
}

// Close releases any resources newApp opened (spec §6: "Redis ...
// optional Pub/Sub backing for the state-change subscription hook").
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}

	log := logrus.New()
	if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		log.SetLevel(lvl)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	store := task.NewStore(log)

	var broadcaster *task.RedisBroadcaster
	if addr := os.Getenv("TASKSTORE_REDIS_ADDR"); addr != "" {
		channel := os.Getenv("TASKSTORE_REDIS_CHANNEL")
		if channel == "" {
			channel = "taskforge.state"
		}
		broadcaster = task.NewRedisBroadcaster(addr, channel, log)
		store.Subscribe(broadcaster.Subscriber())
	}

	registry := validation.NewRegistry()

	vcfg := verification.Config{
		CheckExistence:    cfg.Verification.CheckExistence,
		CheckModification: cfg.Verification.CheckModification,
		CheckDomain:       cfg.Verification.CheckDomain,
		CheckTests:        cfg.Verification.CheckTests,
		CheckArtifacts:    cfg.Verification.CheckArtifacts,
		ModificationMode:  verification.ModificationCheckMode(cfg.Verification.ModificationMode),
		TestsBlocking:     cfg.Verification.TestsBlocking,
		Validators:        registry,
	}
	verifier := verification.New(vcfg, cfg.WorkspacePath)

	emitter := events.Emitter(events.NoopEmitter{})
	if cfg.Events.Enabled {
		emitter = events.NewHTTPEmitter(cfg.Events.GatewayURL, cfg.Events.Tenant, cfg.Events.GitSHA, "taskforge", true, log)
	}

	gate := stagegate.New(safety.NewChecker(), verifier, emitter)

	var rec metrics.Recorder = metrics.Noop{}
	if cfg.EnableMetrics {
		rec = metrics.New(prometheus.DefaultRegisterer)
	}

	orchCfg := orchestrator.Config{
		MaxConcurrentTasks:        cfg.Orchestrator.MaxConcurrentTasks,
		DefaultTaskTimeout:        cfg.Orchestrator.DefaultTaskTimeout,
		SkipVerificationByDefault: !cfg.Orchestrator.VerificationRequired,
		VerificationTimeout:       cfg.Orchestrator.VerificationTimeout,
		MaxVerificationAttempts:   cfg.Orchestrator.MaxVerificationAttempts,
		DisableAutoRetry:          !cfg.Orchestrator.AutoRetryOnFailure,
		DefaultRetry: task.RetryParams{
			MaxRetries:        cfg.Orchestrator.MaxRetries,
			RetryDelay:        cfg.Orchestrator.RetryDelay,
			BackoffMultiplier: cfg.Orchestrator.RetryBackoffMultiplier,
		},
		PollingInterval: cfg.Orchestrator.PollingInterval,
	}
	orch := orchestrator.New(store, classifierTables(cfg.Classifier), safety.NewChecker(), gate, defaultAdapters(cfg.Adapters), emitter, rec, log, orchCfg)

	return &app{cfg: cfg, log: log, orch: orch, redis: broadcaster}, nil
}

// classifierTables applies an operator's configured keyword/glob
// overrides additively onto the normative tables (SPEC_FULL.md
// "per-domain keyword/glob override").
func classifierTables(cc config.ClassifierConfig) classifier.Tables {
	if len(cc.ExtraKeywords) == 0 && len(cc.ExtraGlobs) == 0 {
		return classifier.Default()
	}
	toDomainMap := func(m map[string][]string) map[task.Domain][]string {
		out := make(map[task.Domain][]string, len(m))
		for k, v := range m {
			out[task.Domain(k)] = v
		}
		return out
	}
	return classifier.Default().WithOverrides(toDomainMap(cc.ExtraKeywords), toDomainMap(cc.ExtraGlobs))
}

// defaultAdapters registers the real Anthropic-backed adapter as the
// default capability when ANTHROPIC_API_KEY is present, falling back to
// the scripted mock otherwise (local runs, demos). endpoints overrides
// individual domains with an out-of-process HTTP agent backend (spec
// §4.7), taking precedence over the default for that domain.
func defaultAdapters(endpoints []config.AdapterEndpoint) *adapter.Registry {
	var def adapter.Adapter
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		def = anthropicadapter.New(key, anthropic.Model(model))
	} else {
		def = mockadapter.New(mockadapter.Scenario{})
	}

	registry := adapter.NewRegistry(def)
	for _, ep := range endpoints {
		registry.Register(ep.Domain, httpadapter.New(ep.Domain, ep.BaseURL, ep.PollInterval))
	}
	return registry
}
