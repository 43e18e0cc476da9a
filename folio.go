// Package folio is the public API for embedding the folio agent runtime.
//
// Consumers construct the runtime, run workflows, and synchronize with
// the external journal system without reaching into internal packages:
//
//	app, err := folio.New(
//	    folio.WithVersion(version),
//	    folio.WithLogger(logger),
//	    folio.WithMessageProvider("email", mySMTPProvider),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: folio (root) imports
// internal/*, but internal/* never imports folio (root). Public types
// (WorkflowResult, SyncStats, etc.) are standalone structs; conversion
// helpers live here because this is the only file that sees both sides
// of the boundary.
package folio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dtecho/folio/internal/agent"
	"github.com/dtecho/folio/internal/config"
	"github.com/dtecho/folio/internal/coordinator"
	"github.com/dtecho/folio/internal/decision"
	"github.com/dtecho/folio/internal/dispatch"
	"github.com/dtecho/folio/internal/journalsync"
	"github.com/dtecho/folio/internal/learning"
	"github.com/dtecho/folio/internal/memory"
	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
	"github.com/dtecho/folio/internal/telemetry"
)

// agentTypes is the fixed fleet, one agent per role.
var agentTypes = []agent.Type{
	agent.TypeResearch,
	agent.TypeSubmission,
	agent.TypeEditorial,
	agent.TypeReview,
	agent.TypeQuality,
	agent.TypeProduction,
	agent.TypeAnalytics,
}

// scorers is the process-wide predictor registry. Deployments register
// their model wrappers before calling New.
var scorers = decision.NewRegistry()

// RegisterScorer adds a predictor factory under a name. The factory is
// invoked when DECISION_MODEL_NAME selects it.
func RegisterScorer(name string, factory decision.ScorerFactory) {
	scorers.Register(name, factory)
}

// App is the runtime lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        *storage.Store
	redisClient  *redis.Client // nil when Redis is not configured
	coord        *coordinator.Coordinator
	agents       []*agent.Agent
	syncer       *journalsync.Synchronizer // nil when no journal endpoint
	dispatcher   *dispatch.Dispatcher
	metrics      *telemetry.Metrics
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the runtime. It opens the store, builds the seven
// agents with their memory, learning, and decision subsystems, and wires
// the coordinator, synchronizer, and dispatcher. It does NOT start any
// goroutines — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.stateDir != "" {
		cfg.StateDir = o.stateDir
	}
	if o.databaseURLs != nil {
		cfg.PostgresDSNs = o.databaseURLs
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("folio starting", "version", version, "environment", cfg.Environment)

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics("github.com/dtecho/folio")
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := storage.Open(ctx, storage.Options{
		DSNs:     cfg.PostgresDSNs,
		Path:     cfg.StorePath(),
		PoolSize: cfg.PoolSize,
	}, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}
	logger.Info("store opened", "backend", string(store.Backend()))

	// Redis is optional; it backs the distributed sync lock and the
	// event fan-out.
	var redisClient *redis.Client
	if addr := cfg.RedisAddr(); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			if cfg.Production() {
				_ = store.Close()
				_ = otelShutdown(ctx)
				return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
			}
			logger.Warn("redis unreachable, distributed lock disabled", "addr", addr, "error", err)
			_ = redisClient.Close()
			redisClient = nil
		}
	}

	// Predictor and variant assignment shared by every agent's engine.
	scorer, err := scorers.Load(cfg.ModelName, cfg.ModelVersion, cfg.ModelPath, cfg.Production())
	if err != nil {
		closeAll(store, redisClient, otelShutdown)
		return nil, fmt.Errorf("decision: %w", err)
	}
	if scorer == nil && cfg.ModelName != "" {
		logger.Warn("predictor unavailable, using heuristic scoring", "model", cfg.ModelName)
	}
	abCfg, err := cfg.ABConfig()
	if err != nil {
		closeAll(store, redisClient, otelShutdown)
		return nil, err
	}

	app := &App{
		cfg:          cfg,
		store:        store,
		redisClient:  redisClient,
		metrics:      metrics,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}

	// Dispatcher with built-in coordination templates.
	app.dispatcher = dispatch.New("coordinator", logger,
		dispatch.WithProductionMode(cfg.Production()))
	registerBuiltinTemplates(app.dispatcher)
	for channel, p := range o.providers {
		app.dispatcher.RegisterProvider(model.Channel(channel), &providerAdapter{p: p})
	}

	// Coordinator and the seven agents.
	app.coord = coordinator.New(logger,
		coordinator.WithEventHook(app.eventHook(o.workflowHooks)))
	for _, t := range agentTypes {
		a, err := app.buildAgent(t, scorer, abCfg)
		if err != nil {
			closeAll(store, redisClient, otelShutdown)
			return nil, err
		}
		if err := app.coord.Register(a); err != nil {
			closeAll(store, redisClient, otelShutdown)
			return nil, err
		}
		app.agents = append(app.agents, a)
	}

	// Synchronizer, only when a journal endpoint is configured.
	var external journalsync.ExternalJournal
	if o.journalClient != nil {
		external = o.journalClient
	} else if cfg.OJSBaseURL != "" {
		external = journalsync.NewHTTPJournal(cfg.OJSBaseURL, cfg.OJSAPIKey)
	}
	if external != nil {
		syncOpts := []journalsync.Option{}
		if redisClient != nil {
			syncOpts = append(syncOpts,
				journalsync.WithLocker(journalsync.NewRedisLocker(redisClient)),
				journalsync.WithEventSink(journalsync.NewRedisEventSink(redisClient)))
		}
		app.syncer = journalsync.New(store, external, journalsync.Config{
			Concurrency: cfg.SyncConcurrency,
			Interval:    cfg.SyncInterval,
			BatchSize:   cfg.SyncBatchSize,
			RetryLimit:  cfg.SyncRetryLimit,
			Strategy:    model.ResolutionStrategy(cfg.SyncStrategy),
			MergeFields: cfg.SyncMergeFields,
		}, logger, syncOpts...)
	} else {
		logger.Info("journal synchronization disabled (no OJS_BASE_URL)")
	}

	return app, nil
}

// buildAgent assembles one agent with its own memory, learning, and
// decision subsystems over the shared store, restoring any persisted
// state.
func (a *App) buildAgent(t agent.Type, scorer decision.ModelScorer, abCfg decision.ABConfig) (*agent.Agent, error) {
	id := "ag_" + string(t)
	mem := memory.New(a.store, a.logger)
	fw := learning.NewFramework(id, mem.Experiences, a.logger)

	engineOpts := []decision.EngineOption{
		decision.WithABConfig(abCfg),
		decision.WithProductionMode(a.cfg.Production()),
	}
	if scorer != nil {
		engineOpts = append(engineOpts, decision.WithScorer(scorer))
	}
	engine := decision.NewEngine(id, a.store, a.logger, engineOpts...)

	process := processFor(t)
	if t == agent.TypeAnalytics {
		process = processAnalyticsWith(a.store, id)
	}
	ag := agent.New(id, t, mem, fw, engine, a.logger,
		agent.WithCapabilities(capabilitiesFor(t)...),
		agent.WithProfile(profileFor(t)),
		agent.WithProcessFunc(process))

	if err := ag.Load(a.statePath(id)); err != nil {
		return nil, fmt.Errorf("restore agent %s: %w", id, err)
	}
	return ag, nil
}

func (a *App) statePath(agentID string) string {
	return filepath.Join(a.cfg.StateDir, agentID+".json")
}

// Run starts the synchronizer worker and the dispatcher's escalation
// loop, then blocks until ctx is cancelled. On return, Close is called
// automatically — callers should not call Close separately.
func (a *App) Run(ctx context.Context) error {
	if a.syncer != nil {
		go a.syncer.Run(ctx)
	}
	go a.dispatcher.RunEscalations(ctx, dispatch.DefaultEscalationInterval)

	<-ctx.Done()
	return a.Close()
}

// Close persists agent state and releases every resource.
func (a *App) Close() error {
	a.logger.Info("folio shutting down")

	var firstErr error
	for _, ag := range a.agents {
		if err := ag.Save(a.statePath(ag.ID())); err != nil {
			a.logger.Error("agent state save failed", "agent_id", ag.ID(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("folio stopped")
	return firstErr
}

// RunWorkflow executes one of the named workflows ("manuscript_processing",
// "research_discovery", "publication_production") over the input data.
func (a *App) RunWorkflow(ctx context.Context, kind string, data map[string]any) (*WorkflowResult, error) {
	wr, err := a.coord.RunWorkflow(ctx, kind, data)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordWorkflow(ctx, kind, string(wr.Status))
	return toPublicWorkflowResult(wr), nil
}

// SyncEntity reconciles one entity with the external journal system.
// The direction is "to_external", "from_external", or "bidirectional".
func (a *App) SyncEntity(ctx context.Context, entityType, entityID, direction string) (bool, error) {
	if a.syncer == nil {
		return false, fmt.Errorf("folio: journal synchronization is not configured")
	}
	ok, err := a.syncer.SyncEntity(ctx, entityType, entityID, model.SyncDirection(direction))
	status := "success"
	if err != nil || !ok {
		status = "failure"
	}
	a.metrics.RecordSync(ctx, entityType, status)
	return ok, err
}

// QueueSync enqueues an entity for the background sync worker.
func (a *App) QueueSync(entityType, entityID, direction string) error {
	if a.syncer == nil {
		return fmt.Errorf("folio: journal synchronization is not configured")
	}
	return a.syncer.QueueSync(entityType, entityID, model.SyncDirection(direction))
}

// ResolveConflict applies manually resolved data to both sides of a
// pending conflict.
func (a *App) ResolveConflict(ctx context.Context, conflictID string, resolved map[string]any) (bool, error) {
	if a.syncer == nil {
		return false, fmt.Errorf("folio: journal synchronization is not configured")
	}
	return a.syncer.ResolveConflict(ctx, conflictID, resolved)
}

// SyncStats returns the synchronizer's aggregate counters.
func (a *App) SyncStats(ctx context.Context) (SyncStats, error) {
	if a.syncer == nil {
		return SyncStats{}, fmt.Errorf("folio: journal synchronization is not configured")
	}
	st, err := a.syncer.Stats(ctx)
	if err != nil {
		return SyncStats{}, err
	}
	return SyncStats{
		Total:             st.Total,
		Success:           st.Success,
		Failure:           st.Failure,
		ConflictsDetected: st.ConflictsDetected,
		ConflictsResolved: st.ConflictsResolved,
		LastSync:          st.LastSync,
		PendingConflicts:  st.PendingConflicts,
		QueueSize:         st.QueueSize,
		InFlight:          st.InFlight,
	}, nil
}

// SyncHealth reports the synchronizer's operational state.
func (a *App) SyncHealth(ctx context.Context) SyncHealth {
	if a.syncer == nil {
		return SyncHealth{Status: "disabled"}
	}
	h := a.syncer.Health(ctx)
	return SyncHealth{Status: h.Status, Issues: h.Issues}
}

// AgentStatuses snapshots every registered agent.
func (a *App) AgentStatuses() []AgentStatus {
	out := make([]AgentStatus, 0, len(a.agents))
	for _, ag := range a.agents {
		st := ag.Status()
		out = append(out, AgentStatus{
			ID:             ag.ID(),
			Type:           string(ag.Type()),
			State:          string(st.State),
			CurrentTask:    st.CurrentTask,
			TotalActions:   st.TotalActions,
			SuccessRate:    st.SuccessRate,
			PendingTasks:   st.Pending,
			CompletedTasks: st.Completed,
		})
	}
	return out
}

// AddTask enqueues work on the agent of the given type and returns the
// task id.
func (a *App) AddTask(agentType string, data map[string]any, priority float64) (string, error) {
	ag, ok := a.coord.Agent(agent.Type(agentType))
	if !ok {
		return "", fmt.Errorf("folio: unknown agent type %q", agentType)
	}
	return ag.AddTask(data, priority), nil
}

// ProcessNext runs the highest-priority pending task on the agent of the
// given type. It returns false when the queue is empty.
func (a *App) ProcessNext(ctx context.Context, agentType string) (bool, error) {
	ag, ok := a.coord.Agent(agent.Type(agentType))
	if !ok {
		return false, fmt.Errorf("folio: unknown agent type %q", agentType)
	}
	res := ag.ProcessNext(ctx)
	if res == nil {
		return false, nil
	}
	return res.Success, res.Err
}

// eventHook adapts coordination events to the public hooks and feeds
// critical events into the dispatcher as internal escalation messages.
func (a *App) eventHook(hooks []WorkflowHook) coordinator.EventHook {
	return func(ev coordinator.Event) {
		pub := WorkflowEvent{
			Action:   ev.Action,
			Source:   string(ev.Source),
			Target:   string(ev.Target),
			Critical: ev.Critical,
			Payload:  ev.Payload,
		}
		for _, h := range hooks {
			h(pub)
		}

		templateID := "coordination_notification"
		priority := model.PriorityMedium
		if ev.Critical {
			templateID = "coordination_escalation"
			priority = model.PriorityHigh
		}
		recipient := model.Recipient{
			ID:      "ag_" + string(ev.Target),
			Address: string(ev.Target) + "@agents.internal",
			Name:    string(ev.Target) + " agent",
			Role:    "agent",
		}
		msgContext := map[string]any{
			"action": ev.Action,
			"source": string(ev.Source),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if msg, err := a.dispatcher.Send(ctx, templateID, recipient, msgContext, priority); err != nil {
			a.logger.Warn("coordination message failed", "template_id", templateID, "error", err)
		} else if msg != nil {
			a.metrics.RecordMessage(ctx, string(msg.Channel))
		}
	}
}

// registerBuiltinTemplates installs the internal-channel templates the
// coordinator's fan-out uses.
func registerBuiltinTemplates(d *dispatch.Dispatcher) {
	d.RegisterTemplate(model.Template{
		ID:              "coordination_notification",
		SubjectPattern:  "Coordination: {{.action}}",
		BodyPattern:     "Agent {{.source}} completed {{.action}}.",
		Channel:         model.ChannelInternal,
		Personalization: map[string]string{"salutation": "off"},
	})
	d.RegisterTemplate(model.Template{
		ID:              "coordination_escalation",
		SubjectPattern:  "Escalation: {{.action}} failed",
		BodyPattern:     "Agent {{.source}} reported a failure in {{.action}}. Intervention may be required.",
		Channel:         model.ChannelInternal,
		Personalization: map[string]string{"salutation": "off"},
	})
}

// providerAdapter bridges the public MessageProvider to the internal
// channel provider interface.
type providerAdapter struct {
	p MessageProvider
}

func (pa *providerAdapter) Deliver(ctx context.Context, msg model.Message) error {
	return pa.p.Deliver(ctx, msg.Recipient.Address, msg.Subject, msg.Body)
}

// toPublicWorkflowResult converts the internal workflow record at the
// boundary.
func toPublicWorkflowResult(wr *coordinator.WorkflowResult) *WorkflowResult {
	out := &WorkflowResult{
		ID:            wr.ID,
		Kind:          wr.Kind,
		Status:        WorkflowStatus(wr.Status),
		ExecutionTime: wr.ExecutionTime,
	}
	for _, s := range wr.Steps {
		out.Steps = append(out.Steps, WorkflowStep{
			Agent:         string(s.AgentType),
			Action:        s.ActionType,
			Success:       s.Success,
			ExecutionTime: s.ExecutionTime,
			Result:        s.Result,
			Error:         s.Error,
		})
	}
	return out
}

func closeAll(store *storage.Store, redisClient *redis.Client, shutdown telemetry.Shutdown) {
	if redisClient != nil {
		_ = redisClient.Close()
	}
	_ = store.Close()
	_ = shutdown(context.Background())
}
