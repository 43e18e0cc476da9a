package folio

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger        *slog.Logger
	version       string
	stateDir      string
	databaseURLs  []string
	journalClient JournalClient
	workflowHooks []WorkflowHook
	providers     map[string]MessageProvider
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithStateDir overrides the agent state directory from config
// (FOLIO_STATE_DIR env var).
func WithStateDir(dir string) Option {
	return func(o *resolvedOptions) { o.stateDir = dir }
}

// WithDatabaseURLs overrides the PostgreSQL failover list from config
// (POSTGRESQL_URLS env var). An empty list selects the embedded store.
func WithDatabaseURLs(urls ...string) Option {
	return func(o *resolvedOptions) { o.databaseURLs = urls }
}

// WithJournalClient replaces the built-in HTTP client for the external
// journal system. Only the last call wins.
func WithJournalClient(c JournalClient) Option {
	return func(o *resolvedOptions) { o.journalClient = c }
}

// WithWorkflowHook registers a coordination event observer. Multiple
// hooks may be registered; all receive every event.
func WithWorkflowHook(hook WorkflowHook) Option {
	return func(o *resolvedOptions) { o.workflowHooks = append(o.workflowHooks, hook) }
}

// WithMessageProvider attaches a delivery provider for one channel
// ("email", "sms", "chat", "webhook"). Without a provider, production
// mode fails sends on that channel and development mode logs them.
func WithMessageProvider(channel string, p MessageProvider) Option {
	return func(o *resolvedOptions) {
		if o.providers == nil {
			o.providers = map[string]MessageProvider{}
		}
		o.providers[channel] = p
	}
}
