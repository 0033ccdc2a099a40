package daemon

// StartOptions configures the daemon (home, port, storage, telemetry and watch behaviour).
type StartOptions struct {
	Home       string
	Port       int
	Dev        bool
	PprofAddr  string
	DBDriver   string // "sqlite" (default) or "postgres"
	DBURL      string // for postgres: connection string (or DATABASE_URL env)
	DBPath     string // for sqlite: database file; default home/protected/db.sqlite
	RedisURL   string // if set, cache the active-task view in Redis (or TASKWATCH_REDIS_URL env)
	EnableOtel bool   // enable OpenTelemetry metrics (Prometheus exporter + HTTP/SSE/cycle instrumentation)
	AutoWatch  bool   // start the watch scheduler as soon as the server is up
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
