package config

const (
	KeyAPIKey        = "instantly_api_key"
	KeyBaseURL       = "instantly_base_url"
	KeyRedisURL      = "redis_url"
	KeyLogLevel      = "log_level"
	KeyLogPretty     = "log_pretty"
	KeyTransport     = "transport"
	KeyHost          = "host"
	KeyPort          = "port"
	KeyProfilesFile  = "profiles_file"
	KeyClientName    = "client_name"
	KeyMemoryLimitMB = "memory_limit_mb"
	KeyHistorySize   = "history_size"
)

// Transports the server can speak.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)
