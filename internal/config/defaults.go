package config

const (
	defaultStateDir                 = "~/.local/share/aiwatch"
	defaultLogDir                   = "~/.local/share/aiwatch/logs"
	defaultBackendBaseURL           = "http://127.0.0.1:3000"
	defaultWebsocketPath            = "/api/ai/websocket"
	defaultRequestTimeoutSeconds    = 15
	defaultHeartbeatIntervalSeconds = 30
	defaultMaxMissedPongs           = 2
	defaultReconnectInitialMillis   = 3000
	defaultReconnectMaxMillis       = 60000
	defaultReconnectJitter          = 0.2
	defaultRefreshIntervalSeconds   = 60
	defaultRefreshMinInterval       = 5
	defaultRangeDays                = 30
	defaultCostAlertThreshold       = 50
	defaultAPIBind                  = "127.0.0.1:7590"
	defaultInfluxBucket             = "aiwatch"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Backend: Backend{
			BaseURL:               defaultBackendBaseURL,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Channel: Channel{
			HeartbeatIntervalSeconds: defaultHeartbeatIntervalSeconds,
			MaxMissedPongs:           defaultMaxMissedPongs,
			ReconnectInitialMillis:   defaultReconnectInitialMillis,
			ReconnectMaxMillis:       defaultReconnectMaxMillis,
			ReconnectJitter:          defaultReconnectJitter,
		},
		Refresh: Refresh{
			IntervalSeconds:    defaultRefreshIntervalSeconds,
			MinIntervalSeconds: defaultRefreshMinInterval,
			DefaultRangeDays:   defaultRangeDays,
		},
		Costs: Costs{
			AlertThreshold: defaultCostAlertThreshold,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Influx: Influx{
			Bucket: defaultInfluxBucket,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
