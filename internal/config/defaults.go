package config

const (
	defaultBackendURL        = "http://127.0.0.1:8000"
	defaultTimeoutSeconds    = 20
	defaultRequestsPerSecond = 10.0
	defaultBurst             = 5
	defaultPostLimit         = 100
	defaultFollowUpMarker    = "👆"
	defaultStateDir          = "~/.local/share/curator"
	defaultLogDir            = "~/.local/share/curator/logs"
	defaultViewBind          = "127.0.0.1:7488"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultUseEffectiveText  = true
	defaultIngestLimit       = 200
	defaultNtfyTimeout       = 10
	maxPostLimit             = 1000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			BaseURL:           defaultBackendURL,
			TimeoutSeconds:    defaultTimeoutSeconds,
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
		},
		Session: Session{
			PostLimit:   defaultPostLimit,
			IngestLimit: defaultIngestLimit,
		},
		Generation: Generation{
			FollowUpMarker:   defaultFollowUpMarker,
			UseEffectiveText: defaultUseEffectiveText,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		View: View{
			Bind: defaultViewBind,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
