package config

import "errors"

// ErrMissingAPIKey signals that no Gemini API key could be found anywhere.
// Load still returns the otherwise-complete Config alongside it so an
// interactive caller can solicit the key and proceed.
var ErrMissingAPIKey = errors.New("missing required config: Gemini API key. " +
	"Set it via environment variable GEMINI_API_KEY (or GOOGLE_API_KEY)")

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Gemini   GeminiConfig
	Analysis AnalysisConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type StorageConfig struct {
	DataDir string
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty means the client's production default
}

type AnalysisConfig struct {
	ExcerptCap  int
	MaxAttempts int
	BaseBackoff string // duration string, e.g. "1s"
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       7133,
			MCPEnabled: true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Gemini: GeminiConfig{
			Model: "gemini-1.5-pro",
		},
		Analysis: AnalysisConfig{
			ExcerptCap:  50000,
			MaxAttempts: 3,
			BaseBackoff: "1s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.pdfinsight.app) and the
// Gemini key falls back to macOS Keychain. On Linux the backend is a JSON
// file at $XDG_CONFIG_HOME/pdfinsight/config.json and the key falls back to
// the local secrets file.
//
// Environment variables (PDFINSIGHT_*) override backend values on all
// platforms; the credential itself is read from GEMINI_API_KEY, then
// GOOGLE_API_KEY. When the key is absent everywhere, Load returns the loaded
// Config together with ErrMissingAPIKey.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewSecretStore())
}

// keychain abstracts secret-store reads for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store if the environment had no key.
	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get(secretService, secretGeminiKey); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}

	if cfg.Gemini.APIKey == "" {
		return cfg, ErrMissingAPIKey
	}

	return cfg, nil
}
