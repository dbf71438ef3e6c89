// Package config loads the backoffice configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for the auth backend and the console shell.
type Config struct {
	// Listen is the backend's listen address.
	Listen string `yaml:"listen"`
	// BaseURL is the auth API base the console talks to.
	BaseURL string `yaml:"baseUrl"`
	// SessionKey signs the session cookies. A random ephemeral key is used
	// when empty, which invalidates sessions on restart.
	SessionKey string `yaml:"sessionKey"`
	// UsersFile is the yaml file holding the backoffice accounts.
	UsersFile string `yaml:"usersFile"`
	// KeyFile is the PEM RSA private key used for credential decryption.
	KeyFile string `yaml:"keyFile"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:    ":3000",
		BaseURL:   "http://localhost:3000/api/auth",
		UsersFile: "users.yaml",
		KeyFile:   "auth_key.pem",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads path when it exists and applies DIGIBO_* environment
// overrides on top. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Listen, "DIGIBO_LISTEN")
	override(&cfg.BaseURL, "DIGIBO_BASE_URL")
	override(&cfg.SessionKey, "DIGIBO_SESSION_KEY")
	override(&cfg.UsersFile, "DIGIBO_USERS_FILE")
	override(&cfg.KeyFile, "DIGIBO_KEY_FILE")
	override(&cfg.LogLevel, "DIGIBO_LOG_LEVEL")
	override(&cfg.LogFormat, "DIGIBO_LOG_FORMAT")
}
