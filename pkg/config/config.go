// Package config snapshots the viper configuration into typed values.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Keys shared by flags, the config file and the environment.
const (
	KeyDBPath          = "db-path"
	KeyProvider        = "provider"
	KeyModel           = "model"
	KeyOpenAIKey       = "openai-api-key"
	KeyAnthropicKey    = "anthropic-api-key"
	KeyGitHubToken     = "github-token"
	KeyLogFile         = "log-file"
	KeyLogLevel        = "log-level"
	KeyLogFormat       = "log-format"
	KeyDebug           = "debug"
	KeyPort            = "port"
	KeySnapshotDir     = "snapshot-dir"
	KeyAppURL          = "app-url"
	KeyJiraAPIBase     = "jira-api-base"
	KeyAgentEnabled    = "agent-enabled"
	KeyQueueWorkers    = "queue-workers"
	KeyQueuePoll       = "queue-poll-interval"
	KeyQueueRetryDelay = "queue-retry-delay"
)

// Config is the resolved application configuration.
type Config struct {
	DBPath       string
	Provider     string
	Model        string
	OpenAIKey    string
	AnthropicKey string
	GitHubToken  string

	LogFile   string
	LogLevel  string
	LogFormat string
	Debug     bool

	Port        string
	SnapshotDir string
	AppURL      string
	JiraAPIBase string

	AgentEnabled    bool
	QueueWorkers    int
	QueuePoll       time.Duration
	QueueRetryDelay time.Duration
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDBPath, "jacob.db")
	v.SetDefault(KeyProvider, "openai")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyAppURL, "https://app.jacb.ai")
	v.SetDefault(KeyQueueWorkers, 2)
	v.SetDefault(KeyQueuePoll, 2*time.Second)
	v.SetDefault(KeyQueueRetryDelay, 30*time.Second)
}

// Load reads the global viper instance.
func Load() Config {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) Config {
	return Config{
		DBPath:          v.GetString(KeyDBPath),
		Provider:        v.GetString(KeyProvider),
		Model:           v.GetString(KeyModel),
		OpenAIKey:       v.GetString(KeyOpenAIKey),
		AnthropicKey:    v.GetString(KeyAnthropicKey),
		GitHubToken:     v.GetString(KeyGitHubToken),
		LogFile:         v.GetString(KeyLogFile),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		Debug:           v.GetBool(KeyDebug),
		Port:            v.GetString(KeyPort),
		SnapshotDir:     v.GetString(KeySnapshotDir),
		AppURL:          v.GetString(KeyAppURL),
		JiraAPIBase:     v.GetString(KeyJiraAPIBase),
		AgentEnabled:    v.GetBool(KeyAgentEnabled),
		QueueWorkers:    v.GetInt(KeyQueueWorkers),
		QueuePoll:       v.GetDuration(KeyQueuePoll),
		QueueRetryDelay: v.GetDuration(KeyQueueRetryDelay),
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	switch c.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("unsupported provider %q", c.Provider))
	}
	if c.QueueWorkers < 1 {
		errs = append(errs, fmt.Errorf("queue workers must be at least 1, got %d", c.QueueWorkers))
	}
	return errors.Join(errs...)
}

// APIKey returns the key of the configured provider.
func (c Config) APIKey() string {
	if c.Provider == "anthropic" {
		return c.AnthropicKey
	}
	return c.OpenAIKey
}
