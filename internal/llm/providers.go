package llm

import (
	"fmt"
	"os"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/RogWilco/jacob/internal/llm/langchainadapter"
	"github.com/RogWilco/jacob/internal/llm/openaiadapter"
	"github.com/RogWilco/jacob/internal/llmtypes"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Provider represents the available LLM providers
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds configuration for LLM initialization
type Config struct {
	Provider Provider
	ModelID  string
	// APIKey overrides the provider's environment variable.
	APIKey string
	Logger utils.ExtendedLogger
}

// InitializeLLM creates the vendor model for config.Provider.
func InitializeLLM(config Config) (llmtypes.Model, error) {
	if config.ModelID == "" {
		config.ModelID = GetDefaultModel(config.Provider)
	}
	switch config.Provider {
	case ProviderOpenAI:
		return initializeOpenAI(config)
	case ProviderAnthropic:
		return initializeAnthropic(config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}

func apiKey(config Config, env string) (string, error) {
	if config.APIKey != "" {
		return config.APIKey, nil
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s environment variable is required for %s provider", env, config.Provider)
}

func initializeOpenAI(config Config) (llmtypes.Model, error) {
	key, err := apiKey(config, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	// Retries are owned by Client.Generate.
	client := openaisdk.NewClient(
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	)

	config.Logger.Infof("Initialized OpenAI LLM - model_id: %s", config.ModelID)
	return openaiadapter.NewOpenAIAdapter(&client, config.ModelID, config.Logger), nil
}

func initializeAnthropic(config Config) (llmtypes.Model, error) {
	key, err := apiKey(config, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}

	model, err := anthropic.New(
		anthropic.WithToken(key),
		anthropic.WithModel(config.ModelID),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}

	config.Logger.Infof("Initialized Anthropic LLM - model_id: %s", config.ModelID)
	return langchainadapter.New(model, config.ModelID, config.Logger), nil
}

// GetDefaultModel returns the default model for each provider, honouring
// <PROVIDER>_PRIMARY_MODEL.
func GetDefaultModel(provider Provider) string {
	if m := os.Getenv(strings.ToUpper(string(provider)) + "_PRIMARY_MODEL"); m != "" {
		return m
	}
	switch provider {
	case ProviderOpenAI:
		return "gpt-4-1106-preview"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	default:
		return ""
	}
}

// ValidateProvider checks if the provider is supported
func ValidateProvider(provider string) (Provider, error) {
	switch Provider(provider) {
	case ProviderOpenAI, ProviderAnthropic:
		return Provider(provider), nil
	default:
		return "", fmt.Errorf("unsupported provider: %s. Supported providers: openai, anthropic", provider)
	}
}
