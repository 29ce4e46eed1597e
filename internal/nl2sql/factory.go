package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// DisabledTranslator never produces SQL. It stands in for an absent or
// unconfigured provider so callers need no special casing.
type DisabledTranslator struct {
	Kind   FailureKind
	Reason string
}

func Disabled(reason string) DisabledTranslator {
	return DisabledTranslator{Kind: FailureDisabled, Reason: reason}
}

func (d DisabledTranslator) Translate(context.Context, Request) (Result, error) {
	kind := d.Kind
	if kind == "" {
		kind = FailureDisabled
	}
	reason := d.Reason
	if reason == "" {
		reason = ErrProviderDisabled.Error()
	}
	return Result{}, &TranslationError{Kind: kind, Reason: reason, Err: ErrProviderDisabled}
}

type Config struct {
	Enabled     bool
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// New selects a translator for cfg. A missing API key yields a disabled
// translator rather than an error; an unknown provider is a startup error.
func New(cfg Config) (Translator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if !cfg.Enabled || provider == "" || provider == ProviderNone || provider == "disabled" {
		return Disabled(ErrProviderDisabled.Error()), nil
	}
	switch provider {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return DisabledTranslator{Kind: FailureUnconfigured, Reason: providerLabel(provider) + " not configured"}, nil
	}

	switch provider {
	case ProviderAnthropic:
		return NewAnthropicTranslator(AnthropicConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case ProviderGemini:
		return NewOpenAITranslator(OpenAIConfig{
			Provider:    ProviderGemini,
			BaseURL:     firstNonEmpty(cfg.BaseURL, DefaultGeminiBaseURL),
			APIKey:      cfg.APIKey,
			Model:       firstNonEmpty(cfg.Model, DefaultGeminiModel),
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return NewOpenAITranslator(OpenAIConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     firstNonEmpty(cfg.BaseURL, DefaultOpenAIBaseURL),
			APIKey:      cfg.APIKey,
			Model:       firstNonEmpty(cfg.Model, DefaultOpenAIModel),
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	}
}

func providerLabel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGemini:
		return "Gemini"
	case ProviderAnthropic:
		return "Anthropic"
	default:
		return provider
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
