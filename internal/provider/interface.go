// Package provider selects and constructs LLM backend implementations at
// runtime. Supported backends: Groq, Ollama, OpenAI, Azure OpenAI, Google
// Gemini, and Ark (Volcano Engine).
package provider

import (
	"fmt"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGroq selects the Groq API (OpenAI-compatible).
	BackendGroq Backend = "groq"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects the ByteDance Volcano Engine Ark runtime.
	BackendArk Backend = "ark"
)

// ProviderGroq holds Groq-specific configuration.
type ProviderGroq struct {
	// APIKey authenticates against the Groq API.
	APIKey string
	// Model is the Groq model name (e.g. "llama-3.3-70b-versatile").
	Model string
	// BaseURL overrides the default Groq endpoint. Leave empty for production.
	BaseURL string
}

// ProviderOllama holds Ollama-specific configuration.
type ProviderOllama struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the model name (e.g. "llama3").
	Model string
}

// ProviderOpenAI holds OpenAI-specific configuration.
type ProviderOpenAI struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string
	// Model is the model name (e.g. "gpt-4o").
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI Service configuration.
type ProviderAzureOpenAI struct {
	// APIKey authenticates against the Azure OpenAI resource.
	APIKey string
	// Endpoint is the resource endpoint (e.g. "https://my.openai.azure.com").
	Endpoint string
	// Deployment is the deployment name to invoke.
	Deployment string
	// APIVersion is the REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderGemini holds Google Gemini configuration.
type ProviderGemini struct {
	// APIKey authenticates against the Gemini API.
	APIKey string
	// Model is the model name (e.g. "gemini-1.5-pro").
	Model string
}

// ProviderArk holds Volcano Engine Ark configuration.
type ProviderArk struct {
	// APIKey authenticates against the Ark runtime.
	APIKey string
	// Model is the Ark endpoint/model ID.
	Model string
	// BaseURL overrides the default Ark endpoint.
	BaseURL string
}

// SharedTuning holds generation parameters common to all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Groq        ProviderGroq
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Gemini      ProviderGemini
	Ark         ProviderArk

	// Tuning holds generation parameters shared across backends.
	Tuning SharedTuning
}

// Validate checks that the config section for the selected backend has all
// required fields. Error messages name the environment variable the operator
// should set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGroq:
		if c.Groq.APIKey == "" {
			return fmt.Errorf("provider: GROQ_API_KEY is required for groq backend")
		}
		if c.Groq.Model == "" {
			return fmt.Errorf("provider: GROQ_MODEL is required for groq backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: groq, ollama, openai, azure, gemini, ark", c.Backend)
	}
	return nil
}
