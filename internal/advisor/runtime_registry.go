package advisor

import "strings"

// Provider names accepted by the registry.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

type runtimeFactory func(rc RuntimeConfig) Runtime

var runtimes = map[string]runtimeFactory{}

// RegisterRuntime installs a provider factory under a name. Later
// registrations replace earlier ones, which tests use to inject stubs.
func RegisterRuntime(name string, f runtimeFactory) {
	runtimes[strings.ToLower(name)] = f
}

// GetRuntime returns a configured runtime for the provider, if registered.
func GetRuntime(name string, rc RuntimeConfig) (Runtime, bool) {
	f, ok := runtimes[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return f(rc), true
}

func init() {
	RegisterRuntime(ProviderOpenRouter, func(rc RuntimeConfig) Runtime {
		return NewClient(rc.APIKey, rc.HTTPTimeout, rc.RetryMax, rc.BaseDelay, rc.MaxDelay)
	})
	RegisterRuntime(ProviderOllama, func(rc RuntimeConfig) Runtime {
		return NewOllamaClient(rc.Host, rc.HTTPTimeout)
	})
}
