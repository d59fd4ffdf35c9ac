package advisor

import (
	"math"
	"testing"
	"time"
)

func TestGetRuntimeOpenRouter(t *testing.T) {
	rt, ok := GetRuntime("openrouter", RuntimeConfig{APIKey: "sk-test", HTTPTimeout: 5 * time.Second})
	if !ok {
		t.Fatal("expected openrouter runtime to be registered")
	}
	if _, isClient := rt.(*Client); !isClient {
		t.Errorf("openrouter runtime = %T, want *Client", rt)
	}
}

func TestGetRuntimeOllama(t *testing.T) {
	rt, ok := GetRuntime("ollama", RuntimeConfig{Host: "http://127.0.0.1:11434"})
	if !ok {
		t.Fatal("expected ollama runtime to be registered")
	}
	if _, isOllama := rt.(*OllamaClient); !isOllama {
		t.Errorf("ollama runtime = %T, want *OllamaClient", rt)
	}
}

func TestGetRuntimeCaseInsensitive(t *testing.T) {
	if _, ok := GetRuntime("OpenRouter", RuntimeConfig{}); !ok {
		t.Error("provider lookup should fold case")
	}
}

func TestGetRuntimeUnknown(t *testing.T) {
	if _, ok := GetRuntime("bedrock", RuntimeConfig{}); ok {
		t.Error("unknown provider should not resolve")
	}
}

func TestLookupModel(t *testing.T) {
	info, ok := LookupModel("openai/gpt-4o-mini")
	if !ok {
		t.Fatal("expected catalog entry for openai/gpt-4o-mini")
	}
	if info.ContextTokens != 128000 {
		t.Errorf("ContextTokens = %d, want 128000", info.ContextTokens)
	}
	if _, ok := LookupModel("openai/gpt-99"); ok {
		t.Error("unknown model should miss the catalog")
	}
}

func TestEstimateCostUSD(t *testing.T) {
	cost, ok := EstimateCostUSD("openai/gpt-4o-mini", 1000, 500)
	if !ok {
		t.Fatal("expected a cost estimate for a priced model")
	}
	want := 1.0*0.00015 + 0.5*0.0006
	if math.Abs(cost-want) > 1e-12 {
		t.Errorf("cost = %.8f, want %.8f", cost, want)
	}
}

func TestEstimateCostUSDUnknownModel(t *testing.T) {
	if _, ok := EstimateCostUSD("mystery/model", 1000, 500); ok {
		t.Error("unknown model should not produce an estimate")
	}
}

func TestEstimateCostUSDFreeModel(t *testing.T) {
	// Local models carry no pricing, so there is nothing to enforce a budget against.
	if _, ok := EstimateCostUSD("llama3.2", 1000, 500); ok {
		t.Error("unpriced model should not produce an estimate")
	}
}
