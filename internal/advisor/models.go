package advisor

// ModelInfo describes context limits and pricing used for cost estimates
// before a run is allowed to spend money.
type ModelInfo struct {
	Name          string
	ContextTokens int
	InputPerK     float64 // USD per 1K prompt tokens
	OutputPerK    float64 // USD per 1K completion tokens
}

// catalog holds a small built-in snapshot of commonly used models. Prices
// drift; estimates are upper-bound guidance, not billing.
var catalog = map[string]ModelInfo{
	"openai/gpt-4o-mini":          {Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	"openai/gpt-4o":               {Name: "openai/gpt-4o", ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01},
	"anthropic/claude-3.5-sonnet": {Name: "anthropic/claude-3.5-sonnet", ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
	"anthropic/claude-3-haiku":    {Name: "anthropic/claude-3-haiku", ContextTokens: 200000, InputPerK: 0.00025, OutputPerK: 0.00125},
	"google/gemini-flash-1.5":     {Name: "google/gemini-flash-1.5", ContextTokens: 1000000, InputPerK: 0.000075, OutputPerK: 0.0003},
	"meta-llama/llama-3.1-8b-instruct": {
		Name: "meta-llama/llama-3.1-8b-instruct", ContextTokens: 131072, InputPerK: 0.00002, OutputPerK: 0.00003,
	},
	// Local models are free; context figures are typical defaults.
	"llama3.2": {Name: "llama3.2", ContextTokens: 8192},
	"qwen2.5":  {Name: "qwen2.5", ContextTokens: 32768},
}

// LookupModel returns catalog metadata for a model name.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := catalog[name]
	return mi, ok
}

// EstimateCostUSD computes the worst-case cost of one call. ok is false
// when the model is unknown or carries no pricing (local models).
func EstimateCostUSD(model string, promptTokens, maxOutput int) (float64, bool) {
	mi, ok := catalog[model]
	if !ok || (mi.InputPerK == 0 && mi.OutputPerK == 0) {
		return 0, false
	}
	cost := float64(promptTokens)/1000*mi.InputPerK + float64(maxOutput)/1000*mi.OutputPerK
	return cost, true
}
