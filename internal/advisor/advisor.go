package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Suggestion is the validated verdict for one category set. When
// NeedsEncoding is false the column is left alone. UnknownKeys lists
// mapping keys the model invented that match no extracted category; they
// are dropped but reported for the processing log.
type Suggestion struct {
	NeedsEncoding bool
	Mapping       map[string]int
	UnknownKeys   []string
}

// Service wraps a Runtime with the prompts, parsing, and validation the
// preparation pipeline needs. Raw model output never crosses this
// boundary: replies either validate into typed results or come back as
// errors the caller downgrades to a logged skip.
type Service struct {
	runtime     Runtime
	model       string
	maxTokens   int
	temperature float64
}

// NewService builds a Service on any Runtime.
func NewService(rt Runtime, model string, maxTokens int, temperature float64) *Service {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Service{runtime: rt, model: model, maxTokens: maxTokens, temperature: temperature}
}

// SuggestEncoding asks whether the categories form a codable scale and,
// if so, for the category-to-integer mapping.
func (s *Service) SuggestEncoding(ctx context.Context, categories []string) (*Suggestion, error) {
	raw, err := s.generate(ctx, EncodingPrompt(categories))
	if err != nil {
		return nil, err
	}
	return parseSuggestion(raw, categories)
}

// SimplifyNames proposes short variable names for the raw column headers.
// The result may cover any subset of the input, including none of it.
func (s *Service) SimplifyNames(ctx context.Context, names []string) (map[string]string, error) {
	raw, err := s.generate(ctx, SimplifyPrompt(names))
	if err != nil {
		return nil, err
	}
	return parseStringMap(raw)
}

// GenerateLabels drafts descriptive variable labels from the original
// question text, keyed by current identifier. Partial coverage is fine.
func (s *Service) GenerateLabels(ctx context.Context, questions map[string]string) (map[string]string, error) {
	raw, err := s.generate(ctx, LabelPrompt(questions))
	if err != nil {
		return nil, err
	}
	return parseStringMap(raw)
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.runtime.Generate(ctx, GenerateRequest{
		Model:       s.model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no content returned from model")
	}
	return resp.Choices[0].Message.Content, nil
}

// EncodingPrompt is the exact prompt SuggestEncoding sends for a category
// set. Exported so a dry run can count tokens without sending anything.
func EncodingPrompt(categories []string) string {
	var sb strings.Builder
	sb.WriteString("[TASK]\n")
	sb.WriteString("You prepare survey data for a statistical package. Decide whether the answer categories below form a scale that should be numerically encoded.\n\n")
	sb.WriteString("[CATEGORIES]\n")
	for _, c := range categories {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("\n[RULES]\n")
	sb.WriteString("- If the categories form an ordered scale, assign consecutive integers starting at 1 for the most favorable or first extreme.\n")
	sb.WriteString("- Categories outside the scale (for example \"Other\", \"Don't know\", \"nan\") get distinct high codes such as 97, 98, 99.\n")
	sb.WriteString("- Every listed category must appear as a key, spelled exactly as listed.\n")
	sb.WriteString("- If the categories have no natural order and no escape categories, no encoding is needed.\n\n")
	sb.WriteString("[OUTPUT]\n")
	sb.WriteString("Reply with only a JSON object, no prose: {\"needs_encoding\": true|false, \"mapping_dict\": {\"<category>\": <integer>, ...} | null}\n")
	return sb.String()
}

// SimplifyPrompt is the exact prompt SimplifyNames sends.
func SimplifyPrompt(names []string) string {
	var sb strings.Builder
	sb.WriteString("[TASK]\n")
	sb.WriteString("Propose short variable names for these survey column headers. Names should be lowercase-or-CamelCase words, at most 32 characters, letters, digits and underscores only, starting with a letter.\n\n")
	sb.WriteString("[COLUMNS]\n")
	for i, n := range names {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, n)
	}
	sb.WriteString("\n[OUTPUT]\n")
	sb.WriteString("Reply with only a JSON object mapping each original header, spelled exactly as listed, to its proposed name.\n")
	return sb.String()
}

// LabelPrompt is the exact prompt GenerateLabels sends.
func LabelPrompt(questions map[string]string) string {
	ids := make([]string, 0, len(questions))
	for id := range questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("[TASK]\n")
	sb.WriteString("Write one concise descriptive label (at most 256 characters, plain text) for each survey variable below.\n\n")
	sb.WriteString("[VARIABLES]\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "- %s: %s\n", id, questions[id])
	}
	sb.WriteString("\n[OUTPUT]\n")
	sb.WriteString("Reply with only a JSON object mapping each variable name, spelled exactly as listed, to its label.\n")
	return sb.String()
}

// parseSuggestion is the validation boundary between raw model output and
// the pipeline. A single non-integer mapping value discards the whole
// suggestion, per the contract that a broken mapping is worse than none.
func parseSuggestion(raw string, categories []string) (*Suggestion, error) {
	var wire struct {
		NeedsEncoding bool                       `json:"needs_encoding"`
		Mapping       map[string]json.RawMessage `json:"mapping_dict"`
	}
	if err := unmarshalReply(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse suggestion: %w", err)
	}
	if !wire.NeedsEncoding || len(wire.Mapping) == 0 {
		return &Suggestion{}, nil
	}

	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c] = struct{}{}
	}
	sug := &Suggestion{NeedsEncoding: true, Mapping: make(map[string]int, len(wire.Mapping))}
	for k, v := range wire.Mapping {
		code, err := coerceCode(v)
		if err != nil {
			return nil, fmt.Errorf("mapping value for %q: %w", k, err)
		}
		if _, ok := known[k]; !ok {
			sug.UnknownKeys = append(sug.UnknownKeys, k)
			continue
		}
		sug.Mapping[k] = code
	}
	sort.Strings(sug.UnknownKeys)
	if len(sug.Mapping) == 0 {
		return &Suggestion{UnknownKeys: sug.UnknownKeys}, nil
	}
	return sug, nil
}

func parseStringMap(raw string) (map[string]string, error) {
	var wire map[string]string
	if err := unmarshalReply(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	out := make(map[string]string, len(wire))
	for k, v := range wire {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// unmarshalReply tolerates the usual model formatting sins: code fences
// around the JSON, or prose before and after it.
func unmarshalReply(raw string, v any) error {
	text := stripFences(raw)
	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}
	if sub := braceSubstring(text); sub != "" {
		if err2 := json.Unmarshal([]byte(sub), v); err2 == nil {
			return nil
		}
	}
	return err
}

// stripFences removes a Markdown code fence wrapping a reply, including an
// optional language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		tag := strings.TrimSpace(s[:i])
		if len(tag) <= 10 && !strings.ContainsAny(tag, "{}[]") {
			s = s[i+1:]
		}
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func braceSubstring(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func coerceCode(raw json.RawMessage) (int, error) {
	// JSON null is a no-op for every target type, so reject it up front.
	if trimmed := strings.TrimSpace(string(raw)); trimmed == "" || trimmed == "null" {
		return 0, fmt.Errorf("missing value")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("not an integer: %v", f)
		}
		return int(f), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, convErr := strconv.Atoi(strings.TrimSpace(s))
		if convErr != nil {
			return 0, fmt.Errorf("not an integer: %q", s)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unsupported value: %s", string(raw))
}
