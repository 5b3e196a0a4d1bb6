package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// GeminiProvider asks Gemini to categorize transactions in one strict-JSON
// batch call. BudgetTransactions caps how many transactions a single Suggest
// call will send; anything past the cap is silently left unsuggested, which
// the engine treats as a clean fall-through to rules.
type GeminiProvider struct {
	Model              string
	BudgetTransactions int
	Timeout            time.Duration
}

func (g *GeminiProvider) model() string {
	if g.Model == "" {
		return DefaultModel
	}
	return g.Model
}

// Suggest sends one batch request and parses the model's JSON response into a
// SuggestionSet. Suggestions naming categories outside the supplied catalog
// are dropped here so the engine only ever sees resolvable ones.
func (g *GeminiProvider) Suggest(ctx context.Context, req SuggestRequest) (SuggestionSet, error) {
	if len(req.Transactions) == 0 {
		return SuggestionSet{}, nil
	}
	batch := req.Transactions
	if g.BudgetTransactions > 0 && len(batch) > g.BudgetTransactions {
		batch = batch[:g.BudgetTransactions]
	}

	timeout := g.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal transactions: %w", err)
	}

	prompt := buildPrompt(req.Categories, string(payload))
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model(), contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var items []struct {
		Fingerprint string  `json:"fingerprint"`
		CategoryID  string  `json:"category_id"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &items); err != nil {
		return nil, fmt.Errorf("unmarshal suggestions: %w", err)
	}

	known := make(map[string]bool, len(req.Categories))
	for _, c := range req.Categories {
		known[c] = true
	}
	out := make(SuggestionSet, len(items))
	for _, it := range items {
		if it.Fingerprint == "" || !known[it.CategoryID] {
			continue
		}
		if it.Confidence < 0 || it.Confidence > 1 {
			continue
		}
		out[it.Fingerprint] = Suggestion{CategoryID: it.CategoryID, Confidence: it.Confidence}
	}
	return out, nil
}

func buildPrompt(categories []string, transactionsJSON string) string {
	return "You are a financial transaction categorizer.\n\n" +
		"Task:\n" +
		"- Assign each transaction below exactly one category from the allowed list.\n" +
		"- Output STRICT JSON only: a JSON array of objects, no comments, no extra text.\n\n" +
		"Each output object must have these fields:\n" +
		"- \"fingerprint\": string, copied verbatim from the input transaction\n" +
		"- \"category_id\": string, one of the allowed categories\n" +
		"- \"confidence\": number between 0 and 1\n\n" +
		"Rules:\n" +
		"- Skip a transaction entirely if no allowed category fits.\n" +
		"- Do NOT invent categories.\n" +
		"- Do NOT wrap the response in code fences or Markdown.\n" +
		"- Output must begin with \"[\" and end with \"]\".\n\n" +
		"Allowed categories:\n" + strings.Join(categories, "\n") + "\n\n" +
		"Transactions:\n" + transactionsJSON + "\n"
}

// cleanModelJSON strips Markdown fences when the model ignores instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
