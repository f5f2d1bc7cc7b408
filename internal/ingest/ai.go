package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lender-match/internal/config"
	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/pkg/anthropic"
)

// maxDocumentChars bounds the document text sent to the model.
const maxDocumentChars = 60_000

const extractionPrompt = `You extract equipment-finance lender eligibility rules from policy documents.

Respond with a single JSON object and nothing else:
{"rules": [{"kind": "...", "value": 0, "min": 0, "max": 0, "values": ["..."]}]}

Allowed kinds and their parameters:
- min_fico: value (integer FICO score, 300-850)
- min_years_in_business: value (years, may be fractional)
- min_annual_revenue: value (US dollars)
- amount_range: min and/or max (US dollars)
- min_amount: value (US dollars)
- max_amount: value (US dollars)
- allowed_equipment_types: values from Truck, Medical, Construction, IT, Other
- excluded_equipment_types: values from Truck, Medical, Construction, IT, Other
- excluded_states: values as two-letter US state codes
- min_paynet: value (integer PayNet score)

Only include rules the document states explicitly. Omit parameters a kind does not use.
If the document states no rules, return {"rules": []}.`

// AIParser extracts rules with a Claude model.
type AIParser struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAIParser creates an AIParser from the Anthropic settings.
func NewAIParser(client anthropic.Client, cfg config.AnthropicConfig) *AIParser {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AIParser{client: client, model: cfg.Model, maxTokens: maxTokens}
}

// Name implements Parser.
func (p *AIParser) Name() string { return "ai" }

// Parse implements Parser. The returned definitions are not validated;
// policy.Load rejects anything malformed before it is stored.
func (p *AIParser) Parse(ctx context.Context, text string) ([]model.RuleDefinition, error) {
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      anthropic.CachedSystemBlocks(extractionPrompt),
		Prompt:      truncate(text, maxDocumentChars),
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: extract rules")
	}
	resp.Usage.Log(p.model, "ingest")

	if resp.Truncated() {
		return nil, eris.New("ingest: model response truncated, raise anthropic.max_tokens")
	}

	var out struct {
		Rules []model.RuleDefinition `json:"rules"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &out); err != nil {
		zap.L().Debug("ingest: unparseable model response", zap.String("text", resp.Text))
		return nil, eris.Wrap(err, "ingest: decode model response")
	}

	rules := make([]model.RuleDefinition, 0, len(out.Rules))
	for _, r := range out.Rules {
		r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
		if r.Kind == "" {
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
