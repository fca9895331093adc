package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Rate limiter defaults: 50 requests per minute, small bursts allowed.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
	defaultMaxTokens = 512
)

// LLMConfig holds probabilistic-extractor configuration.
type LLMConfig struct {
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// LLMClient implements both Extractor and IntentClassifier on top of an
// OpenAI-compatible chat model via langchaingo. All calls are paced by a
// shared rate limiter; callers own the timeout via context.
type LLMClient struct {
	model   llms.Model
	limiter *rate.Limiter
}

// NewLLMClient builds the langchaingo-backed client. An empty API key is
// an error; use a nil Extractor (or check Available) to run without one.
func NewLLMClient(cfg LLMConfig) (*LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("extractor API key required")
	}

	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	return &LLMClient{
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}, nil
}

// extractPrompt constrains the model to the four optional intent fields
// plus a conversational reply.
const extractPrompt = `You help a small group schedule pickleball games over chat.

Read the conversation and the newest message, then extract any scheduling
details into a JSON object with exactly these optional fields:
- "players": array of invitee names as mentioned (use "me" for the sender)
- "date": the game date in YYYY-MM-DD form, if one can be determined
- "time": the start time like "4:00 PM"
- "location": the court or venue name
- "confirmation": one short friendly sentence to send back to the user

Omit any field you are not sure about. Respond ONLY with the JSON object.`

// Extract asks the model for the structured scheduling fields.
func (c *LLMClient) Extract(ctx context.Context, conversation, message string) (PartialIntent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return PartialIntent{}, fmt.Errorf("rate limiter: %w", err)
	}

	var b strings.Builder
	b.WriteString(extractPrompt)
	if conversation != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(conversation)
	}
	b.WriteString("\n\nNewest message:\n")
	b.WriteString(message)

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, b.String(),
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(defaultMaxTokens),
	)
	if err != nil {
		return PartialIntent{}, classifyCallError(err)
	}

	var intent PartialIntent
	if err := json.Unmarshal([]byte(trimJSONFences(out)), &intent); err != nil {
		return PartialIntent{}, fmt.Errorf("parse extractor response: %w", err)
	}
	return intent, nil
}

// classifyPrompt restricts the model to the enumerated intents.
const classifyPrompt = `A player received a pickleball game invite over SMS and replied with the
message below. Classify the reply as exactly one word from this list:

accept decline cancel question unknown

- "accept": they will play
- "decline": they will not play
- "cancel": they had accepted and are now backing out
- "question": they are asking something about the game
- "unknown": anything else

Respond with only the single word.

Reply: `

// ClassifyReply classifies an inbound SMS reply via the model. The output
// contract is enumerated; anything unrecognized is an error so the caller
// can fall back to unknown.
func (c *LLMClient) ClassifyReply(ctx context.Context, text string) (Intent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return IntentUnknown, fmt.Errorf("rate limiter: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, classifyPrompt+text,
		llms.WithTemperature(0),
		llms.WithMaxTokens(8),
	)
	if err != nil {
		return IntentUnknown, classifyCallError(err)
	}

	switch Intent(strings.ToLower(strings.TrimSpace(trimJSONFences(out)))) {
	case IntentAccept:
		return IntentAccept, nil
	case IntentDecline:
		return IntentDecline, nil
	case IntentCancel:
		return IntentCancel, nil
	case IntentQuestion:
		return IntentQuestion, nil
	case IntentUnknown:
		return IntentUnknown, nil
	default:
		return IntentUnknown, fmt.Errorf("classifier returned out-of-contract value %q", strings.TrimSpace(out))
	}
}

// Available reports whether the client holds a usable model.
func (c *LLMClient) Available() bool {
	return c != nil && c.model != nil
}

// classifyCallError maps provider failures onto the pipeline's taxonomy.
// Quota errors get their own sentinel because they are surfaced to users
// distinctly; everything else is a generic call failure that triggers the
// deterministic fallback.
func classifyCallError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
		return fmt.Errorf("%w: %s", ErrRateLimited, err)
	}
	return fmt.Errorf("probabilistic call failed: %w", err)
}

// trimJSONFences strips the markdown code fences models sometimes wrap
// around JSON.
func trimJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Ensure interfaces are implemented.
var (
	_ Extractor        = (*LLMClient)(nil)
	_ IntentClassifier = (*LLMClient)(nil)
)
