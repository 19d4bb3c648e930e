package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/stayscout/hotel-search/internal/config"
	"github.com/stayscout/hotel-search/internal/model"
	"github.com/stayscout/hotel-search/internal/utils"
)

// OracleClient talks to an OpenAI-compatible endpoint for chat completions
// and embeddings. Both call paths sit behind circuit breakers so a flapping
// upstream degrades searches to keyword-only instead of stalling them.
type OracleClient struct {
	config       *config.OracleConfig
	httpClient   *http.Client
	chatBreaker  *gobreaker.CircuitBreaker[string]
	embedBreaker *gobreaker.CircuitBreaker[[]float32]
	logger       *slog.Logger
}

// NewOracleClient creates a client from config. The client is usable even
// without an API key; every call then fails fast with ErrOracleDisabled.
func NewOracleClient(cfg *config.OracleConfig, logger *slog.Logger) *OracleClient {
	breakerSettings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("oracle breaker state changed",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		}
	}

	return &OracleClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		chatBreaker:  gobreaker.NewCircuitBreaker[string](breakerSettings("oracle-chat")),
		embedBreaker: gobreaker.NewCircuitBreaker[[]float32](breakerSettings("oracle-embeddings")),
		logger:       logger,
	}
}

// IsEnabled returns whether the client has an API key configured.
func (c *OracleClient) IsEnabled() bool {
	return c.config.Enabled
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// chatCompletion sends one system+user exchange and returns the raw reply.
func (c *OracleClient) chatCompletion(ctx context.Context, system, user string) (string, error) {
	if !c.config.Enabled {
		return "", ErrOracleDisabled
	}

	return c.chatBreaker.Execute(func() (string, error) {
		req := chatCompletionRequest{
			Model: c.config.ChatModel,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature: c.config.ChatTemperature,
			MaxTokens:   c.config.ChatMaxTokens,
		}

		body, err := c.post(ctx, "/chat/completions", req)
		if err != nil {
			return "", err
		}

		var result chatCompletionResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(result.Choices) == 0 {
			return "", fmt.Errorf("oracle returned no choices")
		}
		return result.Choices[0].Message.Content, nil
	})
}

// EmbedText returns the embedding vector for a single text.
func (c *OracleClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if !c.config.Enabled {
		return nil, ErrOracleDisabled
	}

	return c.embedBreaker.Execute(func() ([]float32, error) {
		req := embeddingRequest{
			Model:      c.config.EmbeddingModel,
			Input:      []string{text},
			Dimensions: c.config.EmbeddingDimensions,
		}

		body, err := c.post(ctx, "/embeddings", req)
		if err != nil {
			return nil, err
		}

		var result embeddingResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("oracle returned no embedding")
		}
		return result.Data[0].Embedding, nil
	})
}

func (c *OracleClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.config.APIBase, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle request failed with status %d: %s", resp.StatusCode, utils.TruncateString(string(body), 500))
	}
	return body, nil
}

const rewriteSystemPrompt = `You are a query rewriter for a hotel search engine.
Rewrite the user's latest message into ONE standalone search query, using the
conversation history to resolve references like "them", "those", "the second
one", "cheaper".

Rules:
- Fix obvious spelling mistakes in city names using the known city list.
- Carry over the city from earlier turns when the new message omits it.
- Keep every explicit constraint (price, rating, amenities) the user stated.
- Never invent constraints the user did not mention.
- Reply with the rewritten query only, no explanation, no quotes.`

// RewriteQuery asks the chat oracle for a standalone version of a
// context-dependent query. On any failure the original query is returned
// with the error; callers fall back to the verbatim text.
func (c *OracleClient) RewriteQuery(ctx context.Context, query string, history []model.ConversationTurn, knownCities []string) (string, error) {
	if !c.config.Enabled {
		return query, ErrOracleDisabled
	}

	var sb strings.Builder
	if len(knownCities) > 0 {
		sb.WriteString("Known cities: ")
		sb.WriteString(strings.Join(knownCities, ", "))
		sb.WriteString("\n\n")
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		// Keep the prompt small: only the most recent turns matter for anaphora.
		start := 0
		if len(history) > 6 {
			start = len(history) - 6
		}
		for _, turn := range history[start:] {
			sb.WriteString(turn.Role)
			sb.WriteString(": ")
			sb.WriteString(utils.TruncateString(turn.Content, 300))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Latest message: ")
	sb.WriteString(query)
	sb.WriteString("\n\nSTANDALONE CORRECTED QUERY:")

	reply, err := c.chatCompletion(ctx, rewriteSystemPrompt, sb.String())
	if err != nil {
		return query, err
	}

	cleaned := utils.CleanOracleReply(reply)
	if cleaned == "" || strings.EqualFold(cleaned, "any") {
		return query, nil
	}
	c.logger.Debug("oracle rewrote query", "original", query, "rewritten", cleaned)
	return cleaned, nil
}
