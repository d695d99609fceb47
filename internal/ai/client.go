package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// ErrDisabled is returned by analyzers that are not configured.
var ErrDisabled = errors.New("ai analyzer disabled")

// DefaultTimeout bounds one analysis round trip.
const DefaultTimeout = 30 * time.Second

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewClient builds an analyzer for the given endpoint and model. An empty
// endpoint yields a disabled client.
func NewClient(endpoint, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are a network operations analyst for a fleet of RouterOS devices.
Answer with a single JSON object: {"summary": string, "recommendations": [string], "riskLevel": "low"|"medium"|"high"|"critical", "confidence": number between 0 and 1}.
No prose outside the JSON object.`

// Analyze renders the request context into a prompt and parses the model's
// JSON reply. Malformed replies are a dependency error, never a panic.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrDisabled
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: renderPrompt(req)},
		},
	})
	if err != nil {
		return Result{}, models.WrapE(models.KindIO, err, "encode analysis request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, models.WrapE(models.KindDependency, err, "build analysis request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, models.WrapE(models.KindDependency, err, "llm request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, models.E(models.KindDependency, "llm returned %d: %s", resp.StatusCode, string(payload))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return Result{}, models.WrapE(models.KindDependency, err, "decode llm response")
	}
	if len(chat.Choices) == 0 {
		return Result{}, models.E(models.KindDependency, "llm returned no choices")
	}

	result, err := parseResult(chat.Choices[0].Message.Content)
	if err != nil {
		log.Debug().Err(err).Str("type", req.Type).Msg("unparseable llm reply")
		return Result{}, err
	}
	return result, nil
}

func renderPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", req.Type)
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, req.Context[k])
	}
	return b.String()
}

// parseResult extracts the JSON object from the reply, tolerating fenced
// code blocks and surrounding prose.
func parseResult(content string) (Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Result{}, models.E(models.KindDependency, "no JSON object in llm reply")
	}

	var result Result
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return Result{}, models.WrapE(models.KindDependency, err, "parse llm reply")
	}

	switch result.RiskLevel {
	case "low", "medium", "high", "critical":
	default:
		result.RiskLevel = "medium"
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result, nil
}
