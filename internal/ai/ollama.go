package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient wraps a local Ollama instance behind the same Provider
// shape as the hosted client, so offline mode is purely a construction
// choice at startup.
type OllamaClient struct {
	baseURL        string
	embeddingModel string
	httpClient     *http.Client
}

func NewOllamaClient(baseURL, embeddingModel string) *OllamaClient {
	return &OllamaClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: 300 * time.Second},
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}
	reqBody := map[string]interface{}{
		"model":  c.embeddingModel,
		"prompt": text,
	}
	raw, err := c.post(ctx, "/api/embeddings", reqBody)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return parsed.Embedding, nil
}

// EmbedBatch issues one request per text; Ollama's embeddings endpoint
// does not accept array input.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		result = append(result, vec)
	}
	return result, nil
}

func (c *OllamaClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reqBody := c.chatBody(cfg, messages, false)
	raw, err := c.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse ollama json failed: %w", err)
	}
	return parsed.Message.Content, nil
}

// StreamComplete reads Ollama's NDJSON stream (one JSON object per line).
func (c *OllamaClient) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onDelta func(delta string) error,
) (string, error) {
	reqBody := c.chatBody(cfg, messages, true)
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal ollama stream request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build ollama stream request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama stream status %d: %s", resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			if err := onDelta(chunk.Message.Content); err != nil {
				return full.String(), err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("scan ollama stream failed: %w", err)
	}
	return full.String(), nil
}

func (c *OllamaClient) chatBody(cfg ChatConfig, messages []ChatMessage, stream bool) map[string]interface{} {
	body := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   stream,
	}
	options := map[string]interface{}{}
	if cfg.Temperature > 0 {
		options["temperature"] = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}
	if len(options) > 0 {
		body["options"] = options
	}
	return body
}

func (c *OllamaClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build ollama request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama response status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
