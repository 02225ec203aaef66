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

	"teamchat/internal/model"
)

// ChatMessage is one transcript entry sent to the engine.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SourceRef points at a supporting chunk returned alongside a completion.
type SourceRef struct {
	File string `json:"file"`
	Page string `json:"page"`
	Text string `json:"text"`
}

// IngestedDoc describes one document known to the engine's ingestion store.
type IngestedDoc struct {
	DocID    string `json:"doc_id"`
	FileName string `json:"file_name"`
}

type EngineConfig struct {
	BaseURL string
	APIKey  string
}

// EngineClient talks to the retrieval/generation backend. The backend owns
// embeddings, the vector index and the language model; this client only
// ships transcripts, document filters and raw text across HTTP.
type EngineClient struct {
	cfg        EngineConfig
	httpClient *http.Client
}

func NewEngineClient(cfg EngineConfig) *EngineClient {
	return &EngineClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type contextFilter struct {
	DocIDs []string `json:"docs_ids"`
}

// filterFor maps a scope onto the engine's filter payload. An unrestricted
// scope sends no filter at all; an empty scope sends an explicit empty list
// so the engine matches nothing.
func filterFor(scope model.ContextScope) *contextFilter {
	if scope.All {
		return nil
	}
	ids := scope.DocIDs
	if ids == nil {
		ids = []string{}
	}
	return &contextFilter{DocIDs: ids}
}

// StreamChat streams a completion for the transcript. Each text delta is
// handed to onDelta as soon as it arrives; the supporting sources are
// returned once the stream ends. The stream is finite and cannot be
// restarted; a mid-stream failure returns the error together with whatever
// onDelta already received.
func (c *EngineClient) StreamChat(
	ctx context.Context,
	transcript []ChatMessage,
	scope model.ContextScope,
	onDelta func(delta string) error,
) ([]SourceRef, error) {
	reqBody := map[string]interface{}{
		"messages":       transcript,
		"use_context":    true,
		"stream":         true,
		"context_filter": filterFor(scope),
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat stream request failed: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat stream status %d: %s", resp.StatusCode, string(raw))
	}

	var sources []SourceRef
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Delta   string      `json:"delta"`
			Sources []SourceRef `json:"sources"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Sources) > 0 {
			sources = append(sources, chunk.Sources...)
			continue
		}
		if chunk.Delta == "" {
			continue
		}
		if err := onDelta(chunk.Delta); err != nil {
			return sources, err
		}
	}
	if err := scanner.Err(); err != nil {
		return sources, fmt.Errorf("scan chat stream failed: %w", err)
	}
	return sources, nil
}

// Retrieve returns the most relevant chunks for the query without invoking
// the language model.
func (c *EngineClient) Retrieve(ctx context.Context, query string, scope model.ContextScope, limit int) ([]SourceRef, error) {
	if limit <= 0 {
		limit = 5
	}
	reqBody := map[string]interface{}{
		"text":           query,
		"limit":          limit,
		"context_filter": filterFor(scope),
	}
	var parsed struct {
		Sources []SourceRef `json:"sources"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/chunks", reqBody, &parsed); err != nil {
		return nil, err
	}
	return parsed.Sources, nil
}

// Ingest submits one named text payload. The engine may split it into
// several documents (one per page for PDFs); every returned doc ID is stable
// for the lifetime of the document.
func (c *EngineClient) Ingest(ctx context.Context, fileName, content string) ([]IngestedDoc, error) {
	reqBody := map[string]interface{}{
		"file_name": fileName,
		"text":      content,
	}
	var parsed struct {
		Data []IngestedDoc `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/ingest", reqBody, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("engine ingest returned no documents")
	}
	return parsed.Data, nil
}

func (c *EngineClient) ListIngested(ctx context.Context) ([]IngestedDoc, error) {
	var parsed struct {
		Data []IngestedDoc `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/ingest/list", nil, &parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

func (c *EngineClient) DeleteIngested(ctx context.Context, docID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/ingest/"+docID, nil, nil)
}

func (c *EngineClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build engine request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}

func (c *EngineClient) doJSON(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		bodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal engine request failed: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read engine response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("engine response status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse engine json failed: %w", err)
	}
	return nil
}
