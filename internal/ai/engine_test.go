package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/model"
)

func TestFilterFor(t *testing.T) {
	assert.Nil(t, filterFor(model.ContextScope{All: true}))

	f := filterFor(model.ContextScope{})
	require.NotNil(t, f)
	assert.NotNil(t, f.DocIDs)
	assert.Empty(t, f.DocIDs)

	f = filterFor(model.ContextScope{DocIDs: []string{"d1", "d2"}})
	require.NotNil(t, f)
	assert.Equal(t, []string{"d1", "d2"}, f.DocIDs)
}

func sseServer(t *testing.T, lines []string, gotBody *map[string]json.RawMessage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotBody != nil {
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, gotBody))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = io.WriteString(w, line+"\n")
		}
	}))
}

func TestStreamChatParsesDeltasAndSources(t *testing.T) {
	body := map[string]json.RawMessage{}
	server := sseServer(t, []string{
		`: comment line to be ignored`,
		``,
		`data: {"delta":"Hel"}`,
		`data: {"delta":"lo"}`,
		`data: {"sources":[{"file":"a.pdf","page":"3","text":"chunk"}]}`,
		`data: {"delta":""}`,
		`data: [DONE]`,
		`data: {"delta":"after done, never seen"}`,
	}, &body)
	defer server.Close()

	client := NewEngineClient(EngineConfig{BaseURL: server.URL})

	var deltas []string
	sources, err := client.StreamChat(context.Background(),
		[]ChatMessage{{Role: "user", Content: "hi"}},
		model.ContextScope{All: true},
		func(delta string) error {
			deltas = append(deltas, delta)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.Len(t, sources, 1)
	assert.Equal(t, "a.pdf", sources[0].File)
	assert.Equal(t, "3", sources[0].Page)

	// Unrestricted scope sends no filter at all.
	assert.Equal(t, "null", string(body["context_filter"]))
	assert.Equal(t, "true", string(body["stream"]))
}

func TestStreamChatSendsExplicitEmptyFilter(t *testing.T) {
	body := map[string]json.RawMessage{}
	server := sseServer(t, []string{`data: [DONE]`}, &body)
	defer server.Close()

	client := NewEngineClient(EngineConfig{BaseURL: server.URL})
	_, err := client.StreamChat(context.Background(), nil, model.ContextScope{}, func(string) error { return nil })
	require.NoError(t, err)

	var filter struct {
		DocIDs []string `json:"docs_ids"`
	}
	require.NoError(t, json.Unmarshal(body["context_filter"], &filter))
	require.NotNil(t, filter.DocIDs)
	assert.Empty(t, filter.DocIDs)
}

func TestStreamChatStopsOnDeltaError(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"delta":"one"}`,
		`data: {"delta":"two"}`,
		`data: [DONE]`,
	}, nil)
	defer server.Close()

	client := NewEngineClient(EngineConfig{BaseURL: server.URL})
	errStop := errors.New("client gone")

	var seen int
	_, err := client.StreamChat(context.Background(), nil, model.ContextScope{All: true}, func(string) error {
		seen++
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 1, seen)
}

func TestStreamChatErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewEngineClient(EngineConfig{BaseURL: server.URL})
	_, err := client.StreamChat(context.Background(), nil, model.ContextScope{All: true}, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRetrieve(t *testing.T) {
	var gotPath string
	body := map[string]json.RawMessage{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = io.WriteString(w, `{"sources":[{"file":"b.pdf","page":"7","text":"found"}]}`)
	}))
	defer server.Close()

	client := NewEngineClient(EngineConfig{BaseURL: server.URL})
	sources, err := client.Retrieve(context.Background(), "vacation", model.ContextScope{DocIDs: []string{"d1"}}, 3)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "b.pdf", sources[0].File)
	assert.Equal(t, "/v1/chunks", gotPath)
	assert.Equal(t, `"vacation"`, string(body["text"]))
	assert.Equal(t, "3", string(body["limit"]))
}

func TestIngestRejectsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer server.Close()

	client := NewEngineClient(EngineConfig{BaseURL: server.URL})
	_, err := client.Ingest(context.Background(), "a.txt", "content")
	assert.Error(t, err)
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"data":[{"doc_id":"d1","file_name":"a.txt"}]}`)
	}))
	defer server.Close()

	client := NewEngineClient(EngineConfig{BaseURL: server.URL, APIKey: "sk-test"})
	_, err := client.ListIngested(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}
