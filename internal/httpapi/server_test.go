package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/composer"
	"github.com/Galitein/Ai1st-ai/internal/embeddings"
	"github.com/Galitein/Ai1st-ai/internal/indexer"
	"github.com/Galitein/Ai1st-ai/internal/ledger"
	"github.com/Galitein/Ai1st-ai/internal/loader"
	"github.com/Galitein/Ai1st-ai/internal/retriever"
	"github.com/Galitein/Ai1st-ai/internal/vectorstore"
)

type hashEmbedder struct{ dim int }

func (h hashEmbedder) embed(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, h.dim)
	var norm float64
	for i := range v {
		v[i] = float32(sum[i]) + 1
		norm += float64(v[i]) * float64(v[i])
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func (h hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func (h hashEmbedder) Dimension() int { return h.dim }
func (h hashEmbedder) Close() error   { return nil }

// fixedEmbedder returns canned unit vectors keyed by text.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f fixedEmbedder) lookup(text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no canned vector for %q", text)
	}
	return v, nil
}

func (f fixedEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.lookup(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f fixedEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.lookup(text)
}

func (f fixedEmbedder) Dimension() int { return 4 }
func (f fixedEmbedder) Close() error   { return nil }

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	return "generated answer", nil
}

func newTestServerWith(t *testing.T, embedder embeddings.Provider, cfg *Config) (*Server, string) {
	t.Helper()

	docDir := t.TempDir()
	store := vectorstore.NewInMemoryChromemStore()
	records, err := ledger.NewSQLiteRecordManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	ix := indexer.New(store, records, embedder, nil)
	rt := retriever.New(store, embedder, nil)
	cp := composer.New(rt, echoGenerator{}, "", nil)

	loaders := loader.Registry{
		loader.DestinationLocal: loader.NewLocalLoader(docDir, nil),
		loader.DestinationEmail: loader.NewEmailLoader(nil),
	}

	srv, err := NewServer(loaders, ix, rt, cp, zap.NewNop(), cfg)
	require.NoError(t, err)
	return srv, docDir
}

func newTestServer(t *testing.T) (*Server, string) {
	return newTestServerWith(t, hashEmbedder{dim: 8}, nil)
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func writeDoc(t *testing.T, docDir, aitID, name, content string) {
	t.Helper()
	dir := filepath.Join(docDir, aitID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestIndexEndpoint(t *testing.T) {
	srv, docDir := newTestServer(t)
	writeDoc(t, docDir, "tenant1", "notes.txt", "the quarterly report was approved")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["notes.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)
	assert.Equal(t, 1, resp.Result.NumAdded)
}

func TestIndexEndpointNoDocuments(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["missing.txt"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status)
}

func TestIndexEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index", `{"destination":"local"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"ftp","type":"bib"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	srv, docDir := newTestServer(t)
	writeDoc(t, docDir, "tenant1", "notes.txt", "the quarterly report was approved")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["notes.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// The hash embedder gives identical text an identical vector, so the
	// exact content is a perfect match.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/search",
		`{"ait_id":"tenant1","query":"the quarterly report was approved","type":"bib"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retriever.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "notes.txt", resp.Results[0].FileName)
}

func TestSearchEndpointNoCollection(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search",
		`{"ait_id":"ghost","query":"anything"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retriever.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status)
}

func TestSearchEndpointConfiguredThreshold(t *testing.T) {
	embedder := fixedEmbedder{vectors: map[string][]float32{
		"alpha fact":       {1, 0, 0, 0},
		"somewhat related": {0.8, 0.6, 0, 0},
	}}
	srv, docDir := newTestServerWith(t, embedder, &Config{SearchThreshold: 0.9})
	writeDoc(t, docDir, "tenant1", "notes.txt", "alpha fact")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["notes.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The hit scores 0.8, below the configured default of 0.9, so a
	// request without a threshold comes back empty.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/search",
		`{"ait_id":"tenant1","query":"somewhat related","type":"bib"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retriever.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status)
	assert.Empty(t, resp.Results)

	// An explicit request threshold overrides the configured default.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/search",
		`{"ait_id":"tenant1","query":"somewhat related","type":"bib","threshold":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var override retriever.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &override))
	assert.True(t, override.Status)
	require.Len(t, override.Results, 1)
}

func TestSearchEndpointConfiguredLimit(t *testing.T) {
	srv, docDir := newTestServerWith(t, hashEmbedder{dim: 8}, &Config{SearchLimit: 1})
	writeDoc(t, docDir, "tenant1", "a.txt", "the quarterly report was approved")
	writeDoc(t, docDir, "tenant1", "b.txt", "the quarterly report was approved")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["a.txt","b.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Both chunks are perfect matches; the configured limit keeps one.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/search",
		`{"ait_id":"tenant1","query":"the quarterly report was approved","type":"bib"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retriever.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)
	assert.Len(t, resp.Results, 1)
}

func TestDeleteFilesEndpoint(t *testing.T) {
	srv, docDir := newTestServer(t)
	writeDoc(t, docDir, "tenant1", "notes.txt", "content to forget")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["notes.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/files",
		`{"ait_id":"tenant1","type":"bib","file_names":["notes.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)
	assert.Equal(t, 1, resp.Result.NumDeleted)
}

func TestChatEndpoint(t *testing.T) {
	srv, docDir := newTestServer(t)
	writeDoc(t, docDir, "tenant1", "notes.txt", "the quarterly report was approved")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["notes.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/chat",
		`{"ait_id":"tenant1","query":"the quarterly report was approved","types":["bib"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var answer composer.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.True(t, answer.Status)
	assert.Equal(t, "generated answer", answer.Text)
}

func TestChatEndpointNoContext(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/chat",
		`{"ait_id":"tenant1","query":"anything at all","types":["bib"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var answer composer.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.False(t, answer.Status)
}

func TestDeleteTenantEndpoint(t *testing.T) {
	srv, docDir := newTestServer(t)
	writeDoc(t, docDir, "tenant1", "notes.txt", "ephemeral")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index",
		`{"ait_id":"tenant1","destination":"local","type":"bib","file_names":["notes.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/tenants/tenant1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/search",
		`{"ait_id":"tenant1","query":"ephemeral"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retriever.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status)
}
