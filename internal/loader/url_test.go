package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

func TestURLLoadFetchesAndChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/report.txt":
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			w.Write([]byte("report body text"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewURLLoader(srv.Client(), nil)
	batch, err := l.Load(context.Background(), Request{
		AITID: "tenant1",
		Tag:   document.TagBib,
		URLs:  []string{srv.URL + "/docs/report.txt"},
	})
	require.NoError(t, err)

	require.Len(t, batch.Chunks, 1)
	c := batch.Chunks[0]
	assert.Equal(t, "bib_report.txt_0", c.SourceID)
	assert.Equal(t, "report.txt", c.FileName)
	assert.Equal(t, "report body text", c.PageContent)
	assert.False(t, c.ModifiedTime.IsZero())
}

func TestURLLoadSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good.txt" {
			w.Write([]byte("good content"))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewURLLoader(srv.Client(), nil)
	batch, err := l.Load(context.Background(), Request{
		AITID: "tenant1",
		Tag:   document.TagBib,
		URLs:  []string{srv.URL + "/bad.txt", srv.URL + "/good.txt"},
	})
	require.NoError(t, err)
	require.Len(t, batch.Chunks, 1)
	assert.Equal(t, "good.txt", batch.Chunks[0].FileName)
}

func TestURLLoadAllFailuresReturnErrNoDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := NewURLLoader(srv.Client(), nil)
	_, err := l.Load(context.Background(), Request{
		AITID: "tenant1",
		Tag:   document.TagBib,
		URLs:  []string{srv.URL + "/gone.txt"},
	})
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestURLLoadRequiresURLs(t *testing.T) {
	l := NewURLLoader(nil, nil)
	_, err := l.Load(context.Background(), Request{AITID: "tenant1", Tag: document.TagBib})
	assert.Error(t, err)
}
