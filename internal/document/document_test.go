package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceID(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		file string
		idx  int
		want string
	}{
		{"file chunk", TagBib, "notes.txt", 0, "bib_notes.txt_0"},
		{"later chunk", TagBib, "notes.txt", 12, "bib_notes.txt_12"},
		{"email chunk", TagLogMSEEmail, "msg-123", 2, "log_mse_email_msg-123_2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceID(tt.tag, tt.file, tt.idx))
		})
	}
}

func TestSourceIDDeterministic(t *testing.T) {
	a := SourceID(TagBib, "report.pdf", 3)
	b := SourceID(TagBib, "report.pdf", 3)
	assert.Equal(t, a, b)
}

func TestScopePrefix(t *testing.T) {
	assert.Equal(t, "bib_", ScopePrefix(TagBib))
	assert.True(t, len(SourceID(TagBib, "x", 0)) > len(ScopePrefix(TagBib)))
}

func TestFilePrefix(t *testing.T) {
	prefix := FilePrefix(TagBib, "notes.txt")
	assert.Equal(t, "bib_notes.txt_", prefix)

	// Every chunk id of the file starts with its prefix.
	for _, idx := range []int{0, 1, 99} {
		assert.Contains(t, SourceID(TagBib, "notes.txt", idx), prefix)
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("hello world")
	h2 := ContentHash("hello world")
	h3 := ContentHash("hello world!")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestChunkValidate(t *testing.T) {
	valid := Chunk{
		PageContent: "some text",
		SourceID:    "bib_notes.txt_0",
		AITID:       "tenant1",
		Type:        TagBib,
		FileName:    "notes.txt",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Chunk)
	}{
		{"empty content", func(c *Chunk) { c.PageContent = "   " }},
		{"missing source id", func(c *Chunk) { c.SourceID = "" }},
		{"missing tenant", func(c *Chunk) { c.AITID = "" }},
		{"missing tag", func(c *Chunk) { c.Type = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestChunkValidateIgnoresOptionalFields(t *testing.T) {
	c := Chunk{
		PageContent: "text",
		SourceID:    "id",
		AITID:       "tenant1",
		Type:        TagTrelloCard,
	}
	// FileName, ChunkIndex, and ModifiedTime are informational.
	require.NoError(t, c.Validate())

	c.ModifiedTime = time.Now()
	require.NoError(t, c.Validate())
}
