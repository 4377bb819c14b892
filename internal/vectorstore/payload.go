package vectorstore

import (
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

// Payload keys shared by both store implementations.
const (
	payloadPageContent  = "page_content"
	payloadSourceID     = "source_id"
	payloadAITID        = "ait_id"
	payloadType         = "type"
	payloadFileName     = "file_name"
	payloadChunkIndex   = "chunk_index"
	payloadModifiedTime = "modified_time"
)

// chunkPayload flattens a document chunk into a Qdrant payload map.
func chunkPayload(c document.Chunk) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		payloadPageContent: {Kind: &qdrant.Value_StringValue{StringValue: c.PageContent}},
		payloadSourceID:    {Kind: &qdrant.Value_StringValue{StringValue: c.SourceID}},
		payloadAITID:       {Kind: &qdrant.Value_StringValue{StringValue: c.AITID}},
		payloadType:        {Kind: &qdrant.Value_StringValue{StringValue: c.Type}},
		payloadFileName:    {Kind: &qdrant.Value_StringValue{StringValue: c.FileName}},
		payloadChunkIndex:  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.ChunkIndex)}},
	}
	if !c.ModifiedTime.IsZero() {
		payload[payloadModifiedTime] = &qdrant.Value{
			Kind: &qdrant.Value_StringValue{StringValue: c.ModifiedTime.Format(time.RFC3339)},
		}
	}
	return payload
}

// chunkFromPayload rebuilds a document chunk from a Qdrant payload map.
func chunkFromPayload(payload map[string]*qdrant.Value) document.Chunk {
	var c document.Chunk
	for key, value := range payload {
		switch key {
		case payloadPageContent:
			c.PageContent = value.GetStringValue()
		case payloadSourceID:
			c.SourceID = value.GetStringValue()
		case payloadAITID:
			c.AITID = value.GetStringValue()
		case payloadType:
			c.Type = value.GetStringValue()
		case payloadFileName:
			c.FileName = value.GetStringValue()
		case payloadChunkIndex:
			c.ChunkIndex = int(value.GetIntegerValue())
		case payloadModifiedTime:
			if t, err := time.Parse(time.RFC3339, value.GetStringValue()); err == nil {
				c.ModifiedTime = t
			}
		}
	}
	return c
}
