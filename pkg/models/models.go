package models

import "time"

// ChunkType identifies how a chunk was produced.
type ChunkType string

const (
	ChunkSection     ChunkType = "section"
	ChunkSectionPart ChunkType = "section_part"
	ChunkFixed       ChunkType = "fixed"
	ChunkSentence    ChunkType = "sentence"
	ChunkParagraph   ChunkType = "paragraph"
	ChunkSummary     ChunkType = "summary"
)

type ChunkMetadata struct {
	SourceTitle    string    `json:"source_title"`
	SourceType     string    `json:"source_type"`
	ChunkIndex     int       `json:"chunk_index"`
	ChunkType      ChunkType `json:"chunk_type"`
	SectionHeading string    `json:"section_heading,omitempty"`
	IsSummary      bool      `json:"is_summary,omitempty"`
}

// Chunk is a retrieval-sized slice of a source document.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Document is one persisted vector-store record. A source page usually
// produces several documents, one per chunk.
type Document struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

type RankedDocument struct {
	Document     Document `json:"document"`
	Similarity   float64  `json:"similarity"`
	KeywordScore float64  `json:"keyword_score,omitempty"`
	Score        float64  `json:"score"`
}

// Filters restricts documents by metadata. A scalar value requires
// equality; a slice value requires membership.
type Filters map[string]any
