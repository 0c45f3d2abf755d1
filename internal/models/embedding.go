package models

// Chunk represents a slice of extracted document text with its position
type Chunk struct {
	Content    string
	ChunkIndex int
}

// ChunkEmbedding pairs a chunk with its computed vector
type ChunkEmbedding struct {
	Chunk
	SessionID int64
	Embedding []float32
}
