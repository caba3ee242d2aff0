// Package rag implements the document index: extraction, chunking, indexing,
// semantic search, and live re-indexing of a watched document directory.
package rag

import (
	"strings"
)

// Chunk is one indexed slice of a document.
type Chunk struct {
	Content   string
	StartLine int
	EndLine   int
	Index     int
	Total     int
}

// ChunkerConfig sizes chunks in bytes.
type ChunkerConfig struct {
	// Size is the target chunk size in bytes.
	Size int `yaml:"size"`

	// Overlap is how many bytes of trailing context each chunk repeats at
	// the start of the next one. Zero means 20% of Size.
	Overlap int `yaml:"overlap"`
}

// SetDefaults fills in zero-valued fields.
func (c *ChunkerConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = 2000
	}
	if c.Overlap == 0 {
		c.Overlap = c.Size / 5
	}
}

// Chunker splits extracted document text into overlapping chunks. Splits
// happen on line boundaries so a chunk never breaks mid-line; the overlap
// preserves context when relevant information spans a boundary.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a chunker.
func NewChunker(cfg ChunkerConfig) *Chunker {
	cfg.SetDefaults()
	return &Chunker{config: cfg}
}

// Chunk splits content into overlapping chunks.
func (c *Chunker) Chunk(content string) []Chunk {
	lines := strings.Split(content, "\n")
	totalLines := len(lines)

	if len(content) <= c.config.Size {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []Chunk{{
			Content:   content,
			StartLine: 1,
			EndLine:   totalLines,
			Index:     0,
			Total:     1,
		}}
	}

	var chunks []Chunk
	var currentChunk strings.Builder
	var overlapBuffer strings.Builder
	chunkStartLine := 1
	currentLine := 1
	var overlapStartLine int

	for _, line := range lines {
		lineWithNewline := line + "\n"
		currentChunk.WriteString(lineWithNewline)

		if currentChunk.Len() >= c.config.Size {
			chunks = append(chunks, Chunk{
				Content:   currentChunk.String(),
				StartLine: chunkStartLine,
				EndLine:   currentLine,
				Index:     len(chunks),
			})

			if c.config.Overlap > 0 {
				overlapBuffer.Reset()
				overlapSize := 0
				overlapStartLine = currentLine

				// Walk backwards from the chunk's last line, collecting
				// lines until the overlap budget is spent.
				for i := currentLine; i >= chunkStartLine && overlapSize < c.config.Overlap; i-- {
					overlapLine := lines[i-1] + "\n"
					overlapSize += len(overlapLine)
					rebuilt := overlapLine + overlapBuffer.String()
					overlapBuffer.Reset()
					overlapBuffer.WriteString(rebuilt)
					overlapStartLine = i
				}

				currentChunk.Reset()
				currentChunk.WriteString(overlapBuffer.String())
				chunkStartLine = overlapStartLine
			} else {
				currentChunk.Reset()
				chunkStartLine = currentLine + 1
			}
		}

		currentLine++
	}

	if strings.TrimSpace(currentChunk.String()) != "" {
		chunks = append(chunks, Chunk{
			Content:   currentChunk.String(),
			StartLine: chunkStartLine,
			EndLine:   totalLines,
			Index:     len(chunks),
		})
	}

	total := len(chunks)
	for i := range chunks {
		chunks[i].Total = total
	}
	return chunks
}
