package retrieval

// Chunk sizing defaults. The rerank prompt embeds full JSON-serialized
// profiles inline, so the batch size must be derived from the model's
// context window rather than guessed.
const (
	DefaultContextTokens        = 128000
	DefaultPromptOverheadTokens = 500
	DefaultAvgRecordTokens      = 200

	minChunkSize = 1
	maxChunkSize = 100
)

// ChunkSize computes how many profiles fit in one rerank call:
// floor((totalTokenLimit - promptOverheadTokens) / avgRecordTokens),
// clamped to [1, 100]. The upper clamp bounds response size and parse
// risk even for very large context windows; the lower clamp guarantees
// progress when the overhead nearly exhausts the budget.
func ChunkSize(totalTokenLimit, promptOverheadTokens, avgRecordTokens int) int {
	if avgRecordTokens <= 0 {
		return minChunkSize
	}

	size := (totalTokenLimit - promptOverheadTokens) / avgRecordTokens
	if size < minChunkSize {
		return minChunkSize
	}
	if size > maxChunkSize {
		return maxChunkSize
	}
	return size
}
