package anthropic

// CachedSystemBlocks wraps text as one system block cached for five
// minutes. Empty text yields no blocks.
func CachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}
