package kb

import "strings"

const defaultChunkSize = 3000

// ChunkText splits text into blocks of at most maxChars, preferring paragraph,
// line, then word boundaries, with a hard cut only for unbroken runs.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = defaultChunkSize
	}
	var chunks []string
	for start := 0; start < len(text); {
		end := start + maxChars
		if end >= len(text) {
			if c := strings.TrimSpace(text[start:]); c != "" {
				chunks = append(chunks, c)
			}
			break
		}

		candidate := text[start:end]
		split := strings.LastIndex(candidate, "\n\n")
		if split <= 0 {
			split = strings.LastIndex(candidate, "\n")
		}
		if split <= 0 {
			split = strings.LastIndex(candidate, " ")
		}
		if split <= 0 {
			split = maxChars
		}

		if c := strings.TrimSpace(text[start : start+split]); c != "" {
			chunks = append(chunks, c)
		}
		start += split
	}
	return chunks
}
