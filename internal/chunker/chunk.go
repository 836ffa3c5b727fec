// Package chunker splits one chapter's plain text into size-bounded
// chunks on sentence/paragraph boundaries and enqueues a synthesis job
// per chunk.
package chunker

import "strings"

const defaultMaxChunkBytes = 5000

// split partitions text into chunks smaller than maxChunkBytes bytes,
// never breaking mid-sentence. Paragraphs are delimited by a blank line;
// sentences within a paragraph by ". ". Chunk boundaries fall between
// sentences, so a paragraph longer than the limit spans several chunks,
// and a single sentence longer than the limit becomes one chunk that
// exceeds it.
func split(text string, maxChunkBytes int) []string {
	if maxChunkBytes <= 0 {
		maxChunkBytes = defaultMaxChunkBytes
	}

	var chunks []string
	var current strings.Builder

	paragraphs := strings.Split(text, "\n\n")
	for _, paragraph := range paragraphs {
		for _, sentence := range splitSentences(paragraph) {
			if current.Len()+len(sentence) >= maxChunkBytes && current.Len() > 0 {
				chunks = append(chunks, strings.TrimSpace(current.String()))
				current.Reset()
			}
			current.WriteString(sentence)
		}
		current.WriteString("\n\n")
	}

	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

// splitSentences splits one paragraph on ". " boundaries and appends
// ". " to every resulting sentence, the last one included; a paragraph
// that already ends in "." therefore ends in ".. " after splitting.
func splitSentences(paragraph string) []string {
	parts := strings.Split(paragraph, ". ")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if !strings.HasSuffix(p, ". ") {
			p += ". "
		}
		sentences = append(sentences, p)
	}
	return sentences
}
