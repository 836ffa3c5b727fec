// Package objectkeys builds the deterministic object-store keys shared by
// every worker stage. Every key is a pure function of the identifiers
// involved, which is what makes every stage's output idempotent on retry.
package objectkeys

import "fmt"

// EPUB returns the key for the original upload.
func EPUB(bookID string) string {
	return fmt.Sprintf("%s/books/%s.epub", bookID, bookID)
}

// ChapterText returns the key for a chapter's extracted plain text.
func ChapterText(bookID, chapterID string) string {
	return fmt.Sprintf("%s/chapters/%s.txt", bookID, chapterID)
}

// ChunkText returns the key for one chunk's source text.
func ChunkText(bookID, chapterID string, index int) string {
	return fmt.Sprintf("%s/chunks/%s/chunk_%d.txt", bookID, chapterID, index)
}

// ChunkAudio returns the key for one chunk's synthesized fragment.
func ChunkAudio(bookID, chapterID string, index int) string {
	return fmt.Sprintf("%s/chunks/%s/audio/chunk_%d.mp3", bookID, chapterID, index)
}

// ChunkAudioPrefix returns the listing prefix for all of a chapter's fragments.
func ChunkAudioPrefix(bookID, chapterID string) string {
	return fmt.Sprintf("%s/chunks/%s/audio/", bookID, chapterID)
}

// ChapterAudio returns the key for the finished, stitched chapter audio.
func ChapterAudio(bookID, chapterID string) string {
	return fmt.Sprintf("%s/audio/%s.mp3", bookID, chapterID)
}
