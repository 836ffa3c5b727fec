// Package messages defines the wire payloads carried on the broker's five
// named queues. Every payload is a plain JSON-tagged struct; nothing here
// depends on the broker or the store so each stage can be unit tested
// against fixed message literals.
package messages

import "encoding/json"

// SplitJob asks the splitter to extract chapters from an uploaded EPUB.
type SplitJob struct {
	BookUUID string `json:"book_uuid"`
}

// ChunkJob asks the chunker to split one chapter's text into chunks.
type ChunkJob struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
}

// TTSJob asks the synthesizer to render one chunk's text to audio.
type TTSJob struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
	ChunkIndex  int    `json:"chunk_index"`
}

// StitchJob asks the stitcher to concatenate a chapter's chunk fragments.
type StitchJob struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
}

// Marshal is a small convenience wrapper so callers don't repeat
// json.Marshal's error-wrapping at every call site.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
