// Package events implements the event tracker's eight operations as a
// sealed set of tagged variants. Each variant carries its own fixed
// "operation" wire tag and knows how to apply itself to the aggregate
// store, so there is no map of handler functions and no place for an
// operation to be constructed with the wrong tag.
package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tag identifies which concrete Operation a message carries.
type Tag string

const (
	TagAddBook             Tag = "add_book"
	TagAddChapter          Tag = "add_chapter"
	TagAddChunk            Tag = "add_chunk"
	TagUpdateBookStatus    Tag = "update_book_status"
	TagUpdateChapterStatus Tag = "update_chapter_status"
	TagUpdateChunkStatus   Tag = "update_chunk_status"
	TagRemoveChapter       Tag = "remove_chapter"
	TagRemoveChunk         Tag = "remove_chunk"
)

// Operation is one of the eight sealed event-tracker variants. The
// unexported method keeps the set closed to this package; every
// variant below is the only way to satisfy it.
type Operation interface {
	apply(ctx context.Context, t *Tracker) error
	sealed()
}

// AddBook registers a newly uploaded book.
type AddBook struct {
	BookUUID string `json:"book_uuid"`
}

func (AddBook) sealed() {}

// AddChapter registers a chapter under a book and bumps the book's
// total chapter count.
type AddChapter struct {
	BookUUID     string `json:"book_uuid"`
	ChapterUUID  string `json:"chapter_uuid"`
	ChapterTitle string `json:"chapter_title"`
}

func (AddChapter) sealed() {}

// AddChunk registers a chunk under a chapter.
type AddChunk struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
	ChunkIndex  int    `json:"chunk_index"`
}

func (AddChunk) sealed() {}

// UpdateBookStatus sets a book's lifecycle status.
type UpdateBookStatus struct {
	BookUUID string `json:"book_uuid"`
	Status   string `json:"status"`
}

func (UpdateBookStatus) sealed() {}

// UpdateChapterStatus sets a chapter's lifecycle status, rolling the
// book forward to completed when it was the last chapter outstanding.
type UpdateChapterStatus struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
	Status      string `json:"status"`
}

func (UpdateChapterStatus) sealed() {}

// UpdateChunkStatus sets one chunk's lifecycle status.
type UpdateChunkStatus struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
	ChunkIndex  int    `json:"chunk_index"`
	Status      string `json:"status"`
}

func (UpdateChunkStatus) sealed() {}

// RemoveChapter marks a chapter completed and removes it from its
// book's outstanding-chapter set, completing the book if it was last.
type RemoveChapter struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
}

func (RemoveChapter) sealed() {}

// RemoveChunk marks a chunk completed and removes it from its
// chapter's outstanding-chunk set, enqueueing the chapter's stitch job
// if it was last.
type RemoveChunk struct {
	BookUUID    string `json:"book_uuid"`
	ChapterUUID string `json:"chapter_uuid"`
	ChunkIndex  int    `json:"chunk_index"`
}

func (RemoveChunk) sealed() {}

// envelope is only used to read the discriminator before picking which
// concrete type to unmarshal the full body into.
type envelope struct {
	Operation Tag `json:"operation"`
}

// Decode inspects body's "operation" field and unmarshals it into the
// matching sealed variant.
func Decode(body []byte) (Operation, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode operation envelope: %w", err)
	}

	var op Operation
	switch env.Operation {
	case TagAddBook:
		op = &AddBook{}
	case TagAddChapter:
		op = &AddChapter{}
	case TagAddChunk:
		op = &AddChunk{}
	case TagUpdateBookStatus:
		op = &UpdateBookStatus{}
	case TagUpdateChapterStatus:
		op = &UpdateChapterStatus{}
	case TagUpdateChunkStatus:
		op = &UpdateChunkStatus{}
	case TagRemoveChapter:
		op = &RemoveChapter{}
	case TagRemoveChunk:
		op = &RemoveChunk{}
	default:
		return nil, fmt.Errorf("undefined operation: %q", env.Operation)
	}

	if err := json.Unmarshal(body, op); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Operation, err)
	}
	return op, nil
}

// encode adds the operation tag to fields' JSON object and marshals it.
// Each constructor below uses this instead of hand-writing the tag, so
// the constructor is the only place a tag can be attached to a
// payload -- this is what keeps the historical ADD_CHUNK/REMOVE_CHAPTER
// and UPDATE_CHUNK_STATUS/UPDATE_CHAPTER_STATUS mixups from recurring.
func encode(tag Tag, fields any) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["operation"] = tag
	return json.Marshal(m)
}

// NewAddBook builds the wire payload for an AddBook notification.
func NewAddBook(bookUUID string) ([]byte, error) {
	return encode(TagAddBook, AddBook{BookUUID: bookUUID})
}

// NewAddChapter builds the wire payload for an AddChapter notification.
func NewAddChapter(bookUUID, chapterUUID, chapterTitle string) ([]byte, error) {
	return encode(TagAddChapter, AddChapter{
		BookUUID:     bookUUID,
		ChapterUUID:  chapterUUID,
		ChapterTitle: chapterTitle,
	})
}

// NewAddChunk builds the wire payload for an AddChunk notification.
func NewAddChunk(bookUUID, chapterUUID string, chunkIndex int) ([]byte, error) {
	return encode(TagAddChunk, AddChunk{
		BookUUID:    bookUUID,
		ChapterUUID: chapterUUID,
		ChunkIndex:  chunkIndex,
	})
}

// NewUpdateBookStatus builds the wire payload for an UpdateBookStatus notification.
func NewUpdateBookStatus(bookUUID, status string) ([]byte, error) {
	return encode(TagUpdateBookStatus, UpdateBookStatus{BookUUID: bookUUID, Status: status})
}

// NewUpdateChapterStatus builds the wire payload for an UpdateChapterStatus notification.
func NewUpdateChapterStatus(bookUUID, chapterUUID, status string) ([]byte, error) {
	return encode(TagUpdateChapterStatus, UpdateChapterStatus{
		BookUUID:    bookUUID,
		ChapterUUID: chapterUUID,
		Status:      status,
	})
}

// NewUpdateChunkStatus builds the wire payload for an UpdateChunkStatus notification.
func NewUpdateChunkStatus(bookUUID, chapterUUID string, chunkIndex int, status string) ([]byte, error) {
	return encode(TagUpdateChunkStatus, UpdateChunkStatus{
		BookUUID:    bookUUID,
		ChapterUUID: chapterUUID,
		ChunkIndex:  chunkIndex,
		Status:      status,
	})
}

// NewRemoveChapter builds the wire payload for a RemoveChapter notification.
func NewRemoveChapter(bookUUID, chapterUUID string) ([]byte, error) {
	return encode(TagRemoveChapter, RemoveChapter{BookUUID: bookUUID, ChapterUUID: chapterUUID})
}

// NewRemoveChunk builds the wire payload for a RemoveChunk notification.
func NewRemoveChunk(bookUUID, chapterUUID string, chunkIndex int) ([]byte, error) {
	return encode(TagRemoveChunk, RemoveChunk{
		BookUUID:    bookUUID,
		ChapterUUID: chapterUUID,
		ChunkIndex:  chunkIndex,
	})
}
