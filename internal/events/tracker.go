package events

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/model"
	"github.com/bookcast/pipeline/internal/store"
)

// Tracker is the event tracker's sole writer onto the aggregate store.
// It also publishes stitch jobs, since queuing a chapter's stitch job is
// itself a side effect of the RemoveChunk operation completing the
// chapter's chunk set.
type Tracker struct {
	Store  store.Store
	Broker broker.Broker
}

// Apply dispatches op to its own handler. This is the tracker's only
// entry point; callers never switch on a tag themselves.
func (t *Tracker) Apply(ctx context.Context, op Operation) error {
	return op.apply(ctx, t)
}

func setStatus(ctx context.Context, s store.Store, entityType, entityID, status string) error {
	return s.Set(ctx, fmt.Sprintf("status:%s:%s", entityType, entityID), status)
}

func (o *AddBook) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" {
		return fmt.Errorf("add_book: missing book_uuid")
	}
	return setStatus(ctx, t.Store, "book", o.BookUUID, string(model.StatusUploaded))
}

func (o *AddChapter) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" || o.ChapterUUID == "" || o.ChapterTitle == "" {
		return fmt.Errorf("add_chapter: missing book_uuid, chapter_uuid or chapter_title")
	}

	chapterKey := fmt.Sprintf("chapter:%s", o.ChapterUUID)
	if err := t.Store.HSet(ctx, chapterKey, map[string]string{"title": o.ChapterTitle}); err != nil {
		return fmt.Errorf("add_chapter: %w", err)
	}

	if err := setStatus(ctx, t.Store, "chapter", o.ChapterUUID, string(model.StatusUploaded)); err != nil {
		return fmt.Errorf("add_chapter: %w", err)
	}

	chaptersKey := fmt.Sprintf("book:%s:chapters", o.BookUUID)
	if err := t.Store.SAdd(ctx, chaptersKey, o.ChapterUUID); err != nil {
		return fmt.Errorf("add_chapter: %w", err)
	}

	totalKey := fmt.Sprintf("book:%s:total_chapters", o.BookUUID)
	if _, err := t.Store.Incr(ctx, totalKey); err != nil {
		return fmt.Errorf("add_chapter: %w", err)
	}

	return nil
}

func (o *AddChunk) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" || o.ChapterUUID == "" {
		return fmt.Errorf("add_chunk: missing book_uuid or chapter_uuid")
	}

	chunkID := fmt.Sprintf("%s:chunk_%d", o.ChapterUUID, o.ChunkIndex)
	if err := setStatus(ctx, t.Store, "chunk", chunkID, string(model.StatusQueued)); err != nil {
		return fmt.Errorf("add_chunk: %w", err)
	}

	chunksKey := fmt.Sprintf("chapter:%s:chunks", o.ChapterUUID)
	chunkMember := fmt.Sprintf("chunk_%d", o.ChunkIndex)
	if err := t.Store.SAdd(ctx, chunksKey, chunkMember); err != nil {
		return fmt.Errorf("add_chunk: %w", err)
	}

	return nil
}

func (o *UpdateBookStatus) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" || o.Status == "" {
		return fmt.Errorf("update_book_status: missing book_uuid or status")
	}
	if !model.AllowedBookStatuses[model.Status(o.Status)] {
		return fmt.Errorf("update_book_status: non-permissible status %q", o.Status)
	}

	_, err := applyTerminalAware(ctx, t.Store, "book", o.BookUUID, o.Status)
	return err
}

func (o *UpdateChapterStatus) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" || o.ChapterUUID == "" || o.Status == "" {
		return fmt.Errorf("update_chapter_status: missing book_uuid, chapter_uuid or status")
	}
	if !model.AllowedChapterStatuses[model.Status(o.Status)] {
		return fmt.Errorf("update_chapter_status: non-permissible status %q", o.Status)
	}

	applied, err := applyTerminalAware(ctx, t.Store, "chapter", o.ChapterUUID, o.Status)
	if err != nil {
		return fmt.Errorf("update_chapter_status: %w", err)
	}

	if !applied || o.Status != string(model.StatusCompleted) {
		return nil
	}

	completedKey := fmt.Sprintf("book:%s:completed_chapters", o.BookUUID)
	totalKey := fmt.Sprintf("book:%s:total_chapters", o.BookUUID)

	completed, err := t.Store.Incr(ctx, completedKey)
	if err != nil {
		return fmt.Errorf("update_chapter_status: %w", err)
	}

	totalRaw, ok, err := t.Store.Get(ctx, totalKey)
	if err != nil {
		return fmt.Errorf("update_chapter_status: %w", err)
	}
	if !ok {
		return nil
	}
	total, err := strconv.ParseInt(totalRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("update_chapter_status: malformed total_chapters %q: %w", totalRaw, err)
	}

	if completed == total {
		if err := setStatus(ctx, t.Store, "book", o.BookUUID, string(model.StatusCompleted)); err != nil {
			return fmt.Errorf("update_chapter_status: %w", err)
		}
	}

	return nil
}

func (o *UpdateChunkStatus) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" || o.ChapterUUID == "" || o.Status == "" {
		return fmt.Errorf("update_chunk_status: missing book_uuid, chapter_uuid or status")
	}
	if !model.AllowedChunkStatuses[model.Status(o.Status)] {
		return fmt.Errorf("update_chunk_status: non-permissible status %q", o.Status)
	}

	chunkID := fmt.Sprintf("%s:chunk_%d", o.ChapterUUID, o.ChunkIndex)
	_, err := applyTerminalAware(ctx, t.Store, "chunk", chunkID, o.Status)
	return err
}

// apply sets the chapter completed and removes it from its book's open
// set, then bumps the book's completed_chapters counter and marks the
// book completed once every chapter has been accounted for.
//
// A chapter can reach this op already terminal in two distinct ways
// that must be told apart: already completed (this exact op was
// already applied by an earlier, unacknowledged delivery -- nothing
// more to do), or already failed (the chunker's zero-chunk path set it
// failed before asking for removal -- the chapter must still leave the
// open set, but never counts toward completed_chapters or triggers
// book completion).
func (o *RemoveChapter) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" || o.ChapterUUID == "" {
		return fmt.Errorf("remove_chapter: missing book_uuid or chapter_uuid")
	}

	statusKey := fmt.Sprintf("status:chapter:%s", o.ChapterUUID)
	current, ok, err := t.Store.Get(ctx, statusKey)
	if err != nil {
		return fmt.Errorf("remove_chapter: %w", err)
	}

	if ok && model.Status(current) == model.StatusCompleted {
		return nil
	}

	chaptersKey := fmt.Sprintf("book:%s:chapters", o.BookUUID)

	if ok && model.Terminal(model.Status(current)) {
		if err := t.Store.SRem(ctx, chaptersKey, o.ChapterUUID); err != nil {
			return fmt.Errorf("remove_chapter: %w", err)
		}
		return nil
	}

	if err := setStatus(ctx, t.Store, "chapter", o.ChapterUUID, string(model.StatusCompleted)); err != nil {
		return fmt.Errorf("remove_chapter: %w", err)
	}
	if err := t.Store.SRem(ctx, chaptersKey, o.ChapterUUID); err != nil {
		return fmt.Errorf("remove_chapter: %w", err)
	}

	completedKey := fmt.Sprintf("book:%s:completed_chapters", o.BookUUID)
	totalKey := fmt.Sprintf("book:%s:total_chapters", o.BookUUID)

	completed, err := t.Store.Incr(ctx, completedKey)
	if err != nil {
		return fmt.Errorf("remove_chapter: %w", err)
	}

	totalRaw, ok, err := t.Store.Get(ctx, totalKey)
	if err != nil {
		return fmt.Errorf("remove_chapter: %w", err)
	}
	if !ok {
		return nil
	}
	total, err := strconv.ParseInt(totalRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("remove_chapter: malformed total_chapters %q: %w", totalRaw, err)
	}

	if completed == total {
		if err := setStatus(ctx, t.Store, "book", o.BookUUID, string(model.StatusCompleted)); err != nil {
			return fmt.Errorf("remove_chapter: %w", err)
		}
	}

	return nil
}

func (o *RemoveChunk) apply(ctx context.Context, t *Tracker) error {
	if o.BookUUID == "" || o.ChapterUUID == "" {
		return fmt.Errorf("remove_chunk: missing book_uuid or chapter_uuid")
	}

	chunkID := fmt.Sprintf("%s:chunk_%d", o.ChapterUUID, o.ChunkIndex)
	applied, err := applyTerminalAware(ctx, t.Store, "chunk", chunkID, string(model.StatusCompleted))
	if err != nil {
		return fmt.Errorf("remove_chunk: %w", err)
	}
	if !applied {
		// Already applied by an earlier, unacknowledged delivery of
		// this same message: the chunk is already out of the set and
		// its stitch job, if any, has already been enqueued.
		return nil
	}

	chunksKey := fmt.Sprintf("chapter:%s:chunks", o.ChapterUUID)
	chunkMember := fmt.Sprintf("chunk_%d", o.ChunkIndex)
	if err := t.Store.SRem(ctx, chunksKey, chunkMember); err != nil {
		return fmt.Errorf("remove_chunk: %w", err)
	}

	remaining, err := t.Store.SCard(ctx, chunksKey)
	if err != nil {
		return fmt.Errorf("remove_chunk: %w", err)
	}
	if remaining != 0 {
		return nil
	}

	body, err := messages.Marshal(messages.StitchJob{BookUUID: o.BookUUID, ChapterUUID: o.ChapterUUID})
	if err != nil {
		return fmt.Errorf("remove_chunk: marshal stitch job: %w", err)
	}
	if err := t.Broker.Publish(ctx, broker.StitchQueue, body); err != nil {
		return fmt.Errorf("remove_chunk: enqueue stitch job: %w", err)
	}

	return nil
}

// applyTerminalAware sets entityID's status unless it's already in a
// terminal state, in which case the transition is silently dropped. The
// returned bool reports whether the write actually happened, so callers
// can gate a one-time side effect (a counter bump, a downstream notify)
// on a real transition instead of repeating it on every redelivery of
// the same message.
func applyTerminalAware(ctx context.Context, s store.Store, entityType, entityID, status string) (bool, error) {
	current, ok, err := s.Get(ctx, fmt.Sprintf("status:%s:%s", entityType, entityID))
	if err != nil {
		return false, err
	}
	if ok && model.Terminal(model.Status(current)) {
		return false, nil
	}
	if err := setStatus(ctx, s, entityType, entityID, status); err != nil {
		return false, err
	}
	return true, nil
}
