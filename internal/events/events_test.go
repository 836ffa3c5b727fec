package events

import (
	"context"
	"testing"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/store"
)

func newTestTracker() *Tracker {
	return &Tracker{Store: store.NewFake(), Broker: broker.NewFake()}
}

func TestDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		encode func() ([]byte, error)
		want   Tag
	}{
		{"add_book", func() ([]byte, error) { return NewAddBook("b1") }, TagAddBook},
		{"add_chapter", func() ([]byte, error) { return NewAddChapter("b1", "c1", "Chapter One") }, TagAddChapter},
		{"add_chunk", func() ([]byte, error) { return NewAddChunk("b1", "c1", 0) }, TagAddChunk},
		{"update_book_status", func() ([]byte, error) { return NewUpdateBookStatus("b1", "completed") }, TagUpdateBookStatus},
		{"update_chapter_status", func() ([]byte, error) { return NewUpdateChapterStatus("b1", "c1", "completed") }, TagUpdateChapterStatus},
		{"update_chunk_status", func() ([]byte, error) { return NewUpdateChunkStatus("b1", "c1", 0, "completed") }, TagUpdateChunkStatus},
		{"remove_chapter", func() ([]byte, error) { return NewRemoveChapter("b1", "c1") }, TagRemoveChapter},
		{"remove_chunk", func() ([]byte, error) { return NewRemoveChunk("b1", "c1", 0) }, TagRemoveChunk},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, err := tc.encode()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			op, err := Decode(body)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if _, ok := op.(interface{ sealed() }); !ok {
				t.Fatalf("decoded operation does not satisfy Operation")
			}
		})
	}
}

func TestDecodeRejectsUndefinedOperation(t *testing.T) {
	if _, err := Decode([]byte(`{"operation":"bogus"}`)); err == nil {
		t.Fatal("expected an error for an undefined operation tag")
	}
}

func TestAddChunkNeverTaggedRemoveChapter(t *testing.T) {
	body, err := NewAddChunk("b1", "c1", 3)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	op, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := op.(*AddChunk); !ok {
		t.Fatalf("add_chunk decoded as %T, want *AddChunk", op)
	}
}

func TestUpdateChunkStatusNeverTaggedUpdateChapterStatus(t *testing.T) {
	body, err := NewUpdateChunkStatus("b1", "c1", 2, "completed")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	op, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := op.(*UpdateChunkStatus); !ok {
		t.Fatalf("update_chunk_status decoded as %T, want *UpdateChunkStatus", op)
	}
}

func TestChapterCompletionRollsUpToBook(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()

	must(t, tr.Apply(ctx, &AddBook{BookUUID: "b1"}))
	must(t, tr.Apply(ctx, &AddChapter{BookUUID: "b1", ChapterUUID: "c1", ChapterTitle: "One"}))
	must(t, tr.Apply(ctx, &AddChapter{BookUUID: "b1", ChapterUUID: "c2", ChapterTitle: "Two"}))

	must(t, tr.Apply(ctx, &RemoveChapter{BookUUID: "b1", ChapterUUID: "c1"}))
	assertStatus(t, tr, "book", "b1", "uploaded")

	must(t, tr.Apply(ctx, &RemoveChapter{BookUUID: "b1", ChapterUUID: "c2"}))
	assertStatus(t, tr, "book", "b1", "completed")
}

func TestLastChunkRemovalEnqueuesStitchJob(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()
	fakeBroker := tr.Broker.(*broker.Fake)

	must(t, tr.Apply(ctx, &AddChunk{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 0}))
	must(t, tr.Apply(ctx, &AddChunk{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 1}))

	must(t, tr.Apply(ctx, &RemoveChunk{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 0}))
	if got := len(fakeBroker.Published(broker.StitchQueue)); got != 0 {
		t.Fatalf("stitch queue has %d messages after first chunk, want 0", got)
	}

	must(t, tr.Apply(ctx, &RemoveChunk{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 1}))
	if got := len(fakeBroker.Published(broker.StitchQueue)); got != 1 {
		t.Fatalf("stitch queue has %d messages after last chunk, want 1", got)
	}
}

func TestTerminalStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()

	must(t, tr.Apply(ctx, &AddChunk{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 0}))
	must(t, tr.Apply(ctx, &UpdateChunkStatus{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 0, Status: "failed"}))
	assertStatus(t, tr, "chunk", "c1:chunk_0", "failed")

	must(t, tr.Apply(ctx, &UpdateChunkStatus{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 0, Status: "completed"}))
	assertStatus(t, tr, "chunk", "c1:chunk_0", "failed")
}

func TestUpdateChunkStatusRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()
	err := tr.Apply(ctx, &UpdateChunkStatus{BookUUID: "b1", ChapterUUID: "c1", ChunkIndex: 0, Status: "bogus"})
	if err == nil {
		t.Fatal("expected an error for a non-permissible chunk status")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertStatus(t *testing.T, tr *Tracker, entityType, id, want string) {
	t.Helper()
	got, ok, err := tr.Store.Get(context.Background(), "status:"+entityType+":"+id)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !ok {
		t.Fatalf("status:%s:%s not set, want %q", entityType, id, want)
	}
	if got != want {
		t.Fatalf("status:%s:%s = %q, want %q", entityType, id, got, want)
	}
}
