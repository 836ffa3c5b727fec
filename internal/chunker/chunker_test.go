package chunker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
)

func TestSplitRespectsByteLimit(t *testing.T) {
	text := strings.Repeat("This is a sentence. ", 400)
	chunks := split(text, 1000)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Errorf("chunk %d is %d bytes, want <= 1000", i, len(c))
		}
	}
}

func TestSplitNeverBreaksMidSentence(t *testing.T) {
	text := "Alpha sentence one. Alpha sentence two. Alpha sentence three."
	chunks := split(text, 30)

	reassembled := strings.Join(chunks, " ")
	for _, s := range []string{"Alpha sentence one.", "Alpha sentence two.", "Alpha sentence three."} {
		if !strings.Contains(reassembled, s) {
			t.Errorf("reassembled text missing sentence %q: %q", s, reassembled)
		}
	}
}

func TestSplitPreservesParagraphBoundaries(t *testing.T) {
	text := "First paragraph sentence.\n\nSecond paragraph sentence."
	chunks := split(text, 5000)

	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk for short text, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], "First paragraph sentence.") || !strings.Contains(chunks[0], "Second paragraph sentence.") {
		t.Errorf("chunk missing paragraph content: %q", chunks[0])
	}
}

func TestSplitHandlesLongSingleSentenceBoundary(t *testing.T) {
	// A single sentence just over the limit must still land in its own
	// chunk rather than being silently dropped or truncated.
	sentence := strings.Repeat("x", 5001) + ". "
	chunks := split(sentence, 5000)

	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk for an oversized single sentence, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], strings.Repeat("x", 5001)) {
		t.Errorf("oversized sentence was truncated")
	}
}

func TestWorkerProcessEnqueuesOneTTSJobPerChunk(t *testing.T) {
	store, err := objectstore.NewAdapter(objectstore.Config{
		Adapter: "local",
		Local:   objectstore.LocalOptions{BasePath: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	defer store.Close()

	bookUUID, chapterUUID := "book-1", "chapter-1"
	text := strings.Repeat("Sentence in the chapter. ", 500)
	if err := store.Put(context.Background(), objectkeys.ChapterText(bookUUID, chapterUUID), strings.NewReader(text)); err != nil {
		t.Fatalf("put chapter text: %v", err)
	}

	fakeBroker := broker.NewFake()
	w := &Worker{Broker: fakeBroker, ObjectStore: store, MaxChunkBytes: 2000}

	if err := w.process(context.Background(), messages.ChunkJob{BookUUID: bookUUID, ChapterUUID: chapterUUID}); err != nil {
		t.Fatalf("process: %v", err)
	}

	ttsJobs := fakeBroker.Published(broker.TTSQueue)
	addChunkNotifications := 0
	for _, body := range fakeBroker.Published(broker.EventTrackerQueue) {
		if strings.Contains(string(body), `"operation":"add_chunk"`) {
			addChunkNotifications++
		}
	}

	if len(ttsJobs) == 0 {
		t.Fatal("expected at least one tts job")
	}
	if addChunkNotifications != len(ttsJobs) {
		t.Errorf("add_chunk notifications = %d, want %d (one per tts job)", addChunkNotifications, len(ttsJobs))
	}

	for i, body := range ttsJobs {
		var job messages.TTSJob
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("unmarshal tts job %d: %v", i, err)
		}
		if job.ChunkIndex != i+1 {
			t.Errorf("tts job %d has index %d, want %d (1-based contiguous)", i, job.ChunkIndex, i+1)
		}
	}
}

func TestWorkerProcessFailsChapterOnZeroChunks(t *testing.T) {
	store, err := objectstore.NewAdapter(objectstore.Config{
		Adapter: "local",
		Local:   objectstore.LocalOptions{BasePath: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	defer store.Close()

	bookUUID, chapterUUID := "book-1", "chapter-1"
	if err := store.Put(context.Background(), objectkeys.ChapterText(bookUUID, chapterUUID), strings.NewReader("")); err != nil {
		t.Fatalf("put chapter text: %v", err)
	}

	fakeBroker := broker.NewFake()
	w := &Worker{Broker: fakeBroker, ObjectStore: store}

	if err := w.process(context.Background(), messages.ChunkJob{BookUUID: bookUUID, ChapterUUID: chapterUUID}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(fakeBroker.Published(broker.TTSQueue)) != 0 {
		t.Error("expected no tts jobs for an empty chapter")
	}

	found := false
	for _, body := range fakeBroker.Published(broker.EventTrackerQueue) {
		if strings.Contains(string(body), `"operation":"remove_chapter"`) {
			found = true
		}
	}
	if !found {
		t.Error("expected a remove_chapter notification for the empty chapter")
	}
}
