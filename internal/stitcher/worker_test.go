package stitcher

import (
	"context"
	"strings"
	"testing"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
)

func newTestStore(t *testing.T) objectstore.Adapter {
	t.Helper()
	store, err := objectstore.NewAdapter(objectstore.Config{
		Adapter: "local",
		Local:   objectstore.LocalOptions{BasePath: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	return store
}

func TestProcessConcatenatesFragmentsInAscendingOrder(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	bookUUID, chapterUUID := "book-1", "chapter-1"
	// Deliberately upload out of numeric order to prove sort-by-index,
	// not lexical listing order, governs the result.
	fragments := map[int]string{2: "second", 10: "tenth", 1: "first"}
	for index, content := range fragments {
		if err := store.Put(context.Background(), objectkeys.ChunkAudio(bookUUID, chapterUUID, index), strings.NewReader(content)); err != nil {
			t.Fatalf("put fragment %d: %v", index, err)
		}
	}

	fakeBroker := broker.NewFake()
	w := &Worker{Broker: fakeBroker, ObjectStore: store}

	if err := w.process(context.Background(), messages.StitchJob{BookUUID: bookUUID, ChapterUUID: chapterUUID}); err != nil {
		t.Fatalf("process: %v", err)
	}

	rc, err := store.Get(context.Background(), objectkeys.ChapterAudio(bookUUID, chapterUUID))
	if err != nil {
		t.Fatalf("get chapter audio: %v", err)
	}
	defer rc.Close()

	var sb strings.Builder
	buf := make([]byte, 64)
	for {
		n, err := rc.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}

	want := "firstsecondtenth"
	if sb.String() != want {
		t.Errorf("stitched audio = %q, want %q", sb.String(), want)
	}

	found := false
	for _, body := range fakeBroker.Published(broker.EventTrackerQueue) {
		if strings.Contains(string(body), `"operation":"remove_chapter"`) {
			found = true
		}
	}
	if !found {
		t.Error("expected a remove_chapter notification after stitching")
	}
}

func TestProcessFailsWhenNoFragmentsExist(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	fakeBroker := broker.NewFake()
	w := &Worker{Broker: fakeBroker, ObjectStore: store}

	err := w.process(context.Background(), messages.StitchJob{BookUUID: "book-1", ChapterUUID: "chapter-empty"})
	if err == nil {
		t.Fatal("expected an error when no audio fragments exist")
	}
}

func TestSortByChunkIndexOrdersNumerically(t *testing.T) {
	keys := []string{
		"book/chunks/chapter/audio/chunk_10.mp3",
		"book/chunks/chapter/audio/chunk_2.mp3",
		"book/chunks/chapter/audio/chunk_1.mp3",
	}

	ordered, err := sortByChunkIndex(keys)
	if err != nil {
		t.Fatalf("sortByChunkIndex: %v", err)
	}

	want := []string{
		"book/chunks/chapter/audio/chunk_1.mp3",
		"book/chunks/chapter/audio/chunk_2.mp3",
		"book/chunks/chapter/audio/chunk_10.mp3",
	}
	for i := range want {
		if ordered[i] != want[i] {
			t.Errorf("ordered[%d] = %q, want %q", i, ordered[i], want[i])
		}
	}
}
