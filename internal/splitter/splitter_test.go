package splitter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
)

func buildEPUB(t *testing.T, chapters map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, contents string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(contents)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	write("META-INF/container.xml", `<?xml version="1.0"?>
<container><rootfiles><rootfile full-path="OEBPS/content.opf"/></rootfiles></container>`)

	var manifest, spine strings.Builder
	for name := range chapters {
		manifest.WriteString(`<item id="` + name + `" href="` + name + `.xhtml"/>`)
		spine.WriteString(`<itemref idref="` + name + `"/>`)
	}
	write("OEBPS/content.opf", `<?xml version="1.0"?>
<package><manifest>`+manifest.String()+`</manifest><spine>`+spine.String()+`</spine></package>`)

	for name, html := range chapters {
		write("OEBPS/"+name+".xhtml", html)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPlainTextJoinsParagraphs(t *testing.T) {
	html := `<html><body><p>First paragraph.</p><p>Second paragraph.</p></body></html>`
	text, err := extractPlainText([]byte(html))
	if err != nil {
		t.Fatalf("extractPlainText: %v", err)
	}
	want := "First paragraph.\n\nSecond paragraph."
	if text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestExtractPlainTextReconstructsDropCap(t *testing.T) {
	html := `<html><body><p><span class="dropcap">T</span>he rest of the sentence follows.</p></body></html>`
	text, err := extractPlainText([]byte(html))
	if err != nil {
		t.Fatalf("extractPlainText: %v", err)
	}
	if !strings.HasPrefix(text, "The rest of the sentence follows.") {
		t.Errorf("drop cap not reconstructed, got %q", text)
	}
	if strings.Count(text, "T") > strings.Count("The rest of the sentence follows.", "T") {
		t.Errorf("drop-cap letter duplicated in %q", text)
	}
}

func TestExtractPlainTextStripsScriptAndStyle(t *testing.T) {
	html := `<html><head><style>.x{color:red}</style></head><body><script>alert(1)</script><p>Visible text only.</p></body></html>`
	text, err := extractPlainText([]byte(html))
	if err != nil {
		t.Fatalf("extractPlainText: %v", err)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color") {
		t.Errorf("noise not stripped from %q", text)
	}
}

func TestDeriveTitleSanitizesBasename(t *testing.T) {
	got := deriveTitle("chapter one.xhtml")
	want := "chapter_one"
	if got != want {
		t.Errorf("deriveTitle = %q, want %q", got, want)
	}
}

func TestIsMetadataFiltersShortAndKeywordTitles(t *testing.T) {
	longText := strings.Repeat("This is real chapter prose. ", 10)

	cases := []struct {
		name  string
		title string
		text  string
		want  bool
	}{
		{"copyright page", "Copyright", longText, true},
		{"table of contents", "Table of Contents", longText, true},
		{"too short", "Chapter One", "Too short.", true},
		{"mostly punctuation", "Chapter One", strings.Repeat("...,,,;;;---", 20), true},
		{"many urls", "Chapter One", strings.Repeat("see http://example.com and www.example.com ", 10), true},
		{"real chapter", "Chapter One", longText, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isMetadata(tc.title, tc.text); got != tc.want {
				t.Errorf("isMetadata(%q, ...) = %v, want %v", tc.title, got, tc.want)
			}
		})
	}
}

func TestWorkerProcessSkipsMetadataAndEnqueuesRealChapters(t *testing.T) {
	longText := strings.Repeat("<p>This is real chapter prose spanning enough characters to pass the metadata filter threshold.</p>", 2)

	epub := buildEPUB(t, map[string]string{
		"copyright": `<html><body><h1>Copyright</h1><p>All rights reserved.</p></body></html>`,
		"chapter1":  `<html><body>` + longText + `</body></html>`,
	})

	store, err := objectstore.NewAdapter(objectstore.Config{
		Adapter: "local",
		Local:   objectstore.LocalOptions{BasePath: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	defer store.Close()

	bookUUID := "book-1"
	if err := store.Put(context.Background(), objectkeys.EPUB(bookUUID), bytes.NewReader(epub)); err != nil {
		t.Fatalf("put epub: %v", err)
	}

	fakeBroker := broker.NewFake()
	w := &Worker{Broker: fakeBroker, ObjectStore: store}

	if err := w.process(context.Background(), messages.SplitJob{BookUUID: bookUUID}); err != nil {
		t.Fatalf("process: %v", err)
	}

	chunkJobs := fakeBroker.Published(broker.ChunkerQueue)
	if len(chunkJobs) != 1 {
		t.Fatalf("enqueued %d chunker jobs, want 1", len(chunkJobs))
	}

	var job messages.ChunkJob
	if err := json.Unmarshal(chunkJobs[0], &job); err != nil {
		t.Fatalf("unmarshal chunker job: %v", err)
	}
	if job.BookUUID != bookUUID {
		t.Errorf("chunker job book uuid = %q, want %q", job.BookUUID, bookUUID)
	}

	rc, err := store.Get(context.Background(), objectkeys.ChapterText(bookUUID, job.ChapterUUID))
	if err != nil {
		t.Fatalf("get chapter text: %v", err)
	}
	defer rc.Close()
	text, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read chapter text: %v", err)
	}
	if !strings.Contains(string(text), "real chapter prose") {
		t.Errorf("chapter text missing expected content: %q", text)
	}

	trackerMsgs := fakeBroker.Published(broker.EventTrackerQueue)
	if len(trackerMsgs) != 2 {
		t.Fatalf("tracker notifications = %d, want 2 (book in_progress + add_chapter)", len(trackerMsgs))
	}
}
