// Package ingress implements the HTTP surface external callers use to
// upload a book, poll its status and download finished chapter audio.
// It is the only component besides the tracker that touches the
// aggregate store, and it only ever reads from it.
package ingress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/events"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/model"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
	"github.com/bookcast/pipeline/internal/store"
)

const maxUploadBytes = 10 << 20

var epubMagic = []byte("PK\x03\x04")

// Handler serves the ingress/query/download endpoints.
type Handler struct {
	Store       store.Store
	Broker      broker.Broker
	ObjectStore objectstore.Adapter
}

// UploadBook handles POST /api/v1/books.
func (h *Handler) UploadBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, "failed to parse upload", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, "no file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondError(w, "failed to read upload", http.StatusInternalServerError)
		return
	}
	if len(data) > maxUploadBytes {
		respondError(w, "file exceeds maximum upload size", http.StatusRequestEntityTooLarge)
		return
	}
	if !bytes.HasPrefix(data, epubMagic) {
		respondError(w, "file is not a valid epub", http.StatusBadRequest)
		return
	}

	bookUUID := uuid.NewString()
	ctx := r.Context()

	if err := h.ObjectStore.Put(ctx, objectkeys.EPUB(bookUUID), bytes.NewReader(data)); err != nil {
		log.Printf("ingress: upload epub for %s: %v", bookUUID, err)
		respondError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	addBookBody, err := events.NewAddBook(bookUUID)
	if err != nil {
		respondError(w, "failed to encode tracker notification", http.StatusInternalServerError)
		return
	}
	if err := h.Broker.Publish(ctx, broker.EventTrackerQueue, addBookBody); err != nil {
		log.Printf("ingress: notify tracker for %s: %v", bookUUID, err)
		respondError(w, "failed to enqueue book", http.StatusInternalServerError)
		return
	}

	splitJob, err := messages.Marshal(messages.SplitJob{BookUUID: bookUUID})
	if err != nil {
		respondError(w, "failed to encode split job", http.StatusInternalServerError)
		return
	}
	if err := h.Broker.Publish(ctx, broker.SplitterQueue, splitJob); err != nil {
		log.Printf("ingress: enqueue split job for %s: %v", bookUUID, err)
		respondError(w, "failed to enqueue book", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"book_id": bookUUID, "status": string(model.StatusUploaded)}, http.StatusCreated)
}

// GetBookStatus handles GET /api/v1/books/{id}/status.
func (h *Handler) GetBookStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bookID := pathSegment(r.URL.Path, "/api/v1/books/", "/status")
	if bookID == "" {
		respondError(w, "book id required", http.StatusBadRequest)
		return
	}

	status, err := QueryBookStatus(r.Context(), h.Store, bookID)
	if err != nil {
		if err == ErrNotFound {
			respondError(w, "book not found", http.StatusNotFound)
			return
		}
		log.Printf("ingress: query status for %s: %v", bookID, err)
		respondError(w, "failed to read book status", http.StatusInternalServerError)
		return
	}

	respondJSON(w, status, http.StatusOK)
}

// DownloadChapterAudio handles
// GET /api/v1/books/{id}/chapters/{chapter_id}/audio.
func (h *Handler) DownloadChapterAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bookID, chapterID, ok := parseChapterAudioPath(r.URL.Path)
	if !ok {
		respondError(w, "book id and chapter id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	status, ok, err := h.Store.Get(ctx, fmt.Sprintf("status:chapter:%s", chapterID))
	if err != nil {
		log.Printf("ingress: read chapter status for %s: %v", chapterID, err)
		respondError(w, "failed to read chapter status", http.StatusInternalServerError)
		return
	}
	if !ok {
		respondError(w, "chapter not found", http.StatusNotFound)
		return
	}
	if model.Status(status) != model.StatusCompleted {
		respondError(w, "chapter audio is not ready yet", http.StatusConflict)
		return
	}

	rc, err := h.ObjectStore.Get(ctx, objectkeys.ChapterAudio(bookID, chapterID))
	if err != nil {
		respondError(w, "chapter audio not found", http.StatusNotFound)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.mp3", chapterID))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

func pathSegment(path, prefix, suffix string) string {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
}

func parseChapterAudioPath(path string) (bookID, chapterID string, ok bool) {
	const prefix = "/api/v1/books/"
	const marker = "/chapters/"
	const suffix = "/audio"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", "", false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	parts := strings.SplitN(rest, marker, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
