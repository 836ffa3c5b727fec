package ingress

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bookcast/pipeline/internal/store"
)

// ErrNotFound is returned when a queried book has no recorded status.
var ErrNotFound = errors.New("ingress: book not found")

// BookStatus is the JSON shape returned by GetBookStatus.
type BookStatus struct {
	BookID            string `json:"book_id"`
	Status            string `json:"status"`
	TotalChapters     int    `json:"total_chapters"`
	CompletedChapters int    `json:"completed_chapters"`
}

// QueryBookStatus reads a book's current status and chapter counters
// straight from the aggregate store. It never writes; the tracker is
// the store's only writer.
func QueryBookStatus(ctx context.Context, s store.Store, bookID string) (*BookStatus, error) {
	status, ok, err := s.Get(ctx, fmt.Sprintf("status:book:%s", bookID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	total, err := readCounter(ctx, s, fmt.Sprintf("book:%s:total_chapters", bookID))
	if err != nil {
		return nil, err
	}
	completed, err := readCounter(ctx, s, fmt.Sprintf("book:%s:completed_chapters", bookID))
	if err != nil {
		return nil, err
	}

	return &BookStatus{
		BookID:            bookID,
		Status:            status,
		TotalChapters:     total,
		CompletedChapters: completed,
	}, nil
}

func readCounter(ctx context.Context, s store.Store, key string) (int, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed counter %q: %w", key, err)
	}
	return n, nil
}
