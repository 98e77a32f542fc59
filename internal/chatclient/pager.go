package chatclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
)

const DefaultPageSize = 50

// Pager keeps one offset cursor per group for backfill. The cursor counts
// messages already fetched from the newest end.
type Pager struct {
	pageSize int
	cursors  map[uuid.UUID]int
}

func NewPager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{pageSize: pageSize, cursors: make(map[uuid.UUID]int)}
}

func (p *Pager) PageSize() int {
	return p.pageSize
}

// Reset moves the cursor of groupID to offset.
func (p *Pager) Reset(groupID uuid.UUID, offset int) {
	p.cursors[groupID] = offset
}

// Next returns the window of the next older page.
func (p *Pager) Next(groupID uuid.UUID) (limit, offset int) {
	return p.pageSize, p.cursors[groupID]
}

// Apply prepends page, fetched at offset, and reports whether more pages may
// exist. The cursor advances only for a non-empty page requested at the
// current cursor.
func (p *Pager) Apply(store *Store, groupID uuid.UUID, offset int, page []domain.Message) bool {
	store.Dispatch(Prepend{GroupID: groupID, Messages: page})
	if len(page) > 0 && p.cursors[groupID] == offset {
		p.cursors[groupID] = offset + len(page)
	}
	return len(page) == p.pageSize
}

// LoadMore fetches and applies the next older page of groupID.
func (p *Pager) LoadMore(ctx context.Context, api PageFetcher, store *Store, groupID uuid.UUID) (bool, error) {
	limit, offset := p.Next(groupID)
	page, err := api.ListMessages(ctx, groupID, limit, offset)
	if err != nil {
		return false, fmt.Errorf("failed to load messages: %w", err)
	}
	return p.Apply(store, groupID, offset, page), nil
}
