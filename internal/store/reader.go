package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"planharvest/internal/records"
)

var ErrNotFound = errors.New("record not found")

// Get returns the stored record with the given council reference.
func (s *Store) Get(ctx context.Context, councilReference string) (records.ApplicationRecord, error) {
	row, err := s.qry.GetApplication(ctx, councilReference)
	if errors.Is(err, sql.ErrNoRows) {
		return records.ApplicationRecord{}, ErrNotFound
	}
	if err != nil {
		return records.ApplicationRecord{}, fmt.Errorf("get %s: %w", councilReference, err)
	}
	return fromRow(row), nil
}

// List returns up to limit records, most recently scraped first.
func (s *Store) List(ctx context.Context, limit int) ([]records.ApplicationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.qry.ListApplications(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]records.ApplicationRecord, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.qry.CountApplications(ctx)
}
