package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/surrealdb/surrealdb.go"
)

// Mirror is a jobs.Mirror that keeps each kind's collection as one document
// in SurrealDB, so several machines can share the same job list.
type Mirror struct {
	client *Client
	logger *slog.Logger
}

// Compile-time check that Mirror implements jobs.Mirror.
var _ jobs.Mirror = (*Mirror)(nil)

// NewMirror creates a mirror on an initialized client.
func NewMirror(client *Client, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{client: client, logger: logger}
}

type collectionRow struct {
	Document string `json:"document"`
}

// Load returns the records of kind. A missing collection is empty; a
// document that does not parse is logged and treated as empty.
func (m *Mirror) Load(ctx context.Context, kind jobs.Kind) ([]jobs.Record, error) {
	results, err := surrealdb.Query[[]collectionRow](ctx, m.client.db, `
		SELECT document FROM type::record("mirror_collection", $key)
	`, map[string]any{"key": kind.Collection()})
	if err != nil {
		return nil, fmt.Errorf("load mirror %s: %w", kind.Collection(), wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return []jobs.Record{}, nil
	}

	doc := (*results)[0].Result[0].Document
	if doc == "" {
		return []jobs.Record{}, nil
	}
	records, err := jobs.DecodeCollection([]byte(doc))
	if err != nil {
		m.logger.Warn("discarding unreadable mirror data", "collection", kind.Collection(), "backend", "surrealdb", "error", err)
		return []jobs.Record{}, nil
	}
	return records, nil
}

// Save replaces the collection of kind. A transaction conflict with a
// concurrent writer is retried once; the later write wins.
func (m *Mirror) Save(ctx context.Context, kind jobs.Kind, records []jobs.Record) error {
	data, err := jobs.EncodeCollection(records)
	if err != nil {
		return fmt.Errorf("encode mirror %s: %w", kind.Collection(), err)
	}

	vars := map[string]any{
		"key":      kind.Collection(),
		"document": string(data),
		"count":    len(records),
	}
	const sql = `
		UPSERT type::record("mirror_collection", $key) SET
			document = $document,
			record_count = $count,
			updated_at = time::now()
	`

	_, err = surrealdb.Query[any](ctx, m.client.db, sql, vars)
	if err = wrapQueryError(err); errors.Is(err, ErrTransactionConflict) {
		m.logger.Debug("retrying mirror save after conflict", "collection", kind.Collection())
		_, err = surrealdb.Query[any](ctx, m.client.db, sql, vars)
		err = wrapQueryError(err)
	}
	if err != nil {
		return fmt.Errorf("save mirror %s: %w", kind.Collection(), err)
	}
	return nil
}

// writeRaw stores an arbitrary document for kind. Tests use it to plant
// corrupt data.
func (m *Mirror) writeRaw(ctx context.Context, kind jobs.Kind, document string) error {
	_, err := surrealdb.Query[any](ctx, m.client.db, `
		UPSERT type::record("mirror_collection", $key) SET document = $document
	`, map[string]any{"key": kind.Collection(), "document": document})
	return err
}
