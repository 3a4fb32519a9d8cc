package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flap-ai/flapd/internal/domain"
	"github.com/flap-ai/flapd/internal/port/docstore"
)

// DocStore implements docstore.Store on a single documents table. Each row
// holds one document keyed by its full slash-separated path; the parent
// column holds the containing collection path for ordered listing.
type DocStore struct {
	pool *pgxpool.Pool
}

// NewDocStore creates a DocStore backed by the given connection pool.
func NewDocStore(pool *pgxpool.Pool) *DocStore {
	return &DocStore{pool: pool}
}

func (s *DocStore) Create(ctx context.Context, path string, doc docstore.Doc) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (path, parent, data) VALUES ($1, $2, $3)`,
		path+"/"+id, path, data)
	if err != nil {
		return "", fmt.Errorf("create document in %s: %w", path, err)
	}
	return id, nil
}

func (s *DocStore) Set(ctx context.Context, path string, doc docstore.Doc, merge bool) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	if merge {
		// The || operator keeps existing fields absent from the new data.
		_, err = s.pool.Exec(ctx,
			`INSERT INTO documents (path, parent, data) VALUES ($1, $2, $3)
			 ON CONFLICT (path) DO UPDATE
			 SET data = documents.data || EXCLUDED.data, updated_at = NOW()`,
			path, parentOf(path), data)
	} else {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO documents (path, parent, data) VALUES ($1, $2, $3)
			 ON CONFLICT (path) DO UPDATE
			 SET data = EXCLUDED.data, updated_at = NOW()`,
			path, parentOf(path), data)
	}
	if err != nil {
		return fmt.Errorf("set document %s: %w", path, err)
	}
	return nil
}

func (s *DocStore) Get(ctx context.Context, path string) (docstore.Doc, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE path = $1`, path).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get document %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document %s: %w", path, err)
	}

	var doc docstore.Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", path, err)
	}
	return doc, nil
}

func (s *DocStore) OrderedList(ctx context.Context, path, orderKey string, desc bool, limit int) ([]docstore.Document, error) {
	// orderKey comes from the gateway's fixed field names, never from client
	// input, so interpolating the direction keyword is safe.
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	query := fmt.Sprintf(
		`SELECT path, data FROM documents WHERE parent = $1 ORDER BY data->>$2 %s`, dir)
	args := []any{path, orderKey}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents in %s: %w", path, err)
	}
	defer rows.Close()

	var result []docstore.Document
	for rows.Next() {
		var (
			docPath string
			data    []byte
		)
		if err := rows.Scan(&docPath, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc docstore.Doc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document %s: %w", docPath, err)
		}
		result = append(result, docstore.Document{ID: idOf(docPath), Data: doc})
	}
	return result, rows.Err()
}

func (s *DocStore) Delete(ctx context.Context, path string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE path = $1 OR path LIKE $1 || '/%'`, path)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete document %s: %w", path, domain.ErrNotFound)
	}
	return nil
}

func (s *DocStore) Increment(ctx context.Context, path, field string, delta int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents
		 SET data = jsonb_set(data, ARRAY[$2],
		     (COALESCE(data->>$2, '0')::bigint + $3)::text::jsonb),
		     updated_at = NOW()
		 WHERE path = $1`,
		path, field, delta)
	if err != nil {
		return fmt.Errorf("increment %s.%s: %w", path, field, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("increment %s.%s: %w", path, field, domain.ErrNotFound)
	}
	return nil
}

// parentOf strips the final path segment.
func parentOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

// idOf returns the final path segment.
func idOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
