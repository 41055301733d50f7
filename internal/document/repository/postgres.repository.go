package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"markdraft/internal/document/model"
	"markdraft/pkg/logger"

	"github.com/lib/pq"
)

// PostgresStore implements RemoteStore on a PostgreSQL documents table.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

var _ RemoteStore = (*PostgresStore)(nil)

func (r *PostgresStore) ReadAll(ctx context.Context, ownerID string) (map[string]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, title, content, owner_id, created_at, updated_at
		 FROM documents WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to read documents for owner %s: %v", ownerID, err)
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	docs := make(map[string]model.Document)
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			logger.Sugar.Errorf("Failed to scan document row: %v", err)
			continue
		}
		docs[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return docs, nil
}

func (r *PostgresStore) Write(ctx context.Context, doc model.Document, ownerID string) (string, error) {
	if doc.ID != "" {
		// Partial update: title, content, updated_at only. created_at and
		// owner_id stay whatever the server already holds.
		result, err := r.DB.ExecContext(ctx,
			`UPDATE documents SET title = $1, content = $2, updated_at = $3
			 WHERE id = $4 AND owner_id = $5`,
			doc.Title, doc.Content, doc.UpdatedAt, doc.ID, ownerID)
		if err != nil {
			logger.Sugar.Errorf("Failed to update document %s: %v", doc.ID, err)
			return "", classifyPgError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return "", err
		}
		if affected == 0 {
			return "", fmt.Errorf("document %s not found for owner", doc.ID)
		}
		return doc.ID, nil
	}

	var id string
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO documents (title, content, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		doc.Title, doc.Content, ownerID, doc.CreatedAt, doc.UpdatedAt).Scan(&id)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert document for owner %s: %v", ownerID, err)
		return "", classifyPgError(err)
	}
	return id, nil
}

func (r *PostgresStore) Delete(ctx context.Context, id, ownerID string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete document %s: %v", id, err)
		return classifyPgError(err)
	}
	// Zero rows affected means the document was already gone. Idempotent.
	return nil
}

// Ping verifies the connection with a few retries to ride out DNS/network
// blips on managed databases.
func (r *PostgresStore) Ping(ctx context.Context) error {
	var err error
	for i := 0; i < 5; i++ {
		if err = r.DB.PingContext(ctx); err == nil {
			return nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return err
}

// classifyPgError maps "schema was never provisioned" conditions to
// ErrNotProvisioned; everything else passes through untouched.
func classifyPgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01", "42703": // undefined_table, undefined_column
			return fmt.Errorf("%w: %v", ErrNotProvisioned, err)
		}
	}
	return err
}
