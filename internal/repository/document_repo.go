package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"absence-api/internal/model"
)

type DocumentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (model.Document, error) {
	var d model.Document
	err := r.pool.QueryRow(ctx,
		`SELECT id, absence_id, file_name, storage_ref, uploaded_at
		 FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.AbsenceID, &d.FileName, &d.StorageRef, &d.UploadedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Document{}, model.ErrDocumentNotFound
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("find document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) ListByAbsence(ctx context.Context, absenceID string) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, absence_id, file_name, storage_ref, uploaded_at
		 FROM documents WHERE absence_id = $1
		 ORDER BY uploaded_at, id`, absenceID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]model.Document, 0)
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.AbsenceID, &d.FileName, &d.StorageRef, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
