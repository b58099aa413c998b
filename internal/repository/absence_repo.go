package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"absence-api/internal/model"
)

// AbsenceRepository owns the absences table and the document rows that hang
// off it. Mutations that touch both run in one transaction, and every write
// to an existing absence is guarded by its version column.
type AbsenceRepository struct {
	pool *pgxpool.Pool
}

func NewAbsenceRepository(pool *pgxpool.Pool) *AbsenceRepository {
	return &AbsenceRepository{pool: pool}
}

const absenceColumns = `id, owner_id, type, status, start_date, end_date,
	declaration_to_dean, rejection_reason, version, created_at, updated_at`

func scanAbsence(row pgx.Row) (model.Absence, error) {
	var a model.Absence
	err := row.Scan(&a.ID, &a.OwnerID, &a.Type, &a.Status, &a.StartDate, &a.EndDate,
		&a.DeclarationToDean, &a.RejectionReason, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Absence{}, model.ErrAbsenceNotFound
	}
	if err != nil {
		return model.Absence{}, fmt.Errorf("scan absence: %w", err)
	}
	return a, nil
}

func (r *AbsenceRepository) Get(ctx context.Context, id string) (model.Absence, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+absenceColumns+` FROM absences WHERE id = $1`, id)
	return scanAbsence(row)
}

func (r *AbsenceRepository) Create(ctx context.Context, a model.Absence, docs []model.Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create absence: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO absences
		 (id, owner_id, type, status, start_date, end_date, declaration_to_dean,
		  rejection_reason, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.OwnerID, a.Type, a.Status, a.StartDate, a.EndDate,
		a.DeclarationToDean, a.RejectionReason, a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert absence: %w", err)
	}

	if err := insertDocuments(ctx, tx, docs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create absence: %w", err)
	}
	return nil
}

// Save writes the absence fields plus the attachment diff as one
// transaction. The version compare-and-swap makes a losing concurrent
// writer fail with ErrVersionConflict instead of clobbering the winner.
func (r *AbsenceRepository) Save(ctx context.Context, a model.Absence, addDocs []model.Document, removeDocIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save absence: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE absences
		 SET status = $3, start_date = $4, end_date = $5, declaration_to_dean = $6,
		     rejection_reason = $7, version = version + 1, updated_at = $8
		 WHERE id = $1 AND version = $2`,
		a.ID, a.Version, a.Status, a.StartDate, a.EndDate,
		a.DeclarationToDean, a.RejectionReason, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update absence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM absences WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check absence exists: %w", err)
		}
		if !exists {
			return model.ErrAbsenceNotFound
		}
		return model.ErrVersionConflict
	}

	// Removals before additions: a same-named replacement is remove+add.
	for _, docID := range removeDocIDs {
		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND absence_id = $2`, docID, a.ID); err != nil {
			return fmt.Errorf("delete document row: %w", err)
		}
	}

	if err := insertDocuments(ctx, tx, addDocs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save absence: %w", err)
	}
	return nil
}

func insertDocuments(ctx context.Context, tx pgx.Tx, docs []model.Document) error {
	for _, d := range docs {
		_, err := tx.Exec(ctx,
			`INSERT INTO documents (id, absence_id, file_name, storage_ref, uploaded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			d.ID, d.AbsenceID, d.FileName, d.StorageRef, d.UploadedAt)
		if err != nil {
			return fmt.Errorf("insert document row: %w", err)
		}
	}
	return nil
}

func (r *AbsenceRepository) List(ctx context.Context, q model.AbsenceQuery) ([]model.AbsenceRow, model.Meta, error) {
	normalizePage(&q)
	whereClause, args := buildAbsenceFilter(q)

	countQuery := fmt.Sprintf(
		`SELECT COUNT(*) FROM absences a JOIN users u ON u.id = a.owner_id %s`, whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count absences: %w", err)
	}

	meta := model.NewMeta(q.Page, q.Limit, total)

	dataQuery := fmt.Sprintf(
		`SELECT a.id, a.owner_id, u.full_name, u.group_id, a.type, a.status, a.created_at, a.updated_at
		 FROM absences a JOIN users u ON u.id = a.owner_id
		 %s %s
		 LIMIT $%d OFFSET $%d`,
		whereClause, orderClause(q.Sort), len(args)+1, len(args)+2)
	args = append(args, q.Limit, (q.Page-1)*q.Limit)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("list absences: %w", err)
	}
	defer rows.Close()

	items := make([]model.AbsenceRow, 0)
	for rows.Next() {
		var row model.AbsenceRow
		if err := rows.Scan(&row.ID, &row.OwnerID, &row.StudentName, &row.Group,
			&row.Type, &row.Status, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan absence row: %w", err)
		}
		items = append(items, row)
	}
	return items, meta, rows.Err()
}

// Project returns the unpaginated export projection for the given filter.
func (r *AbsenceRepository) Project(ctx context.Context, q model.AbsenceQuery) ([]model.AbsenceExportRow, error) {
	whereClause, args := buildAbsenceFilter(q)

	query := fmt.Sprintf(
		`SELECT u.full_name, u.group_id, a.type, a.status, a.start_date, a.end_date,
		        a.declaration_to_dean, a.created_at, a.updated_at
		 FROM absences a JOIN users u ON u.id = a.owner_id
		 %s %s`, whereClause, orderClause(q.Sort))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("project absences: %w", err)
	}
	defer rows.Close()

	items := make([]model.AbsenceExportRow, 0)
	for rows.Next() {
		var row model.AbsenceExportRow
		if err := rows.Scan(&row.StudentName, &row.Group, &row.Type, &row.Status,
			&row.StartDate, &row.EndDate, &row.DeclarationToDean,
			&row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		items = append(items, row)
	}
	return items, rows.Err()
}
