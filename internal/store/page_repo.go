package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autoguard/autoguard/internal/model"
)

// PageRepo provides read/write access to the pages table.
type PageRepo struct {
	db *sql.DB
}

// NewPageRepo creates a PageRepo over the given database handle.
func NewPageRepo(db *sql.DB) *PageRepo {
	return &PageRepo{db: db}
}

// Create inserts a page row in the pending state.
func (r *PageRepo) Create(ctx context.Context, offerID int64, variant model.Variant) (*model.Page, error) {
	if !variant.IsValid() {
		return nil, fmt.Errorf("store: invalid page variant %q", variant)
	}
	now := time.Now().UnixNano()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO pages (offer_id, variant, status, last_error, updated_at_ns) VALUES (?,?,?,?,?)`,
		offerID, string(variant), string(model.PagePending), "", now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert page: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: page last insert id: %w", err)
	}
	return &model.Page{ID: id, OfferID: offerID, Variant: variant, Status: model.PagePending, UpdatedAtNs: now}, nil
}

// Get returns the page with the given id, or nil when absent.
func (r *PageRepo) Get(ctx context.Context, id int64) (*model.Page, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, offer_id, variant, status, last_error, updated_at_ns FROM pages WHERE id = ?`, id)
	var p model.Page
	var variant, status string
	err := row.Scan(&p.ID, &p.OfferID, &variant, &status, &p.LastError, &p.UpdatedAtNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan page: %w", err)
	}
	p.Variant = model.Variant(variant)
	p.Status = model.PageStatus(status)
	return &p, nil
}

// SetStatus updates the generation status and error string of a page.
func (r *PageRepo) SetStatus(ctx context.Context, id int64, status model.PageStatus, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pages SET status = ?, last_error = ?, updated_at_ns = ? WHERE id = ?`,
		string(status), lastError, time.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("store: set page %d status: %w", id, err)
	}
	return nil
}
