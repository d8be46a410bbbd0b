package store

import (
	"context"
	"database/sql"
	"fmt"
)

// BlacklistRow is the raw persisted form of a blacklist entry. The blacklist
// package decodes it into its tagged Entry variant.
type BlacklistRow struct {
	ID          int64
	Kind        string
	Value       string
	UAMatch     string // exact | contains | regex (kind=ua only)
	BlockType   string // block | high_risk (kind=geo only)
	TenantID    *int64 // nil = global scope
	Active      bool
	ExpiresAtNs *int64 // nil = never
	Reason      string
	Source      string
}

// BlacklistRepo provides read/write access to the blacklist_entries table.
type BlacklistRepo struct {
	db *sql.DB
}

// NewBlacklistRepo creates a BlacklistRepo over the given database handle.
func NewBlacklistRepo(db *sql.DB) *BlacklistRepo {
	return &BlacklistRepo{db: db}
}

// Insert adds a blacklist entry and returns its id.
func (r *BlacklistRepo) Insert(ctx context.Context, row BlacklistRow) (int64, error) {
	var uaMatch, blockType any
	if row.UAMatch != "" {
		uaMatch = row.UAMatch
	}
	if row.BlockType != "" {
		blockType = row.BlockType
	}
	var tenantID, expiresAt any
	if row.TenantID != nil {
		tenantID = *row.TenantID
	}
	if row.ExpiresAtNs != nil {
		expiresAt = *row.ExpiresAtNs
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO blacklist_entries
		(kind, value, ua_match, block_type, tenant_id, active, expires_at_ns, reason, source)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		row.Kind, row.Value, uaMatch, blockType, tenantID,
		boolToInt(row.Active), expiresAt, row.Reason, row.Source,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert blacklist entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: blacklist last insert id: %w", err)
	}
	return id, nil
}

// ListActive returns all active, non-expired entries as of nowNs.
func (r *BlacklistRepo) ListActive(ctx context.Context, nowNs int64) ([]BlacklistRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		id, kind, value, ua_match, block_type, tenant_id, active, expires_at_ns, reason, source
		FROM blacklist_entries
		WHERE active = 1 AND (expires_at_ns IS NULL OR expires_at_ns > ?)`, nowNs)
	if err != nil {
		return nil, fmt.Errorf("store: list blacklist entries: %w", err)
	}
	defer rows.Close()

	var out []BlacklistRow
	for rows.Next() {
		var row BlacklistRow
		var uaMatch, blockType sql.NullString
		var tenantID, expiresAt sql.NullInt64
		var active int
		if err := rows.Scan(
			&row.ID, &row.Kind, &row.Value, &uaMatch, &blockType,
			&tenantID, &active, &expiresAt, &row.Reason, &row.Source,
		); err != nil {
			return nil, fmt.Errorf("store: scan blacklist entry: %w", err)
		}
		row.UAMatch = uaMatch.String
		row.BlockType = blockType.String
		if tenantID.Valid {
			v := tenantID.Int64
			row.TenantID = &v
		}
		if expiresAt.Valid {
			v := expiresAt.Int64
			row.ExpiresAtNs = &v
		}
		row.Active = active != 0
		out = append(out, row)
	}
	return out, rows.Err()
}
