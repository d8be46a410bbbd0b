package store

import (
	"database/sql"
	"fmt"

	"github.com/autoguard/autoguard/internal/model"
)

// CloakLogRepo persists decision log records. The log pipeline writer is the
// only sustained writer; it batches everything into one transaction.
type CloakLogRepo struct {
	db *sql.DB
}

// NewCloakLogRepo creates a CloakLogRepo over the given database handle.
func NewCloakLogRepo(db *sql.DB) *CloakLogRepo {
	return &CloakLogRepo{db: db}
}

// InsertBatch inserts a batch of log records in a single transaction and
// returns the number of rows inserted. Delivery from the queue is
// at-least-once; a record redelivered after a crash may insert twice.
func (r *CloakLogRepo) InsertBatch(records []model.CloakLogRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: cloak_logs begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO cloak_logs (
		user_id, offer_id, ip_address, user_agent, referer, request_url,
		decision, decision_reason, fraud_score, blocked_at_layer, detection_details,
		ip_country, ip_city, ip_isp, ip_asn,
		is_datacenter, is_vpn, is_proxy,
		processing_time_ms, has_tracking_params, gclid, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("store: cloak_logs prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		rec := &records[i]
		details := "{}"
		if len(rec.DetectionDetails) > 0 {
			details = string(rec.DetectionDetails)
		}
		_, err := stmt.Exec(
			rec.UserID, rec.OfferID, rec.IPAddress, rec.UserAgent,
			nullableStr(rec.Referer), rec.RequestURL,
			string(rec.Decision), nullableStr(rec.DecisionReason), rec.FraudScore,
			nullableStr(rec.BlockedAtLayer), details,
			nullableStr(rec.IPCountry), nullableStr(rec.IPCity), nullableStr(rec.IPISP),
			nullableInt(rec.IPASN),
			rec.IsDatacenter, rec.IsVPN, rec.IsProxy,
			rec.ProcessingTimeMs, rec.HasTrackingParams,
			nullableStr(rec.GCLID), rec.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("store: cloak_logs insert: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: cloak_logs commit: %w", err)
	}
	return inserted, nil
}

// Count returns the total number of persisted log records.
func (r *CloakLogRepo) Count() (int64, error) {
	var n int64
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM cloak_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: cloak_logs count: %w", err)
	}
	return n, nil
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
