package store

import (
	"encoding/json"
	"testing"

	"github.com/autoguard/autoguard/internal/model"
)

func TestCloakLogInsertBatchAndCount(t *testing.T) {
	db, err := Bootstrap(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewCloakLogRepo(db)

	reason := "score below threshold"
	layer := "L4"
	country := "US"
	records := []model.CloakLogRecord{
		{
			UserID: 1, OfferID: 2, IPAddress: "93.184.216.34",
			UserAgent: "Mozilla/5.0", RequestURL: "/c/abc123",
			Decision: model.DecisionMoney, FraudScore: 92,
			DetectionDetails: json.RawMessage(`{"L1":{"check":"ip"}}`),
			IPCountry:        &country,
			CreatedAt:        "2026-08-25T12:00:00Z",
		},
		{
			UserID: 1, OfferID: 2, IPAddress: "10.0.0.1",
			UserAgent: "curl/8.0", RequestURL: "/c/abc123",
			Decision: model.DecisionSafe, DecisionReason: &reason,
			FraudScore: 31, BlockedAtLayer: &layer,
			IsDatacenter: 1, IsVPN: 1,
			CreatedAt: "2026-08-25T12:00:01Z",
		},
	}

	n, err := repo.InsertBatch(records)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d, want 2", n)
	}

	total, err := repo.Count()
	if err != nil || total != 2 {
		t.Fatalf("Count = %d err %v", total, err)
	}

	// Empty batches are a no-op.
	if n, err := repo.InsertBatch(nil); err != nil || n != 0 {
		t.Fatalf("empty InsertBatch = %d, %v", n, err)
	}
}
