package store

import (
	"context"
	"testing"
	"time"
)

func TestBlacklistListActiveFilters(t *testing.T) {
	ctx := context.Background()
	db, err := Bootstrap(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewBlacklistRepo(db)

	now := time.Now().UnixNano()
	past := now - int64(time.Hour)
	future := now + int64(time.Hour)
	tenant := int64(4)

	rows := []BlacklistRow{
		{Kind: "ip", Value: "10.0.0.1", Active: true},
		{Kind: "ip", Value: "10.0.0.2", Active: false},
		{Kind: "ip", Value: "10.0.0.3", Active: true, ExpiresAtNs: &past},
		{Kind: "ip", Value: "10.0.0.4", Active: true, ExpiresAtNs: &future},
		{Kind: "ua", Value: "badbot", UAMatch: "contains", Active: true, TenantID: &tenant},
		{Kind: "geo", Value: "RU", BlockType: "block", Active: true},
	}
	for _, row := range rows {
		if _, err := repo.Insert(ctx, row); err != nil {
			t.Fatalf("Insert %+v: %v", row, err)
		}
	}

	active, err := repo.ListActive(ctx, now)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 4 {
		t.Fatalf("active = %d entries, want 4 (inactive and expired dropped)", len(active))
	}

	byValue := make(map[string]BlacklistRow, len(active))
	for _, row := range active {
		byValue[row.Value] = row
	}
	if _, ok := byValue["10.0.0.2"]; ok {
		t.Fatal("inactive entry returned")
	}
	if _, ok := byValue["10.0.0.3"]; ok {
		t.Fatal("expired entry returned")
	}
	ua, ok := byValue["badbot"]
	if !ok || ua.TenantID == nil || *ua.TenantID != tenant || ua.UAMatch != "contains" {
		t.Fatalf("ua entry = %+v", ua)
	}
	geo := byValue["RU"]
	if geo.BlockType != "block" || geo.TenantID != nil {
		t.Fatalf("geo entry = %+v", geo)
	}
}
