package store

import (
	"context"
	"testing"

	"github.com/autoguard/autoguard/internal/model"
)

func testPageFixture(t *testing.T) (*PageRepo, *model.Offer) {
	t.Helper()
	db, err := Bootstrap(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	o, err := NewOfferRepo(db).Create(context.Background(), model.Offer{TenantID: 1, Subdomain: "abc123"})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return NewPageRepo(db), o
}

func TestPageLifecycle(t *testing.T) {
	ctx := context.Background()
	pages, o := testPageFixture(t)

	p, err := pages.Create(ctx, o.ID, model.VariantMoney)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != model.PagePending {
		t.Fatalf("status = %q, want pending", p.Status)
	}

	if err := pages.SetStatus(ctx, p.ID, model.PageFailed, "upstream 503"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, err := pages.Get(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if got.Status != model.PageFailed || got.LastError != "upstream 503" {
		t.Fatalf("got = %+v", got)
	}
	if got.Variant != model.VariantMoney || got.OfferID != o.ID {
		t.Fatalf("got = %+v", got)
	}
}

func TestPageCreateRejectsBadVariant(t *testing.T) {
	pages, o := testPageFixture(t)
	if _, err := pages.Create(context.Background(), o.ID, "x"); err == nil {
		t.Fatal("invalid variant must error")
	}
}

func TestPageGetAbsentIsNil(t *testing.T) {
	pages, _ := testPageFixture(t)
	got, err := pages.Get(context.Background(), 999)
	if err != nil || got != nil {
		t.Fatalf("Get absent = %+v %v, want nil, nil", got, err)
	}
}
