package offer

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/model"
	"github.com/autoguard/autoguard/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.OfferRepo, *miniredis.Miniredis) {
	t.Helper()
	db, err := store.Bootstrap(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := store.NewOfferRepo(db)
	return NewResolver(rdb, repo), repo, mr
}

func createOffer(t *testing.T, repo *store.OfferRepo, o model.Offer) *model.Offer {
	t.Helper()
	created, err := repo.Create(context.Background(), o)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return created
}

func TestResolveBySubdomainPopulatesCache(t *testing.T) {
	ctx := context.Background()
	r, repo, mr := newTestResolver(t)
	created := createOffer(t, repo, model.Offer{TenantID: 1, Subdomain: "abc123", Status: model.OfferActive})

	got, err := r.BySubdomain(ctx, "abc123")
	if err != nil {
		t.Fatalf("BySubdomain: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("got %+v, want offer %d", got, created.ID)
	}
	if !mr.Exists(cache.OfferSubdomainKey("abc123")) {
		t.Fatal("miss should populate the cache")
	}

	// Cached copy is served even when the row changes underneath.
	created.Status = model.OfferPaused
	if err := repo.UpdateRouting(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = r.BySubdomain(ctx, "abc123")
	if err != nil || got.Status != model.OfferActive {
		t.Fatalf("expected cached active copy, got %+v err %v", got, err)
	}

	// Invalidate drops the stale copy.
	if err := r.Invalidate(ctx, created); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	got, err = r.BySubdomain(ctx, "abc123")
	if err != nil || got.Status != model.OfferPaused {
		t.Fatalf("expected fresh copy after invalidate, got %+v err %v", got, err)
	}
}

func TestResolveNegativeNotCached(t *testing.T) {
	ctx := context.Background()
	r, repo, mr := newTestResolver(t)

	got, err := r.BySubdomain(ctx, "zzz999")
	if err != nil || got != nil {
		t.Fatalf("expected miss, got %+v err %v", got, err)
	}
	if mr.Exists(cache.OfferSubdomainKey("zzz999")) {
		t.Fatal("negative result must not be cached")
	}

	// The offer becomes routable immediately after creation.
	createOffer(t, repo, model.Offer{TenantID: 1, Subdomain: "zzz999", Status: model.OfferActive})
	got, err = r.BySubdomain(ctx, "zzz999")
	if err != nil || got == nil {
		t.Fatalf("expected hit after creation, got %+v err %v", got, err)
	}
}

func TestResolveByDomainVerifiedOnly(t *testing.T) {
	ctx := context.Background()
	r, repo, _ := newTestResolver(t)

	createOffer(t, repo, model.Offer{
		TenantID: 1, Subdomain: "aaa111", Status: model.OfferActive,
		CustomDomain: "pending.example.com", DomainStatus: model.DomainPending,
	})
	verified := createOffer(t, repo, model.Offer{
		TenantID: 1, Subdomain: "bbb222", Status: model.OfferActive,
		CustomDomain: "shop.example.com", DomainStatus: model.DomainVerified,
	})

	if got, err := r.ByDomain(ctx, "pending.example.com"); err != nil || got != nil {
		t.Fatalf("pending domain must not resolve, got %+v err %v", got, err)
	}
	got, err := r.ByDomain(ctx, "SHOP.example.com")
	if err != nil || got == nil || got.ID != verified.ID {
		t.Fatalf("verified domain should resolve case-insensitively, got %+v err %v", got, err)
	}
}

func TestResolveByID(t *testing.T) {
	ctx := context.Background()
	r, repo, _ := newTestResolver(t)
	created := createOffer(t, repo, model.Offer{TenantID: 4, Subdomain: "ccc333"})

	got, err := r.ByID(ctx, created.ID)
	if err != nil || got == nil || got.Subdomain != "ccc333" {
		t.Fatalf("ByID = %+v err %v", got, err)
	}
}
