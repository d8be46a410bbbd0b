// Package offer implements the cached offer resolver used by the gateway.
package offer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/model"
	"github.com/autoguard/autoguard/internal/store"
)

// Resolver answers offer lookups through the shared cache with a primary
// store fallback. Negative lookups are not cached: a just-created offer must
// become routable without waiting out a tombstone TTL.
type Resolver struct {
	rdb  *redis.Client
	repo *store.OfferRepo
}

// NewResolver creates a Resolver.
func NewResolver(rdb *redis.Client, repo *store.OfferRepo) *Resolver {
	return &Resolver{rdb: rdb, repo: repo}
}

// ByID resolves an offer by id. Returns (nil, nil) when absent.
func (r *Resolver) ByID(ctx context.Context, id int64) (*model.Offer, error) {
	return r.resolve(ctx, cache.OfferIDKey(id), func() (*model.Offer, error) {
		return r.repo.GetByID(ctx, id)
	})
}

// BySubdomain resolves a non-deleted offer by its subdomain.
func (r *Resolver) BySubdomain(ctx context.Context, subdomain string) (*model.Offer, error) {
	subdomain = strings.ToLower(subdomain)
	return r.resolve(ctx, cache.OfferSubdomainKey(subdomain), func() (*model.Offer, error) {
		return r.repo.GetBySubdomain(ctx, subdomain)
	})
}

// ByDomain resolves a non-deleted offer by its verified custom domain.
func (r *Resolver) ByDomain(ctx context.Context, domain string) (*model.Offer, error) {
	domain = strings.ToLower(domain)
	return r.resolve(ctx, cache.OfferDomainKey(domain), func() (*model.Offer, error) {
		return r.repo.GetByDomain(ctx, domain)
	})
}

func (r *Resolver) resolve(ctx context.Context, key string, load func() (*model.Offer, error)) (*model.Offer, error) {
	if r.rdb != nil {
		raw, err := r.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var o model.Offer
			if jsonErr := json.Unmarshal(raw, &o); jsonErr == nil {
				return &o, nil
			}
			log.Printf("[offer] warning: malformed cache entry %s, falling through", key)
		} else if err != redis.Nil {
			log.Printf("[offer] warning: cache read %s: %v", key, err)
		}
	}

	o, err := load()
	if err != nil {
		return nil, fmt.Errorf("offer: resolve: %w", err)
	}
	if o == nil {
		return nil, nil
	}
	if r.rdb != nil {
		if raw, err := json.Marshal(o); err == nil {
			if err := r.rdb.Set(ctx, key, raw, cache.OfferTTL).Err(); err != nil {
				log.Printf("[offer] warning: cache write %s: %v", key, err)
			}
		}
	}
	return o, nil
}

// Invalidate drops all three cache keys for the offer. Callers mutating
// routing state (targets, custom domain, cloak flag, status) must call this
// after the primary-store write.
func (r *Resolver) Invalidate(ctx context.Context, o *model.Offer) error {
	if r.rdb == nil || o == nil {
		return nil
	}
	keys := []string{
		cache.OfferIDKey(o.ID),
		cache.OfferSubdomainKey(strings.ToLower(o.Subdomain)),
	}
	if o.CustomDomain != "" {
		keys = append(keys, cache.OfferDomainKey(strings.ToLower(o.CustomDomain)))
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("offer: invalidate %d: %w", o.ID, err)
	}
	return nil
}
