package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/autoguard/autoguard/internal/model"
)

var subdomainRe = regexp.MustCompile(`^[a-z0-9]{6}$`)

// ErrInvalidSubdomain is returned when an offer subdomain is not exactly six
// lowercase alphanumeric characters.
var ErrInvalidSubdomain = errors.New("store: subdomain must be exactly six lowercase alphanumeric characters")

// OfferRepo provides read/write access to the offers table.
type OfferRepo struct {
	db *sql.DB
}

// NewOfferRepo creates an OfferRepo over the given database handle.
func NewOfferRepo(db *sql.DB) *OfferRepo {
	return &OfferRepo{db: db}
}

const offerColumns = `id, tenant_id, subdomain, custom_domain, domain_status, cloak_enabled, target_countries, status, deleted, created_at_ns, updated_at_ns`

// Create inserts a new offer and returns it with its assigned id.
// The subdomain is validated here; it is immutable after creation
// (no update method touches it).
func (r *OfferRepo) Create(ctx context.Context, o model.Offer) (*model.Offer, error) {
	if !subdomainRe.MatchString(o.Subdomain) {
		return nil, ErrInvalidSubdomain
	}
	if o.Status == "" {
		o.Status = model.OfferDraft
	}
	if o.DomainStatus == "" {
		o.DomainStatus = model.DomainNone
	}
	targets, err := json.Marshal(o.TargetCountries)
	if err != nil {
		return nil, fmt.Errorf("store: marshal target countries: %w", err)
	}
	now := time.Now().UnixNano()
	o.CreatedAtNs = now
	o.UpdatedAtNs = now

	var customDomain any
	if o.CustomDomain != "" {
		customDomain = o.CustomDomain
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO offers
		(tenant_id, subdomain, custom_domain, domain_status, cloak_enabled, target_countries, status, deleted, created_at_ns, updated_at_ns)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.TenantID, o.Subdomain, customDomain, string(o.DomainStatus),
		boolToInt(o.CloakEnabled), string(targets), string(o.Status),
		boolToInt(o.Deleted), o.CreatedAtNs, o.UpdatedAtNs,
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert offer: %w", err)
	}
	o.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: offer last insert id: %w", err)
	}
	return &o, nil
}

// GetByID returns the offer with the given id, or nil when absent.
func (r *OfferRepo) GetByID(ctx context.Context, id int64) (*model.Offer, error) {
	return r.getOne(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ?`, id)
}

// GetBySubdomain returns the non-deleted offer owning the subdomain, or nil.
func (r *OfferRepo) GetBySubdomain(ctx context.Context, subdomain string) (*model.Offer, error) {
	return r.getOne(ctx, `SELECT `+offerColumns+` FROM offers WHERE subdomain = ? AND deleted = 0`, subdomain)
}

// GetByDomain returns the non-deleted offer whose verified custom domain
// matches, or nil. Only the verified lifecycle state resolves.
func (r *OfferRepo) GetByDomain(ctx context.Context, domain string) (*model.Offer, error) {
	return r.getOne(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE custom_domain = ? AND domain_status = 'verified' AND deleted = 0`,
		domain)
}

// UpdateRouting persists the routing-affecting fields of an offer: target
// countries, custom-domain state, cloak flag and lifecycle status. Callers
// are responsible for invalidating the resolver cache afterwards.
func (r *OfferRepo) UpdateRouting(ctx context.Context, o *model.Offer) error {
	targets, err := json.Marshal(o.TargetCountries)
	if err != nil {
		return fmt.Errorf("store: marshal target countries: %w", err)
	}
	var customDomain any
	if o.CustomDomain != "" {
		customDomain = o.CustomDomain
	}
	o.UpdatedAtNs = time.Now().UnixNano()
	_, err = r.db.ExecContext(ctx, `UPDATE offers SET
		custom_domain = ?, domain_status = ?, cloak_enabled = ?,
		target_countries = ?, status = ?, deleted = ?, updated_at_ns = ?
		WHERE id = ?`,
		customDomain, string(o.DomainStatus), boolToInt(o.CloakEnabled),
		string(targets), string(o.Status), boolToInt(o.Deleted), o.UpdatedAtNs, o.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update offer %d: %w", o.ID, err)
	}
	return nil
}

func (r *OfferRepo) getOne(ctx context.Context, query string, arg any) (*model.Offer, error) {
	row := r.db.QueryRowContext(ctx, query, arg)

	var o model.Offer
	var customDomain sql.NullString
	var domainStatus, status, targets string
	var cloakEnabled, deleted int
	err := row.Scan(
		&o.ID, &o.TenantID, &o.Subdomain, &customDomain, &domainStatus,
		&cloakEnabled, &targets, &status, &deleted, &o.CreatedAtNs, &o.UpdatedAtNs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan offer: %w", err)
	}
	o.CustomDomain = customDomain.String
	o.DomainStatus = model.DomainStatus(domainStatus)
	o.Status = model.OfferStatus(status)
	o.CloakEnabled = cloakEnabled != 0
	o.Deleted = deleted != 0
	if err := json.Unmarshal([]byte(targets), &o.TargetCountries); err != nil {
		return nil, fmt.Errorf("store: offer %d target countries: %w", o.ID, err)
	}
	return &o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
