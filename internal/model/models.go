// Package model defines domain structs shared across the gateway, the
// detection pipeline and the persistence layer.
package model

import (
	"encoding/json"
	"time"
)

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	OfferDraft  OfferStatus = "draft"
	OfferActive OfferStatus = "active"
	OfferPaused OfferStatus = "paused"
)

// DomainStatus is the custom-domain lifecycle state of an offer.
type DomainStatus string

const (
	DomainNone     DomainStatus = "none"
	DomainPending  DomainStatus = "pending"
	DomainVerified DomainStatus = "verified"
	DomainFailed   DomainStatus = "failed"
)

// Variant identifies one of the two static page variants of an offer.
type Variant string

const (
	VariantMoney Variant = "a"
	VariantSafe  Variant = "b"
)

// IsValid reports whether v is one of the two known variants.
func (v Variant) IsValid() bool { return v == VariantMoney || v == VariantSafe }

// Offer is a tenant-owned landing configuration. The subdomain is immutable
// after creation; a verified custom domain resolves to at most one
// non-deleted offer.
type Offer struct {
	ID              int64        `json:"id"`
	TenantID        int64        `json:"tenant_id"`
	Subdomain       string       `json:"subdomain"`
	CustomDomain    string       `json:"custom_domain,omitempty"`
	DomainStatus    DomainStatus `json:"domain_status"`
	CloakEnabled    bool         `json:"cloak_enabled"`
	TargetCountries []string     `json:"target_countries"`
	Status          OfferStatus  `json:"status"`
	Deleted         bool         `json:"deleted"`
	CreatedAtNs     int64        `json:"created_at_ns"`
	UpdatedAtNs     int64        `json:"updated_at_ns"`
}

// Servable reports whether the offer may serve any variant at all.
// An inactive or soft-deleted offer must never serve the Money variant,
// and we do not serve Safe for it either: the gateway answers 404.
func (o *Offer) Servable() bool {
	return o != nil && !o.Deleted && o.Status == OfferActive
}

// ConnectionType classifies the access network of an IP address.
type ConnectionType string

const (
	ConnResidential ConnectionType = "residential"
	ConnBusiness    ConnectionType = "business"
	ConnDatacenter  ConnectionType = "datacenter"
	ConnMobile      ConnectionType = "mobile"
	ConnUnknown     ConnectionType = "unknown"
)

// IPIntelligence is the best-effort result of a GeoIP lookup. Pointer fields
// distinguish "database had no answer" (nil) from a negative result.
type IPIntelligence struct {
	IP        string   `json:"ip"`
	Country   *string  `json:"country"`
	Region    *string  `json:"region"`
	City      *string  `json:"city"`
	Timezone  *string  `json:"timezone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	ASN          *uint   `json:"asn"`
	Organization *string `json:"organization"`

	IsDatacenter  bool `json:"is_datacenter"`
	IsVPN         bool `json:"is_vpn"`
	IsProxy       bool `json:"is_proxy"`
	IsTor         bool `json:"is_tor"`
	IsResidential bool `json:"is_residential"`
	IsHosting     bool `json:"is_hosting"`

	ConnectionType ConnectionType `json:"connection_type"`
}

// Decision is the outcome of the cloak decision engine.
type Decision string

const (
	DecisionMoney Decision = "money"
	DecisionSafe  Decision = "safe"
)

// Layer names a detection layer that produced a hard block, or TIMEOUT when
// the decision deadline elapsed before the pipeline completed.
type Layer string

const (
	LayerL1      Layer = "L1"
	LayerL2      Layer = "L2"
	LayerL3      Layer = "L3"
	LayerL4      Layer = "L4"
	LayerL5      Layer = "L5"
	LayerTimeout Layer = "TIMEOUT"
)

// CloakDecision is the per-request record emitted by the decision engine.
// It is never mutated after creation.
type CloakDecision struct {
	Decision     Decision
	Score        int
	BlockedAt    Layer // empty when no hard block fired
	Reason       string
	Evidence     map[string]any // per-layer evidence keyed by layer name
	Intel        IPIntelligence // zero value when the pipeline never resolved it
	ProcessingMs int64

	OfferID  int64
	TenantID int64

	// Request fingerprint.
	IP        string
	UserAgent string
	Referer   string
	URL       string
	Host      string

	CreatedAt time.Time
}

// PageStatus is the generation state of a static page variant.
type PageStatus string

const (
	PagePending    PageStatus = "pending"
	PageGenerating PageStatus = "generating"
	PageGenerated  PageStatus = "generated"
	PageFailed     PageStatus = "failed"
)

// Page is one static variant (a or b) of an offer landing page.
type Page struct {
	ID          int64      `json:"id"`
	OfferID     int64      `json:"offer_id"`
	Variant     Variant    `json:"variant"`
	Status      PageStatus `json:"status"`
	LastError   string     `json:"last_error"`
	UpdatedAtNs int64      `json:"updated_at_ns"`
}

// JobAction selects the page-generation strategy.
type JobAction string

const (
	ActionScrape     JobAction = "scrape"
	ActionAIGenerate JobAction = "ai_generate"
)

// PageGenerationJob is the payload carried on the durable job queue.
// Job identity for dedup purposes is (PageID, Variant); a newer enqueue for
// the same identity supersedes earlier in-flight work (last writer wins).
type PageGenerationJob struct {
	JobID         string    `json:"job_id"`
	PageID        int64     `json:"page_id"`
	OfferID       int64     `json:"offer_id"`
	Variant       Variant   `json:"variant"`
	Action        JobAction `json:"action"`
	SourceURL     string    `json:"source_url"`
	Subdomain     string    `json:"subdomain"`
	SafePageStyle string    `json:"safe_page_style,omitempty"`
	Competitors   []string  `json:"competitors,omitempty"`
	Attempt       int       `json:"attempt"`
}

// CloakLogRecord is the wire format pushed to the shared log queue and
// persisted by the log pipeline. All fields are snake_case and present
// (nullable where the pointer type allows).
type CloakLogRecord struct {
	UserID            int64           `json:"user_id"`
	OfferID           int64           `json:"offer_id"`
	IPAddress         string          `json:"ip_address"`
	UserAgent         string          `json:"user_agent"`
	Referer           *string         `json:"referer"`
	RequestURL        string          `json:"request_url"`
	Decision          Decision        `json:"decision"`
	DecisionReason    *string         `json:"decision_reason"`
	FraudScore        int             `json:"fraud_score"`
	BlockedAtLayer    *string         `json:"blocked_at_layer"`
	DetectionDetails  json.RawMessage `json:"detection_details"`
	IPCountry         *string         `json:"ip_country"`
	IPCity            *string         `json:"ip_city"`
	IPISP             *string         `json:"ip_isp"`
	IPASN             *int64          `json:"ip_asn"`
	IsDatacenter      int             `json:"is_datacenter"`
	IsVPN             int             `json:"is_vpn"`
	IsProxy           int             `json:"is_proxy"`
	ProcessingTimeMs  int64           `json:"processing_time_ms"`
	HasTrackingParams int             `json:"has_tracking_params"`
	GCLID             *string         `json:"gclid"`
	CreatedAt         string          `json:"created_at"` // ISO-8601
}
