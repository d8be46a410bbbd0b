// Package gateway terminates visitor requests: offer resolution, decision,
// internal dispatch to a page variant, and decision logging.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/detect"
	"github.com/autoguard/autoguard/internal/model"
	"github.com/autoguard/autoguard/internal/offer"
)

var subPathRe = regexp.MustCompile(`^/c/([a-z0-9]{6})(?:/|$|\?)`)

const notFoundBody = `<!DOCTYPE html>
<html><head><title>404 Not Found</title></head>
<body><h1>404 Not Found</h1></body></html>
`

const fallbackSafeBody = `<!DOCTYPE html>
<html><head><title>Welcome</title></head>
<body><p>This page is under construction.</p></body></html>
`

// Decider is the decision-engine surface the handler needs.
type Decider interface {
	Decide(ctx context.Context, req *detect.Request, params detect.DecideParams) model.CloakDecision
}

// Handler is the catch-all visitor endpoint.
type Handler struct {
	resolver    *offer.Resolver
	engine      Decider
	rdb         *redis.Client
	pageRoot    string
	inlinePages bool
}

// NewHandler creates the gateway handler. When inlinePages is set the
// handler streams page files itself instead of emitting X-Accel-Redirect,
// for deployments without a front proxy.
func NewHandler(resolver *offer.Resolver, engine Decider, rdb *redis.Client, pageRoot string, inlinePages bool) *Handler {
	return &Handler{
		resolver:    resolver,
		engine:      engine,
		rdb:         rdb,
		pageRoot:    pageRoot,
		inlinePages: inlinePages,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var subdomain string
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[gateway] panic serving %s: %v", r.URL.Path, rec)
			// Fail toward the safe variant when the offer is known, 404
			// otherwise. Headers may already be written; best effort.
			if subdomain != "" {
				h.dispatch(w, subdomain, model.VariantSafe)
			} else {
				writeNotFound(w)
			}
		}
	}()

	o, err := h.resolveOffer(r)
	if err != nil {
		log.Printf("[gateway] resolution error for %s: %v", r.Host, err)
	}
	if o == nil || !o.Servable() {
		writeNotFound(w)
		return
	}
	subdomain = o.Subdomain

	addr, rawIP := ClientIP(r)
	req := &detect.Request{
		IP:        addr,
		RawIP:     rawIP,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		URL:       r.URL.RequestURI(),
		Host:      r.Host,
	}

	var decision model.CloakDecision
	if !o.CloakEnabled {
		// No pipeline run at all; every visitor sees the safe variant.
		decision = model.CloakDecision{
			Decision:  model.DecisionSafe,
			Score:     0,
			Reason:    "cloak disabled",
			Evidence:  map[string]any{},
			OfferID:   o.ID,
			TenantID:  o.TenantID,
			IP:        req.RawIP,
			UserAgent: req.UserAgent,
			Referer:   req.Referer,
			URL:       req.URL,
			Host:      req.Host,
			CreatedAt: time.Now().UTC(),
		}
	} else {
		decision = h.engine.Decide(r.Context(), req, detect.DecideParams{
			OfferID:         o.ID,
			TenantID:        o.TenantID,
			TargetCountries: o.TargetCountries,
		})
	}

	variant := model.VariantSafe
	if decision.Decision == model.DecisionMoney {
		variant = model.VariantMoney
	}
	h.dispatch(w, o.Subdomain, variant)
	h.enqueueLog(decision)
}

// resolveOffer applies the resolution priority: X-Subdomain header, /c/ path
// prefix, X-Custom-Domain header. Custom domains only resolve in the
// verified state (enforced by the store query).
func (h *Handler) resolveOffer(r *http.Request) (*model.Offer, error) {
	ctx := r.Context()

	if s := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Subdomain"))); s != "" {
		return h.resolver.BySubdomain(ctx, s)
	}
	if m := subPathRe.FindStringSubmatch(r.URL.RequestURI()); m != nil {
		return h.resolver.BySubdomain(ctx, m[1])
	}
	if d := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Custom-Domain"))); d != "" {
		return h.resolver.ByDomain(ctx, d)
	}
	return nil, nil
}

// dispatch serves the chosen variant. The visitor never sees a 3xx: either
// the front proxy follows X-Accel-Redirect internally, or the file contents
// are streamed inline.
func (h *Handler) dispatch(w http.ResponseWriter, subdomain string, variant model.Variant) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if !h.inlinePages {
		w.Header().Set("X-Accel-Redirect", internalPagePath(subdomain, variant))
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		return
	}

	path := filepath.Join(h.pageRoot, subdomain, string(variant), "index.html")
	f, err := os.Open(path)
	if err != nil {
		log.Printf("[gateway] warning: page file %s: %v", path, err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, fallbackSafeBody)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("[gateway] warning: stream %s: %v", path, err)
	}
}

func internalPagePath(subdomain string, variant model.Variant) string {
	return fmt.Sprintf("/internal/pages/%s/%s/index.html", subdomain, variant)
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, notFoundBody)
}

// enqueueLog pushes the decision record onto the shared log queue. This runs
// after the response; an enqueue failure loses the record so the hot path
// never blocks on cache availability.
func (h *Handler) enqueueLog(d model.CloakDecision) {
	if h.rdb == nil {
		return
	}
	raw, err := json.Marshal(BuildLogRecord(d))
	if err != nil {
		log.Printf("[gateway] warning: encode log record: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.rdb.LPush(ctx, cache.LogQueue, raw).Err(); err != nil {
		log.Printf("[gateway] warning: enqueue log record: %v", err)
	}
}

// BuildLogRecord converts an in-process decision to the queue wire format.
func BuildLogRecord(d model.CloakDecision) model.CloakLogRecord {
	details, err := json.Marshal(d.Evidence)
	if err != nil {
		details = []byte("{}")
	}
	params := detect.ExtractTrackingParams(d.URL)

	rec := model.CloakLogRecord{
		UserID:            d.TenantID,
		OfferID:           d.OfferID,
		IPAddress:         d.IP,
		UserAgent:         d.UserAgent,
		RequestURL:        d.URL,
		Decision:          d.Decision,
		FraudScore:        d.Score,
		DetectionDetails:  details,
		IsDatacenter:      boolBit(d.Intel.IsDatacenter),
		IsVPN:             boolBit(d.Intel.IsVPN),
		IsProxy:           boolBit(d.Intel.IsProxy),
		ProcessingTimeMs:  d.ProcessingMs,
		HasTrackingParams: boolBit(len(params) > 0),
		CreatedAt:         d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.Referer != "" {
		rec.Referer = &d.Referer
	}
	if d.Reason != "" {
		reason := d.Reason
		rec.DecisionReason = &reason
	}
	if d.BlockedAt != "" {
		layer := string(d.BlockedAt)
		rec.BlockedAtLayer = &layer
	}
	rec.IPCountry = d.Intel.Country
	rec.IPCity = d.Intel.City
	rec.IPISP = d.Intel.Organization
	if d.Intel.ASN != nil {
		asn := int64(*d.Intel.ASN)
		rec.IPASN = &asn
	}
	if g, ok := params["gclid"]; ok {
		rec.GCLID = &g
	}
	return rec
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
