package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/blacklist"
	"github.com/autoguard/autoguard/internal/buildinfo"
	"github.com/autoguard/autoguard/internal/geoip"
	"github.com/autoguard/autoguard/internal/jobs"
	"github.com/autoguard/autoguard/internal/logpipe"
	"github.com/autoguard/autoguard/internal/model"
	"github.com/autoguard/autoguard/internal/offer"
	"github.com/autoguard/autoguard/internal/store"
)

// HandleHealthz reports liveness. Public, unauthenticated.
func HandleHealthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": buildinfo.Version,
		})
	})
}

// StatusDeps carries the read-only views the status endpoint reports on.
// Any field may be nil; the corresponding section is then omitted.
type StatusDeps struct {
	GeoIP  *geoip.Service
	Writer *logpipe.Writer
	Redis  *redis.Client
	Logs   *store.CloakLogRepo
}

// HandleStatus reports queue depths, pipeline counters and GeoIP reader
// availability.
func HandleStatus(deps StatusDeps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{
			"version": buildinfo.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		}
		if deps.GeoIP != nil {
			out["geoip"] = deps.GeoIP.Status()
		}
		if deps.Writer != nil {
			out["log_writer"] = deps.Writer.Stats()
		}
		if deps.Redis != nil {
			depths, err := jobs.Depths(r.Context(), deps.Redis)
			if err != nil {
				log.Printf("[api] warning: queue depths: %v", err)
			} else {
				out["job_queues"] = depths
			}
		}
		if deps.Logs != nil {
			if n, err := deps.Logs.Count(); err == nil {
				out["cloak_logs_total"] = n
			}
		}
		WriteJSON(w, http.StatusOK, out)
	})
}

// HandleGeoIPLookup resolves one IP through the intelligence service.
func HandleGeoIPLookup(svc *geoip.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("ip")
		if raw == "" {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "missing ip query parameter")
			return
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid ip address")
			return
		}
		WriteJSON(w, http.StatusOK, svc.Lookup(r.Context(), addr))
	})
}

// HandleBlacklistRebuild triggers a full cache rebuild.
func HandleBlacklistRebuild(rb *blacklist.Rebuilder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := rb.Rebuild(r.Context()); err != nil {
			log.Printf("[api] blacklist rebuild failed: %v", err)
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "rebuild failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
	})
}

type regenerateRequest struct {
	Action        model.JobAction `json:"action"`
	SourceURL     string          `json:"source_url"`
	SafePageStyle string          `json:"safe_page_style"`
}

// HandleRegeneratePage resets a page to pending and enqueues a generation
// job for it. Concurrent regenerations of the same page are last writer
// wins at the page-row level.
func HandleRegeneratePage(pages *store.PageRepo, resolver *offer.Resolver, enq *jobs.Enqueuer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid page id")
			return
		}

		var req regenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
			return
		}
		if req.Action == "" {
			req.Action = model.ActionAIGenerate
		}
		if req.Action != model.ActionScrape && req.Action != model.ActionAIGenerate {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown action")
			return
		}
		if req.Action == model.ActionScrape && req.SourceURL == "" {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "scrape requires source_url")
			return
		}

		page, err := pages.Get(r.Context(), id)
		if err != nil {
			log.Printf("[api] page %d read: %v", id, err)
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "page read failed")
			return
		}
		if page == nil {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "page not found")
			return
		}
		o, err := resolver.ByID(r.Context(), page.OfferID)
		if err != nil || o == nil {
			log.Printf("[api] page %d offer %d read: %v", id, page.OfferID, err)
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "offer read failed")
			return
		}

		raw, err := jobs.EncodeJob(model.PageGenerationJob{
			JobID:         uuid.NewString(),
			PageID:        page.ID,
			OfferID:       o.ID,
			Variant:       page.Variant,
			Action:        req.Action,
			SourceURL:     req.SourceURL,
			Subdomain:     o.Subdomain,
			SafePageStyle: req.SafePageStyle,
		})
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "encode job failed")
			return
		}
		if err := pages.SetStatus(r.Context(), page.ID, model.PagePending, ""); err != nil {
			log.Printf("[api] page %d status reset: %v", id, err)
		}
		if err := enq.Enqueue(r.Context(), raw); err != nil {
			log.Printf("[api] page %d enqueue: %v", id, err)
			WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "enqueue failed")
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]any{
			"page_id": page.ID,
			"variant": page.Variant,
			"status":  string(model.PagePending),
		})
	})
}
