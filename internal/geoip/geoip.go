// Package geoip implements the IP intelligence service: MaxMind database
// lookups behind a two-tier (in-process + shared) cache.
package geoip

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/netip"
	"sync"

	"github.com/maypok86/otter"
	"github.com/oschwald/maxminddb-golang"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/model"
)

const localCacheEntries = 10_000

// ServiceConfig configures the IP intelligence service. Any database path
// may be empty or point at a missing file; the corresponding fields then
// stay unknown for the process lifetime (or until a reload finds the file).
type ServiceConfig struct {
	CityDBPath     string
	ASNDBPath      string
	AnonDBPath     string
	ReloadSchedule string // cron expression; empty disables scheduled reloads
	Redis          *redis.Client
}

// Service answers Lookup(ip) → IPIntelligence deterministically and fast.
// Readers are hot-swappable behind an RWMutex so a scheduled reload never
// blocks in-flight lookups.
type Service struct {
	mu   sync.RWMutex
	city *maxminddb.Reader
	asn  *maxminddb.Reader
	anon *maxminddb.Reader

	cityPath string
	asnPath  string
	anonPath string

	local otter.Cache[string, model.IPIntelligence]
	rdb   *redis.Client

	cron        *cron.Cron
	cronEntryID cron.EntryID
}

// NewService opens the configured databases (logging a warning for each one
// that is absent) and builds the two cache tiers. It never fails on a
// missing database file.
func NewService(cfg ServiceConfig) (*Service, error) {
	local, err := otter.MustBuilder[string, model.IPIntelligence](localCacheEntries).
		Cost(func(_ string, _ model.IPIntelligence) uint32 { return 1 }).
		WithTTL(cache.GeoIPTTL).
		Build()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cityPath: cfg.CityDBPath,
		asnPath:  cfg.ASNDBPath,
		anonPath: cfg.AnonDBPath,
		local:    local,
		rdb:      cfg.Redis,
		cron:     cron.New(),
	}
	s.reloadReaders()

	if cfg.ReloadSchedule != "" {
		entryID, err := s.cron.AddFunc(cfg.ReloadSchedule, s.reloadReaders)
		if err != nil {
			log.Printf("[geoip] invalid reload schedule %q: %v", cfg.ReloadSchedule, err)
		} else {
			s.cronEntryID = entryID
			s.cron.Start()
		}
	}
	return s, nil
}

// Stop stops the reload scheduler and closes the readers.
func (s *Service) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range []*maxminddb.Reader{s.city, s.asn, s.anon} {
		if r != nil {
			r.Close()
		}
	}
	s.city, s.asn, s.anon = nil, nil, nil
}

// Status reports which databases are currently loaded.
type Status struct {
	CityLoaded bool `json:"city_loaded"`
	ASNLoaded  bool `json:"asn_loaded"`
	AnonLoaded bool `json:"anon_loaded"`
}

// Status returns the current reader availability.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{CityLoaded: s.city != nil, ASNLoaded: s.asn != nil, AnonLoaded: s.anon != nil}
}

// reloadReaders reopens every configured database and swaps the readers in
// place. A database that fails to open leaves the previous reader active.
func (s *Service) reloadReaders() {
	open := func(path, name string, old *maxminddb.Reader) *maxminddb.Reader {
		if path == "" {
			return old
		}
		r, err := maxminddb.Open(path)
		if err != nil {
			if old == nil {
				log.Printf("[geoip] warning: %s database unavailable at %s: %v", name, path, err)
			} else {
				log.Printf("[geoip] warning: %s database reload failed, keeping previous reader: %v", name, err)
			}
			return old
		}
		return r
	}

	s.mu.Lock()
	oldCity, oldASN, oldAnon := s.city, s.asn, s.anon
	s.city = open(s.cityPath, "city", oldCity)
	s.asn = open(s.asnPath, "asn", oldASN)
	s.anon = open(s.anonPath, "anonymous-ip", oldAnon)
	newCity, newASN, newAnon := s.city, s.asn, s.anon
	s.mu.Unlock()

	// Close replaced readers. Safe: RLock holders on the old readers have
	// released by the time Unlock returns new readers to lookups.
	if oldCity != nil && oldCity != newCity {
		oldCity.Close()
	}
	if oldASN != nil && oldASN != newASN {
		oldASN.Close()
	}
	if oldAnon != nil && oldAnon != newAnon {
		oldAnon.Close()
	}
}

// Lookup resolves ip through the two-tier cache and, on miss, the on-disk
// databases. It never returns an error: every failure degrades to partial
// or unknown fields. Cancellation is honored between tiers.
func (s *Service) Lookup(ctx context.Context, ip netip.Addr) model.IPIntelligence {
	ip = ip.Unmap()
	key := ip.String()

	if intel, ok := s.local.Get(key); ok {
		return intel
	}

	if s.rdb != nil && ctx.Err() == nil {
		raw, err := s.rdb.Get(ctx, cache.GeoIPKey(key)).Bytes()
		if err == nil {
			var intel model.IPIntelligence
			if jsonErr := json.Unmarshal(raw, &intel); jsonErr == nil {
				s.local.Set(key, intel)
				return intel
			}
		} else if err != redis.Nil && ctx.Err() == nil {
			log.Printf("[geoip] warning: shared cache read failed for %s: %v", key, err)
		}
	}

	intel := s.resolve(ctx, ip)

	// Write-back; cache write errors are ignored.
	s.local.Set(key, intel)
	if s.rdb != nil && ctx.Err() == nil {
		if raw, err := json.Marshal(intel); err == nil {
			s.rdb.Set(ctx, cache.GeoIPKey(key), raw, cache.GeoIPTTL)
		}
	}
	return intel
}

type cityRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"subdivisions"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
		TimeZone  string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
}

type asnRecord struct {
	Number       uint   `maxminddb:"autonomous_system_number"`
	Organization string `maxminddb:"autonomous_system_organization"`
}

type anonRecord struct {
	IsAnonymous       bool `maxminddb:"is_anonymous"`
	IsAnonymousVPN    bool `maxminddb:"is_anonymous_vpn"`
	IsPublicProxy     bool `maxminddb:"is_public_proxy"`
	IsTorExitNode     bool `maxminddb:"is_tor_exit_node"`
	IsHostingProvider bool `maxminddb:"is_hosting_provider"`
}

// resolve reads the databases directly. Single-database read errors are
// logged and produce partial results; the call itself never fails.
func (s *Service) resolve(ctx context.Context, ip netip.Addr) model.IPIntelligence {
	intel := model.IPIntelligence{IP: ip.String(), ConnectionType: model.ConnUnknown}
	if ctx.Err() != nil {
		return intel
	}
	netIP := net.IP(ip.AsSlice())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.city != nil {
		var rec cityRecord
		if err := s.city.Lookup(netIP, &rec); err != nil {
			log.Printf("[geoip] warning: city lookup %s: %v", ip, err)
		} else {
			if rec.Country.ISOCode != "" {
				intel.Country = strPtr(rec.Country.ISOCode)
			}
			if len(rec.Subdivisions) > 0 && rec.Subdivisions[0].ISOCode != "" {
				intel.Region = strPtr(rec.Subdivisions[0].ISOCode)
			}
			if name := rec.City.Names["en"]; name != "" {
				intel.City = strPtr(name)
			}
			if rec.Location.TimeZone != "" {
				intel.Timezone = strPtr(rec.Location.TimeZone)
			}
			if rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
				lat, lon := rec.Location.Latitude, rec.Location.Longitude
				intel.Latitude, intel.Longitude = &lat, &lon
			}
		}
	}

	if s.asn != nil {
		var rec asnRecord
		if err := s.asn.Lookup(netIP, &rec); err != nil {
			log.Printf("[geoip] warning: asn lookup %s: %v", ip, err)
		} else if rec.Number != 0 {
			n := rec.Number
			intel.ASN = &n
			if rec.Organization != "" {
				intel.Organization = strPtr(rec.Organization)
			}
			applyConnectionType(&intel, InferConnectionType(rec.Organization))
		}
	}

	if s.anon != nil {
		var rec anonRecord
		if err := s.anon.Lookup(netIP, &rec); err != nil {
			log.Printf("[geoip] warning: anonymous-ip lookup %s: %v", ip, err)
		} else if rec.IsAnonymous || rec.IsAnonymousVPN || rec.IsPublicProxy || rec.IsTorExitNode || rec.IsHostingProvider {
			// A positive anonymity signal overrides keyword inference.
			intel.IsVPN = rec.IsAnonymousVPN
			intel.IsProxy = rec.IsPublicProxy
			intel.IsTor = rec.IsTorExitNode
			intel.IsHosting = rec.IsHostingProvider
			if rec.IsHostingProvider {
				intel.IsDatacenter = true
				intel.ConnectionType = model.ConnDatacenter
			}
			intel.IsResidential = false
		}
	}

	return intel
}

func applyConnectionType(intel *model.IPIntelligence, ct model.ConnectionType) {
	intel.ConnectionType = ct
	switch ct {
	case model.ConnDatacenter:
		intel.IsDatacenter = true
		intel.IsHosting = true
	case model.ConnResidential:
		intel.IsResidential = true
	}
}

func strPtr(s string) *string { return &s }
