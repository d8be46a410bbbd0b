package detect

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"log"
	"math"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/autoguard/autoguard/internal/model"
)

// Engine runs the layer pipeline under a hard deadline and folds the layer
// scores into one decision. Fail-closed: timeouts, panics and hard blocks
// all produce Safe.
type Engine struct {
	intel   IntelligenceSource
	l1      Detector
	middle  []Detector // L2..L4, short-circuit on hard fail
	l5      Detector
	policy  *Policy
	timeout time.Duration
}

// NewEngine wires the five layers over the given intelligence and blacklist
// sources.
func NewEngine(intel IntelligenceSource, store BlacklistChecker, policy *Policy, timeout time.Duration) *Engine {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Engine{
		intel:   intel,
		l1:      NewStaticBlacklist(store),
		middle:  []Detector{NewIPIntelligence(), NewGeography(store), NewUserAgent()},
		l5:      NewRefererTracking(),
		policy:  policy,
		timeout: timeout,
	}
}

// DecideParams identifies the offer a decision is made for.
type DecideParams struct {
	OfferID         int64
	TenantID        int64
	TargetCountries []string
}

// Decide races the pipeline against the deadline. The returned decision is
// always usable; there is no error path.
func (e *Engine) Decide(ctx context.Context, req *Request, params DecideParams) model.CloakDecision {
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan model.CloakDecision, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[detect] detector panic for offer %d: %v", params.OfferID, r)
				done <- e.verdict(req, params, model.CloakDecision{
					Decision: model.DecisionSafe,
					Score:    0,
					Reason:   "internal",
				}, start)
			}
		}()
		done <- e.verdict(req, params, e.run(dctx, req, params), start)
	}()

	select {
	case d := <-done:
		return d
	case <-dctx.Done():
		return e.verdict(req, params, model.CloakDecision{
			Decision:  model.DecisionSafe,
			Score:     0,
			BlockedAt: model.LayerTimeout,
			Reason:    "deadline",
			Evidence:  map[string]any{"timeout_ms": e.timeout.Milliseconds()},
		}, start)
	}
}

// verdict fills the request and timing fields common to every outcome.
func (e *Engine) verdict(req *Request, params DecideParams, d model.CloakDecision, start time.Time) model.CloakDecision {
	d.OfferID = params.OfferID
	d.TenantID = params.TenantID
	d.IP = req.RawIP
	d.UserAgent = req.UserAgent
	d.Referer = req.Referer
	d.URL = req.URL
	d.Host = req.Host
	d.CreatedAt = start.UTC()
	d.ProcessingMs = time.Since(start).Milliseconds()
	if d.Evidence == nil {
		d.Evidence = map[string]any{}
	}
	d.Evidence["fingerprint"] = Fingerprint(req)
	return d
}

func (e *Engine) run(ctx context.Context, req *Request, params DecideParams) model.CloakDecision {
	dc := &Context{
		OfferID:         params.OfferID,
		TenantID:        params.TenantID,
		TargetCountries: params.TargetCountries,
		Intel:           e.intel.Lookup(ctx, req.IP),
		Policy:          e.policy,
	}

	intel := dc.Intel
	evidence := map[string]any{}
	var weightedSum, totalWeight int
	record := func(layer model.Layer, r Result) {
		evidence[string(layer)] = r.Evidence
		if w := e.policy.Weights[layer]; w > 0 {
			weightedSum += w * r.Score
			totalWeight += w
		}
	}

	r1 := e.l1.Detect(ctx, req, dc)
	record(model.LayerL1, r1)
	if !r1.Passed {
		return model.CloakDecision{
			Decision:  model.DecisionSafe,
			Score:     0,
			BlockedAt: model.LayerL1,
			Reason:    r1.Reason,
			Evidence:  evidence,
			Intel:     intel,
		}
	}

	for _, det := range e.middle {
		layer := det.Name()
		if e.policy.Weights[layer] <= 0 {
			continue
		}
		r := det.Detect(ctx, req, dc)
		record(layer, r)
		if !r.Passed && r.Score == 0 {
			return model.CloakDecision{
				Decision:  model.DecisionSafe,
				Score:     0,
				BlockedAt: layer,
				Reason:    r.Reason,
				Evidence:  evidence,
				Intel:     intel,
			}
		}
	}

	r5 := e.l5.Detect(ctx, req, dc)
	record(model.LayerL5, r5)

	score := 0
	if totalWeight > 0 {
		score = int(math.Round(float64(weightedSum) / float64(totalWeight)))
	}

	d := model.CloakDecision{Score: score, Evidence: evidence, Intel: intel}
	if score < e.policy.SafeThreshold {
		d.Decision = model.DecisionSafe
		d.Reason = "score below threshold"
	} else {
		d.Decision = model.DecisionMoney
	}
	return d
}

// Fingerprint is a stable 64-bit hash of the request identity, used to
// correlate repeated probes in the decision evidence.
func Fingerprint(req *Request) string {
	h := xxh3.New()
	h.WriteString(req.RawIP)
	h.WriteString("|")
	h.WriteString(req.UserAgent)
	h.WriteString("|")
	h.WriteString(req.URL)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return hex.EncodeToString(buf[:])
}
