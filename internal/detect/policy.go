package detect

import (
	_ "embed"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/autoguard/autoguard/internal/model"
)

//go:embed defaults.yaml
var defaultListsYAML []byte

// Lists holds the built-in detection lists shipped with the binary.
type Lists struct {
	KnownBotKeywords         []string       `yaml:"known_bot_keywords"`
	CrawlerTerms             []string       `yaml:"crawler_terms"`
	AutomationTerms          []string       `yaml:"automation_terms"`
	SuspiciousUAPatterns     []string       `yaml:"suspicious_ua_patterns"`
	OutdatedBrowsers         map[string]int `yaml:"outdated_browsers"`
	HighRiskCountries        []string       `yaml:"high_risk_countries"`
	DatacenterASNs           []uint         `yaml:"datacenter_asns"`
	SuspiciousRefererDomains []string       `yaml:"suspicious_referer_domains"`

	suspiciousRe   []*regexp.Regexp
	highRiskSet    map[string]struct{}
	datacenterASNs map[uint]struct{}
	refererSet     map[string]struct{}
}

var (
	defaultListsOnce sync.Once
	defaultLists     *Lists
)

// DefaultLists parses the embedded lists once and returns them.
// The embedded file is part of the binary, so a parse error is a build
// defect and panics.
func DefaultLists() *Lists {
	defaultListsOnce.Do(func() {
		l, err := parseLists(defaultListsYAML)
		if err != nil {
			panic(fmt.Sprintf("detect: embedded defaults: %v", err))
		}
		defaultLists = l
	})
	return defaultLists
}

func parseLists(raw []byte) (*Lists, error) {
	var l Lists
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	for _, p := range l.SuspiciousUAPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Printf("[detect] warning: skip suspicious-ua pattern %q: %v", p, err)
			continue
		}
		l.suspiciousRe = append(l.suspiciousRe, re)
	}
	l.highRiskSet = make(map[string]struct{}, len(l.HighRiskCountries))
	for _, c := range l.HighRiskCountries {
		l.highRiskSet[strings.ToUpper(c)] = struct{}{}
	}
	l.datacenterASNs = make(map[uint]struct{}, len(l.DatacenterASNs))
	for _, a := range l.DatacenterASNs {
		l.datacenterASNs[a] = struct{}{}
	}
	l.refererSet = make(map[string]struct{}, len(l.SuspiciousRefererDomains))
	for _, d := range l.SuspiciousRefererDomains {
		l.refererSet[strings.ToLower(d)] = struct{}{}
	}
	return &l, nil
}

// IsHighRiskCountry reports whether the ISO country code is in the built-in
// high-risk set.
func (l *Lists) IsHighRiskCountry(country string) bool {
	_, ok := l.highRiskSet[strings.ToUpper(country)]
	return ok
}

// IsDatacenterASN reports whether the ASN is a known cloud or hosting ASN.
func (l *Lists) IsDatacenterASN(asn uint) bool {
	_, ok := l.datacenterASNs[asn]
	return ok
}

// IsSuspiciousRefererDomain reports whether the registrable domain is a
// known ad-spy or review tool.
func (l *Lists) IsSuspiciousRefererDomain(domain string) bool {
	_, ok := l.refererSet[strings.ToLower(domain)]
	return ok
}

// Policy tunes the pipeline for one offer. Lists are process-global; weights
// and toggles may differ per offer in the future, today every offer uses the
// defaults.
type Policy struct {
	Weights       map[model.Layer]int
	SafeThreshold int

	BlockKnownBots bool
	RequireReferer bool

	DatacenterDeduct int
	VPNDeduct        int
	ProxyDeduct      int
	TorDeduct        int
	KnownASNDeduct   int
	ResidentialBonus int

	Lists *Lists
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Weights: map[model.Layer]int{
			model.LayerL1: 20,
			model.LayerL2: 30,
			model.LayerL3: 15,
			model.LayerL4: 25,
			model.LayerL5: 10,
		},
		SafeThreshold:    60,
		BlockKnownBots:   true,
		RequireReferer:   false,
		DatacenterDeduct: 40,
		VPNDeduct:        30,
		ProxyDeduct:      30,
		TorDeduct:        50,
		KnownASNDeduct:   20,
		ResidentialBonus: 10,
		Lists:            DefaultLists(),
	}
}
