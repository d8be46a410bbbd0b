package geoip

import (
	"strings"

	"github.com/autoguard/autoguard/internal/model"
)

// Fixed keyword table for inferring the connection type from an ASN
// organization name. Checked in order: mobile, datacenter, residential.
// The first category with a matching keyword wins.
var (
	mobileKeywords = []string{
		"mobile", "cellular", "wireless", "lte", "3g", "4g", "5g",
	}
	datacenterKeywords = []string{
		"amazon", "aws", "google cloud", "google llc", "microsoft", "azure",
		"digitalocean", "linode", "akamai", "ovh", "hetzner", "vultr",
		"leaseweb", "contabo", "scaleway", "oracle", "alibaba",
		"hosting", "server", "datacenter", "data center", "cloud",
		"colocation", "colo", "cdn", "vps",
	}
	residentialKeywords = []string{
		"comcast", "verizon", "at&t", "charter", "cox", "spectrum",
		"centurylink", "frontier", "telefonica", "vodafone", "orange",
		"deutsche telekom", "telecom", "telekom", "broadband", "cable",
		"dsl", "fiber", "fibre", "communications", "kabel", "sky",
	}
)

// InferConnectionType classifies an ASN organization name against the fixed
// keyword table. An empty or unrecognized name yields ConnUnknown.
func InferConnectionType(org string) model.ConnectionType {
	if org == "" {
		return model.ConnUnknown
	}
	lower := strings.ToLower(org)
	for _, kw := range mobileKeywords {
		if strings.Contains(lower, kw) {
			return model.ConnMobile
		}
	}
	for _, kw := range datacenterKeywords {
		if strings.Contains(lower, kw) {
			return model.ConnDatacenter
		}
	}
	for _, kw := range residentialKeywords {
		if strings.Contains(lower, kw) {
			return model.ConnResidential
		}
	}
	return model.ConnUnknown
}
