package geoip

import (
	"testing"

	"github.com/autoguard/autoguard/internal/model"
)

func TestInferConnectionType(t *testing.T) {
	tests := []struct {
		name string
		org  string
		want model.ConnectionType
	}{
		{name: "mobile_carrier", org: "T-Mobile USA", want: model.ConnMobile},
		{name: "wireless", org: "Verizon Wireless", want: model.ConnMobile},
		{name: "cloud", org: "Amazon AWS", want: model.ConnDatacenter},
		{name: "hosting", org: "Hetzner Online Hosting", want: model.ConnDatacenter},
		{name: "residential_cable", org: "Comcast Cable Communications", want: model.ConnResidential},
		{name: "residential_telecom", org: "Deutsche Telekom AG", want: model.ConnResidential},
		{name: "mobile_beats_datacenter", org: "Mobile Cloud Services", want: model.ConnMobile},
		{name: "unknown", org: "Example Org", want: model.ConnUnknown},
		{name: "empty", org: "", want: model.ConnUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferConnectionType(tt.org); got != tt.want {
				t.Fatalf("InferConnectionType(%q) = %q, want %q", tt.org, got, tt.want)
			}
		})
	}
}
