package config

import "testing"

func TestIsWeakToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		weak  bool
	}{
		{name: "empty_not_weak", token: "", weak: false},
		{name: "short_common", token: "admin", weak: true},
		{name: "password_word", token: "password123", weak: true},
		{name: "long_random", token: "tr9X-qm2V-88Lk-ppWz-04Ja", weak: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWeakToken(tt.token); got != tt.weak {
				t.Fatalf("IsWeakToken(%q) = %v, want %v", tt.token, got, tt.weak)
			}
		})
	}
}
