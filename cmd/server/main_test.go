package main

import (
	"strings"
	"testing"

	"tindahan/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		wantOK bool
	}{
		{"empty", "", false},
		{"short", "tooshort", false},
		{"31 chars", strings.Repeat("a", 31), false},
		{"32 chars", strings.Repeat("a", 32), true},
		{"long", strings.Repeat("a", 64), true},
	}
	for _, tc := range cases {
		err := validateSecurityConfig(config.Config{AuthSecret: tc.secret})
		if tc.wantOK && err != nil {
			t.Fatalf("%s: expected valid, got %v", tc.name, err)
		}
		if !tc.wantOK && err == nil {
			t.Fatalf("%s: expected validation failure", tc.name)
		}
	}
}
