package domain_test

import (
	"testing"

	"github.com/dejobratic/storefront/internal/checkout/domain"
)

func TestNormalizeMSISDN(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "local with trunk zero", raw: "0712345678", want: "254712345678"},
		{name: "local with spaces", raw: "0712 345 678", want: "254712345678"},
		{name: "subscriber number", raw: "712345678", want: "254712345678"},
		{name: "airtel style prefix", raw: "110345678", want: "254110345678"},
		{name: "international with plus", raw: "+254712345678", want: "254712345678"},
		{name: "international digits", raw: "254712345678", want: "254712345678"},
		{name: "too short", raw: "0712", wantErr: true},
		{name: "too long", raw: "07123456789", wantErr: true},
		{name: "foreign country code", raw: "+44712345678", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.NormalizeMSISDN(tt.raw, domain.KenyaCountryCode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeMSISDN(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeMSISDN(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLocalPhoneDigits(t *testing.T) {
	tests := map[string]string{
		"0712345678":     "712345678",
		"+254712345678":  "712345678",
		"712-345-678":    "712345678",
		"(0712) 345 678": "712345678",
	}
	for raw, want := range tests {
		if got := domain.LocalPhoneDigits(raw, domain.KenyaCountryCode); got != want {
			t.Errorf("LocalPhoneDigits(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	if got := domain.RedactPhone("254712345678"); got != "********5678" {
		t.Errorf("RedactPhone() = %q", got)
	}
	if got := domain.RedactPhone("678"); got != "678" {
		t.Errorf("RedactPhone(short) = %q", got)
	}
}
