package main

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  Config{port: 8080, sessionDrain: 5 * time.Minute},
		},
		{
			name:    "port too low",
			cfg:     Config{port: 0},
			wantErr: true,
		},
		{
			name:    "port too high",
			cfg:     Config{port: 70000},
			wantErr: true,
		},
		{
			name:    "cert without key",
			cfg:     Config{port: 8080, tlsCert: "cert.pem"},
			wantErr: true,
		},
		{
			name:    "key without cert",
			cfg:     Config{port: 8080, tlsKey: "key.pem"},
			wantErr: true,
		},
		{
			name: "tls pair",
			cfg:  Config{port: 8080, tlsCert: "cert.pem", tlsKey: "key.pem"},
		},
		{
			name:    "negative drain",
			cfg:     Config{port: 8080, sessionDrain: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	wildcard := Config{allowedOrigins: []string{"*"}}
	if !wildcard.originAllowed("https://anywhere.example.com") {
		t.Error("wildcard should allow any origin")
	}

	strict := Config{allowedOrigins: []string{"https://quiz.example.com"}}
	if !strict.originAllowed("https://quiz.example.com") {
		t.Error("listed origin should be allowed")
	}
	if !strict.originAllowed("HTTPS://QUIZ.EXAMPLE.COM") {
		t.Error("origin matching should be case-insensitive")
	}
	if strict.originAllowed("https://evil.example.net") {
		t.Error("unlisted origin should be rejected")
	}
	if !strict.originAllowed("") {
		t.Error("non-browser clients send no origin and should be allowed")
	}
}
