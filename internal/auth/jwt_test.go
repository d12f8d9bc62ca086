package auth

import (
	"errors"
	"testing"
	"time"
)

func TestValidateToken(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, "u1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name    string
		cfg     *JWTConfig
		wantErr bool
	}{
		{name: "valid", cfg: cfg},
		{name: "wrong secret", cfg: &JWTConfig{Secret: []byte("other"), Issuer: cfg.Issuer, Audience: cfg.Audience}, wantErr: true},
		{name: "wrong issuer", cfg: &JWTConfig{Secret: cfg.Secret, Issuer: "other", Audience: cfg.Audience}, wantErr: true},
		{name: "wrong audience", cfg: &JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: "other"}, wantErr: true},
		{name: "unchecked issuer and audience", cfg: &JWTConfig{Secret: cfg.Secret}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.cfg, token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("expected ErrInvalidToken, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if claims.UserID != "u1" || claims.Username != "alice" {
				t.Fatalf("unexpected claims: %+v", claims)
			}
		})
	}
}

func TestValidateTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TTL = -time.Minute

	token, err := GenerateToken(cfg, "u1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
