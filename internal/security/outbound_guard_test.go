package security

import (
	"net/http"
	"testing"
	"time"
)

// TestNewSafeClient はタイムアウトとカスタムTransportが設定されることを検証する。
func TestNewSafeClient(t *testing.T) {
	guard := NewOutboundGuard()
	timeout := 7 * time.Second
	client := guard.NewSafeClient(timeout)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport from safeurl")
	}
}

// TestValidateBaseURL はベースURLの静的検証をテストする。
func TestValidateBaseURL(t *testing.T) {
	guard := NewOutboundGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"空文字列は既定値として許可", "", false},
		{"公開https", "https://api.anthropic.com", false},
		{"httpは拒否", "http://api.anthropic.com", true},
		{"localhostは拒否", "https://localhost", true},
		{"ループバックIPは拒否", "https://127.0.0.1", true},
		{"メタデータIPは拒否", "https://169.254.169.254", true},
		{"プライベートIPは拒否", "https://10.1.2.3", true},
		{"ホストなしは拒否", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateBaseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBaseURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
