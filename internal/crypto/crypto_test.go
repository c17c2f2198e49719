package crypto

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSignMatchesPublishedVector(t *testing.T) {
	h := &HMACAuth{Secret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"}
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := h.Sign(query); got != want {
		t.Fatalf("Sign = %s, want %s", got, want)
	}
}

func TestSignParamsAt(t *testing.T) {
	h := &HMACAuth{Key: "k", Secret: "s3cret", RecvWindow: 5 * time.Second}
	params := url.Values{}
	params.Set("symbol", "BTCUSD")
	params.Set("side", "BUY")
	params.Set("type", "LIMIT")
	params.Set("quantity", "0.0020")
	params.Set("price", "100.00")

	got := h.SignParamsAt(params, 1700000000000)
	want := "price=100.00&quantity=0.0020&recvWindow=5000&side=BUY&symbol=BTCUSD&timestamp=1700000000000&type=LIMIT" +
		"&signature=9439ee599f004e8f627ed3e26dcc588f91e2e5223e20d74b62e0ac84ec285f1e"
	if got != want {
		t.Fatalf("SignParamsAt =\n%s\nwant\n%s", got, want)
	}
	if params.Get("timestamp") != "" {
		t.Error("SignParamsAt must not mutate the caller's params")
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	h := &HMACAuth{Key: "abcdefgh", Secret: "supersecret"}
	s := h.String()
	if strings.Contains(s, "supersecret") || strings.Contains(s, "abcdefgh") {
		t.Fatalf("String leaked credentials: %s", s)
	}
}

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("my-api-secret", "pw")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}
	got, err := DecryptSecret(blob, "pw")
	if err != nil {
		t.Fatalf("DecryptSecret: %v", err)
	}
	if got != "my-api-secret" {
		t.Fatalf("got %q", got)
	}
	if _, err := DecryptSecret(blob, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestLoadSecret(t *testing.T) {
	dir := t.TempDir()
	blob, err := EncryptSecret("from-file", "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "secret.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     SecretConfig
		want    string
		wantErr bool
	}{
		{"raw wins", SecretConfig{Raw: " raw ", EncryptedPath: path, Password: "pw"}, "raw", false},
		{"encrypted file", SecretConfig{EncryptedPath: path, Password: "pw"}, "from-file", false},
		{"missing file", SecretConfig{EncryptedPath: filepath.Join(dir, "nope"), Password: "pw"}, "", true},
		{"nothing configured", SecretConfig{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadSecret(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
