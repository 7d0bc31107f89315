package account

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func TestParseKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, keySize)

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", hex.EncodeToString(raw), false},
		{"base64", base64.StdEncoding.EncodeToString(raw), false},
		{"padded with spaces", "  " + hex.EncodeToString(raw) + "\n", false},
		{"short hex", hex.EncodeToString(raw[:16]), true},
		{"plain text", "correct horse battery staple", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(key[:], raw) {
				t.Errorf("ParseKey() = %x, want %x", key, raw)
			}
		})
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	key, err := RandomKey()
	if err != nil {
		t.Fatalf("RandomKey() error = %v", err)
	}
	s := NewSealer(key)

	a, err := s.Seal("sk-test-123")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	b, _ := s.Seal("sk-test-123")
	if bytes.Equal(a, b) {
		t.Error("sealing twice should use different nonces")
	}
	if bytes.Contains(a, []byte("sk-test-123")) {
		t.Error("sealed value contains the plaintext")
	}

	got, err := s.Open(a)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != "sk-test-123" {
		t.Errorf("Open() = %q, want sk-test-123", got)
	}
}

func TestSealer_OpenRejects(t *testing.T) {
	k1, _ := RandomKey()
	k2, _ := RandomKey()
	sealed, err := NewSealer(k1).Seal("sk-test")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name   string
		sealer *Sealer
		data   []byte
	}{
		{"wrong key", NewSealer(k2), sealed},
		{"tampered", NewSealer(k1), tampered},
		{"too short", NewSealer(k1), []byte("short")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.data)
			if err == nil || !strings.Contains(err.Error(), "unseal") {
				t.Errorf("Open() error = %v, want unseal failure", err)
			}
		})
	}
}
