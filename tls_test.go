package sluice

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func selfSignedPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "sluice-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("cert: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestTLSConfig_InlineMaterial(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t)
	cfg := &TLSConfig{Cert: certPEM, Key: keyPEM, Mode: MaterialInline}
	tc, err := cfg.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tc.Certificates) != 1 {
		t.Fatalf("certificates = %d", len(tc.Certificates))
	}
}

func TestTLSConfig_PathHeuristic(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	// Auto mode: short inputs are treated as paths.
	cfg := &TLSConfig{Cert: []byte(certPath), Key: []byte(keyPath)}
	if _, err := cfg.build(); err != nil {
		t.Fatalf("build via path heuristic: %v", err)
	}
	// Forcing inline must fail: a path is not PEM.
	cfg.Mode = MaterialInline
	if _, err := cfg.build(); err == nil {
		t.Fatal("inline-forced path input built successfully")
	}
}

func TestTLSConfig_ConstructionFailures(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t)
	cases := []struct {
		name string
		cfg  TLSConfig
	}{
		{"missing key", TLSConfig{Cert: certPEM, Mode: MaterialInline}},
		{"garbage material", TLSConfig{Cert: []byte(strings.Repeat("x", 300)), Key: keyPEM, Mode: MaterialInline}},
		{"unreadable path", TLSConfig{Cert: []byte("/does/not/exist.pem"), Key: keyPEM, Mode: MaterialPath}},
		{"bad client auth", TLSConfig{Cert: certPEM, Key: keyPEM, Mode: MaterialInline, ClientAuth: "perhaps"}},
		{"require without cas", TLSConfig{Cert: certPEM, Key: keyPEM, Mode: MaterialInline, ClientAuth: "require"}},
		{"unknown cipher", TLSConfig{Cert: certPEM, Key: keyPEM, Mode: MaterialInline, CipherSuites: []string{"TLS_BOGUS"}}},
	}
	for _, tc := range cases {
		_, err := tc.cfg.build()
		if err == nil {
			t.Errorf("%s: build succeeded", tc.name)
			continue
		}
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("%s: err = %T, want *ConfigError", tc.name, err)
		}
	}
}

func TestServer_TLSEndToEnd(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t)
	srv, err := New(Config{
		DisableURing: true,
		TLS:          &TLSConfig{Cert: certPEM, Key: keyPEM, Mode: MaterialInline},
	}, HandlerFunc(func(r *Request) any {
		return &Response{Status: 200, Body: "secure"}
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	c, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasSuffix(string(got), "secure") {
		t.Fatalf("response:\n%s", got)
	}
}
