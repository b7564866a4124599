package sluice

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"
)

// MaterialMode selects how certificate/key inputs are interpreted.
type MaterialMode int

const (
	// MaterialAuto uses a length heuristic: inputs shorter than 256 bytes
	// are treated as file paths, longer ones as inline PEM data.
	MaterialAuto MaterialMode = iota
	MaterialPath
	MaterialInline
)

const materialPathMax = 256

// TLSConfig assembles the secure-channel factory consumed at accept time.
// Everything here is resolved by New; malformed material fails server
// construction, never an individual connection.
type TLSConfig struct {
	// Cert and Key are PEM material, inline or by file path per Mode.
	Cert []byte
	Key  []byte
	Mode MaterialMode

	// ClientCAs is the trust chain for client certificates, same Mode
	// interpretation. Required when ClientAuth is not "none".
	ClientCAs []byte

	// ClientAuth is one of "none", "optional", "require". Empty means
	// "none".
	ClientAuth string

	// CipherSuites is an optional list of TLS cipher suite names as
	// reported by crypto/tls (e.g. "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256").
	// Unknown names are a ConfigError.
	CipherSuites []string

	// DisableSessionTickets turns off session ticket resumption.
	DisableSessionTickets bool
}

func (tc *TLSConfig) build() (*tls.Config, error) {
	certPEM, err := tc.material(tc.Cert, "TLS.Cert")
	if err != nil {
		return nil, err
	}
	keyPEM, err := tc.material(tc.Key, "TLS.Key")
	if err != nil {
		return nil, err
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return nil, &ConfigError{Option: "TLS", Reason: "both Cert and Key are required"}
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, &ConfigError{Option: "TLS.Cert", Reason: "invalid certificate/key pair: " + err.Error()}
	}

	cfg := &tls.Config{
		Certificates:           []tls.Certificate{pair},
		SessionTicketsDisabled: tc.DisableSessionTickets,
	}

	switch strings.ToLower(tc.ClientAuth) {
	case "", "none":
		cfg.ClientAuth = tls.NoClientCert
	case "optional":
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case "require":
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	default:
		return nil, &ConfigError{Option: "TLS.ClientAuth", Reason: "unknown mode " + tc.ClientAuth}
	}
	if cfg.ClientAuth != tls.NoClientCert {
		caPEM, err := tc.material(tc.ClientCAs, "TLS.ClientCAs")
		if err != nil {
			return nil, err
		}
		if len(caPEM) == 0 {
			return nil, &ConfigError{Option: "TLS.ClientCAs", Reason: "required when ClientAuth is " + tc.ClientAuth}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, &ConfigError{Option: "TLS.ClientCAs", Reason: "no usable certificates in trust chain"}
		}
		cfg.ClientCAs = pool
	}

	if len(tc.CipherSuites) > 0 {
		ids, err := cipherIDs(tc.CipherSuites)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = ids
	}
	return cfg, nil
}

// material resolves one PEM input. Path inputs are read eagerly so an
// unreadable file is a construction-time failure.
func (tc *TLSConfig) material(in []byte, option string) ([]byte, error) {
	if len(in) == 0 {
		return nil, nil
	}
	mode := tc.Mode
	if mode == MaterialAuto {
		if len(in) < materialPathMax {
			mode = MaterialPath
		} else {
			mode = MaterialInline
		}
	}
	if mode == MaterialInline {
		return in, nil
	}
	data, err := os.ReadFile(string(in))
	if err != nil {
		return nil, &ConfigError{Option: option, Reason: "unreadable file " + string(in) + ": " + err.Error()}
	}
	return data, nil
}

func cipherIDs(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		known[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		known[cs.Name] = cs.ID
	}
	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, &ConfigError{Option: "TLS.CipherSuites", Reason: "unknown cipher " + name}
		}
		ids = append(ids, id)
	}
	return ids, nil
}
