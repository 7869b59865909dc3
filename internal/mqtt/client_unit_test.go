package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
)

type testPKI struct {
	caCert, clientCert, clientKey, garbage string
}

// newTestPKI writes a self-signed CA and a client pair signed by it.
func newTestPKI(t *testing.T) testPKI {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "pricefeed-consumer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caTmpl, &key.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}
	return testPKI{
		caCert:     write("authority.pem", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})),
		clientCert: write("certificate.pem", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		clientKey:  write("key.pem", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		garbage:    write("README.md", []byte("# not a certificate\n")),
	}
}

func TestNewTLSConfig(t *testing.T) {
	pki := newTestPKI(t)

	t.Run("CAOnly", func(t *testing.T) {
		tlsConfig, err := newTLSConfig(&config.MQTTConfig{TLSEnabled: true, CACert: pki.caCert})
		if err != nil {
			t.Fatalf("Failed to create TLS config: %v", err)
		}
		if tlsConfig.RootCAs == nil {
			t.Error("RootCAs not set")
		}
		if tlsConfig.InsecureSkipVerify {
			t.Error("InsecureSkipVerify should be false by default")
		}
	})

	t.Run("ClientCert", func(t *testing.T) {
		tlsConfig, err := newTLSConfig(&config.MQTTConfig{
			TLSEnabled: true,
			CACert:     pki.caCert,
			ClientCert: pki.clientCert,
			ClientKey:  pki.clientKey,
		})
		if err != nil {
			t.Fatalf("Failed to create TLS config: %v", err)
		}
		if len(tlsConfig.Certificates) != 1 {
			t.Error("Client certificates not loaded")
		}
	})

	t.Run("SystemRoots", func(t *testing.T) {
		tlsConfig, err := newTLSConfig(&config.MQTTConfig{TLSEnabled: true, InsecureSkip: true})
		if err != nil {
			t.Fatalf("Failed to create TLS config: %v", err)
		}
		if tlsConfig.RootCAs != nil {
			t.Error("RootCAs set without a CA file")
		}
		if !tlsConfig.InsecureSkipVerify {
			t.Error("InsecureSkipVerify should be true")
		}
	})

	failures := []struct {
		name string
		cfg  config.MQTTConfig
	}{
		{"MissingCA", config.MQTTConfig{CACert: "/nonexistent/ca.crt"}},
		{"CorruptedCA", config.MQTTConfig{CACert: pki.garbage}},
		{"MissingClientCert", config.MQTTConfig{ClientCert: "/nonexistent/client.crt", ClientKey: pki.clientKey}},
		{"MismatchedKey", config.MQTTConfig{ClientCert: pki.clientCert, ClientKey: pki.caCert}},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.TLSEnabled = true
			if _, err := newTLSConfig(&cfg); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestHandleTransaction(t *testing.T) {
	client := &Client{log: log.Discard()}

	t.Run("NoHandler", func(_ *testing.T) {
		client.handleTransaction([]byte(`{"id":"1"}`))
	})

	t.Run("CopiesPayload", func(t *testing.T) {
		var got message.Payload
		client.txHandler = func(p message.Payload) { got = p }

		buf := []byte(`{"id":"1"}`)
		client.handleTransaction(buf)
		buf[2] = 'X'

		if string(got) != `{"id":"1"}` {
			t.Errorf("handler saw %s; want an independent copy", got)
		}
	})

	t.Run("EmptyPayloadDropped", func(t *testing.T) {
		called := false
		client.txHandler = func(message.Payload) { called = true }
		client.handleTransaction(nil)
		if called {
			t.Error("Handler should not be called for an empty payload")
		}
	})
}

func TestSubscribeTransactions_NoTopic(t *testing.T) {
	client := &Client{log: log.Discard()}
	if err := client.SubscribeTransactions(func(message.Payload) {}); err != nil {
		t.Errorf("SubscribeTransactions() without topic = %v; want nil", err)
	}
	if client.txHandler != nil {
		t.Error("handler registered although intake is disabled")
	}
}

func TestClientIDBase(t *testing.T) {
	base := clientIDBase("pricefeed-consumer")
	if !strings.HasPrefix(base, "pricefeed-consumer-") {
		t.Errorf("clientIDBase() = %s; want prefix pricefeed-consumer-", base)
	}
	if base == clientIDBase("other") {
		t.Error("different client ids share a base")
	}
}
