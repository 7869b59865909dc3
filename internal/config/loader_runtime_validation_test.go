package config

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
	"testing"
	"time"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
)

func writeTestCert(t *testing.T, cn string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "client.crt")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write certificate: %v", err)
	}
	return path
}

func TestApplyTopicPrefix_WithoutCertCN(t *testing.T) {
	cfg := &Config{MQTT: MQTTConfig{ResultTopic: "results", TxTopic: "tx"}}

	if err := applyTopicPrefix(cfg); err != nil {
		t.Fatalf("applyTopicPrefix() error = %v; want nil", err)
	}
	if cfg.MQTT.ResultTopic != "results" || cfg.MQTT.TxTopic != "tx" {
		t.Errorf("topics = %s, %s; want unchanged", cfg.MQTT.ResultTopic, cfg.MQTT.TxTopic)
	}
}

func TestApplyTopicPrefix_WithCertCN(t *testing.T) {
	cfg := &Config{MQTT: MQTTConfig{
		ResultTopic:     "results",
		UseCertCNPrefix: true,
		ClientCert:      writeTestCert(t, "device-7"),
	}}

	if err := applyTopicPrefix(cfg); err != nil {
		t.Fatalf("applyTopicPrefix() error = %v; want nil", err)
	}
	if cfg.MQTT.ResultTopic != "device-7/results" {
		t.Errorf("ResultTopic = %s; want device-7/results", cfg.MQTT.ResultTopic)
	}
	if cfg.MQTT.TxTopic != "" {
		t.Errorf("TxTopic = %s; want empty topic left alone", cfg.MQTT.TxTopic)
	}
}

func TestApplyTopicPrefix_CertErrors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.pem")},
		{"not pem", garbage},
		{"empty cn", writeTestCert(t, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{MQTT: MQTTConfig{ResultTopic: "results", UseCertCNPrefix: true, ClientCert: tt.path}}
			if err := applyTopicPrefix(cfg); err == nil {
				t.Error("applyTopicPrefix() error = nil; want error")
			}
		})
	}
}

func TestResolveProgramID(t *testing.T) {
	fromName := &FeedConfig{ProgramName: "consumer-a"}
	if err := resolveProgramID(fromName); err != nil {
		t.Fatalf("resolveProgramID() error = %v", err)
	}
	if want := ledger.ProgramIDFromName("consumer-a").String(); fromName.ProgramID != want {
		t.Errorf("ProgramID = %s; want %s", fromName.ProgramID, want)
	}

	explicit := &FeedConfig{ProgramName: "ignored", ProgramID: "0x" + fromName.ProgramID}
	if err := resolveProgramID(explicit); err != nil {
		t.Fatalf("resolveProgramID() error = %v", err)
	}
	if explicit.ProgramID != fromName.ProgramID {
		t.Errorf("ProgramID = %s; want normalized %s", explicit.ProgramID, fromName.ProgramID)
	}

	if err := resolveProgramID(&FeedConfig{}); err == nil {
		t.Error("resolveProgramID() with no name or id: error = nil; want error")
	}
	if err := resolveProgramID(&FeedConfig{ProgramID: "zz"}); err == nil {
		t.Error("resolveProgramID() with bad id: error = nil; want error")
	}
}
