package config

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	if err := applyTopicPrefix(cfg); err != nil {
		return err
	}
	return resolveProgramID(&cfg.Feed)
}

// applyTopicPrefix prefixes MQTT topics with certificate CN if configured
func applyTopicPrefix(cfg *Config) error {
	if cfg.MQTT.UseCertCNPrefix && cfg.MQTT.ClientCert != "" {
		cn, err := extractCNFromCertFile(cfg.MQTT.ClientCert)
		if err != nil {
			return fmt.Errorf("failed to extract CN from certificate: %w", err)
		}
		cfg.MQTT.ResultTopic = cn + "/" + cfg.MQTT.ResultTopic
		if cfg.MQTT.TxTopic != "" {
			cfg.MQTT.TxTopic = cn + "/" + cfg.MQTT.TxTopic
		}
	}
	return nil
}

// resolveProgramID derives the program id from the program name when no
// explicit id is configured, and normalizes an explicit one
func resolveProgramID(cfg *FeedConfig) error {
	if cfg.ProgramID == "" {
		if cfg.ProgramName == "" {
			return fmt.Errorf("feed program name or id is required")
		}
		cfg.ProgramID = ledger.ProgramIDFromName(cfg.ProgramName).String()
		return nil
	}
	id, err := ledger.ParseProgramID(cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("feed program id: %w", err)
	}
	cfg.ProgramID = id.String()
	return nil
}

// extractCNFromCertFile extracts the CN from a PEM certificate file
func extractCNFromCertFile(certPath string) (string, error) {
	certPEM, err := os.ReadFile(certPath) // #nosec G304 - certPath is from config, not user input
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName == "" {
		return "", fmt.Errorf("certificate has no CN")
	}

	return cert.Subject.CommonName, nil
}
