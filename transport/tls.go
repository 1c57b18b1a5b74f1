package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// TLSOptions selects where the server certificate comes from. Sources are
// tried in order: certificate files, ACME, then a generated self-signed
// certificate.
type TLSOptions struct {
	CertFile string
	KeyFile  string

	// ACMEDomains enables certificates from Let's Encrypt for these names.
	ACMEDomains  []string
	ACMECacheDir string

	// ServerName and Organization fill the self-signed certificate subject.
	ServerName   string
	Organization string
	// BindAddr adds the listening IP, if any, to the self-signed certificate.
	BindAddr string

	// SaveGenerated writes a generated certificate and key as PEM files.
	SaveGenerated     bool
	GeneratedCertPath string
	GeneratedKeyPath  string
}

// NewTLSConfig builds the server TLS configuration described by opts.
func NewTLSConfig(opts TLSOptions) (*tls.Config, error) {
	switch {
	case opts.CertFile != "" && opts.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		log.Printf("Using TLS certificate from %s and key from %s", opts.CertFile, opts.KeyFile)
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil

	case len(opts.ACMEDomains) > 0:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(opts.ACMEDomains...),
		}
		if opts.ACMECacheDir != "" {
			m.Cache = autocert.DirCache(opts.ACMECacheDir)
		}
		log.Printf("Using ACME certificates for %v", opts.ACMEDomains)
		cfg := m.TLSConfig()
		cfg.MinVersion = tls.VersionTLS12
		return cfg, nil
	}

	log.Println("No TLS certificate provided, generating a self-signed certificate")
	cert, err := GenerateSelfSignedCert(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	if opts.SaveGenerated {
		if err := saveCertificate(cert, opts.GeneratedCertPath, opts.GeneratedKeyPath); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// GenerateSelfSignedCert creates a one year RSA certificate for
// opts.ServerName.
func GenerateSelfSignedCert(opts TLSOptions) (*tls.Certificate, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(365 * 24 * time.Hour)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
			CommonName:   opts.ServerName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if opts.ServerName != "" {
		template.DNSNames = []string{opts.ServerName}
	}
	if host, _, err := net.SplitHostPort(opts.BindAddr); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{derBytes},
		PrivateKey:  privateKey,
	}, nil
}

func saveCertificate(cert *tls.Certificate, certPath, keyPath string) error {
	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("cannot save private key of type %T", cert.PrivateKey)
	}
	for _, p := range []string{certPath, keyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	log.Printf("Self-signed certificate saved to %s", certPath)

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	log.Printf("Private key saved to %s", keyPath)
	return nil
}
