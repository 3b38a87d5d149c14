// Package cert decodes the certificate and private key material the virtual
// device reports for its slots.
//
// The backend ships slot material as PEM, as base64-encoded PEM or as
// base64-encoded DER. Decoding accepts all three.
package cert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Decoding errors.
var (
	ErrEmpty      = errors.New("no certificate material")
	ErrInvalidPEM = errors.New("invalid PEM data")
	ErrInvalidKey = errors.New("invalid private key")
)

// pemBlock returns the first PEM block in text, base64-decoding text first
// when it is not PEM itself. raw is set when text was base64 without PEM.
func pemBlock(text string) (block *pem.Block, raw []byte, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ErrEmpty
	}
	data := []byte(text)
	if !strings.HasPrefix(text, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
		}
		data = decoded
	}
	block, _ = pem.Decode(data)
	if block == nil {
		return nil, data, nil
	}
	return block, nil, nil
}

// DecodeCertificate parses slot certificate material.
func DecodeCertificate(text string) (*x509.Certificate, error) {
	block, raw, err := pemBlock(text)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return x509.ParseCertificate(raw)
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: unexpected block %q", ErrInvalidPEM, block.Type)
	}
	return x509.ParseCertificate(block.Bytes)
}

// DecodePrivateKey parses slot private key material in PKCS#1, SEC 1 or
// PKCS#8 form.
func DecodePrivateKey(text string) (crypto.Signer, error) {
	block, raw, err := pemBlock(text)
	if err != nil {
		return nil, err
	}
	der := raw
	if block != nil {
		der = block.Bytes
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, ErrInvalidKey
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, ErrInvalidKey
	}
	return signer, nil
}

// KeyDescription names a key's algorithm and size ("RSA 2048", "ECDSA P-256").
func KeyDescription(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d", k.N.BitLen())
	case *ecdsa.PublicKey:
		return "ECDSA " + k.Curve.Params().Name
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return "unknown"
	}
}
