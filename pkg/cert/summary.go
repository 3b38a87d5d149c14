package cert

import (
	"crypto/x509"
	"fmt"
	"time"
)

// Summary is the part of a slot certificate worth showing to an operator.
type Summary struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	Key          string

	// KeyMatches is set when a private key was supplied and it belongs to
	// the certificate.
	KeyMatches *bool
}

// Summarize decodes a slot certificate and, when keyText is not empty, checks
// the private key against it.
func Summarize(certText, keyText string) (Summary, error) {
	c, err := DecodeCertificate(certText)
	if err != nil {
		return Summary{}, fmt.Errorf("decode certificate: %w", err)
	}
	s := summaryOf(c)

	if keyText != "" {
		key, err := DecodePrivateKey(keyText)
		if err != nil {
			return s, fmt.Errorf("decode private key: %w", err)
		}
		matches := publicKeysEqual(c.PublicKey, key.Public())
		s.KeyMatches = &matches
	}
	return s, nil
}

func summaryOf(c *x509.Certificate) Summary {
	return Summary{
		Subject:      c.Subject.String(),
		Issuer:       c.Issuer.String(),
		SerialNumber: FormatSerial(c),
		NotBefore:    c.NotBefore,
		NotAfter:     c.NotAfter,
		Key:          KeyDescription(c.PublicKey),
	}
}

// ValidAt reports whether now falls inside the validity window.
func (s Summary) ValidAt(now time.Time) bool {
	return !now.Before(s.NotBefore) && !now.After(s.NotAfter)
}

// FormatSerial renders the serial as colon-separated hex pairs, the way the
// PKI displays it.
func FormatSerial(c *x509.Certificate) string {
	b := c.SerialNumber.Bytes()
	if len(b) == 0 {
		return "00"
	}
	out := make([]byte, 0, len(b)*3)
	for i, v := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = fmt.Appendf(out, "%02x", v)
	}
	return string(out)
}

// publicKeysEqual compares keys that implement Equal.
func publicKeysEqual(a, b any) bool {
	k, ok := a.(interface{ Equal(any) bool })
	return ok && k.Equal(b)
}
