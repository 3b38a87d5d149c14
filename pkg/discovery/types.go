package discovery

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of console backends.
	ServiceType = "_vconsole._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// BrowseTimeout is the default time Find waits for an answer.
	BrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyRole = "role"
	TXTKeyPath = "path"
	TXTKeyTLS  = "tls"
)

// Errors returned by this package.
var (
	ErrMissingRequired = errors.New("missing required TXT record")
	ErrInvalidRole     = errors.New("invalid role")
	ErrNotFound        = errors.New("no backend found")
)

// Role is the kind of backend.
type Role string

// Backend roles.
const (
	RoleDevice Role = "device"
	RoleDMS    Role = "dms"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(s)); r {
	case RoleDevice, RoleDMS:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Service is one discovered backend.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Role         Role
	Path         string
	TLS          bool
}

// URL returns the WebSocket endpoint of s. The first address is preferred
// over the host name so the result works without mDNS name resolution.
func (s Service) URL() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}

	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	path := s.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(int(s.Port))),
		Path:   path,
	}
	return u.String()
}

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// Info is the content of a backend's TXT records.
type Info struct {
	Role Role
	Path string
	TLS  bool
}

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info Info) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyRole: string(info.Role)}
	if info.Path != "" {
		txt[TXTKeyPath] = info.Path
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	return txt
}

// DecodeTXT parses a backend's TXT records.
func DecodeTXT(txt TXTRecordMap) (Info, error) {
	roleStr, ok := txt[TXTKeyRole]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyRole)
	}
	role, err := ParseRole(roleStr)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Role: role,
		Path: txt[TXTKeyPath],
		TLS:  txt[TXTKeyTLS] == "1",
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}
