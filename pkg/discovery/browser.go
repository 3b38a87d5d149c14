package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Service overrides ServiceType.
	Service string

	// Timeout bounds Find (default: BrowseTimeout).
	Timeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty means all interfaces.
	Interface string

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// Browser searches for console backends with zeroconf.
type Browser struct {
	config BrowserConfig
	logger *slog.Logger
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.Timeout <= 0 {
		config.Timeout = BrowseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{config: config, logger: logger}
}

// Browse reports backends of role as they are found. An empty role matches
// both. Instances are aggregated by name: addresses announced on several
// interfaces are merged and each instance is reported once. The channel is
// closed when ctx is done.
func (b *Browser) Browse(ctx context.Context, role Role) (<-chan Service, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan Service)

	go b.collect(ctx, role, entries, removed, out)

	go func() {
		if err := zeroconf.Browse(ctx, b.config.Service, Domain, entries, removed, b.options()...); err != nil {
			b.logger.Warn("mdns browse failed", "service", b.config.Service, "error", err)
		}
	}()

	return out, nil
}

// Find returns the first backend of role, or ErrNotFound after the timeout.
func (b *Browser) Find(ctx context.Context, role Role) (Service, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	found, err := b.Browse(ctx, role)
	if err != nil {
		return Service{}, err
	}
	select {
	case svc, ok := <-found:
		if ok {
			return svc, nil
		}
	case <-ctx.Done():
	}
	return Service{}, fmt.Errorf("%w: role %q on %s", ErrNotFound, role, b.config.Service)
}

// collect turns zeroconf entries into services until ctx is done.
func (b *Browser) collect(ctx context.Context, role Role, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- Service) {
	defer close(out)

	seen := make(map[string][]string)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			svc, err := entryToService(entry)
			if err != nil {
				b.logger.Debug("ignoring mdns entry", "instance", entry.Instance, "error", err)
				continue
			}
			if role != "" && svc.Role != role {
				continue
			}
			if addrs, found := seen[svc.InstanceName]; found {
				seen[svc.InstanceName] = mergeAddresses(addrs, svc.Addresses)
				continue
			}
			seen[svc.InstanceName] = slices.Clone(svc.Addresses)
			b.logger.Debug("backend found", "instance", svc.InstanceName, "url", svc.URL())
			select {
			case out <- svc:
			case <-ctx.Done():
				return
			}

		case entry, ok := <-removed:
			if !ok {
				continue
			}
			if addrs, found := seen[entry.Instance]; found {
				remaining := removeAddresses(addrs, entry)
				if len(remaining) == 0 {
					delete(seen, entry.Instance)
				} else {
					seen[entry.Instance] = remaining
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger.Warn("unknown interface, browsing on all", "interface", b.config.Interface, "error", err)
		}
	}
	return opts
}

// entryToService converts a zeroconf entry to a Service.
func entryToService(entry *zeroconf.ServiceEntry) (Service, error) {
	info, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return Service{}, err
	}
	return Service{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    entryAddresses(entry),
		Role:         info.Role,
		Path:         info.Path,
		TLS:          info.TLS,
	}, nil
}

// entryAddresses lists IPv4 addresses before IPv6 ones.
func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses adds new addresses to existing, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses of entry from addresses.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	gone := make(map[string]bool)
	for _, addr := range entryAddresses(entry) {
		gone[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !gone[addr] {
			result = append(result, addr)
		}
	}
	return result
}
