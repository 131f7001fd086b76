package printer

import (
	"context"
	"fmt"
	"iter"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// maxEscalations is how many active probes are attempted for a host whose
// neighbour entry is missing or all-zero. A single probe can race with the
// kernel populating its cache.
const maxEscalations = 2

const (
	// defaultProbeTimeout is assumed for the scan budget when none is set.
	defaultProbeTimeout = 300 * time.Millisecond

	// scanSlack covers neighbour table reads on top of the probe time.
	scanSlack = 10 * time.Second
)

// AddressSource records where the current address came from.
type AddressSource string

// Address sources.
const (
	SourceStatic   AddressSource = "static"
	SourceResolved AddressSource = "resolved"
)

// Address is the printer's network address.
type Address struct {
	IP     netip.Addr    `json:"ip"`
	Source AddressSource `json:"source"`
}

// IsValid reports whether the address holds an IP.
func (a Address) IsValid() bool {
	return a.IP.IsValid()
}

func (a Address) String() string {
	if !a.IsValid() {
		return "<unresolved>"
	}
	return a.IP.String()
}

// NeighborTable reads link-layer addresses from the local neighbour (ARP) cache.
type NeighborTable interface {
	// Lookup returns the cached hardware address for ip. A missing entry is
	// reported as a nil address and a nil error.
	Lookup(ip netip.Addr) (net.HardwareAddr, error)
}

// Prober actively contacts a host so the kernel resolves its hardware address.
type Prober interface {
	Probe(ctx context.Context, ip netip.Addr) error
}

// LookupResult is the outcome of resolving one host's hardware address.
type LookupResult struct {
	HardwareAddr net.HardwareAddr
	Found        bool
	Escalations  int
}

// LocatorConfig configures a Locator.
type LocatorConfig struct {
	// StaticIP disables discovery; IP is used as-is.
	StaticIP bool
	IP       string

	// MAC and Subnet drive discovery when StaticIP is false.
	MAC    string
	Subnet string

	Table  NeighborTable
	Prober Prober

	// ProbeTimeout is how long one probe may take. It sizes the scan budget.
	ProbeTimeout time.Duration
}

// Locator resolves the printer's IP address from its hardware address.
//
// In static mode Resolve always returns the configured address and Refresh
// always fails. In dynamic mode both scan the subnet in address order and
// stop at the first host whose hardware address matches.
//
// A scan is not bound to the context of the caller that started it. It runs
// for at most ScanBudget, so a caller giving up early does not abort the
// scan for the others, and a later caller finds the result.
//
// Thread Safety:
//   - Safe for concurrent use. Concurrent refreshes share one scan.
type Locator struct {
	static bool
	target net.HardwareAddr
	subnet netip.Prefix
	table  NeighborTable
	prober Prober

	mu      sync.RWMutex
	current Address

	budget time.Duration
	group  singleflight.Group
	scans atomic.Int64

	logger Logger
}

// NewLocator validates cfg and returns a Locator. In static mode the
// configured address is current immediately.
func NewLocator(cfg LocatorConfig) (*Locator, error) {
	l := &Locator{
		static: cfg.StaticIP,
		table:  cfg.Table,
		prober: cfg.Prober,
		logger: noopLogger{},
	}

	if cfg.StaticIP {
		ip, err := netip.ParseAddr(cfg.IP)
		if err != nil {
			return nil, fmt.Errorf("%w: ip %q: %w", ErrInvalidConfig, cfg.IP, err)
		}
		l.current = Address{IP: ip, Source: SourceStatic}
		return l, nil
	}

	mac, err := net.ParseMAC(cfg.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: mac %q: %w", ErrInvalidConfig, cfg.MAC, err)
	}
	prefix, err := netip.ParsePrefix(cfg.Subnet)
	if err != nil {
		return nil, fmt.Errorf("%w: subnet %q: %w", ErrInvalidConfig, cfg.Subnet, err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("%w: subnet %q is not IPv4", ErrInvalidConfig, cfg.Subnet)
	}
	if cfg.Table == nil || cfg.Prober == nil {
		return nil, fmt.Errorf("%w: neighbour table and prober are required for discovery", ErrInvalidConfig)
	}

	l.target = mac
	l.subnet = prefix.Masked()
	l.budget = scanBudget(l.subnet, cfg.ProbeTimeout)
	return l, nil
}

// SetLogger sets the logger for scan diagnostics.
func (l *Locator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Static reports whether a static address is configured.
func (l *Locator) Static() bool {
	return l.static
}

// Current returns the last known address, which may be unresolved.
func (l *Locator) Current() Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// ScanBudget returns the longest a subnet scan may run. It is zero in
// static mode.
func (l *Locator) ScanBudget() time.Duration {
	return l.budget
}

// Scans returns how many subnet scans have run.
func (l *Locator) Scans() int64 {
	return l.scans.Load()
}

// Resolve returns the printer's address, scanning the subnet if none is known.
//
// Returns:
//   - Address: The configured (static) or discovered address
//   - error: wrapping ErrDeviceUnreachable when no matching host is found
func (l *Locator) Resolve(ctx context.Context) (Address, error) {
	if cur := l.Current(); cur.IsValid() {
		return cur, nil
	}
	return l.rescan(ctx)
}

// Refresh re-resolves the address after a transport failure against stale.
//
// If another caller already replaced stale, the newer address is returned
// without scanning. Concurrent callers share a single scan.
//
// Returns:
//   - Address: The re-resolved address
//   - error: ErrStaticAddress in static mode, or wrapping ErrDeviceUnreachable
func (l *Locator) Refresh(ctx context.Context, stale Address) (Address, error) {
	if l.static {
		return Address{}, ErrStaticAddress
	}
	if cur := l.Current(); cur.IsValid() && cur.IP != stale.IP {
		return cur, nil
	}
	return l.rescan(ctx)
}

func (l *Locator) rescan(ctx context.Context) (Address, error) {
	if l.static {
		return l.Current(), nil
	}

	results := l.group.DoChan("scan", func() (any, error) {
		scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.budget)
		defer cancel()
		return l.scan(scanCtx)
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return Address{}, res.Err
		}
		return res.Val.(Address), nil
	case <-ctx.Done():
		return Address{}, fmt.Errorf("%w: waiting for scan: %w", ErrDeviceUnreachable, ctx.Err())
	}
}

// scanBudget allows every host in p the full escalation sequence.
func scanBudget(p netip.Prefix, probeTimeout time.Duration) time.Duration {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	hosts := int64(1) << (32 - p.Bits())
	return time.Duration(hosts*maxEscalations)*probeTimeout + scanSlack
}

// scan walks the subnet and stores the first match as current.
func (l *Locator) scan(ctx context.Context) (Address, error) {
	l.scans.Add(1)
	l.logger.Info("scanning for printer", "subnet", l.subnet.String(), "mac", l.target.String())

	for ip := range hostAddrs(l.subnet) {
		if err := ctx.Err(); err != nil {
			return Address{}, fmt.Errorf("%w: scan interrupted: %w", ErrDeviceUnreachable, err)
		}

		res := l.LookupHost(ctx, ip)
		if !res.Found || !sameHardwareAddr(res.HardwareAddr, l.target) {
			continue
		}

		addr := Address{IP: ip, Source: SourceResolved}
		l.mu.Lock()
		l.current = addr
		l.mu.Unlock()

		l.logger.Info("printer located", "ip", ip.String(), "escalations", res.Escalations)
		return addr, nil
	}

	return Address{}, fmt.Errorf("%w: %w: %s in %s", ErrDeviceUnreachable, ErrNotFound, l.target, l.subnet)
}

// LookupHost resolves one host's hardware address: the neighbour table first,
// then up to maxEscalations active probes while the entry stays null.
func (l *Locator) LookupHost(ctx context.Context, ip netip.Addr) LookupResult {
	mac := l.tableLookup(ip)

	var res LookupResult
	for isNullHardwareAddr(mac) && res.Escalations < maxEscalations {
		if ctx.Err() != nil {
			break
		}
		res.Escalations++
		if err := l.prober.Probe(ctx, ip); err != nil {
			l.logger.Debug("probe failed", "ip", ip.String(), "error", err)
		}
		mac = l.tableLookup(ip)
	}

	res.HardwareAddr = mac
	res.Found = !isNullHardwareAddr(mac)
	return res
}

func (l *Locator) tableLookup(ip netip.Addr) net.HardwareAddr {
	mac, err := l.table.Lookup(ip)
	if err != nil {
		l.logger.Debug("neighbour table lookup failed", "ip", ip.String(), "error", err)
		return nil
	}
	return mac
}

// hostAddrs yields the usable host addresses of p in ascending order.
// Network and broadcast addresses are skipped for prefixes shorter than /31.
func hostAddrs(p netip.Prefix) iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		p = p.Masked()
		skipEnds := p.Bits() < 31

		a := p.Addr()
		if skipEnds {
			a = a.Next()
		}
		for ; a.IsValid() && p.Contains(a); a = a.Next() {
			if skipEnds && !p.Contains(a.Next()) {
				return
			}
			if !yield(a) {
				return
			}
		}
	}
}

func isNullHardwareAddr(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

// sameHardwareAddr compares byte values, so textual case never matters.
func sameHardwareAddr(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
