package cfddns

import (
	"context"
	"net/netip"
)

// Resolver looks up the public address of the host.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) {
	return f(ctx)
}

// Provider lists and updates the address records of a zone.
type Provider interface {
	ListAddressRecords(ctx context.Context, zoneID string) ([]Record, error)
	UpdateAddressRecord(ctx context.Context, zoneID string, record Record, ip netip.Addr) error
}

// Store persists the last IP that was successfully applied.
//
// Load reports found == false when no IP has been stored yet.
type Store interface {
	Load() (ip string, found bool, err error)
	Save(ip string) error
}

// Notifier delivers the outcome of a run.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

// SystemProbe reports host health values that are attached to a Report.
// Implementations never fail; they return "Unknown" instead.
type SystemProbe interface {
	ServiceStatus(context.Context) string
	PendingUpdates(context.Context) string
}

// Zone is a Cloudflare zone as configured by the user.
type Zone struct {
	Name string
	ID   string
}

// Record is a transient copy of an address record owned by the provider.
type Record struct {
	ID      string
	Name    string
	Target  string
	TTL     int
	Proxied bool
}

func (r Record) complete() bool {
	return r.ID != "" && r.Name != "" && r.Target != ""
}
