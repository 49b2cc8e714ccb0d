package cfddns

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always returns the IPv4 address addr.
func FromString(addr string) (Resolver, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse IP: %s", ErrParse, err)
	}
	if !ip.Is4() {
		return nil, fmt.Errorf("%w: %s is not an IPv4 address", ErrParse, ip)
	}
	return stringResolver(ip.String()), nil
}

type stringResolver string

func (s stringResolver) Resolve(context.Context) (netip.Addr, error) {
	return netip.ParseAddr(string(s))
}
