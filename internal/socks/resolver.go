package socks

import (
	"context"
	"errors"
	"net"

	"golang.org/x/sync/singleflight"
)

// Resolver turns a host name into a single address.
type Resolver interface {
	// Resolve returns the first address of host. network is "ip", "ip4"
	// or "ip6".
	Resolve(ctx context.Context, network, host string) (net.IP, error)
}

// DNSResolver resolves through net.Resolver; concurrent lookups of the same
// name share one query.
type DNSResolver struct {
	Resolver *net.Resolver
	group    singleflight.Group
}

func (r *DNSResolver) Resolve(ctx context.Context, network, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if network == "ip4" && ip.To4() == nil {
			return nil, &ResolveError{Host: host, Err: errors.New("not an ipv4 address")}
		}
		return ip, nil
	}

	v, err, _ := r.group.Do(network+"/"+host, func() (interface{}, error) {
		res := r.Resolver
		if res == nil {
			res = net.DefaultResolver
		}
		ips, err := res.LookupIP(ctx, network, host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, errors.New("no addresses")
		}
		return ips[0], nil
	})
	if err != nil {
		return nil, &ResolveError{Host: host, Err: err}
	}
	return v.(net.IP), nil
}
