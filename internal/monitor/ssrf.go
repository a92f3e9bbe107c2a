package monitor

import (
	"context"
	"fmt"
	"net"
	"strings"
)

var (
	metadataHosts = []string{
		"169.254.169.254", // AWS, Azure, GCP metadata
		"metadata.google.internal",
		"169.254.170.2", // AWS ECS metadata
		"fd00:ec2::254", // AWS IMDSv2 IPv6
	}

	localHosts = []string{
		"localhost",
		"localhost.localdomain",
		"0.0.0.0",
		"::",
	}

	privateNets = mustParseCIDRs(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10", // carrier-grade NAT
		"169.254.0.0/16",
		"127.0.0.0/8",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	)
)

// AddressGuard rejects probe targets that point into the local network.
// Cloud metadata endpoints are always rejected.
type AddressGuard struct {
	allowPrivateIPs bool
	resolver        *net.Resolver
}

func NewAddressGuard(allowPrivateIPs bool) *AddressGuard {
	return &AddressGuard{allowPrivateIPs: allowPrivateIPs, resolver: net.DefaultResolver}
}

// Check validates host and every address it resolves to. Lookup failures are
// not reported here; the probe itself turns them into a down observation.
func (g *AddressGuard) Check(ctx context.Context, host string) error {
	host = strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if host == "" {
		return fmt.Errorf("target has no host")
	}

	for _, blocked := range metadataHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return fmt.Errorf("access to metadata endpoint %s is not allowed", host)
		}
	}
	if g.allowPrivateIPs {
		return nil
	}
	for _, blocked := range localHosts {
		if host == blocked {
			return fmt.Errorf("access to %s is not allowed", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return g.validateIP(ip)
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if err := g.validateIP(addr.IP); err != nil {
			return fmt.Errorf("%s resolves to %s: %w", host, addr.IP, err)
		}
	}
	return nil
}

func (g *AddressGuard) validateIP(ip net.IP) error {
	for _, blocked := range metadataHosts {
		if ip.Equal(net.ParseIP(blocked)) {
			return fmt.Errorf("access to metadata endpoint %s is not allowed", ip)
		}
	}
	if g.allowPrivateIPs {
		return nil
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("access to loopback addresses is not allowed")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("access to link-local addresses is not allowed")
	case ip.IsMulticast():
		return fmt.Errorf("access to multicast addresses is not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("access to unspecified addresses is not allowed")
	}
	for _, network := range privateNets {
		if network.Contains(ip) {
			return fmt.Errorf("access to private IP addresses is not allowed")
		}
	}
	return nil
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, network)
	}
	return nets
}
