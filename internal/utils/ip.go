package utils

import (
	"net"
	"strings"
)

// IPAllowList matches addresses against a fixed set of CIDR networks.
type IPAllowList struct {
	nets []*net.IPNet
}

// NewIPAllowList parses cidrs, skipping entries that are not valid networks.
func NewIPAllowList(cidrs []string) *IPAllowList {
	l := &IPAllowList{}
	for _, cidr := range cidrs {
		_, netblock, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		l.nets = append(l.nets, netblock)
	}
	return l
}

func (l *IPAllowList) Empty() bool {
	return l == nil || len(l.nets) == 0
}

// Contains reports whether ip falls into one of the networks.
func (l *IPAllowList) Contains(ip string) bool {
	if l == nil {
		return false
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, n := range l.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
