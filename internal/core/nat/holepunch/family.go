package holepunch

import (
	"net/netip"
)

// family 地址族
type family struct {
	tcp string
	udp string
	any netip.Addr
}

var (
	familyV4 = family{tcp: "tcp4", udp: "udp4", any: netip.IPv4Unspecified()}
	familyV6 = family{tcp: "tcp6", udp: "udp6", any: netip.IPv6Unspecified()}
)

// familyOf 返回地址所属的地址族
func familyOf(a netip.Addr) family {
	if a.Unmap().Is4() {
		return familyV4
	}
	return familyV6
}

// contains 地址是否属于该地址族
func (f family) contains(ap netip.AddrPort) bool {
	if !ap.IsValid() || ap.Port() == 0 || ap.Addr().IsUnspecified() {
		return false
	}
	return familyOf(ap.Addr()) == f
}

// candidates 返回本地址族可用的直连候选，去重
func (f family) candidates(public, private netip.AddrPort) []netip.AddrPort {
	var out []netip.AddrPort
	if f.contains(public) {
		out = append(out, unmap(public))
	}
	if f.contains(private) && unmap(private) != unmap(public) {
		out = append(out, unmap(private))
	}
	return out
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
