package socks

import "fmt"

const (
	SOCKS4VERSION uint8 = 4
	SOCKS5VERSION uint8 = 5
)

const (
	MethodNoAuth       uint8 = 0x00
	MethodUserPass     uint8 = 0x02
	MethodNoAcceptable uint8 = 0xFF
)

// UserPassVersion is the sub-negotiation version of RFC 1929.
const UserPassVersion uint8 = 1

const RequestConnect uint8 = 1

const (
	RequestAtypIPV4       uint8 = 1
	RequestAtypDomainname uint8 = 3
	RequestAtypIPV6       uint8 = 4
)

const (
	Succeeded uint8 = iota
	Failure
	Allowed
	NetUnreachable
	HostUnreachable
	ConnRefused
	TTLExpired
	CmdUnsupported
	AddrUnsupported
)

// SOCKS4 reply codes.
const (
	Socks4Granted        uint8 = 0x5A
	Socks4Rejected       uint8 = 0x5B
	Socks4IdentdFailed   uint8 = 0x5C
	Socks4IdentdMismatch uint8 = 0x5D
)

var socks5Replies = map[uint8]string{
	Failure:         "general failure",
	Allowed:         "connection not allowed by ruleset",
	NetUnreachable:  "network unreachable",
	HostUnreachable: "host unreachable",
	ConnRefused:     "connection refused",
	TTLExpired:      "TTL expired",
	CmdUnsupported:  "command not supported",
	AddrUnsupported: "address type not supported",
}

var socks4Replies = map[uint8]string{
	Socks4Rejected:       "request rejected or failed",
	Socks4IdentdFailed:   "identd unreachable",
	Socks4IdentdMismatch: "identd user mismatch",
}

// Version selects the upstream proxy dialect.
type Version int

const (
	HTTP Version = iota
	SOCKS4
	SOCKS5
)

func (v Version) String() string {
	switch v {
	case HTTP:
		return "http"
	case SOCKS4:
		return "socks4"
	case SOCKS5:
		return "socks5"
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// ParseVersion accepts the names produced by Version.String.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "http", "HTTP":
		return HTTP, nil
	case "socks4", "SOCKS4":
		return SOCKS4, nil
	case "socks5", "SOCKS5", "":
		return SOCKS5, nil
	}
	return 0, fmt.Errorf("unknown proxy type %q", s)
}
