package socks

import (
	"encoding/binary"
	"fmt"
	"net"
)

const maxFieldLen = 255

// AddressType classifies host as an IPv4, IPv6 or domain destination.
func AddressType(host string) uint8 {
	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return RequestAtypDomainname
	case ip.To4() != nil:
		return RequestAtypIPV4
	default:
		return RequestAtypIPV6
	}
}

// EncodeAddress renders host in the DST.ADDR layout for atyp.
func EncodeAddress(atyp uint8, host string) ([]byte, error) {
	switch atyp {
	case RequestAtypIPV4:
		ip := net.ParseIP(host).To4()
		if ip == nil {
			return nil, fmt.Errorf("%w: %q is not an ipv4 address", ErrUnsupportedAddress, host)
		}
		return []byte(ip), nil
	case RequestAtypIPV6:
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() != nil {
			return nil, fmt.Errorf("%w: %q is not an ipv6 address", ErrUnsupportedAddress, host)
		}
		return []byte(ip.To16()), nil
	case RequestAtypDomainname:
		if len(host) == 0 || len(host) > maxFieldLen {
			return nil, fmt.Errorf("%w: domain length %d", ErrUnsupportedAddress, len(host))
		}
		b := make([]byte, 0, len(host)+1)
		b = append(b, byte(len(host)))
		return append(b, host...), nil
	}
	return nil, fmt.Errorf("%w: address type %d", ErrUnsupportedAddress, atyp)
}

// PortBytes encodes port big-endian.
func PortBytes(port uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, port)
	return b
}

/*
	SOCKS4 CONNECT
	+----+----+----+----+----+----+----+----+----+----+....+----+
	| VN | CD | DSTPORT |      DSTIP        | USERID       |NULL|
	+----+----+----+----+----+----+----+----+----+----+....+----+
	   1    1      2              4           variable       1
*/
func Socks4Request(ip net.IP, port uint16, userID string) ([]byte, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: socks4 needs an ipv4 destination, got %v", ErrUnsupportedAddress, ip)
	}
	if len(userID) > maxFieldLen {
		return nil, fmt.Errorf("socks4 user id too long: %d bytes", len(userID))
	}
	req := make([]byte, 0, 9+len(userID))
	req = append(req, SOCKS4VERSION, RequestConnect)
	req = append(req, PortBytes(port)...)
	req = append(req, ip4...)
	req = append(req, userID...)
	return append(req, 0x00), nil
}

/*
	+-----+----------+-----------+
	| VER | NMETHODS |  METHODS  |
	+-----+----------+-----------+
	|  1  |    1     |  1 to 255 |
	+-----+----------+-----------+
*/
func Socks5Greeting(method uint8) []byte {
	return []byte{SOCKS5VERSION, 1, method}
}

/*
	+-----+------+----------+------+----------+
	| VER | ULEN |  UNAME   | PLEN |  PASSWD  |
	+-----+------+----------+------+----------+
	|  1  |  1   | 1 to 255 |  1   | 1 to 255 |
	+-----+------+----------+------+----------+
*/
func Socks5AuthRequest(username, password string) ([]byte, error) {
	if len(username) > maxFieldLen || len(password) > maxFieldLen {
		return nil, fmt.Errorf("credentials exceed %d bytes", maxFieldLen)
	}
	req := make([]byte, 0, 3+len(username)+len(password))
	req = append(req, UserPassVersion, byte(len(username)))
	req = append(req, username...)
	req = append(req, byte(len(password)))
	return append(req, password...), nil
}

/*
	+----+-----+-------+------+----------+----------+
	|VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
	+----+-----+-------+------+----------+----------+
	| 1  |  1  | X'00' |  1   | Variable |    2     |
	+----+-----+-------+------+----------+----------+
*/
func Socks5ConnectRequest(atyp uint8, host string, port uint16) ([]byte, error) {
	addr, err := EncodeAddress(atyp, host)
	if err != nil {
		return nil, err
	}
	req := make([]byte, 0, 6+len(addr))
	req = append(req, SOCKS5VERSION, RequestConnect, 0x00, atyp)
	req = append(req, addr...)
	return append(req, PortBytes(port)...), nil
}

// socks5BoundAddrLen is the length of BND.ADDR plus BND.PORT that follows
// the four fixed bytes of a reply. lenByte is only used for domain replies.
func socks5BoundAddrLen(atyp uint8, lenByte byte) (int, error) {
	switch atyp {
	case RequestAtypIPV4:
		return net.IPv4len + 2, nil
	case RequestAtypIPV6:
		return net.IPv6len + 2, nil
	case RequestAtypDomainname:
		return 1 + int(lenByte) + 2, nil
	}
	return 0, fmt.Errorf("%w: reply address type %d", ErrInvalidResponse, atyp)
}
