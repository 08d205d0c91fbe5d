package server

import (
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/skip2/go-qrcode"
)

// LocalAddress returns the address this machine uses for outbound traffic,
// or fallback when there is no route. No packets are sent.
func LocalAddress(fallback string) string {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return fallback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return fallback
	}
	return addr.IP.String()
}

// AdvertiseAddr turns a listen address into one other players can dial:
// unspecified hosts are replaced by LocalAddress.
func AdvertiseAddr(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return listenAddr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = LocalAddress("127.0.0.1")
	}
	return net.JoinHostPort(host, port)
}

// AdvertiseQR prints content as a QR code using half-block characters, two
// modules per text row.
func AdvertiseQR(w io.Writer, content string) error {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to build QR code: %w", err)
	}

	bitmap := q.Bitmap()
	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteRune(' ')
			}
		}
		b.WriteByte('\n')
	}

	_, err = io.WriteString(w, b.String())
	return err
}
