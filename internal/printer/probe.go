package printer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// discardPort receives the fallback UDP datagram. Any port works; the point is
// to make the kernel resolve the neighbour.
const discardPort = "9"

// protocolICMP is the IANA protocol number used by icmp.ParseMessage.
const protocolICMP = 1

// ICMPProber sends one ICMP echo per probe using an unprivileged datagram
// socket, falling back to a UDP datagram when ICMP sockets are not permitted.
// Either packet is enough to populate the neighbour table.
type ICMPProber struct {
	Timeout time.Duration
}

// NewICMPProber returns a prober waiting at most timeout per probe.
func NewICMPProber(timeout time.Duration) *ICMPProber {
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	return &ICMPProber{Timeout: timeout}
}

// Probe implements Prober. A missing reply is not an error; the caller rereads
// the neighbour table either way.
func (p *ICMPProber) Probe(ctx context.Context, ip netip.Addr) error {
	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err := p.echo(ip, deadline)
	if err == nil {
		return nil
	}
	if udpErr := p.udp(ctx, ip, deadline); udpErr != nil {
		return fmt.Errorf("probing %s: icmp: %w; udp: %w", ip, err, udpErr)
	}
	return nil
}

func (p *ICMPProber) echo(ip netip.Addr, deadline time.Time) error {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return err
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("printwatch"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	if _, err := conn.WriteTo(wb, &net.UDPAddr{IP: ip.AsSlice()}); err != nil {
		return err
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			// Timeout: the request still went out, which is what matters.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			return err
		}
		reply, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply && peerIs(peer, ip) {
			return nil
		}
	}
}

func (p *ICMPProber) udp(ctx context.Context, ip netip.Addr, deadline time.Time) error {
	d := net.Dialer{Deadline: deadline}
	conn, err := d.DialContext(ctx, "udp4", net.JoinHostPort(ip.String(), discardPort))
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte{0})
	return err
}

func peerIs(peer net.Addr, ip netip.Addr) bool {
	u, ok := peer.(*net.UDPAddr)
	if !ok {
		return false
	}
	a, ok := netip.AddrFromSlice(u.IP)
	return ok && a.Unmap() == ip
}
