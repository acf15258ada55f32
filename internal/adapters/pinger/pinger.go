package pinger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/meshmon/internal/core/ports"
)

// ICMPPinger sends ICMPv4 echo requests over a raw socket. It needs
// CAP_NET_RAW.
type ICMPPinger struct {
	Count    int
	Timeout  time.Duration
	Interval time.Duration
}

// NewICMPPinger returns a pinger sending count probes per node.
func NewICMPPinger(count int, timeout time.Duration) *ICMPPinger {
	if count <= 0 {
		count = 3
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ICMPPinger{Count: count, Timeout: timeout, Interval: 200 * time.Millisecond}
}

// Ping probes ip. An unreachable host is not an error.
func (p *ICMPPinger) Ping(ctx context.Context, ip string) (ports.PingResult, error) {
	dst := net.ParseIP(ip)
	if dst == nil || dst.To4() == nil {
		return ports.PingResult{}, fmt.Errorf("invalid IPv4 address %q", ip)
	}

	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return ports.PingResult{}, fmt.Errorf("open icmp socket: %w", err)
	}
	defer conn.Close()

	id := uint16(os.Getpid()) ^ uint16(rand.Intn(1<<16))
	target := &net.IPAddr{IP: dst}
	var rtts []time.Duration

	for seq := 0; seq < p.Count; seq++ {
		if seq > 0 {
			select {
			case <-ctx.Done():
				return summarize(seq, rtts), ctx.Err()
			case <-time.After(p.Interval):
			}
		}

		rtt, err := p.probe(ctx, conn, target, id, uint16(seq))
		if err != nil {
			return ports.PingResult{}, err
		}
		if rtt > 0 {
			rtts = append(rtts, rtt)
		}
	}
	return summarize(p.Count, rtts), nil
}

// probe sends one echo request and waits for its reply. A zero duration
// means the probe timed out.
func (p *ICMPPinger) probe(ctx context.Context, conn net.PacketConn, target *net.IPAddr, id, seq uint16) (time.Duration, error) {
	msg, err := encodeEcho(layers.ICMPv4TypeEchoRequest, id, seq, []byte("meshmon"))
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(msg, target); err != nil {
		return 0, fmt.Errorf("send echo: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return 0, nil
			}
			return 0, fmt.Errorf("read echo reply: %w", err)
		}
		addr, ok := from.(*net.IPAddr)
		if !ok || !addr.IP.Equal(target.IP) {
			continue
		}
		if rid, rseq, ok := decodeEchoReply(buf[:n]); ok && rid == id && rseq == seq {
			return time.Since(start), nil
		}
	}
}

var _ ports.Pinger = (*ICMPPinger)(nil)
