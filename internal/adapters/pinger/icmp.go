package pinger

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
)

// encodeEcho serializes an ICMPv4 echo message with a valid checksum.
func encodeEcho(typ uint8, id, seq uint16, payload []byte) ([]byte, error) {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, 0),
		Id:       id,
		Seq:      seq,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, icmp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize echo: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeEchoReply parses an ICMPv4 message and reports whether it is an echo
// reply, returning its identifier and sequence number.
func decodeEchoReply(data []byte) (id, seq uint16, ok bool) {
	packet := gopacket.NewPacket(data, layers.LayerTypeICMPv4, gopacket.NoCopy)
	layer := packet.Layer(layers.LayerTypeICMPv4)
	if layer == nil {
		return 0, 0, false
	}
	icmp, _ := layer.(*layers.ICMPv4)
	if icmp == nil || icmp.TypeCode.Type() != layers.ICMPv4TypeEchoReply {
		return 0, 0, false
	}
	return icmp.Id, icmp.Seq, true
}

// summarize folds the round trips of one probe run into a result. Loss is
// rounded down to a whole percent.
func summarize(sent int, rtts []time.Duration) ports.PingResult {
	res := ports.PingResult{Loss: 100}
	if sent <= 0 {
		return res
	}
	res.Loss = (sent - len(rtts)) * 100 / sent
	if len(rtts) == 0 {
		return res
	}

	res.Reachable = true
	minMs, maxMs, sum := ms(rtts[0]), ms(rtts[0]), 0.0
	for _, d := range rtts {
		v := ms(d)
		sum += v
		if v < minMs {
			minMs = v
		}
		if v > maxMs {
			maxMs = v
		}
	}
	res.RTTMin = domain.Float(minMs)
	res.RTTAvg = domain.Float(sum / float64(len(rtts)))
	res.RTTMax = domain.Float(maxMs)
	return res
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
