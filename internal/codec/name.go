package codec

import (
	"encoding/binary"
	"net/netip"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"github.com/robgonnella/lanmap/internal/exception"
)

const (
	dnsHeaderLen = 12
	reverseZone  = ".in-addr.arpa."
	// ServicesName the DNS-SD meta query enumerating advertised service types
	ServicesName = "_services._dns-sd._udp.local."
	// MDNSPort port mDNS responders listen on
	MDNSPort = 5353
	// DNSPort port unicast resolvers listen on
	DNSPort = 53
)

// NameReply a decoded DNS or mDNS response
type NameReply struct {
	Multicast bool
	ID        uint16
	// Addr the address the query was about
	Addr     netip.Addr
	Names    []string
	Services []string
}

// Protocol implements Reply
func (r *NameReply) Protocol() Protocol {
	if r.Multicast {
		return MDNS
	}
	return DNS
}

// Source implements Reply
func (r *NameReply) Source() netip.Addr {
	return r.Addr
}

type nameCodec struct {
	mdns bool
}

func (c nameCodec) Protocol() Protocol {
	if c.mdns {
		return MDNS
	}
	return DNS
}

// EncodeProbe builds a PTR query for probe.Target using probe.Seq as the
// transaction id. The mDNS variant also asks the host for its advertised
// service types; sent from an ephemeral port it is answered unicast.
func (c nameCodec) EncodeProbe(probe Probe, _ Identity) ([]byte, error) {
	reverse, err := dns.ReverseAddr(probe.Target.String())

	if err != nil {
		return nil, err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(reverse, dns.TypePTR)
	msg.Id = probe.Seq

	if c.mdns {
		msg.RecursionDesired = false
		msg.Question = append(msg.Question, dns.Question{
			Name:   ServicesName,
			Qtype:  dns.TypePTR,
			Qclass: dns.ClassINET,
		})
	}

	return msg.Pack()
}

// EncodeNameReply builds the response a resolver (or an mDNS responder
// when multicast is set) would send for addr with the given names and
// service types
func EncodeNameReply(
	multicast bool,
	id uint16,
	addr netip.Addr,
	names []string,
	services []string,
) ([]byte, error) {
	reverse, err := dns.ReverseAddr(addr.String())

	if err != nil {
		return nil, err
	}

	msg := new(dns.Msg)
	msg.Id = id
	msg.Response = true
	msg.Authoritative = multicast
	msg.Question = []dns.Question{{Name: reverse, Qtype: dns.TypePTR, Qclass: dns.ClassINET}}

	for _, name := range names {
		msg.Answer = append(msg.Answer, &dns.PTR{
			Hdr: dns.RR_Header{Name: reverse, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
			Ptr: dns.Fqdn(name),
		})
	}

	for _, service := range services {
		msg.Answer = append(msg.Answer, &dns.PTR{
			Hdr: dns.RR_Header{Name: ServicesName, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
			Ptr: dns.Fqdn(service + ".local"),
		})
	}

	return msg.Pack()
}

// DecodeReply decodes a DNS message. Only responses are accepted. The
// queried address is recovered from the reverse name in the question or
// answers, so replies can be matched without the transaction id.
func (c nameCodec) DecodeReply(frame []byte) (Reply, error) {
	proto := c.Protocol().String()

	if len(frame) < dnsHeaderLen {
		return nil, exception.NewDecodeError(proto, "message too short: %d bytes", len(frame))
	}

	msg := new(dns.Msg)

	if err := msg.Unpack(frame); err != nil {
		return nil, exception.NewDecodeError(proto, "%s", err)
	}

	// the unpacker tolerates messages cut at a record boundary
	if !countsMatch(frame, msg) {
		return nil, exception.NewDecodeError(proto, "section counts do not match message body")
	}

	if !msg.Response {
		return nil, exception.NewDecodeError(proto, "not a response")
	}

	reply := &NameReply{
		Multicast: c.mdns,
		ID:        msg.Id,
	}

	for _, q := range msg.Question {
		if addr, ok := fromReverse(q.Name); ok {
			reply.Addr = addr
			break
		}
	}

	names := map[string]bool{}
	services := map[string]bool{}
	records := append(append([]dns.RR{}, msg.Answer...), msg.Extra...)

	for _, rr := range records {
		switch r := rr.(type) {
		case *dns.PTR:
			owner := strings.ToLower(r.Hdr.Name)

			if addr, ok := fromReverse(owner); ok {
				if !reply.Addr.IsValid() {
					reply.Addr = addr
				}

				if addr == reply.Addr {
					names[r.Ptr] = true
				}

				continue
			}

			if owner == ServicesName {
				services[serviceType(r.Ptr)] = true
				continue
			}

			if strings.HasPrefix(owner, "_") {
				services[serviceType(owner)] = true
			}
		case *dns.SRV:
			if s := serviceType(r.Hdr.Name); strings.HasPrefix(s, "_") {
				services[s] = true
			}
		}
	}

	// mDNS responders often answer with A records only
	for _, rr := range records {
		a, ok := rr.(*dns.A)

		if !ok {
			continue
		}

		addr, ok := netip.AddrFromSlice(a.A.To4())

		if !ok {
			continue
		}

		if !reply.Addr.IsValid() {
			reply.Addr = addr
		}

		if addr == reply.Addr {
			names[a.Hdr.Name] = true
		}
	}

	delete(services, "")

	reply.Names = sortedKeys(names)
	reply.Services = sortedKeys(services)

	return reply, nil
}

func countsMatch(frame []byte, msg *dns.Msg) bool {
	return int(binary.BigEndian.Uint16(frame[4:6])) == len(msg.Question) &&
		int(binary.BigEndian.Uint16(frame[6:8])) == len(msg.Answer) &&
		int(binary.BigEndian.Uint16(frame[8:10])) == len(msg.Ns) &&
		int(binary.BigEndian.Uint16(frame[10:12])) == len(msg.Extra)
}

// fromReverse parses "4.3.2.1.in-addr.arpa." into 1.2.3.4
func fromReverse(name string) (netip.Addr, bool) {
	name = dns.Fqdn(strings.ToLower(name))

	if !strings.HasSuffix(name, reverseZone) {
		return netip.Addr{}, false
	}

	labels := strings.Split(strings.TrimSuffix(name, reverseZone), ".")

	if len(labels) != 4 {
		return netip.Addr{}, false
	}

	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}

	addr, err := netip.ParseAddr(strings.Join(labels, "."))

	if err != nil || !addr.Is4() {
		return netip.Addr{}, false
	}

	return addr, true
}

// serviceType reduces a DNS-SD name to its "_service._proto" type
func serviceType(name string) string {
	labels := dns.SplitDomainName(strings.ToLower(name))

	for i := 0; i+1 < len(labels); i++ {
		if strings.HasPrefix(labels[i], "_") && (labels[i+1] == "_tcp" || labels[i+1] == "_udp") {
			return labels[i] + "." + labels[i+1]
		}
	}

	return ""
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
