package probe

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNS classes reported by DNSChecker.
const (
	DNSResolves     = "RESOLVES"
	DNSNXDomain     = "NXDOMAIN"
	DNSNoARecord    = "NO_A_RECORD"
	DNSServfail     = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName  = "INVALID_NAME"
	defaultDNSLimit = 3 * time.Second
)

type DNSStatus struct {
	Domain        string
	Class         string
	IPs           []string
	CNAME         string
	ResolverError string
}

// DNSChecker asks one resolver directly, bypassing the OS stub, so a poisoned
// local resolver does not hide what the upstream answers.
type DNSChecker struct {
	Server  string
	Timeout time.Duration
	client  *dns.Client
}

func NewDNSChecker(server string, timeout time.Duration) *DNSChecker {
	if timeout <= 0 {
		timeout = defaultDNSLimit
	}
	return &DNSChecker{
		Server:  server,
		Timeout: timeout,
		client:  &dns.Client{Timeout: timeout},
	}
}

func (d *DNSChecker) Check(ctx context.Context, domain string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(domain)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if _, ok := dns.IsDomainName(s.Domain); !ok {
		s.Class = DNSInvalidName
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	resp, err := d.query(ctx, s.Domain, dns.TypeA)
	if err != nil {
		s.ResolverError = err.Error()
		s.Class = DNSServfail
		return s
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		s.Class = DNSNXDomain
		return s
	default:
		s.ResolverError = dns.RcodeToString[resp.Rcode]
		s.Class = DNSServfail
		return s
	}
	collect(&s, resp.Answer)

	if len(s.IPs) == 0 {
		if resp6, err := d.query(ctx, s.Domain, dns.TypeAAAA); err == nil && resp6.Rcode == dns.RcodeSuccess {
			collect(&s, resp6.Answer)
		}
	}

	if len(s.IPs) > 0 {
		s.Class = DNSResolves
	} else {
		s.Class = DNSNoARecord
	}
	return s
}

func (d *DNSChecker) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	resp, _, err := d.client.ExchangeContext(ctx, msg, d.Server)
	return resp, err
}

func collect(s *DNSStatus, answers []dns.RR) {
	for _, rr := range answers {
		switch v := rr.(type) {
		case *dns.A:
			s.IPs = append(s.IPs, v.A.String())
		case *dns.AAAA:
			s.IPs = append(s.IPs, v.AAAA.String())
		case *dns.CNAME:
			if s.CNAME == "" {
				s.CNAME = strings.TrimSuffix(v.Target, ".")
			}
		}
	}
}
