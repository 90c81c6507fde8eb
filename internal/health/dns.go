package health

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

// DNSChecker probes by resolving a well-known name against the target
// resolver. A reply of any rcode counts as healthy; the probe only cares
// whether the resolver is reachable through the tunnel.
type DNSChecker struct {
	target  string
	timeout time.Duration
}

// NewDNSChecker creates a DNS health checker.
func NewDNSChecker(cfg Config) *DNSChecker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	target := cfg.Target
	if target == "" {
		target = "1.1.1.1:53"
	}
	return &DNSChecker{target: target, timeout: timeout}
}

// Check sends one A query to the target resolver.
func (c *DNSChecker) Check(ctx context.Context) Result {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn("example.com"), dns.TypeA)

	client := &dns.Client{Timeout: c.timeout}

	start := time.Now()
	_, rtt, err := client.ExchangeContext(ctx, msg, c.target)

	result := Result{
		Latency:   rtt,
		Timestamp: time.Now(),
	}
	if result.Latency == 0 {
		result.Latency = time.Since(start)
	}

	if err != nil {
		result.Healthy = false
		result.Error = err.Error()
		result.Message = "DNS query failed"
		return result
	}

	result.Healthy = true
	result.Message = "DNS query successful"
	return result
}

// Type returns the checker type.
func (c *DNSChecker) Type() string {
	return "dns"
}
