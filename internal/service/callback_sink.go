package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"momopay/internal/domain"
	"momopay/pkg/payment"
)

// ErrCallbackURLNotAllowed is returned for callback URLs that are not public https endpoints.
var ErrCallbackURLNotAllowed = errors.New("callback url not allowed")

// CallbackSink POSTs each event to the merchant's callback URL, signed with
// HMAC-SHA256 in X-Callback-Signature. Only https URLs resolving to public
// addresses are called.
type CallbackSink struct {
	secret string
	client *http.Client

	// allowPrivate lifts the address check; tests point the sink at loopback servers.
	allowPrivate bool
	lookup       func(ctx context.Context, host string) ([]net.IPAddr, error)
}

func NewCallbackSink(secret string, hc *http.Client) *CallbackSink {
	if hc == nil {
		hc = &http.Client{
			Timeout:   10 * time.Second,
			Transport: publicOnlyTransport(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &CallbackSink{secret: secret, client: hc, lookup: net.DefaultResolver.LookupIPAddr}
}

// publicOnlyTransport refuses connections to non-public addresses at dial time,
// so a host that re-resolves after the check still cannot reach internal services.
func publicOnlyTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !publicIP(ip) {
				return fmt.Errorf("%w: %s", ErrCallbackURLNotAllowed, address)
			}
			return nil
		},
	}
	t.DialContext = dialer.DialContext
	t.Proxy = nil
	return t
}

func (s *CallbackSink) Name() string { return "callback" }

func (s *CallbackSink) Deliver(ctx context.Context, ev domain.Event) error {
	if ev.CallbackURL == "" {
		return nil
	}
	if err := s.checkURL(ctx, ev.CallbackURL); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ev.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Callback-Event", string(ev.To))
	if s.secret != "" {
		req.Header.Set("X-Callback-Signature", "sha256="+payment.Sign(s.secret, body))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback %s: status %d", ev.CallbackURL, resp.StatusCode)
	}
	return nil
}

func (s *CallbackSink) checkURL(ctx context.Context, raw string) error {
	u, err := ValidateCallbackURL(raw)
	if err != nil {
		return err
	}
	if s.allowPrivate {
		return nil
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return nil
	}
	addrs, err := s.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("callback %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s does not resolve", ErrCallbackURLNotAllowed, host)
	}
	for _, a := range addrs {
		if !publicIP(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrCallbackURLNotAllowed, host, a.IP)
		}
	}
	return nil
}

// ValidateCallbackURL checks what can be known without DNS: an absolute https URL
// without credentials whose host, if an IP literal, is a public address.
func ValidateCallbackURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackURLNotAllowed, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return nil, fmt.Errorf("%w: scheme must be https", ErrCallbackURLNotAllowed)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials in url", ErrCallbackURLNotAllowed)
	}
	host := u.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, fmt.Errorf("%w: host %q", ErrCallbackURLNotAllowed, host)
	}
	if ip := net.ParseIP(host); ip != nil && !publicIP(ip) {
		return nil, fmt.Errorf("%w: address %s", ErrCallbackURLNotAllowed, ip)
	}
	return u, nil
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() || sharedAddressSpace.Contains(ip))
}
