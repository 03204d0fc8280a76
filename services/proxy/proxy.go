// Package proxy picks the fastest reachable SOCKS5 proxy for the browser session
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"sjsage522/orbscreener/logger"
)

// ProxyInfo holds proxy information with latency
type ProxyInfo struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Latency  time.Duration `json:"latency"`
	LastTest time.Time     `json:"last_test"`
	Working  bool          `json:"working"`
}

// Address returns host:port
func (p ProxyInfo) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// URL returns the proxy in the form Chrome's --proxy-server expects
func (p ProxyInfo) URL() string {
	return "socks5://" + p.Address()
}

// Selector tests a fixed list of proxies and ranks them by latency
type Selector struct {
	proxies     []ProxyInfo
	dialTimeout time.Duration
	concurrency int
	log         *logger.Logger
}

// NewSelector parses entries of the form host:port or socks5://host:port
func NewSelector(entries []string) (*Selector, error) {
	s := &Selector{
		dialTimeout: 5 * time.Second,
		concurrency: 10,
		log:         logger.ForSource("proxy"),
	}
	for _, entry := range entries {
		p, err := parseProxy(entry)
		if err != nil {
			return nil, err
		}
		s.proxies = append(s.proxies, p)
	}
	return s, nil
}

func parseProxy(entry string) (ProxyInfo, error) {
	entry = strings.TrimSpace(entry)
	if !strings.Contains(entry, "://") {
		entry = "socks5://" + entry
	}
	u, err := url.Parse(entry)
	if err != nil {
		return ProxyInfo{}, fmt.Errorf("parse proxy %q: %w", entry, err)
	}
	if u.Scheme != "socks5" {
		return ProxyInfo{}, fmt.Errorf("proxy %q: unsupported scheme %q", entry, u.Scheme)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 || u.Hostname() == "" {
		return ProxyInfo{}, fmt.Errorf("proxy %q: want host:port", entry)
	}
	return ProxyInfo{Host: u.Hostname(), Port: port}, nil
}

// Fastest tests every proxy and returns the working one with the lowest latency
func (s *Selector) Fastest(ctx context.Context) (*ProxyInfo, error) {
	working := s.Test(ctx)
	if len(working) == 0 {
		return nil, fmt.Errorf("no working proxy among %d candidates", len(s.proxies))
	}
	fastest := working[0]
	s.log.Info().
		Str("proxy", fastest.Address()).
		Dur("latency", fastest.Latency).
		Msg("Selected proxy")
	return &fastest, nil
}

// Test checks all proxies concurrently and returns the working ones sorted by latency
func (s *Selector) Test(ctx context.Context) []ProxyInfo {
	results := make([]ProxyInfo, len(s.proxies))
	copy(results, s.proxies)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)
	for i := range results {
		wg.Add(1)
		go func(proxy *ProxyInfo) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			s.testProxyLatency(ctx, proxy)
		}(&results[i])
	}
	wg.Wait()

	var working []ProxyInfo
	for _, p := range results {
		if p.Working {
			working = append(working, p)
		}
	}
	sort.Slice(working, func(i, j int) bool {
		return working[i].Latency < working[j].Latency
	})
	s.log.Debug().Int("candidates", len(results)).Int("working", len(working)).Msg("Proxy test complete")
	return working
}

// testProxyLatency measures TCP connect plus a SOCKS5 greeting
func (s *Selector) testProxyLatency(ctx context.Context, proxy *ProxyInfo) {
	start := time.Now()
	proxy.LastTest = start

	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxy.Address())
	if err != nil {
		s.log.Debug().Str("proxy", proxy.Address()).Err(err).Msg("TCP connection failed")
		proxy.Working = false
		return
	}
	defer conn.Close()

	if !socks5Handshake(conn, s.dialTimeout) {
		s.log.Debug().Str("proxy", proxy.Address()).Msg("SOCKS5 handshake failed")
		proxy.Working = false
		return
	}

	proxy.Working = true
	proxy.Latency = time.Since(start)
}

// socks5Handshake sends a no-auth greeting and expects the server to accept it
func socks5Handshake(conn net.Conn, timeout time.Duration) bool {
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	// VER=5, NMETHODS=1, METHODS=0 (no authentication)
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return false
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return false
	}
	return resp[0] == 0x05 && resp[1] == 0x00
}
