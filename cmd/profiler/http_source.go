package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/meigma/databin"
	"github.com/meigma/databin/remote"
)

func newHTTPSource(cfg config, data []byte) (databin.ByteSource, func(), error) {
	if cfg.dataURL == "" {
		return nil, nil, errors.New("data-url is required for HTTP source")
	}

	client := newHTTPClient(cfg)
	url := cfg.dataURL
	var cleanup func()
	if cfg.dataURL == "local" {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			nethttp.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(data))
		}))
		url = server.URL
		cleanup = server.Close
	}

	opts := []remote.Option{remote.WithClient(client)}
	if cfg.blockSize > 0 {
		opts = append(opts, remote.WithBlockSize(cfg.blockSize))
	}
	source, err := remote.NewSource(url, opts...)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}
	return source, cleanup, nil
}

func newHTTPClient(cfg config) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	if cfg.dataHTTPLatency > 0 || cfg.dataHTTPBPS > 0 {
		transport = &slowTransport{
			next:    transport,
			latency: cfg.dataHTTPLatency,
			bps:     cfg.dataHTTPBPS,
		}
	}
	return &nethttp.Client{Transport: transport}
}

// slowTransport delays each request and paces response bodies to a fixed
// byte rate, imitating a distant server.
type slowTransport struct {
	next    nethttp.RoundTripper
	latency time.Duration
	bps     int64
}

func (t *slowTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	time.Sleep(t.latency)
	resp, err := t.next.RoundTrip(req)
	if err != nil || t.bps <= 0 || resp.Body == nil {
		return resp, err
	}
	resp.Body = &pacedBody{ReadCloser: resp.Body, bps: t.bps, start: time.Now()}
	return resp, nil
}

type pacedBody struct {
	io.ReadCloser
	bps   int64
	start time.Time
	read  int64
}

func (b *pacedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	due := b.start.Add(time.Duration(b.read) * time.Second / time.Duration(b.bps))
	if wait := time.Until(due); wait > 0 {
		time.Sleep(wait)
	}
	return n, err
}

var rateUnits = []struct {
	suffix string
	scale  int64
}{
	{"gb", 1 << 30}, {"g", 1 << 30},
	{"mb", 1 << 20}, {"m", 1 << 20},
	{"kb", 1 << 10}, {"k", 1 << 10},
}

// parseBytesPerSecond parses rates such as "512", "64k", or "10MBps".
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.ToLower(strings.TrimSpace(value))
	for _, suffix := range []string{"/s", "bps"} {
		text = strings.TrimSuffix(text, suffix)
	}
	text = strings.TrimSpace(text)

	scale := int64(1)
	for _, unit := range rateUnits {
		if rest, ok := strings.CutSuffix(text, unit.suffix); ok {
			text, scale = strings.TrimSpace(rest), unit.scale
			break
		}
	}

	raw, err := strconv.ParseInt(text, 10, 64)
	if err != nil || raw <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return raw * scale, nil
}
