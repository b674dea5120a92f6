// Package remote opens containers served over HTTP.
//
// A Source satisfies databin.ByteSource using HTTP range requests, so a
// container can be inspected without downloading it first. Reads are
// served from fixed-size cached blocks, which turns the many small header
// and payload reads of a load into a few large requests.
package remote

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
)

// DefaultBlockSize is the size of each cached block.
const DefaultBlockSize int64 = 256 << 10

// DefaultMaxBlocks bounds the number of cached blocks (64MB at the default size).
const DefaultMaxBlocks = 256

// ErrRangeUnsupported is returned when the server ignores range requests.
var ErrRangeUnsupported = errors.New("remote: range requests not supported")

// Source implements random access reads via HTTP range requests.
type Source struct {
	url          string
	client       *nethttp.Client
	headers      nethttp.Header
	size         int64
	etag         string
	lastModified string
	logger       *slog.Logger

	blockSize int64
	maxBlocks int

	mu       sync.Mutex
	blocks   map[int64][]byte
	order    []int64 // insertion order for eviction
	requests int
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithBlockSize sets the size of each cached block.
func WithBlockSize(size int64) Option {
	return func(s *Source) {
		s.blockSize = size
	}
}

// WithMaxBlocks bounds the number of cached blocks.
func WithMaxBlocks(n int) Option {
	return func(s *Source) {
		s.maxBlocks = n
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource creates a Source for url. It probes the server to learn the
// content size and validators, which later reads send as preconditions so
// a changed file fails instead of mixing versions.
func NewSource(url string, opts ...Option) (*Source, error) {
	s := &Source{
		url:       url,
		client:    nethttp.DefaultClient,
		blockSize: DefaultBlockSize,
		maxBlocks: DefaultMaxBlocks,
		blocks:    make(map[int64][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.blockSize <= 0 {
		s.blockSize = DefaultBlockSize
	}
	if s.maxBlocks <= 0 {
		s.maxBlocks = DefaultMaxBlocks
	}

	size, etag, lastModified, err := s.rangeProbe()
	if err != nil {
		return nil, err
	}
	s.size, s.etag, s.lastModified = size, etag, lastModified
	s.log().Debug("remote source opened", "url", url, "size", size, "etag", etag)
	return s, nil
}

func (s *Source) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// Requests returns the number of range requests issued after the probe.
func (s *Source) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// ReadAt reads len(p) bytes at off, fetching uncached blocks.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= s.size {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && off+int64(n) < s.size {
		pos := off + int64(n)
		index := pos / s.blockSize
		block, err := s.block(index)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], block[pos-index*s.blockSize:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// block returns the cached block at index, fetching it if needed.
// Concurrent misses on the same block may fetch it twice.
func (s *Source) block(index int64) ([]byte, error) {
	s.mu.Lock()
	if b, ok := s.blocks[index]; ok {
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	start := index * s.blockSize
	end := min(start+s.blockSize, s.size) - 1
	b, err := s.fetch(start, end)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if _, ok := s.blocks[index]; !ok {
		if len(s.order) >= s.maxBlocks {
			delete(s.blocks, s.order[0])
			s.order = s.order[1:]
		}
		s.blocks[index] = b
		s.order = append(s.order, index)
	}
	return b, nil
}

// fetch reads the inclusive byte range [start, end].
func (s *Source) fetch(start, end int64) ([]byte, error) {
	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		// ok
	case nethttp.StatusOK:
		return nil, ErrRangeUnsupported
	default:
		return nil, fmt.Errorf("range request failed: %s", resp.Status)
	}

	buf := make([]byte, end-start+1)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, fmt.Errorf("read range %d-%d: %w", start, end, err)
	}
	s.log().Debug("fetched range", "start", start, "end", end)
	return buf, nil
}

func (s *Source) rangeProbe() (int64, string, string, error) {
	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return 0, "", "", err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != nethttp.StatusPartialContent {
		if resp.StatusCode == nethttp.StatusOK {
			return 0, "", "", ErrRangeUnsupported
		}
		return 0, "", "", fmt.Errorf("range probe failed: %s", resp.Status)
	}

	crange := resp.Header.Get("Content-Range")
	if crange == "" {
		return 0, "", "", errors.New("range probe missing Content-Range")
	}
	size, err := parseContentRange(crange)
	if err != nil {
		return 0, "", "", err
	}
	return size, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
}

func (s *Source) newRequest(method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequest(method, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if s.etag != "" && req.Header.Get("If-Match") == "" {
		req.Header.Set("If-Match", s.etag)
	}
	if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
		req.Header.Set("If-Unmodified-Since", s.lastModified)
	}
	return req, nil
}

func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}

// IsURL reports whether name should be opened with NewSource.
func IsURL(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}
