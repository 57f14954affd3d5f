// Package metrics delivers per-epoch training logs to external consumers.
package metrics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Record is one epoch's log as handed to a sink
type Record struct {
	RunID string                 `json:"run_id"`
	Epoch int                    `json:"epoch"`
	Time  time.Time              `json:"time"`
	Log   map[string]interface{} `json:"log"`
}

// Sink accepts per-epoch records. Values are scalars or lists keyed by string.
type Sink interface {
	Write(rec Record) error
	Close() error
}

// =============================================================================
// Sink Implementations
// =============================================================================

// ConsoleSink prints scalar entries of each record to stdout in key order
type ConsoleSink struct {
	Verbose bool // If true, also print list values (can be large!)
}

func (s *ConsoleSink) Write(rec Record) error {
	keys := make([]string, 0, len(rec.Log))
	for k := range rec.Log {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("[epoch %d]", rec.Epoch)
	for _, k := range keys {
		switch v := rec.Log[k].(type) {
		case float64:
			fmt.Printf(" %s=%.4f", k, v)
		case float32, int, bool, string:
			fmt.Printf(" %s=%v", k, v)
		default:
			if s.Verbose {
				fmt.Printf(" %s=%v", k, v)
			}
		}
	}
	fmt.Println()
	return nil
}

func (s *ConsoleSink) Close() error { return nil }

// ChannelSink sends records to a Go channel, dropping them when it is full
type ChannelSink struct {
	Records chan Record
}

func NewChannelSink(bufferSize int) *ChannelSink {
	return &ChannelSink{Records: make(chan Record, bufferSize)}
}

func (s *ChannelSink) Write(rec Record) error {
	select {
	case s.Records <- rec:
	default:
		// Channel full, drop record to avoid blocking
	}
	return nil
}

func (s *ChannelSink) Close() error {
	close(s.Records)
	return nil
}

// JSONLSink appends one JSON object per record to a file
type JSONLSink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open metrics file %s", path)
	}
	return &JSONLSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *JSONLSink) Write(rec Record) error {
	data, err := json.Marshal(sanitize(rec))
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "write record")
	}
	return s.w.Flush()
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// HTTPSink posts each record as JSON to an endpoint
type HTTPSink struct {
	URL    string
	client *http.Client
}

func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		URL:    url,
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

func (s *HTTPSink) Write(rec Record) error {
	data, err := json.Marshal(sanitize(rec))
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	resp, err := s.client.Post(s.URL, "application/json", bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "post to %s", s.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("post to %s: status %s", s.URL, resp.Status)
	}
	return nil
}

func (s *HTTPSink) Close() error { return nil }

// Multi fans a record out to several sinks and returns the first error
type Multi []Sink

func (m Multi) Write(rec Record) error {
	var first error
	for _, s := range m {
		if err := s.Write(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// sanitize replaces Inf and NaN scalars, which encoding/json rejects
func sanitize(rec Record) Record {
	out := rec
	out.Log = make(map[string]interface{}, len(rec.Log))
	for k, v := range rec.Log {
		if f, ok := v.(float64); ok {
			v = sanitizeFloat(f)
		}
		out.Log[k] = v
	}
	return out
}

func sanitizeFloat(v float64) float64 {
	if math.IsInf(v, 1) {
		return 1e9
	} else if math.IsInf(v, -1) {
		return -1e9
	} else if math.IsNaN(v) {
		return 0.0
	}
	return v
}
