package metrics

import (
	"bufio"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testRecord() Record {
	return Record{
		RunID: "run-1",
		Epoch: 3,
		Log: map[string]interface{}{
			"train_loss":      0.25,
			"val_acc":         math.NaN(),
			"mask_sizes_l0":   []int{4, 4},
			"sparse_level_l0": 0.5,
		},
	}
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	s, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(testRecord()); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(testRecord()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("Line %d is not valid JSON: %v", lines, err)
		}
		if rec.Epoch != 3 || rec.Log["train_loss"] != 0.25 || rec.Log["val_acc"] != 0.0 {
			t.Errorf("Unexpected record %+v", rec)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("Expected 2 lines, got %d", lines)
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	s := NewChannelSink(1)
	s.Write(testRecord())
	s.Write(testRecord())
	if len(s.Records) != 1 {
		t.Errorf("Expected 1 buffered record, got %d", len(s.Records))
	}
	s.Close()
}

func TestHTTPSink(t *testing.T) {
	got := make(chan Record, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var rec Record
		json.Unmarshal(body, &rec)
		got <- rec
	}))
	defer srv.Close()

	if err := NewHTTPSink(srv.URL).Write(testRecord()); err != nil {
		t.Fatal(err)
	}
	rec := <-got
	if rec.RunID != "run-1" {
		t.Errorf("Expected run-1, got %q", rec.RunID)
	}
}

func TestHTTPSinkStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewHTTPSink(srv.URL).Write(testRecord()); err == nil {
		t.Error("Expected error on 500 response")
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	m := Multi{a, b}
	if err := m.Write(testRecord()); err != nil {
		t.Fatal(err)
	}
	if len(a.Records) != 1 || len(b.Records) != 1 {
		t.Error("Expected record on both sinks")
	}
}
