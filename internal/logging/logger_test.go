package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", Debug},
		{"INFO", Info},
		{"", Info},
		{"warning", Warn},
		{"error", Error},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf)
	l.Debug("too quiet")
	l.Info("still too quiet")
	l.Warn("audible")
	l.Error("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("suppressed levels leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] audible") || !strings.Contains(out, "[ERROR] loud") {
		t.Fatalf("expected warn and error entries, got %q", out)
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Info, Text, &buf).With(F("key", "dada"))
	l.Info("connected", F("nbufs", 8))

	out := buf.String()
	if !strings.Contains(out, "key=dada") || !strings.Contains(out, "nbufs=8") {
		t.Fatalf("missing fields in %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Info, JSON, &buf)
	l.Info("page done", F("page", 3))

	line := strings.TrimSpace(buf.String())
	// Strip the stdlib log prefix up to the JSON payload.
	i := strings.IndexByte(line, '{')
	if i < 0 {
		t.Fatalf("no JSON payload in %q", line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line[i:]), &payload); err != nil {
		t.Fatalf("unmarshal %q: %v", line[i:], err)
	}
	if payload["msg"] != "page done" || payload["level"] != "INFO" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["page"] != float64(3) {
		t.Fatalf("unexpected page field %v", payload["page"])
	}
}

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	w := Tee(&a, nil, &b)
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if a.String() != "x" || b.String() != "x" {
		t.Fatalf("tee did not fan out: %q %q", a.String(), b.String())
	}
	if Tee() != io.Discard {
		t.Fatal("empty tee should discard")
	}
	if Tee(nil, &a) != &a {
		t.Fatal("single-writer tee should return the writer itself")
	}
}
