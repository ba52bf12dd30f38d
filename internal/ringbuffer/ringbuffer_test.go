package ringbuffer

import (
	"errors"
	"testing"
	"time"
)

func TestParseKey(t *testing.T) {
	key, err := ParseKey("dada")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if key != 0xdada {
		t.Fatalf("key %#x, want 0xdada", key)
	}

	key, err = ParseKey("10")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if key != 16 {
		t.Fatalf("key %d, want 16", key)
	}

	if _, err := ParseKey("not-hex"); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if _, err := ParseKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.PollInterval <= 0 {
		t.Fatal("poll interval not defaulted")
	}
	if c.MaxPollInterval < c.PollInterval {
		t.Fatal("max poll interval below initial interval")
	}

	c = Config{PollInterval: time.Second}.withDefaults()
	if c.MaxPollInterval < time.Second {
		t.Fatalf("max poll interval %v not raised to initial", c.MaxPollInterval)
	}
}
