package ringbuffer

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestMockHandshakeAndDrain(t *testing.T) {
	ctx := context.Background()
	m := NewMock([]byte("SCIENCE_CASE 3\n"), []byte{1}, []byte{2})

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	hdr, err := m.ReadHeader(ctx)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if string(hdr) != "SCIENCE_CASE 3\n" {
		t.Fatalf("unexpected header %q", hdr)
	}
	if err := m.Ack(); err != nil {
		t.Fatalf("ack header: %v", err)
	}

	for want := byte(1); want <= 2; want++ {
		page, err := m.NextPage(ctx)
		if err != nil {
			t.Fatalf("next page: %v", err)
		}
		if page[0] != want {
			t.Fatalf("page out of order: got %d want %d", page[0], want)
		}
		if err := m.Ack(); err != nil {
			t.Fatalf("ack page: %v", err)
		}
	}

	if _, err := m.NextPage(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of data, got %v", err)
	}
	if m.Acked() != 2 {
		t.Fatalf("acked %d pages, want 2", m.Acked())
	}
}

func TestMockEnforcesProtocolOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMock([]byte("H"), []byte{1})

	if _, err := m.ReadHeader(ctx); !errors.Is(err, ErrProtocol) {
		t.Fatalf("read before connect: %v", err)
	}
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.NextPage(ctx); !errors.Is(err, ErrProtocol) {
		t.Fatalf("data read before header ack must fail, got %v", err)
	}
	if err := m.Ack(); !errors.Is(err, ErrProtocol) {
		t.Fatalf("ack with nothing outstanding must fail, got %v", err)
	}

	if _, err := m.ReadHeader(ctx); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if _, err := m.ReadHeader(ctx); !errors.Is(err, ErrProtocol) {
		t.Fatalf("second header read must fail, got %v", err)
	}
	if err := m.Ack(); err != nil {
		t.Fatalf("ack header: %v", err)
	}

	if _, err := m.NextPage(ctx); err != nil {
		t.Fatalf("next page: %v", err)
	}
	if _, err := m.NextPage(ctx); !errors.Is(err, ErrProtocol) {
		t.Fatalf("page read with one outstanding must fail, got %v", err)
	}
}

func TestMockInjectedFailures(t *testing.T) {
	ctx := context.Background()

	m := NewMock(nil)
	m.ConnectErr = ErrConnection
	if err := m.Connect(ctx); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected injected connect error, got %v", err)
	}

	m = NewMock([]byte("H"))
	m.PageErr = ErrProtocol
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.ReadHeader(ctx); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if err := m.Ack(); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := m.NextPage(ctx); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected injected page error, got %v", err)
	}
}

func TestMockHonorsCancelledContext(t *testing.T) {
	m := NewMock([]byte("H"), []byte{1})
	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.ReadHeader(ctx); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if err := m.Ack(); err != nil {
		t.Fatalf("ack: %v", err)
	}
	cancel()
	if _, err := m.NextPage(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
