package transport

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"contract-rpc/protocol"

	"github.com/pkg/errors"
)

type frameSink struct {
	mu     sync.Mutex
	bodies []string
	got    chan struct{}
}

func newFrameSink() *frameSink {
	return &frameSink{got: make(chan struct{}, 100)}
}

func (s *frameSink) handle(h *protocol.Header, body []byte) {
	s.mu.Lock()
	s.bodies = append(s.bodies, fmt.Sprintf("%s:%s", h.MsgType, body))
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *frameSink) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d frames", i, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

func TestConnDeliversInOrder(t *testing.T) {
	left, right := net.Pipe()
	sink := newFrameSink()

	a := NewConn(left, func(*protocol.Header, []byte) {})
	b := NewConn(right, sink.handle)
	defer a.Close()
	defer b.Close()

	for i := 0; i < 5; i++ {
		if err := a.Send(protocol.MsgTypeCall, protocol.CodecTypeJSON, []byte(fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Send(protocol.MsgTypeHeartbeat, protocol.CodecTypeJSON, nil); err != nil {
		t.Fatal(err)
	}
	if err := a.Send(protocol.MsgTypeResult, protocol.CodecTypeJSON, []byte("last")); err != nil {
		t.Fatal(err)
	}

	got := sink.wait(t, 6)
	want := []string{"call:0", "call:1", "call:2", "call:3", "call:4", "result:last"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expect %v, got %v", want, got)
	}
}

func TestConnConcurrentSendsStayFramed(t *testing.T) {
	left, right := net.Pipe()
	sink := newFrameSink()

	a := NewConn(left, func(*protocol.Header, []byte) {})
	b := NewConn(right, sink.handle)
	defer a.Close()
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := a.Send(protocol.MsgTypeCall, protocol.CodecTypeBinary, []byte(fmt.Sprintf("payload-%02d", n))); err != nil {
				t.Errorf("send %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	got := sink.wait(t, 20)
	seen := map[string]bool{}
	for _, s := range got {
		seen[s] = true
	}
	if len(seen) != 20 {
		t.Fatalf("expect 20 distinct intact frames, got %d: %v", len(seen), got)
	}
}

func TestConnPeerCloseRunsCloseHandler(t *testing.T) {
	left, right := net.Pipe()
	closed := make(chan error, 2)

	a := NewConn(left, func(*protocol.Header, []byte) {}, WithCloseHandler(func(err error) {
		closed <- err
	}))

	right.Close()

	select {
	case err := <-closed:
		if err == nil {
			t.Fatal("expect a non-nil cause when the peer goes away")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close handler never ran")
	}

	<-a.Done()
	if a.Err() == nil {
		t.Fatal("expect Err to report the cause")
	}
	if err := a.Send(protocol.MsgTypeCall, protocol.CodecTypeJSON, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed after loss, got %v", err)
	}

	a.Close()
	select {
	case <-closed:
		t.Fatal("close handler must run exactly once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnLocalCloseIsClean(t *testing.T) {
	left, right := net.Pipe()
	defer right.Close()
	closed := make(chan error, 1)

	a := NewConn(left, func(*protocol.Header, []byte) {}, WithCloseHandler(func(err error) {
		closed <- err
	}))
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("expect nil cause after local Close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close handler never ran")
	}
	if a.Err() != nil {
		t.Fatalf("expect nil Err after local Close, got %v", a.Err())
	}
}

func TestConnHeartbeat(t *testing.T) {
	left, right := net.Pipe()
	a := NewConn(left, func(*protocol.Header, []byte) {}, WithHeartbeat(10*time.Millisecond))
	defer a.Close()
	defer right.Close()

	right.SetReadDeadline(time.Now().Add(2 * time.Second))
	header, body, err := protocol.Decode(right)
	if err != nil {
		t.Fatal(err)
	}
	if header.MsgType != protocol.MsgTypeHeartbeat || len(body) != 0 {
		t.Fatalf("expect empty heartbeat frame, got %+v with %d bytes", header, len(body))
	}
}

func TestConnOversizedFrameKeepsConnection(t *testing.T) {
	left, right := net.Pipe()
	sink := newFrameSink()

	a := NewConn(left, func(*protocol.Header, []byte) {})
	b := NewConn(right, sink.handle)
	defer a.Close()
	defer b.Close()

	big := make([]byte, protocol.MaxBodyLen+1)
	err := a.Send(protocol.MsgTypeResult, protocol.CodecTypeJSON, big)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expect ErrFrameTooLarge, got %v", err)
	}
	select {
	case <-a.Done():
		t.Fatalf("expect connection to stay open, ended with %v", a.Err())
	default:
	}

	if err := a.Send(protocol.MsgTypeResult, protocol.CodecTypeJSON, []byte("next")); err != nil {
		t.Fatal(err)
	}
	if got := sink.wait(t, 1); fmt.Sprint(got) != "[result:next]" {
		t.Fatalf("expect [result:next], got %v", got)
	}
}
