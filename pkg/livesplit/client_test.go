package livesplit_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-autosplit/pkg/livesplit"
	"github.com/goliatone/go-autosplit/pkg/timer"
)

// fakeServer answers the query commands and records everything it receives.
type fakeServer struct {
	ln    net.Listener
	mu    sync.Mutex
	lines []string
	phase string
	index string
}

func startServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &fakeServer{ln: ln, phase: "NotRunning", index: "-1"}
	t.Cleanup(func() { ln.Close() })
	go srv.serve()
	return srv
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		s.mu.Lock()
		s.lines = append(s.lines, cmd)
		phase, index := s.phase, s.index
		s.mu.Unlock()
		switch cmd {
		case "getcurrenttimerphase":
			conn.Write([]byte(phase + "\r\n"))
		case "getsplitindex":
			conn.Write([]byte(index + "\r\n"))
		}
	}
}

func (s *fakeServer) set(phase, index string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase, s.index = phase, index
}

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func waitFor(t *testing.T, srv *fakeServer, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := srv.received(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server received %v, wanted %d lines", srv.received(), n)
	return nil
}

func TestClientCommands(t *testing.T) {
	srv := startServer(t)
	c := livesplit.New(srv.ln.Addr().String())
	defer c.Close()
	ctx := context.Background()

	steps := []func(context.Context) error{
		c.Reset, c.Start, c.Split, c.SkipSplit, c.PauseGameTime, c.ResumeGameTime,
		func(ctx context.Context) error { return c.SetGameTime(ctx, 83*time.Minute+4*time.Second+56*time.Millisecond) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	}
	want := []string{"reset", "starttimer", "split", "skipsplit", "pausegametime", "unpausegametime", "setgametime 1:23:04.056"}
	got := waitFor(t, srv, len(want))
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: want %q got %q", i, want[i], got[i])
		}
	}
}

func TestClientStateAndIndex(t *testing.T) {
	srv := startServer(t)
	c := livesplit.New(srv.ln.Addr().String())
	defer c.Close()
	ctx := context.Background()

	cases := []struct {
		phase string
		index string
		state timer.State
		want  int
	}{
		{"NotRunning", "-1", timer.NotRunning, 0},
		{"Running", "0", timer.Running, 1},
		{"Paused", "3", timer.Running, 4},
		{"Ended", "5", timer.Ended, 6},
	}
	for _, tc := range cases {
		srv.set(tc.phase, tc.index)
		st, err := c.State(ctx)
		if err != nil || st != tc.state {
			t.Fatalf("phase %s: expected %s, got %s err=%v", tc.phase, tc.state, st, err)
		}
		idx, ok, err := c.SplitIndex(ctx)
		if err != nil || !ok || idx != tc.want {
			t.Fatalf("index %s: expected %d, got %d ok=%v err=%v", tc.index, tc.want, idx, ok, err)
		}
	}

	srv.set("Confused", "x")
	if _, err := c.State(ctx); !errors.Is(err, livesplit.ErrBadReply) {
		t.Fatalf("expected bad reply, got %v", err)
	}
	if _, ok, err := c.SplitIndex(ctx); ok || !errors.Is(err, livesplit.ErrBadReply) {
		t.Fatalf("expected unavailable index, got ok=%v err=%v", ok, err)
	}
}

func TestClientReportsDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := livesplit.New(addr, livesplit.WithTimeout(200*time.Millisecond))
	if err := c.Split(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	obs := timer.Observe(context.Background(), c)
	if obs.HasState || obs.HasIndex {
		t.Fatalf("failed reads must leave the observation empty, got %+v", obs)
	}
}

func TestClientHonoursCancelledContext(t *testing.T) {
	srv := startServer(t)
	c := livesplit.New(srv.ln.Addr().String())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Split(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00.000"},
		{1500 * time.Millisecond, "0:00:01.500"},
		{2*time.Hour + 59*time.Second, "2:00:59.000"},
		{-time.Second, "0:00:00.000"},
	}
	for _, tc := range cases {
		if got := livesplit.FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
