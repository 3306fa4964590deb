package validator

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"proxyharvest/internal/shared/types"
	"proxyharvest/proxypool/model"
)

// newConnectProxy starts a minimal HTTP CONNECT proxy and counts tunnels it opened.
func newConnectProxy(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var tunnels atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "connect only", http.StatusMethodNotAllowed)
			return
		}
		upstream, err := net.Dial("tcp", r.Host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			upstream.Close()
			http.Error(w, "hijack unsupported", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			upstream.Close()
			return
		}
		tunnels.Add(1)
		conn.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))

		go func() {
			io.Copy(upstream, conn)
			upstream.Close()
		}()
		io.Copy(conn, upstream)
		conn.Close()
	}))
	t.Cleanup(ts.Close)
	return ts, &tunnels
}

// proxyFor turns a test server address into a proxy record.
func proxyFor(t *testing.T, protocol, hostport string) model.Proxy {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(strings.TrimPrefix(hostport, "http://"), "https://"))
	if err != nil {
		t.Fatalf("bad address %q: %v", hostport, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("bad port %q: %v", portStr, err)
	}
	p, err := model.NewProxy(protocol, host, uint16(port))
	if err != nil {
		t.Fatalf("NewProxy() failed: %v", err)
	}
	return p
}

// deadProxy points at a port nothing listens on.
func deadProxy(t *testing.T) model.Proxy {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()
	return proxyFor(t, "http", addr)
}

func testValidator() *Validator {
	return &Validator{timeout: 2 * time.Second, idleTimeout: time.Second}
}

func TestNewValidator(t *testing.T) {
	v := NewValidator(types.ProbeConf{TimeoutSeconds: 10, IdleTimeoutSeconds: 5, ExitOnIdle: true})
	if v.timeout != 10*time.Second || v.idleTimeout != 5*time.Second || !v.exitOnIdle {
		t.Errorf("Unexpected validator settings: %+v", v)
	}
}

func TestVisit_HTTPTargetGoesDirect(t *testing.T) {
	agents := make(chan string, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	status, err := testValidator().Visit(context.Background(), target.URL, deadProxy(t))
	if err != nil {
		t.Fatalf("Expected plain http to bypass the proxy, got %v", err)
	}
	if status != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", status)
	}
	if agent := <-agents; agent == "" || strings.HasPrefix(agent, "Go-http-client") {
		t.Errorf("Expected a browser user agent, got %q", agent)
	}
}

func TestVisit_HTTPSTargetUsesProxy(t *testing.T) {
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer target.Close()
	proxyServer, tunnels := newConnectProxy(t)

	v := testValidator()
	v.tlsConfig = target.Client().Transport.(*http.Transport).TLSClientConfig

	status, err := v.Visit(context.Background(), target.URL, proxyFor(t, "http", proxyServer.URL))
	if err != nil {
		t.Fatalf("Visit() returned an error: %v", err)
	}
	if status != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", status)
	}
	if got := tunnels.Load(); got != 1 {
		t.Errorf("Expected exactly 1 CONNECT tunnel, got %d", got)
	}
}

func TestVisit_DeadProxyFailsHTTPS(t *testing.T) {
	_, err := testValidator().Visit(context.Background(), "https://127.0.0.1:1/", deadProxy(t))
	if err == nil {
		t.Fatal("Expected an error through a dead proxy")
	}
}

func TestVisit_Timeout(t *testing.T) {
	// accepts the TCP connection but never answers
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	v := &Validator{timeout: 200 * time.Millisecond}
	start := time.Now()
	_, err = v.Visit(context.Background(), "https://example.com/", proxyFor(t, "http", ln.Addr().String()))
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Visit() took %v, expected it to give up after the timeout", elapsed)
	}
}

func TestVisit_InvalidTarget(t *testing.T) {
	for _, target := range []string{"", "not a url", "ftp://example.com/", "http://", "://bad"} {
		if _, err := testValidator().Visit(context.Background(), target, deadProxy(t)); err == nil {
			t.Errorf("Expected an error for target %q", target)
		}
	}
}

func TestConsume_DrainsUntilClosed(t *testing.T) {
	var hits atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 2 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer target.Close()

	in := make(chan model.Proxy, 4)
	for i := 0; i < 3; i++ {
		in <- deadProxy(t)
	}
	close(in)

	sum := testValidator().Consume(context.Background(), in, target.URL)
	want := Summary{Received: 3, Reachable: 2, Rejected: 1}
	if sum != want {
		t.Errorf("Expected %+v, got %+v", want, sum)
	}
}

func TestConsume_FailuresDoNotStopLoop(t *testing.T) {
	in := make(chan model.Proxy, 2)
	in <- deadProxy(t)
	in <- deadProxy(t)
	close(in)

	sum := testValidator().Consume(context.Background(), in, "https://127.0.0.1:1/")
	if sum.Received != 2 || sum.Failed != 2 {
		t.Errorf("Expected 2 failed probes, got %+v", sum)
	}
}

func TestConsume_IdleKeepsWaiting(t *testing.T) {
	v := &Validator{timeout: time.Second, idleTimeout: 20 * time.Millisecond}
	in := make(chan model.Proxy)
	done := make(chan Summary, 1)
	go func() { done <- v.Consume(context.Background(), in, "http://127.0.0.1:1/") }()

	select {
	case <-done:
		t.Fatal("Consume() returned on idle without exitOnIdle")
	case <-time.After(100 * time.Millisecond):
	}

	close(in)
	select {
	case sum := <-done:
		if sum.Received != 0 {
			t.Errorf("Expected nothing received, got %+v", sum)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume() did not return after the queue was closed")
	}
}

func TestConsume_ExitOnIdle(t *testing.T) {
	v := &Validator{timeout: time.Second, idleTimeout: 20 * time.Millisecond, exitOnIdle: true}
	in := make(chan model.Proxy)
	defer close(in)

	done := make(chan Summary, 1)
	go func() { done <- v.Consume(context.Background(), in, "http://127.0.0.1:1/") }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume() did not exit after the idle timeout")
	}
}

func TestConsume_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan model.Proxy)
	done := make(chan Summary, 1)
	go func() { done <- testValidator().Consume(ctx, in, "http://127.0.0.1:1/") }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume() did not return after cancellation")
	}
}
