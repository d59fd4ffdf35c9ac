package advisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

const okBody = `{"id":"or_1","choices":[{"message":{"role":"assistant","content":"hello"}}]}`

// ipv4Server starts a loopback HTTP server and returns its base URL.
// Sandboxed environments that refuse socket creation skip the test.
func ipv4Server(t *testing.T, h http.Handler) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("cannot listen on loopback: %v", err)
		}
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: h}
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

// sequenceHandler replies with the given statuses in call order, repeating
// the last one. Extra headers apply to every reply.
func sequenceHandler(statuses []int, headers map[string]string) (http.Handler, *int32) {
	var calls int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		idx := n - 1
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		status := statuses[idx]
		if status == http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, okBody)
			return
		}
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":"induced failure","code":%d}}`, status)
	})
	return h, &calls
}

func testClient(url string) *Client {
	c := NewClient("test-key", 5*time.Second, 3, 10*time.Millisecond, 40*time.Millisecond)
	c.baseURL = url
	return c
}

func testGenReq() GenerateRequest {
	return GenerateRequest{Model: "openai/gpt-4o-mini", Messages: []Message{{Role: "user", Content: "hi"}}}
}

func TestGenerateRetriesOn429(t *testing.T) {
	h, calls := sequenceHandler([]int{429, 200}, nil)
	url := ipv4Server(t, h)
	resp, err := testClient(url).Generate(context.Background(), testGenReq())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if resp.Choices[0].Message.Content != "hello" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if resp.RequestID != "or_1" {
		t.Errorf("request id = %q, want or_1", resp.RequestID)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	h, _ := sequenceHandler([]int{429, 200}, map[string]string{"Retry-After": "1"})
	url := ipv4Server(t, h)
	start := time.Now()
	if _, err := testClient(url).Generate(context.Background(), testGenReq()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("Retry-After not honored, waited only %v", elapsed)
	}
}

func TestAuthErrorNoRetry(t *testing.T) {
	h, calls := sequenceHandler([]int{401, 200}, nil)
	url := ipv4Server(t, h)
	_, err := testClient(url).Generate(context.Background(), testGenReq())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestServerErrorRetriesThenFails(t *testing.T) {
	h, calls := sequenceHandler([]int{500}, nil)
	url := ipv4Server(t, h)
	_, err := testClient(url).Generate(context.Background(), testGenReq())
	var sErr *ServerError
	if !errors.As(err, &sErr) {
		t.Fatalf("want ServerError, got %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("calls = %d, want all 3 attempts", got)
	}
}

func TestErrorIncludesRequestID(t *testing.T) {
	h, _ := sequenceHandler([]int{400}, map[string]string{"X-Request-Id": "req-abc"})
	url := ipv4Server(t, h)
	_, err := testClient(url).Generate(context.Background(), testGenReq())
	if err == nil || !strings.Contains(err.Error(), "req-abc") {
		t.Fatalf("error should carry the request id, got: %v", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	c := NewClient("", time.Second, 1, time.Millisecond, time.Millisecond)
	_, err := c.Generate(context.Background(), testGenReq())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("want AuthError, got %v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	rl := classifyAPIError(&APIError{Status: 429}, 2*time.Second, "m")
	var rlErr *RateLimitError
	if !errors.As(rl, &rlErr) || rlErr.RetryAfter != 2*time.Second {
		t.Errorf("429: got %v", rl)
	}

	var qErr *QuotaExceededError
	if q := classifyAPIError(&APIError{Status: 400, Message: "Insufficient credits"}, 0, "m"); !errors.As(q, &qErr) {
		t.Errorf("quota message: got %v", q)
	}
	if q := classifyAPIError(&APIError{Status: 402}, 0, "m"); !errors.As(q, &qErr) {
		t.Errorf("402: got %v", q)
	}

	var nfErr *ModelNotFoundError
	if nf := classifyAPIError(&APIError{Status: 400, Message: "The model was not found"}, 0, "m"); !errors.As(nf, &nfErr) {
		t.Errorf("model message: got %v", nf)
	}
	if nf := classifyAPIError(&APIError{Status: 404}, 0, "m"); !errors.As(nf, &nfErr) {
		t.Errorf("404: got %v", nf)
	}

	var brErr *BadRequestError
	if br := classifyAPIError(&APIError{Status: 400, Message: "schema mismatch"}, 0, "m"); !errors.As(br, &brErr) {
		t.Errorf("400: got %v", br)
	}

	var sErr *ServerError
	if s := classifyAPIError(&APIError{Status: 503}, 0, "m"); !errors.As(s, &sErr) {
		t.Errorf("503: got %v", s)
	}
}

func TestRetryAfterFrom(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "3")
	if got := retryAfterFrom(h); got != 3*time.Second {
		t.Errorf("seconds form: got %v", got)
	}
	h.Set("Retry-After", time.Now().Add(2*time.Second).UTC().Format(http.TimeFormat))
	if got := retryAfterFrom(h); got <= 0 || got > 2*time.Second {
		t.Errorf("date form: got %v", got)
	}
	h.Set("Retry-After", "soon")
	if got := retryAfterFrom(h); got != 0 {
		t.Errorf("garbage form: got %v", got)
	}
	if got := retryAfterFrom(http.Header{}); got != 0 {
		t.Errorf("absent header: got %v", got)
	}
}

func TestWithJitterBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := withJitter(time.Second)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jitter out of bounds: %v", d)
		}
	}
}
