package wiki

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestClient wires a client to an in-process fake API endpoint.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := &Config{
		BaseURL:    server.URL + "/api.php",
		Timeout:    5 * time.Second,
		UserAgent:  DefaultUserAgent,
		MaxRetries: 2,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(config, logger)
}

// newLoggedInTestClient adds bot credentials so write paths can run.
func newLoggedInTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	c := newTestClient(t, handler)
	c.config.Username = "TestBot"
	c.config.Password = "botpassword"
	return c
}

// tokenAwareHandler answers the login and csrf token dance, delegating
// everything else to next.
func tokenAwareHandler(t *testing.T, next http.HandlerFunc) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		switch {
		case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "login":
			fmt.Fprint(w, `{"query":{"tokens":{"logintoken":"LOGIN+\\"}}}`)
		case r.Form.Get("action") == "login":
			if r.Form.Get("lgtoken") == "" {
				t.Error("login without token")
			}
			fmt.Fprint(w, `{"login":{"result":"Success","lgusername":"TestBot"}}`)
		case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "csrf":
			fmt.Fprint(w, `{"query":{"tokens":{"csrftoken":"CSRF+\\"}}}`)
		default:
			next(w, r)
		}
	}
}

func TestAPIRequestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "backend down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"query":{"allpages":[]}}`)
	})

	_, _, err := c.AllPagesBatch(t.Context(), 0, "")
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestAPIRequestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such endpoint", http.StatusNotFound)
	})

	_, _, err := c.AllPagesBatch(t.Context(), 0, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestAPIRequestDoesNotRetryAPIErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error":{"code":"readapidenied","info":"You need read permission"}}`)
	})

	_, _, err := c.AllPagesBatch(t.Context(), 0, "")
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != "readapidenied" {
		t.Errorf("unexpected code %q", apiErr.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("API errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestAPIRequestEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"query":{"allpages":[]}}`)
	})

	params := url.Values{}
	params.Set("action", "query")
	params.Set("title", "Main Page")
	if _, err := c.apiRequest(t.Context(), params); err != nil {
		t.Fatalf("apiRequest failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "wiki.api" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	attrs := spans[0].Attributes()
	want := map[attribute.Key]string{
		"wiki.api.action": "query",
		"wiki.page.title": "Main Page",
	}
	for _, a := range attrs {
		if expected, ok := want[a.Key]; ok {
			if a.Value.AsString() != expected {
				t.Errorf("attribute %s = %q, want %q", a.Key, a.Value.AsString(), expected)
			}
			delete(want, a.Key)
		}
	}
	for key := range want {
		t.Errorf("span is missing attribute %s", key)
	}
}

func TestEnsureLoggedInAnonymous(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("anonymous client must not contact the wiki to log in")
	})

	if err := c.EnsureLoggedIn(t.Context()); err != nil {
		t.Fatalf("anonymous reads should be allowed: %v", err)
	}
}

func TestLoginFlow(t *testing.T) {
	c := newLoggedInTestClient(t, tokenAwareHandler(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"query":{"allpages":[]}}`)
	}))

	if err := c.EnsureLoggedIn(t.Context()); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !c.loggedIn {
		t.Error("client should record the logged-in state")
	}

	// A second call must reuse the session instead of logging in again.
	if err := c.EnsureLoggedIn(t.Context()); err != nil {
		t.Fatalf("second EnsureLoggedIn failed: %v", err)
	}
}

func TestLoginFailure(t *testing.T) {
	c := newLoggedInTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.Form.Get("type") == "login" {
			fmt.Fprint(w, `{"query":{"tokens":{"logintoken":"LOGIN+\\"}}}`)
			return
		}
		fmt.Fprint(w, `{"login":{"result":"Failed","reason":"Incorrect username or password"}}`)
	})

	err := c.EnsureLoggedIn(t.Context())
	if err == nil {
		t.Fatal("expected login failure")
	}
	if c.loggedIn {
		t.Error("client must not record a failed login")
	}
}
