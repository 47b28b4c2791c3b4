package qstash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "tok", Retries: 2})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestPublishJSON(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotRetries, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetries = r.Header.Get("Upstash-Retries")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		fmt.Fprint(w, `{"messageId":"msg_1"}`)
	})

	id, err := client.PublishJSON(context.Background(), "https://hooks.example.com/answers", map[string]string{"session_id": "s1"})
	if err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("message id = %q", id)
	}
	if gotPath != "/v2/publish/https://hooks.example.com/answers" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" || gotRetries != "2" {
		t.Fatalf("headers auth=%q retries=%q", gotAuth, gotRetries)
	}
	if gotBody != `{"session_id":"s1"}` {
		t.Fatalf("body = %s", gotBody)
	}
}

func TestPublishSurfacesAPIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid token"}`)
	})

	_, err := client.Publish(context.Background(), "https://hooks.example.com/x", "text/plain", []byte("hi"))
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Publish() error = %v, want 401 APIError", err)
	}
}

func TestPublishRejectsRelativeDestination(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	for _, dest := range []string{"", "/relative", "ftp://host/file"} {
		if _, err := client.Publish(context.Background(), dest, "", nil); !errors.Is(err, ErrInvalidDestination) {
			t.Fatalf("Publish(%q) error = %v", dest, err)
		}
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{URL: "https://qstash.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
	if (Config{}).Enabled() {
		t.Fatal("empty config should be disabled")
	}
}
