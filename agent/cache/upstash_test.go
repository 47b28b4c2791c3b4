package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestUpstash(t *testing.T, handler http.HandlerFunc, opts ...Option) *UpstashCache {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewUpstashCache(UpstashConfig{URL: server.URL, Token: "token"}, server.Client(), opts...)
	if err != nil {
		t.Fatalf("NewUpstashCache() error = %v", err)
	}
	return c
}

func TestUpstashCacheSetSendsPrefixedKeyAndExpiry(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	var gotAuth string
	c := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}, WithKeyPrefix("test:"), WithTTL(1500*time.Millisecond))

	if err := c.Set(context.Background(), "bilibili:frost", []byte(`{"status":"ok"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if gotAuth != "Bearer token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotCommand) != 5 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[1] != "test:bilibili:frost" {
		t.Fatalf("unexpected command head: %#v", gotCommand[:2])
	}
	if gotCommand[3] != "EX" || gotCommand[4] != float64(2) {
		t.Fatalf("unexpected expiry: %#v", gotCommand[3:])
	}
}

func TestUpstashCacheGetHitAndMiss(t *testing.T) {
	t.Parallel()

	encoded, err := json.Marshal(`{"status":"ok"}`)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var gotCommand []any
	c := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		if gotCommand[1] == defaultKeyPrefix+"hit" {
			fmt.Fprintf(w, `{"result":%s}`, encoded)
			return
		}
		fmt.Fprint(w, `{"result":null}`)
	})

	val, ok, err := c.Get(context.Background(), "hit")
	if err != nil || !ok {
		t.Fatalf("Get(hit) = %v, %v", ok, err)
	}
	if string(val) != `{"status":"ok"}` {
		t.Fatalf("Get(hit) value = %s", val)
	}
	if gotCommand[0] != "GET" {
		t.Fatalf("command[0] = %v, want GET", gotCommand[0])
	}

	_, ok, err = c.Get(context.Background(), "miss")
	if err != nil || ok {
		t.Fatalf("Get(miss) = %v, %v", ok, err)
	}
}

func TestUpstashCacheSurfacesRESTErrors(t *testing.T) {
	t.Parallel()

	c := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGPASS invalid password"}`)
	})

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpstashCacheRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	c := &UpstashCache{keyPrefix: defaultKeyPrefix}
	if _, err := c.redisKey("  "); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidKey", err)
	}
}

func TestNewUpstashCacheValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashCache(UpstashConfig{Token: "t"}, nil); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashCache(UpstashConfig{URL: "https://example.upstash.io"}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewUpstashCache(UpstashConfig{URL: "https://example.upstash.io", Token: "t"}, nil, WithTTL(-time.Second)); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
