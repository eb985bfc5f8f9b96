package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PolyPulse/internal/service/cache"
)

func TestQuestionCacheOnly(t *testing.T) {
	s := New(Config{}, cache.NewTTLCache(), nil)

	if q, ok := s.Question(context.Background(), "tok"); ok || q != "" {
		t.Fatalf("cold cache returned %q", q)
	}

	s.SetQuestion("tok", "Will the election be called by midnight?")
	q, ok := s.Question(context.Background(), "tok")
	if !ok || q != "Will the election be called by midnight?" {
		t.Fatalf("question = %q, ok = %v", q, ok)
	}
}

func TestSetQuestionIgnoresEmpty(t *testing.T) {
	s := New(Config{}, cache.NewTTLCache(), nil)
	s.SetQuestion("tok", "")
	if _, ok := s.Question(context.Background(), "tok"); ok {
		t.Fatal("empty title cached")
	}
}

func TestMissTriggersGammaFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("clob_token_ids"); got != "tok" {
			t.Errorf("clob_token_ids = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]gammaMarket{
			{Question: "Other market?", ClobTokenIDs: `["x","y"]`},
			{Question: "Will it happen?", ClobTokenIDs: `["tok","tok-no"]`},
		})
	}))
	defer srv.Close()

	s := New(Config{GammaURL: srv.URL}, cache.NewTTLCache(), nil)

	if _, ok := s.Question(context.Background(), "tok"); ok {
		t.Fatal("hit before any fetch")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q, ok := s.Question(context.Background(), "tok"); ok {
			if q != "Will it happen?" {
				t.Fatalf("question = %q", q)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("fetched title never landed in cache")
}

func TestFetchFailureLeavesCacheCold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New(Config{GammaURL: srv.URL, Timeout: time.Second}, cache.NewTTLCache(), nil)

	s.Question(context.Background(), "tok")
	time.Sleep(100 * time.Millisecond)
	if _, ok := s.Question(context.Background(), "tok"); ok {
		t.Fatal("failed fetch populated the cache")
	}
}
