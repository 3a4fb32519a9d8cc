package brave

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchSendsTokenAndParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("token header = %q", got)
		}
		if r.URL.Path != "/web/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "flu remedies" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("count") != "3" {
			t.Errorf("count = %q", r.URL.Query().Get("count"))
		}
		w.Write([]byte(`{"web": {"results": [
			{"title": "Home remedies", "url": "https://a", "description": "rest and fluids"},
			{"title": "When to see a doctor", "url": "https://b", "description": "warning signs"}
		]}}`))
	}))
	defer srv.Close()

	e := New("brave-key", WithBaseURL(srv.URL))
	results, err := e.Search(context.Background(), "flu remedies", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "Home remedies" || results[0].Snippet != "rest and fluids" || results[0].URL != "https://a" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestSearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web": {"results": [
			{"title": "a", "url": "https://a", "description": "a"},
			{"title": "b", "url": "https://b", "description": "b"},
			{"title": "c", "url": "https://c", "description": "c"}
		]}}`))
	}))
	defer srv.Close()

	results, err := New("k", WithBaseURL(srv.URL)).Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestSearchErrorStatusIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	_, err := New("k", WithBaseURL(srv.URL)).Search(context.Background(), "q", 5)
	if err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestSearchEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web": {"results": []}}`))
	}))
	defer srv.Close()

	results, err := New("k", WithBaseURL(srv.URL)).Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}
