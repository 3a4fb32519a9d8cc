package duckduckgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchParsesAbstractAndTopics(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format = %q, want json", r.URL.Query().Get("format"))
		}
		if r.URL.Query().Get("no_html") != "1" || r.URL.Query().Get("skip_disambig") != "1" {
			t.Error("missing no_html/skip_disambig params")
		}
		w.Write([]byte(`{
			"Heading": "Influenza",
			"AbstractText": "Influenza is a viral infection.",
			"AbstractURL": "https://example.org/flu",
			"RelatedTopics": [
				{"Text": "Flu season - annual recurrence", "FirstURL": "https://example.org/season"},
				{"Topics": [
					{"Text": "Vaccination", "FirstURL": "https://example.org/vaccine"}
				]}
			]
		}`))
	}))
	defer srv.Close()

	e := New(WithBaseURL(srv.URL))
	results, err := e.Search(context.Background(), "flu symptoms", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "flu symptoms" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Title != "Influenza" || results[0].URL != "https://example.org/flu" {
		t.Errorf("abstract result = %+v", results[0])
	}
	if results[1].Title != "Flu season" {
		t.Errorf("topic title = %q, want separator stripped", results[1].Title)
	}
	if results[2].Title != "Vaccination" || results[2].URL != "https://example.org/vaccine" {
		t.Errorf("nested topic = %+v", results[2])
	}
}

func TestSearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"RelatedTopics": [
				{"Text": "one", "FirstURL": "https://a"},
				{"Text": "two", "FirstURL": "https://b"},
				{"Text": "three", "FirstURL": "https://c"}
			]
		}`))
	}))
	defer srv.Close()

	results, err := New(WithBaseURL(srv.URL)).Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestSearchAcceptsDeferredStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"AbstractText": "ok", "Heading": "H", "AbstractURL": "https://h"}`))
	}))
	defer srv.Close()

	results, err := New(WithBaseURL(srv.URL)).Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestSearchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New(WithBaseURL(srv.URL)).Search(context.Background(), "q", 5); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestSearchSkipsIncompleteTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"RelatedTopics": [
				{"Text": "no url"},
				{"FirstURL": "https://no-text"},
				{"Text": "complete", "FirstURL": "https://ok"}
			]
		}`))
	}))
	defer srv.Close()

	results, err := New(WithBaseURL(srv.URL)).Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].URL != "https://ok" {
		t.Fatalf("results = %+v, want only the complete topic", results)
	}
}
