package reddit_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"redtrack/internal/config"
	"redtrack/internal/model"
	"redtrack/internal/reddit"
)

const aboutJSON = `{
	"data": {
		"link_karma": 80,
		"comment_karma": 20,
		"total_karma": 100
	}
}`

const submittedJSON = `{
	"data": {
		"children": [
			{"data": {
				"id": "p1",
				"subreddit": "golang",
				"title": "first post",
				"url": "https://i.redd.it/abc.jpg",
				"permalink": "/r/golang/comments/p1/first_post/",
				"created_utc": 1705312200,
				"score": 5
			}}
		]
	}
}`

const commentsJSON = `{
	"data": {
		"children": [
			{"data": {
				"id": "c1",
				"subreddit": "golang",
				"body": "a useful comment",
				"permalink": "/r/golang/comments/p9/_/c1/",
				"created_utc": 1705312260,
				"score": 2
			}}
		]
	}
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user/alice/about.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, aboutJSON)
	})
	mux.HandleFunc("/user/alice/submitted.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submittedJSON)
	})
	mux.HandleFunc("/user/alice/comments.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commentsJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() config.RedditConfig {
	return config.RedditConfig{
		UserAgent:      "redtrack-test/1.0",
		TimeoutSeconds: 5,
		ItemLimit:      25,
	}
}

func TestClient_Fetch(t *testing.T) {
	t.Run("assembles a snapshot from the three endpoints", func(t *testing.T) {
		srv := newTestServer(t)
		c := reddit.NewClientWithBaseURL(testConfig(), srv.URL)

		snap, err := c.Fetch(context.Background(), "alice")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		if snap.Account != "alice" {
			t.Errorf("Account = %q, want alice", snap.Account)
		}
		if snap.Totals.Post != 80 || snap.Totals.Comment != 20 || snap.Totals.Total != 100 {
			t.Errorf("Totals = %+v, want 80/20/100", snap.Totals)
		}
		if !snap.ObservedAt.IsZero() {
			t.Errorf("ObservedAt = %v, want zero (stamped by caller)", snap.ObservedAt)
		}
		if len(snap.Items) != 2 {
			t.Fatalf("Items = %d, want 2", len(snap.Items))
		}

		post := snap.Items[0]
		if post.Type != model.ItemTypePost || post.NaturalID != "p1" {
			t.Errorf("first item = %s/%s, want post/p1", post.Type, post.NaturalID)
		}
		if post.URL != "https://i.redd.it/abc.jpg" {
			t.Errorf("post URL = %q", post.URL)
		}
		if post.Score != 5 {
			t.Errorf("post Score = %d, want 5", post.Score)
		}
		if post.CreatedAt.Unix() != 1705312200 {
			t.Errorf("post CreatedAt = %v", post.CreatedAt)
		}

		comment := snap.Items[1]
		if comment.Type != model.ItemTypeComment || comment.NaturalID != "c1" {
			t.Errorf("second item = %s/%s, want comment/c1", comment.Type, comment.NaturalID)
		}
		if comment.Title != "a useful comment" {
			t.Errorf("comment Title = %q", comment.Title)
		}
	})

	t.Run("sends the configured user agent", func(t *testing.T) {
		var gotUA string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			fmt.Fprint(w, `{"data": {}}`)
		}))
		defer srv.Close()

		c := reddit.NewClientWithBaseURL(testConfig(), srv.URL)
		if _, err := c.Fetch(context.Background(), "alice"); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if gotUA != "redtrack-test/1.0" {
			t.Errorf("User-Agent = %q, want redtrack-test/1.0", gotUA)
		}
	})

	t.Run("passes the item limit", func(t *testing.T) {
		var gotLimit string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "submitted") {
				gotLimit = r.URL.Query().Get("limit")
			}
			fmt.Fprint(w, `{"data": {}}`)
		}))
		defer srv.Close()

		c := reddit.NewClientWithBaseURL(testConfig(), srv.URL)
		if _, err := c.Fetch(context.Background(), "alice"); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if gotLimit != "25" {
			t.Errorf("limit = %q, want 25", gotLimit)
		}
	})

	t.Run("non-200 response is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := reddit.NewClientWithBaseURL(testConfig(), srv.URL)
		if _, err := c.Fetch(context.Background(), "alice"); err == nil {
			t.Fatal("Fetch() expected error for 429 response")
		}
	})

	t.Run("failing listing fails the whole fetch", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/user/alice/about.json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, aboutJSON)
		})
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "server error", http.StatusInternalServerError)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		c := reddit.NewClientWithBaseURL(testConfig(), srv.URL)
		if _, err := c.Fetch(context.Background(), "alice"); err == nil {
			t.Fatal("Fetch() expected error when a listing fails")
		}
	})
}
