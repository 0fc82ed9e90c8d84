package ticktick

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskcal/internal/model"
)

const projectJSON = `{
	"tasks": [
		{"title": "Buy milk", "startDate": "2024-06-02T00:00:00.000+0000", "isAllDay": true, "priority": 1, "status": 0},
		{"title": "File taxes", "dueDate": "2024-06-05T17:00:00.000+0000", "priority": 3, "status": 2},
		{"title": "Water plants", "startDate": "2024-06-03T09:00:00.000+0000", "dueDate": "2024-06-03T09:30:00.000+0000", "priority": 0, "status": 0}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		AccessToken: "tok-123",
		ProjectID:   "inbox124950952",
		BaseURL:     srv.URL,
	}, srv.Client(), nil)
}

func TestFetchRecords(t *testing.T) {
	var gotPath, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(projectJSON))
	})

	recs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/open/v1/project/inbox124950952/data" {
		t.Fatalf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}

	milk := recs[0]
	if milk.Source != model.SourceTask || milk.Title != "Buy milk" || !milk.AllDay {
		t.Fatalf("unexpected first record: %+v", milk)
	}
	if milk.Start != "2024-06-02T00:00:00.000+0000" || milk.End != "" {
		t.Fatalf("timestamps should pass through verbatim: %+v", milk)
	}
	if milk.Priority != 1 || milk.Completed {
		t.Fatalf("unexpected task fields: %+v", milk)
	}

	taxes := recs[1]
	if taxes.Start != "" || taxes.End != "2024-06-05T17:00:00.000+0000" {
		t.Fatalf("due-only task should keep start empty: %+v", taxes)
	}
	if !taxes.Completed {
		t.Fatal("status 2 should mark the task completed")
	}

	plants := recs[2]
	if plants.Start == "" || plants.End == "" || plants.AllDay || plants.Completed {
		t.Fatalf("unexpected timed record: %+v", plants)
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected an error for a 401 response")
	}
}

func TestFetchBadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestFetchEmptyProject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tasks": []}`))
	})
	recs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records, want 0", len(recs))
	}
}

func TestFetchMissingCredentials(t *testing.T) {
	if _, err := New(Config{ProjectID: "p"}, nil, nil).Fetch(context.Background()); err == nil {
		t.Fatal("missing token should fail")
	}
	if _, err := New(Config{AccessToken: "t"}, nil, nil).Fetch(context.Background()); err == nil {
		t.Fatal("missing project ID should fail")
	}
}

type failingClient struct{}

func (failingClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestFetchTransportError(t *testing.T) {
	c := New(Config{AccessToken: "t", ProjectID: "p"}, failingClient{}, nil)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("transport errors should surface")
	}
}
