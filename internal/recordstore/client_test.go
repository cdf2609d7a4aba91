package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nxtoffice/checkinbot/internal/models"
)

// newTestClient spins up an httptest server running handler and returns a
// client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(WithBaseURL(srv.URL), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

// decodeRequest decodes the JSON request body into a string map.
func decodeRequest(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
	return body
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error when base URL is missing")
	}
}

func TestLogUserSendsExactFields(t *testing.T) {
	var got map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		got = decodeRequest(t, r)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if err := client.LogUser(context.Background(), "u1", "Alice", "a@x.com", "NXT9"); err != nil {
		t.Fatalf("LogUser failed: %v", err)
	}
	want := map[string]string{
		"type": "logUser", "discordID": "u1", "name": "Alice", "email": "a@x.com", "nxtID": "NXT9",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("request field %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestLogVisitTimestampFormat(t *testing.T) {
	var got map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeRequest(t, r)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	ts := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	if err := client.LogVisit(context.Background(), "u1", "Alice", "standup", ts); err != nil {
		t.Fatalf("LogVisit failed: %v", err)
	}
	if got["timestamp"] != "2026-08-31T09:30:00Z" {
		t.Errorf("timestamp = %q, want RFC3339 UTC", got["timestamp"])
	}
	if got["type"] != "logVisit" {
		t.Errorf("type = %q, want logVisit", got["type"])
	}
}

func TestFindUsersDecodesCandidates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeRequest(t, r)
		if body["type"] != "findUserByName" || body["name"] != "ali" {
			t.Errorf("unexpected request: %v", body)
		}
		w.Write([]byte(`{"users":[{"discordID":"u1","name":"Alice"},{"discordID":"u2","name":"Alina"}]}`))
	})

	users, err := client.FindUsers(context.Background(), "ali")
	if err != nil {
		t.Fatalf("FindUsers failed: %v", err)
	}
	if len(users) != 2 || users[0].UserID != "u1" || users[1].Name != "Alina" {
		t.Errorf("unexpected candidates: %+v", users)
	}
}

func TestCheckUserExists(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exists":true}`))
	})
	exists, err := client.CheckUserExists(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CheckUserExists failed: %v", err)
	}
	if !exists {
		t.Error("exists = false, want true")
	}
}

func TestNon2xxIsUpstreamErrorWithBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("spreadsheet quota exceeded"))
	})

	err := client.ApproveVisit(context.Background(), "u1")
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	if !strings.Contains(err.Error(), "spreadsheet quota exceeded") {
		t.Errorf("error does not preserve raw body: %v", err)
	}
}

func TestMalformedJSONIsUpstreamErrorWithBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	_, err := client.GetUnapprovedVisits(context.Background())
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	if !strings.Contains(err.Error(), "not json") {
		t.Errorf("error does not preserve raw body: %v", err)
	}
}

func TestUpdateScheduleStatusOmitsEmptyNotes(t *testing.T) {
	var got map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeRequest(t, r)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if err := client.UpdateScheduleStatus(context.Background(), "u1", "02/10/26", "confirmed", ""); err != nil {
		t.Fatalf("UpdateScheduleStatus failed: %v", err)
	}
	if _, present := got["notes"]; present {
		t.Error("empty notes should be omitted from the request")
	}
	if got["employeeDiscordID"] != "u1" || got["status"] != "confirmed" {
		t.Errorf("unexpected request: %v", got)
	}
}

func TestContextCancellationPropagates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := client.ApproveVisit(ctx, "u1")
	if !errors.Is(err, models.ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream wrapping the transport failure", err)
	}
}
