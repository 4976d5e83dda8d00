package dodgeball

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient(Config{APIURL: "http://engine"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials got %v", err)
	}
	if _, err := NewClient(Config{APIKey: "secret"}); !errors.Is(err, ErrMissingAPIURL) {
		t.Fatalf("expected ErrMissingAPIURL got %v", err)
	}
}

func TestCheckpointSendsHeadersAndBody(t *testing.T) {
	var gotPath string
	var gotHeaders http.Header
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"version":"v1","verification":{"id":"v1","status":"COMPLETE","outcome":"APPROVED","extra":{"k":1}}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.Checkpoint(context.Background(), CheckpointRequest{
		CheckpointName:    "LOGIN",
		Event:             Event{IP: "10.0.0.1", Data: map[string]any{"email": "a@b.com"}},
		SourceToken:       "tok",
		SessionID:         "sess",
		UserID:            "user",
		UseVerificationID: "prior",
		Options:           CheckpointOptions{Timeout: 500},
	})
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	if gotPath != "/v1/checkpoint" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	expectHeaders := map[string]string{
		"Dodgeball-Secret-Key":      "secret",
		"Dodgeball-Source-Token":    "tok",
		"Dodgeball-Session-Id":      "sess",
		"Dodgeball-Customer-Id":     "user",
		"Dodgeball-Verification-Id": "prior",
	}
	for key, want := range expectHeaders {
		if got := gotHeaders.Get(key); got != want {
			t.Fatalf("header %s: expected %q got %q", key, want, got)
		}
	}
	if gotBody["checkpointName"] != "LOGIN" {
		t.Fatalf("unexpected checkpoint name %v", gotBody["checkpointName"])
	}
	event, _ := gotBody["event"].(map[string]any)
	if event["ip"] != "10.0.0.1" {
		t.Fatalf("unexpected event ip %v", event["ip"])
	}

	if !IsAllowed(resp) {
		t.Fatalf("expected allowed response, got %+v", resp.Verification)
	}
	echoed, err := json.Marshal(resp.Verification)
	if err != nil {
		t.Fatalf("marshal verification: %v", err)
	}
	if !strings.Contains(string(echoed), `"extra":{"k":1}`) {
		t.Fatalf("expected unknown fields preserved, got %s", echoed)
	}
}

func TestCheckpointInBandErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":400,"message":"invalid checkpoint"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Checkpoint(context.Background(), CheckpointRequest{CheckpointName: "LOGIN"})
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected unsuccessful response")
	}
	if got := resp.Errors.String(); got != "400: invalid checkpoint" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestCheckpointUndecodableFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Checkpoint(context.Background(), CheckpointRequest{CheckpointName: "LOGIN"}); err == nil {
		t.Fatalf("expected error for undecodable failure")
	}
}

func TestTrack(t *testing.T) {
	var gotPath string
	var gotEvent TrackEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotEvent)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Track(context.Background(), TrackRequest{Event: TrackEvent{Type: "PAGE_VIEW"}, SessionID: "s"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if gotPath != "/v1/track" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotEvent.Type != "PAGE_VIEW" || gotEvent.EventTime == 0 {
		t.Fatalf("unexpected event %+v", gotEvent)
	}

	if err := client.Track(context.Background(), TrackRequest{}); err == nil {
		t.Fatalf("expected error for missing event type")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name      string
		resp      *CheckpointResponse
		allowed   bool
		running   bool
		denied    bool
		undecided bool
	}{
		{"nil", nil, false, false, false, false},
		{"approved", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusComplete, Outcome: OutcomeApproved}}, true, false, false, false},
		{"pending", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusPending, Outcome: OutcomePending}}, false, true, false, false},
		{"blocked", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusBlocked, Outcome: OutcomePending}}, false, true, false, false},
		{"denied", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusComplete, Outcome: OutcomeDenied}}, false, false, true, false},
		{"undecided", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusComplete, Outcome: OutcomePending}}, false, false, false, true},
		{"failed call", &CheckpointResponse{Success: false, Verification: &Verification{Status: StatusComplete, Outcome: OutcomeApproved}}, false, false, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAllowed(tc.resp); got != tc.allowed {
				t.Fatalf("allowed: expected %v got %v", tc.allowed, got)
			}
			if got := IsRunning(tc.resp); got != tc.running {
				t.Fatalf("running: expected %v got %v", tc.running, got)
			}
			if got := IsDenied(tc.resp); got != tc.denied {
				t.Fatalf("denied: expected %v got %v", tc.denied, got)
			}
			if got := IsUndecided(tc.resp); got != tc.undecided {
				t.Fatalf("undecided: expected %v got %v", tc.undecided, got)
			}
		})
	}
}

func TestHasFailed(t *testing.T) {
	tests := []struct {
		name     string
		resp     *CheckpointResponse
		expected bool
	}{
		{"nil", nil, false},
		{"failed status", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusFailed}}, true},
		{"error outcome", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusComplete, Outcome: OutcomeError}}, true},
		{"approved", &CheckpointResponse{Success: true, Verification: &Verification{Status: StatusComplete, Outcome: OutcomeApproved}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasFailed(tc.resp); got != tc.expected {
				t.Fatalf("expected %v got %v", tc.expected, got)
			}
		})
	}
}

func TestVerificationMarshalEchoesDecodedDocument(t *testing.T) {
	doc := `{"id":"v1","status":"COMPLETE","outcome":"APPROVED","riskScore":12}`
	var v Verification
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	v.Outcome = OutcomeDenied

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(out) != doc {
		t.Fatalf("expected decoded document %s got %s", doc, out)
	}

	built, err := json.Marshal(Verification{ID: "v2", Status: StatusPending})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(built) != `{"id":"v2","status":"PENDING"}` {
		t.Fatalf("unexpected encoding %s", built)
	}
}
