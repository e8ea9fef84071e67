package specter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/event"
)

type capturedRequest struct {
	method      string
	path        string
	apiKey      string
	contentType string
	eventName   string
	data        string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		reqs <- capturedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			apiKey:      r.URL.Query().Get("api_key"),
			contentType: r.Header.Get("Content-Type"),
			eventName:   r.PostForm.Get("event"),
			data:        r.PostForm.Get("data"),
		}
		w.WriteHeader(status)
		w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestForwardSent(t *testing.T) {
	srv, reqs := newCaptureServer(t, http.StatusOK)
	c := New(srv.URL)

	ev := event.Canonical{
		Name: "SceneItemEnableStateChanged",
		Fields: event.Fields{
			{Key: "scene", Value: "Main"},
			{Key: "item", Value: "Webcam"},
			{Key: "enabled", Value: true},
		},
	}

	out := c.Forward(context.Background(), ev, "T1")
	if out.Status != Sent {
		t.Fatalf("Forward() = %+v, want Sent", out)
	}
	if out.Reason != "" {
		t.Errorf("Reason = %q, want empty", out.Reason)
	}

	got := <-reqs
	if got.method != http.MethodPost {
		t.Errorf("method = %s, want POST", got.method)
	}
	if got.path != "/SEND_OBS_EVENT" {
		t.Errorf("path = %s, want /SEND_OBS_EVENT", got.path)
	}
	if got.apiKey != "T1" {
		t.Errorf("api_key = %q, want T1", got.apiKey)
	}
	if got.contentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", got.contentType)
	}
	if got.eventName != "OBS_EVENT" {
		t.Errorf("event = %q, want OBS_EVENT", got.eventName)
	}
	want := `{"name":"SceneItemEnableStateChanged","fields":{"scene":"Main","item":"Webcam","enabled":true}}`
	if got.data != want {
		t.Errorf("data = %s, want %s", got.data, want)
	}
}

func TestForwardCustomEventName(t *testing.T) {
	srv, reqs := newCaptureServer(t, http.StatusOK)
	c := New(srv.URL+"/", WithEventName("CUSTOM"))

	c.Forward(context.Background(), event.Canonical{Name: "X"}, "T1")

	got := <-reqs
	if got.eventName != "CUSTOM" {
		t.Errorf("event = %q, want CUSTOM", got.eventName)
	}
	if got.path != "/SEND_OBS_EVENT" {
		t.Errorf("path = %s, trailing slash not trimmed", got.path)
	}
	if got.data != `{"name":"X","fields":{}}` {
		t.Errorf("data = %s", got.data)
	}
}

func TestForwardNon200IsFailed(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv, _ := newCaptureServer(t, status)
		out := New(srv.URL).Forward(context.Background(), event.Canonical{Name: "X"}, "T1")
		if out.Status != Failed {
			t.Errorf("status %d: Forward() = %+v, want Failed", status, out)
		}
		if !strings.Contains(out.Reason, "HTTP") {
			t.Errorf("status %d: Reason = %q, want HTTP status", status, out.Reason)
		}
	}
}

func TestForwardUnreachableIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := New(url, WithTimeout(time.Second)).Forward(context.Background(), event.Canonical{Name: "X"}, "secret-token")
	if out.Status != Failed {
		t.Fatalf("Forward() = %+v, want Failed", out)
	}
	if strings.Contains(out.Reason, "secret-token") {
		t.Errorf("Reason leaks the access token: %q", out.Reason)
	}
}

func TestForwardCancelledContextIsFailed(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New(srv.URL).Forward(ctx, event.Canonical{Name: "X"}, "T1")
	if out.Status != Failed {
		t.Errorf("Forward() = %+v, want Failed", out)
	}
}

func TestCheckKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkkey" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("api_key") == "good" {
			w.Write([]byte(`{"status":"Valid API Key"}`))
			return
		}
		w.Write([]byte(`{"status":"Invalid API Key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.CheckKey(context.Background(), "good"); err != nil {
		t.Errorf("CheckKey(good) error: %v", err)
	}
	if err := c.CheckKey(context.Background(), "bad"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("CheckKey(bad) = %v, want ErrInvalidKey", err)
	}
}

func TestCheckKeyTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).CheckKey(context.Background(), "good")
	if err == nil {
		t.Fatal("CheckKey() on closed server should fail")
	}
	if errors.Is(err, ErrInvalidKey) {
		t.Errorf("transport failure reported as ErrInvalidKey: %v", err)
	}
}

func TestStatusString(t *testing.T) {
	if Sent.String() != "sent" || Failed.String() != "failed" {
		t.Errorf("String() = %q/%q", Sent, Failed)
	}
}
