package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/event"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/specter"
)

type captured struct {
	apiKey string
	event  string
	data   string
}

// newCollector fakes the event-collection API, replying with status.
func newCollector(t *testing.T, status int) (*httptest.Server, <-chan captured) {
	t.Helper()
	got := make(chan captured, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		got <- captured{
			apiKey: r.URL.Query().Get("api_key"),
			event:  r.PostForm.Get("event"),
			data:   r.PostForm.Get("data"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

type result struct {
	ev  event.Canonical
	out specter.Outcome
}

func startRelay(t *testing.T, fwd Forwarder, provider config.Provider, opts ...Option) (*Relay, <-chan result) {
	t.Helper()
	results := make(chan result, 8)
	opts = append(opts, WithOnOutcome(func(ev event.Canonical, out specter.Outcome) {
		results <- result{ev, out}
	}))
	r := New(fwd, provider, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	})
	return r, results
}

func awaitResult(t *testing.T, results <-chan result) result {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("no forward outcome")
		return result{}
	}
}

func TestSceneItemEventForwardedEndToEnd(t *testing.T) {
	srv, got := newCollector(t, http.StatusOK)
	r, results := startRelay(t, specter.New(srv.URL), config.Static{AccessToken: "T1"})

	r.Push(event.Raw{
		Kind: event.KindSceneItemEnableStateChanged,
		Data: []byte(`{"sceneName":"Main","sourceName":"Webcam","sceneItemId":3,"sceneItemEnabled":true}`),
	})

	res := awaitResult(t, results)
	if res.out.Status != specter.Sent {
		t.Fatalf("outcome = %+v, want Sent", res.out)
	}
	req := <-got
	if req.apiKey != "T1" {
		t.Errorf("api_key = %q, want T1", req.apiKey)
	}
	if req.event != "OBS_EVENT" {
		t.Errorf("event = %q, want OBS_EVENT", req.event)
	}
	want := `{"name":"SceneItemEnableStateChanged","fields":{"scene":"Main","item":"Webcam","enabled":true}}`
	if req.data != want {
		t.Errorf("data = %s\nwant   %s", req.data, want)
	}
	if s := r.Stats(); s.Received != 1 || s.Sent != 1 || s.Failed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestUnknownKindForwardedAndFailureRecorded(t *testing.T) {
	srv, got := newCollector(t, http.StatusInternalServerError)
	r, results := startRelay(t, specter.New(srv.URL), config.Static{AccessToken: "T1"})

	r.Push(event.Raw{Kind: "FooBarEvent", Data: []byte(`{"anything":1}`)})

	res := awaitResult(t, results)
	if res.ev.Name != "FooBarEvent" || len(res.ev.Fields) != 0 {
		t.Errorf("canonical = %+v", res.ev)
	}
	if res.out.Status != specter.Failed || res.out.Reason == "" {
		t.Errorf("outcome = %+v, want Failed with a reason", res.out)
	}
	if req := <-got; req.data != `{"name":"FooBarEvent","fields":{}}` {
		t.Errorf("data = %s", req.data)
	}
	if s := r.Stats(); s.Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", s.Failed)
	}
}

// mutableProvider lets a test swap the token between push and send.
type mutableProvider struct {
	mu    sync.Mutex
	token string
}

func (p *mutableProvider) set(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
}

func (p *mutableProvider) Settings() config.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return config.Settings{AccessToken: p.token}
}

type tokenForwarder struct {
	tokens chan string
}

func (f *tokenForwarder) Forward(ctx context.Context, ev event.Canonical, token string) specter.Outcome {
	f.tokens <- token
	return specter.Outcome{Status: specter.Sent}
}

func TestTokenReadAtForwardTime(t *testing.T) {
	provider := &mutableProvider{token: "old"}
	fwd := &tokenForwarder{tokens: make(chan string, 1)}

	r := New(fwd, provider, WithWorkers(1))
	r.Push(event.Raw{Kind: event.KindExitStarted})
	provider.set("new")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	select {
	case token := <-fwd.tokens:
		if token != "new" {
			t.Errorf("forwarded with token %q, want new", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
}

type blockingForwarder struct {
	release chan struct{}
}

func (f *blockingForwarder) Forward(ctx context.Context, ev event.Canonical, token string) specter.Outcome {
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return specter.Outcome{Status: specter.Sent}
}

func TestPushDropsWhenQueueFull(t *testing.T) {
	fwd := &blockingForwarder{release: make(chan struct{})}
	defer close(fwd.release)

	// Without Run nothing drains the queue.
	r := New(fwd, config.Static{}, WithQueueSize(2))

	start := time.Now()
	for i := 0; i < 5; i++ {
		r.Push(event.Raw{Kind: event.KindStreamStateChanged})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Push blocked for %v", elapsed)
	}

	s := r.Stats()
	if s.Received != 5 || s.Dropped != 3 {
		t.Errorf("Stats() = %+v, want received 5 dropped 3", s)
	}
}

func TestOptionsIgnoreNonPositive(t *testing.T) {
	r := New(&blockingForwarder{}, config.Static{}, WithQueueSize(0), WithWorkers(-1))
	if r.queueSize != defaultQueueSize || r.workers != defaultWorkers {
		t.Errorf("queueSize=%d workers=%d, want defaults", r.queueSize, r.workers)
	}
	if cap(r.queue) != defaultQueueSize {
		t.Errorf("queue capacity = %d", cap(r.queue))
	}
}
