package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/8by8-org/challenge-api/internal/dto"
)

type fakeAPI struct {
	srv      *httptest.Server
	requests atomic.Int32
	mu       sync.Mutex
	paths    []string
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func newFakeAPI(t *testing.T, routes map[string]http.HandlerFunc) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		f.paths = append(f.paths, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		h, ok := routes[r.URL.Path]
		if !ok {
			h, ok = routes["*"]
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	return f
}

func (f *fakeAPI) client(t *testing.T) *Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := f.srv.Client()
	hc.Jar = jar
	c, err := NewClient(f.srv.URL, WithHTTPClient(hc))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondUser(u *dto.User) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.UserResponse{User: u})
	}
}

func respondStatus(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, dto.ErrorResponse{Error: true, Message: http.StatusText(status)})
	}
}

func testUser(uid string) *dto.User {
	return &dto.User{
		UID:                   uid,
		Email:                 uid + "@example.com",
		Name:                  "User " + uid,
		Avatar:                "0",
		Type:                  dto.UserTypeChallenger,
		Badges:                []dto.Badge{},
		ChallengeEndTimestamp: 1790000000,
		InviteCode:            "code-" + uid,
	}
}

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Push(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNavigator) pushed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

type fakeRealtime struct {
	mu sync.Mutex
	// activeAtSubscribe records how many subscriptions were still open
	// each time a new one was requested.
	activeAtSubscribe []int
	subs              []*fakeSub
}

type fakeSub struct {
	userID string
	events chan dto.BadgeEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func (f *fakeRealtime) Subscribe(ctx context.Context, userID string, handler func(dto.BadgeEvent)) (Subscription, error) {
	s := &fakeSub{
		userID: userID,
		events: make(chan dto.BadgeEvent),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.stop:
				return
			case ev := <-s.events:
				handler(ev)
			}
		}
	}()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeAtSubscribe = append(f.activeAtSubscribe, f.activeLocked())
	f.subs = append(f.subs, s)
	return s, nil
}

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.stop)
	})
	<-s.done
	return nil
}

func (f *fakeRealtime) activeLocked() int {
	n := 0
	for _, s := range f.subs {
		if !s.closed.Load() {
			n++
		}
	}
	return n
}

func (f *fakeRealtime) active() []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, s := range f.subs {
		if !s.closed.Load() {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeRealtime) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
