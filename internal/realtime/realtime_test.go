package realtime

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/logging"
)

func TestHubRoutesByUser(t *testing.T) {
	hub := NewHub(logging.Discard())
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")
	require.Equal(t, 1, hub.Subscribers("a"))

	ev := dto.NewBadgeInsertEvent("a", dto.Badge{Action: dto.ActionSharedChallenge})
	hub.Publish(ev)

	require.Equal(t, ev, <-a.Events())
	select {
	case got := <-b.Events():
		t.Fatalf("b received %v", got)
	default:
	}

	a.Close()
	a.Close()
	_, open := <-a.Events()
	require.False(t, open)
	require.Zero(t, hub.Subscribers("a"))

	hub.Publish(ev)
	b.Close()
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(logging.Discard())
	s := hub.Subscribe("a")
	defer s.Close()

	ev := dto.NewBadgeInsertEvent("a", dto.Badge{Action: dto.ActionSharedChallenge})
	for i := 0; i < defaultSubscriberBuffer+5; i++ {
		hub.Publish(ev)
	}
	require.Len(t, s.Events(), defaultSubscriberBuffer)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// badgeServer upgrades requests carrying the session cookie and runs
// serve for each accepted connection.
func badgeServer(t *testing.T, serve func(n int, conn *websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/realtime/badges/u1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if c, err := r.Cookie("8by8-session"); err != nil || c.Value != "token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(int(conns.Add(1)), conn)
	}))
	return srv, &conns
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: "8by8-session", Value: "token"}})

	c, err := NewClient(srv.URL, jar,
		WithLogger(logging.Discard()),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }),
		WithMaxReconnectTime(5*time.Second),
	)
	require.NoError(t, err)
	return c
}

func waitClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestClientDeliversValidEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, _ := badgeServer(t, func(_ int, conn *websocket.Conn) {
		_ = conn.WriteJSON(dto.NewBadgeInsertEvent("u1", dto.Badge{Action: dto.ActionElectionReminders}))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteJSON(dto.BadgeEvent{Type: "UPDATE", Table: dto.TableBadges})
		_ = conn.WriteJSON(dto.NewBadgeInsertEvent("u1", dto.Badge{PlayerName: "P", PlayerAvatar: "1"}))
		waitClosed(conn)
	})
	defer srv.Close()

	events := make(chan dto.BadgeEvent, 4)
	sub, err := newTestClient(t, srv).Subscribe(context.Background(), "u1", func(ev dto.BadgeEvent) {
		events <- ev
	})
	require.NoError(t, err)

	require.Equal(t, dto.ActionElectionReminders, (<-events).Record.Action)
	require.Equal(t, "P", (<-events).Record.PlayerName)
	require.NoError(t, sub.Close())
	require.Empty(t, events)
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, conns := badgeServer(t, func(n int, conn *websocket.Conn) {
		_ = conn.WriteJSON(dto.NewBadgeInsertEvent("u1", dto.Badge{PlayerName: "P", PlayerAvatar: "1"}))
		if n == 1 {
			return
		}
		waitClosed(conn)
	})
	defer srv.Close()

	var inserts, resyncs atomic.Int32
	sub, err := newTestClient(t, srv).Subscribe(context.Background(), "u1", func(ev dto.BadgeEvent) {
		switch {
		case ev.IsBadgeInsert():
			inserts.Add(1)
		case ev.IsResync() && ev.Record.UserID == "u1":
			resyncs.Add(1)
		}
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return inserts.Load() == 2 && resyncs.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 2, conns.Load())
	require.NoError(t, sub.Close())
}

func TestClientRefusedSubscription(t *testing.T) {
	srv, _ := badgeServer(t, func(int, *websocket.Conn) {})
	defer srv.Close()

	_, err := newTestClient(t, srv).Subscribe(context.Background(), "someone-else", func(dto.BadgeEvent) {})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewClientSchemes(t *testing.T) {
	c, err := NewClient("https://api.example.com/base", nil)
	require.NoError(t, err)
	require.Equal(t, "wss://api.example.com/base/api/realtime/badges/u1", c.streamURL("u1"))

	_, err = NewClient("ftp://example.com", nil)
	require.Error(t, err)
}
