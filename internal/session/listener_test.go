package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/8by8-org/challenge-api/internal/dto"
)

func TestListenerRefreshesOncePerBadgeEvent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var refreshes atomic.Int32
	api := newFakeAPI(t, map[string]http.HandlerFunc{
		PathRefreshUser: func(w http.ResponseWriter, r *http.Request) {
			n := int(refreshes.Add(1))
			u := testUser("c1")
			for i := 1; i <= n && i <= dto.CompletionThreshold; i++ {
				u.Badges = append(u.Badges, dto.Badge{PlayerName: fmt.Sprintf("Player %d", i), PlayerAvatar: "1"})
			}
			u.CompletedChallenge = len(u.Badges) >= dto.CompletionThreshold
			respondUser(u)(w, r)
		},
	})
	defer api.srv.Close()

	rt := &fakeRealtime{}
	store := NewStore(api.client(t), State{User: testUser("c1")}, WithRealtime(rt))
	defer store.Close()

	require.NoError(t, store.Mount(context.Background()))
	subs := rt.active()
	require.Len(t, subs, 1)
	require.Equal(t, "c1", subs[0].userID)

	for i := 1; i <= dto.CompletionThreshold; i++ {
		subs[0].events <- dto.NewBadgeInsertEvent("c1", dto.Badge{PlayerName: fmt.Sprintf("Player %d", i), PlayerAvatar: "1"})
		require.Eventually(t, func() bool {
			return len(store.State().User.Badges) == i
		}, 2*time.Second, 5*time.Millisecond)
	}

	require.EqualValues(t, dto.CompletionThreshold, refreshes.Load())
	require.True(t, store.State().User.CompletedChallenge)
	require.Equal(t, 1, rt.subscribeCount())
}

func TestListenerIgnoresOtherEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := newFakeAPI(t, map[string]http.HandlerFunc{
		PathRefreshUser: respondUser(testUser("c1")),
	})
	defer api.srv.Close()

	rt := &fakeRealtime{}
	store := NewStore(api.client(t), State{User: testUser("c1")}, WithRealtime(rt))
	require.NoError(t, store.Mount(context.Background()))

	ev := dto.NewBadgeInsertEvent("c1", dto.Badge{Action: dto.ActionSharedChallenge})
	ev.Type = "DELETE"
	rt.active()[0].events <- ev

	store.Close()
	require.Zero(t, api.requests.Load())
	require.Empty(t, rt.active())
}

func TestListenerFollowsSignedInUser(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := newFakeAPI(t, map[string]http.HandlerFunc{
		PathSignInWithOTP: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, dto.SignInResponse{User: testUser("u2")})
		},
		PathSignOut: respondStatus(http.StatusOK),
	})
	defer api.srv.Close()

	rt := &fakeRealtime{}
	store := NewStore(api.client(t), State{User: testUser("u1"), EmailForSignIn: "u2@example.com"}, WithRealtime(rt))
	ctx := context.Background()
	require.NoError(t, store.Mount(ctx))
	require.Equal(t, "u1", rt.active()[0].userID)

	require.NoError(t, store.SignOut(ctx))
	require.Empty(t, rt.active())

	require.NoError(t, store.SignInWithOTP(ctx, "123456"))
	active := rt.active()
	require.Len(t, active, 1)
	require.Equal(t, "u2", active[0].userID)

	store.Close()
	require.Empty(t, rt.active())
	require.Equal(t, []int{0, 0}, rt.activeAtSubscribe)
}

func TestMountWithoutUserWaitsForSignIn(t *testing.T) {
	api := newFakeAPI(t, map[string]http.HandlerFunc{
		PathSignInWithOTP: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, dto.SignInResponse{User: testUser("u1")})
		},
	})
	defer api.srv.Close()

	rt := &fakeRealtime{}
	store := NewStore(api.client(t), State{EmailForSignIn: "u1@example.com"}, WithRealtime(rt))
	defer store.Close()

	require.NoError(t, store.Mount(context.Background()))
	require.Zero(t, rt.subscribeCount())

	require.NoError(t, store.SignInWithOTP(context.Background(), "123456"))
	require.Equal(t, 1, rt.subscribeCount())
}

func TestMountAfterCloseFails(t *testing.T) {
	store := NewStore(nil, State{}, WithRealtime(&fakeRealtime{}))
	store.Close()
	require.ErrorIs(t, store.Mount(context.Background()), ErrClosed)
}

func TestListenerSettlesOnLatestUserWhenCommitsRace(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := newFakeAPI(t, map[string]http.HandlerFunc{
		PathSignOut: respondStatus(http.StatusOK),
		PathSignInWithOTP: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, dto.SignInResponse{User: testUser("u2")})
		},
	})
	defer api.srv.Close()

	// The sign-out's change callback is held until the sign-in has fully
	// committed, so its listener update arrives last.
	blocked := make(chan struct{})
	release := make(chan struct{})
	var held atomic.Bool
	onChange := func(st State) {
		if st.User == nil && held.CompareAndSwap(false, true) {
			close(blocked)
			<-release
		}
	}

	rt := &fakeRealtime{}
	store := NewStore(api.client(t), State{User: testUser("u1"), EmailForSignIn: "u2@example.com"},
		WithRealtime(rt), WithOnChange(onChange))
	ctx := context.Background()
	require.NoError(t, store.Mount(ctx))

	signedOut := make(chan error, 1)
	go func() { signedOut <- store.SignOut(ctx) }()
	<-blocked

	require.NoError(t, store.SignInWithOTP(ctx, "123456"))
	close(release)
	require.NoError(t, <-signedOut)

	require.Equal(t, "u2", store.State().User.UID)
	active := rt.active()
	require.Len(t, active, 1)
	require.Equal(t, "u2", active[0].userID)

	store.Close()
	require.Empty(t, rt.active())
}

// flakyRealtime refuses the first failures subscriptions.
type flakyRealtime struct {
	fakeRealtime
	failures atomic.Int32
}

func (f *flakyRealtime) Subscribe(ctx context.Context, userID string, handler func(dto.BadgeEvent)) (Subscription, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("dial: connection refused")
	}
	return f.fakeRealtime.Subscribe(ctx, userID, handler)
}

func TestMountRetriesFailedSubscription(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rt := &flakyRealtime{}
	rt.failures.Store(1)
	store := NewStore(nil, State{User: testUser("u1")}, WithRealtime(rt))

	require.Error(t, store.Mount(context.Background()))
	require.Empty(t, rt.active())

	require.NoError(t, store.Mount(context.Background()))
	active := rt.active()
	require.Len(t, active, 1)
	require.Equal(t, "u1", active[0].userID)

	require.NoError(t, store.Mount(context.Background()))
	require.Equal(t, 1, rt.subscribeCount())

	store.Close()
	require.Empty(t, rt.active())
}

func TestFailedSubscriptionRetriedOnNextChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := newFakeAPI(t, map[string]http.HandlerFunc{
		PathSignInWithOTP: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, dto.SignInResponse{User: testUser("u1")})
		},
		PathRefreshUser: respondUser(testUser("u1")),
	})
	defer api.srv.Close()

	rt := &flakyRealtime{}
	rt.failures.Store(1)
	store := NewStore(api.client(t), State{EmailForSignIn: "u1@example.com"}, WithRealtime(rt))
	ctx := context.Background()
	require.NoError(t, store.Mount(ctx))

	require.NoError(t, store.SignInWithOTP(ctx, "123456"))
	require.Empty(t, rt.active())

	require.NoError(t, store.RefreshUser(ctx))
	active := rt.active()
	require.Len(t, active, 1)
	require.Equal(t, "u1", active[0].userID)

	store.Close()
	require.Empty(t, rt.active())
}

func TestListenerRefreshesOnResync(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	updated := testUser("c1")
	updated.Badges = []dto.Badge{{PlayerName: "Player", PlayerAvatar: "2"}}
	api := newFakeAPI(t, map[string]http.HandlerFunc{
		PathRefreshUser: respondUser(updated),
	})
	defer api.srv.Close()

	rt := &fakeRealtime{}
	store := NewStore(api.client(t), State{User: testUser("c1")}, WithRealtime(rt))
	defer store.Close()
	require.NoError(t, store.Mount(context.Background()))

	rt.active()[0].events <- dto.NewResyncEvent("c1")
	require.Eventually(t, func() bool {
		return len(store.State().User.Badges) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, api.requests.Load())
}
