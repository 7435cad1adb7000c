package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"

	"peablog/internal/apiclient"
	"peablog/internal/fakeapi"
	"peablog/internal/models"
	"peablog/internal/storage"
)

type fixture struct {
	api     *fakeapi.Server
	client  *apiclient.Client
	store   storage.Store
	manager *Manager
	resets  *resetLog
}

type resetLog struct {
	mu      sync.Mutex
	reasons []Reason
}

func (l *resetLog) add(r Reason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons = append(l.reasons, r)
}

func (l *resetLog) all() []Reason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Reason(nil), l.reasons...)
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()

	api := fakeapi.New()
	api.AddUser("admin", "secret", models.RoleAdmin)
	api.AddUser("reader", "secret", models.RoleUser)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	if store == nil {
		store = storage.NewMemoryStore()
	}
	client := apiclient.New(apiclient.Options{BaseURL: srv.URL + fakeapi.Prefix})
	m := New(client, store, nil)
	t.Cleanup(m.Attach(client))

	log := &resetLog{}
	m.OnReset(log.add)

	return &fixture{api: api, client: client, store: store, manager: m, resets: log}
}

func persisted(t *testing.T, s storage.Store) (string, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), storage.KeyToken)
	if err != nil {
		t.Fatalf("storage get: %v", err)
	}
	return v, ok
}

func TestBootstrap_NoPersistedToken(t *testing.T) {
	f := newFixture(t, nil)

	st := f.manager.Bootstrap(context.Background())

	if !st.Initialized || st.IsLoggedIn() || st.Phase() != PhaseAnonymous {
		t.Errorf("unexpected state: %+v phase=%v", st, st.Phase())
	}
	if calls := f.api.Calls(); len(calls) != 0 {
		t.Errorf("expected no remote calls, got %v", calls)
	}
}

func TestBootstrap_ValidToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.store.Set(ctx, storage.KeyToken, f.api.IssueToken("admin"))

	st := f.manager.Bootstrap(ctx)

	if !st.Initialized || !st.IsLoggedIn() || !st.IsAdmin() {
		t.Fatalf("expected admin session, got %+v", st)
	}
	if st.Phase() != PhaseAuthenticated {
		t.Errorf("phase: got %v", st.Phase())
	}
	if st.User.Username != "admin" {
		t.Errorf("username: got %q", st.User.Username)
	}
}

func TestBootstrap_InvalidToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.store.Set(ctx, storage.KeyToken, "stale")

	st := f.manager.Bootstrap(ctx)

	if !st.Initialized || st.IsLoggedIn() || st.Token != "" {
		t.Errorf("expected cleared session, got %+v", st)
	}
	if _, ok := persisted(t, f.store); ok {
		t.Error("stale token should be removed from storage")
	}
	if len(f.resets.all()) == 0 {
		t.Error("expected a reset notification")
	}
}

func TestBootstrap_ServerErrorClearsLocally(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.store.Set(ctx, storage.KeyToken, f.api.IssueToken("admin"))
	f.api.FailNext(http.MethodGet, "/api/auth/me", http.StatusInternalServerError)

	st := f.manager.Bootstrap(ctx)

	if !st.Initialized || st.IsLoggedIn() {
		t.Errorf("expected anonymous, got %+v", st)
	}
	if got := f.resets.all(); len(got) != 1 || got[0] != ReasonBootstrapFailed {
		t.Errorf("resets: got %v", got)
	}
	for _, c := range f.api.Calls() {
		if c == "POST /api/auth/logout" {
			t.Error("bootstrap cleanup must not call the service")
		}
	}
}

func TestBootstrap_InitializesExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.store.Set(ctx, storage.KeyToken, f.api.IssueToken("reader"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st := f.manager.Bootstrap(ctx); !st.Initialized {
				t.Error("Bootstrap returned before initialization")
			}
		}()
	}
	wg.Wait()

	meCalls := 0
	for _, c := range f.api.Calls() {
		if c == "GET /api/auth/me" {
			meCalls++
		}
	}
	if meCalls != 1 {
		t.Errorf("identity fetched %d times, want 1", meCalls)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.manager.Bootstrap(ctx)

	resp, err := f.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	st := f.manager.State()
	if !st.IsLoggedIn() || st.Token != resp.Token || !st.IsAdmin() {
		t.Errorf("state after login: %+v", st)
	}
	if v, ok := persisted(t, f.store); !ok || v != resp.Token {
		t.Errorf("persisted token: got %q ok=%v", v, ok)
	}
	if f.manager.Token() != resp.Token {
		t.Error("gateway credential source out of sync")
	}
}

func TestLogin_FailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.manager.Bootstrap(ctx)

	first, err := f.manager.Login(ctx, models.LoginRequest{Username: "reader", Password: "secret"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	before := f.manager.State()

	// Missing password is a 400, which does not trigger the global reset.
	_, err = f.manager.Login(ctx, models.LoginRequest{Username: "admin"})
	if err == nil {
		t.Fatal("expected login error")
	}
	if code := apiclient.StatusCode(err); code != http.StatusBadRequest {
		t.Errorf("status: got %d", code)
	}

	after := f.manager.State()
	if after.Token != first.Token || after.User.Username != before.User.Username || after.Phase() != before.Phase() {
		t.Errorf("state changed: before=%+v after=%+v", before, after)
	}
	if v, _ := persisted(t, f.store); v != first.Token {
		t.Errorf("persisted token changed to %q", v)
	}
}

func TestLogin_WrongPasswordWhileSignedInExpiresSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.manager.Bootstrap(ctx)
	if _, err := f.manager.Login(ctx, models.LoginRequest{Username: "reader", Password: "secret"}); err != nil {
		t.Fatalf("first login: %v", err)
	}

	// A wrong password answers 401, and every 401 resets the session.
	_, err := f.manager.Login(ctx, models.LoginRequest{Username: "reader", Password: "wrong"})
	if !errors.Is(err, apiclient.ErrSessionExpired) {
		t.Fatalf("login error: got %v, want ErrSessionExpired", err)
	}
	if st := f.manager.State(); st.IsLoggedIn() || st.Phase() != PhaseAnonymous {
		t.Errorf("state after rejected login: %+v phase=%v", st, st.Phase())
	}
	if _, ok := persisted(t, f.store); ok {
		t.Error("token still persisted")
	}
	if got := f.resets.all(); len(got) != 1 || got[0] != ReasonSessionExpired {
		t.Errorf("resets: %v", got)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"})

	f.manager.Logout(ctx)

	if st := f.manager.State(); st.IsLoggedIn() || st.Token != "" || st.User != nil {
		t.Errorf("state after logout: %+v", st)
	}
	if _, ok := persisted(t, f.store); ok {
		t.Error("token still persisted")
	}
	if got := f.resets.all(); len(got) == 0 || got[len(got)-1] != ReasonLogout {
		t.Errorf("resets: %v", got)
	}
}

func TestLogout_RemoteFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"})
	f.api.FailNext(http.MethodPost, "/api/auth/logout", http.StatusInternalServerError)

	f.manager.Logout(ctx)

	if st := f.manager.State(); st.IsLoggedIn() {
		t.Errorf("expected local cleanup despite remote failure: %+v", st)
	}
}

func TestLogout_RemoteUnauthorizedNotifiesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"})
	f.api.FailNext(http.MethodPost, "/api/auth/logout", http.StatusUnauthorized)

	f.manager.Logout(ctx)

	if st := f.manager.State(); st.IsLoggedIn() {
		t.Errorf("state after logout: %+v", st)
	}
	if got := f.resets.all(); len(got) != 1 || got[0] != ReasonSessionExpired {
		t.Errorf("resets: got %v, want [session_expired]", got)
	}
}

func TestLogout_AnonymousMakesNoCall(t *testing.T) {
	f := newFixture(t, nil)
	f.manager.Logout(context.Background())
	if calls := f.api.Calls(); len(calls) != 0 {
		t.Errorf("expected no calls, got %v", calls)
	}
}

func TestRefreshIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.manager.RefreshIdentity(ctx); err != nil {
		t.Fatalf("anonymous refresh: %v", err)
	}
	if calls := f.api.Calls(); len(calls) != 0 {
		t.Errorf("anonymous refresh made calls: %v", calls)
	}

	f.manager.Login(ctx, models.LoginRequest{Username: "reader", Password: "secret"})
	if err := f.manager.RefreshIdentity(ctx); err != nil {
		t.Fatalf("RefreshIdentity: %v", err)
	}
	if st := f.manager.State(); st.User.Username != "reader" {
		t.Errorf("identity: %+v", st.User)
	}

	f.api.FailNext(http.MethodGet, "/api/auth/me", http.StatusInternalServerError)
	err := f.manager.RefreshIdentity(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if st := f.manager.State(); st.IsLoggedIn() {
		t.Error("failed refresh should clear the session")
	}
	if got := f.resets.all(); got[len(got)-1] != ReasonRefreshFailed {
		t.Errorf("resets: %v", got)
	}
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.manager.RefreshToken(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous: got %v", err)
	}

	resp, _ := f.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"})
	if err := f.manager.RefreshToken(ctx); err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	tok := f.manager.Token()
	if tok == "" || tok == resp.Token {
		t.Errorf("token not rotated: %q", tok)
	}
	if v, _ := persisted(t, f.store); v != tok {
		t.Errorf("persisted %q, want %q", v, tok)
	}
	if !f.manager.State().IsLoggedIn() {
		t.Error("identity lost on rotation")
	}
}

func TestGatewayUnauthorizedResetsSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"})
	f.api.ExpireTokens()

	// Any call through the gateway, not just session calls.
	err := f.client.Get(ctx, "/articles", nil, nil)
	if !errors.Is(err, apiclient.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	if st := f.manager.State(); st.IsLoggedIn() || st.Token != "" {
		t.Errorf("session not reset: %+v", st)
	}
	if _, ok := persisted(t, f.store); ok {
		t.Error("persisted token not removed")
	}
	if got := f.resets.all(); len(got) != 1 || got[0] != ReasonSessionExpired {
		t.Errorf("resets: %v", got)
	}
}

func TestOnResetUnsubscribe(t *testing.T) {
	f := newFixture(t, nil)
	calls := 0
	unsub := f.manager.OnReset(func(Reason) { calls++ })
	unsub()

	f.manager.HandleUnauthorized(context.Background())
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
}

// failingStore fails every write.
type failingStore struct{ storage.Store }

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestLogin_PersistFailureKeepsSession(t *testing.T) {
	f := newFixture(t, failingStore{storage.NewMemoryStore()})
	ctx := context.Background()

	if _, err := f.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !f.manager.State().IsLoggedIn() {
		t.Error("in-memory session should survive a persistence failure")
	}
}

// testValkeyClient returns a Redis client connected to the test Valkey.
// Skips the test if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15, // Use DB 15 for tests to isolate from dev data.
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, "peablog:session-test:*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestSessionSurvivesRestartWithValkey(t *testing.T) {
	rc := testValkeyClient(t)
	ctx := context.Background()

	first := newFixture(t, storage.NewValkeyStore(rc, "session-test"))
	if _, err := first.manager.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// A second process sharing the store and the same service.
	client := apiclient.New(apiclient.Options{BaseURL: first.client.BaseURL()})
	second := New(client, storage.NewValkeyStore(rc, "session-test"), nil)
	defer second.Attach(client)()

	st := second.Bootstrap(ctx)
	if !st.IsLoggedIn() || st.User.Username != "admin" {
		t.Errorf("restored state: %+v", st)
	}
}
