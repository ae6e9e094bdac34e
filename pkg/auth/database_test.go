package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmercier/keepsake/pkg/token"
)

type stubStore struct {
	records map[string]*Record // keyed by credential
	err     error
	updates int
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*Record)}
}

func (s *stubStore) GetToken(ctx context.Context, credential string) (*Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[credential]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *stubStore) SaveToken(ctx context.Context, record *Record) error {
	if s.err != nil {
		return s.err
	}
	cp := *record
	s.records[record.Credential] = &cp
	return nil
}

func (s *stubStore) UpdateToken(ctx context.Context, record *Record) error {
	if s.err != nil {
		return s.err
	}
	cp := *record
	s.records[record.Credential] = &cp
	s.updates++
	return nil
}

func (s *stubStore) DeleteToken(ctx context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	for cred, rec := range s.records {
		if rec.ID == id {
			delete(s.records, cred)
		}
	}
	return nil
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.BcryptCost = 4 // keep the tests fast
	return opts
}

func newDBAuth(t *testing.T, users UserLookup, store TokenStore) *DatabaseAuthenticator {
	t.Helper()
	a, err := NewDatabaseAuthenticator(users, store, testSalt, fastOptions())
	require.NoError(t, err)
	return a
}

// login performs OnLogin and hands back the two issued cookies.
func login(t *testing.T, a *DatabaseAuthenticator, credential, passwordHash string) (authCookie, secretCookie *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := a.OnLogin(context.Background(), rec, credential, passwordHash)
	require.NoError(t, err)
	authCookie = responseCookie(t, rec, DefaultCookieName)
	secretCookie = responseCookie(t, rec, DefaultPasswordCookieName)
	require.NotNil(t, authCookie)
	require.NotNil(t, secretCookie)
	return authCookie, secretCookie
}

func TestDatabaseAuthenticator_OnLogin(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)

	rec := httptest.NewRecorder()
	expiresAt, err := a.OnLogin(context.Background(), rec, "alice", "h1")
	require.NoError(t, err)

	secretCookie := responseCookie(t, rec, DefaultPasswordCookieName)
	require.NotNil(t, secretCookie, "second cookie must be set")
	assert.Equal(t, expiresAt.Unix(), secretCookie.Expires.Unix(), "both cookies share the expiry")

	record := store.records["alice"]
	require.NotNil(t, record, "login must persist a session record")
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.IsExpired)
	assert.Equal(t, expiresAt.Unix(), record.ExpirationDate.Unix())
	assert.NotEqual(t, secretCookie.Value, record.RandomPasswordHash, "secret is stored hashed, never plaintext")
	assert.True(t, token.VerifyRandomPassword(record.RandomPasswordHash, secretCookie.Value))
}

func TestDatabaseAuthenticator_AutoLogin(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)
	authCookie, secretCookie := login(t, a, "alice", "h1")

	t.Run("success", func(t *testing.T) {
		user, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, secretCookie))
		require.NoError(t, err)
		require.NotNil(t, user)
		name, _ := user.Field("username")
		assert.Equal(t, "alice", name)
	})

	t.Run("hmac cookie alone is insufficient", func(t *testing.T) {
		user, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie))
		require.NoError(t, err)
		assert.Nil(t, user)
		assert.False(t, store.records["alice"].IsExpired, "missing cookie is not a burn condition")
	})

	t.Run("wrong secret burns the session", func(t *testing.T) {
		bad := &http.Cookie{Name: DefaultPasswordCookieName, Value: "stolen-guess"}
		user, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, bad))
		require.NoError(t, err)
		assert.Nil(t, user)
		assert.True(t, store.records["alice"].IsExpired, "failed verification must soft-expire the record")

		// One-way latch: the genuine pair no longer authenticates either
		user, err = a.AutoLogin(context.Background(), requestWithCookies(authCookie, secretCookie))
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

func TestDatabaseAuthenticator_AutoLogin_NoRecord(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)
	authCookie, secretCookie := login(t, a, "alice", "h1")

	delete(store.records, "alice")

	user, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, secretCookie))
	require.NoError(t, err)
	assert.Nil(t, user, "a valid HMAC cookie without a record must not authenticate")
}

func TestDatabaseAuthenticator_AutoLogin_ExpiredRecord(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)
	authCookie, secretCookie := login(t, a, "alice", "h1")

	store.records["alice"].ExpirationDate = time.Now().Add(-time.Minute)

	user, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, secretCookie))
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.True(t, store.records["alice"].IsExpired, "expiry must be latched as a side effect")
}

// fixedLookup resolves every query to the same user, mimicking a repository
// whose query succeeds even though the mapped entity lacks the accessor.
type fixedLookup struct{ user User }

func (l *fixedLookup) GetUser(ctx context.Context, field, value string) (User, error) {
	return l.user, nil
}

func TestDatabaseAuthenticator_AutoLogin_UnknownField(t *testing.T) {
	// The user type lacks the configured accessor: a programming error,
	// reported distinctly rather than degraded to anonymous.
	broken := &testUser{fields: map[string]string{"login": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, &fixedLookup{user: broken}, store)
	authCookie, secretCookie := login(t, a, "alice", "h1")

	_, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, secretCookie))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestDatabaseAuthenticator_AutoLogin_StoreUnavailable(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)
	authCookie, secretCookie := login(t, a, "alice", "h1")

	store.err = errors.New("connection reset")

	_, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, secretCookie))
	assert.ErrorIs(t, err, store.err, "store outages must propagate, not read as anonymous")
}

func TestDatabaseAuthenticator_OnLogout(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)
	authCookie, secretCookie := login(t, a, "alice", "h1")

	rec := httptest.NewRecorder()
	err := a.OnLogout(context.Background(), rec, requestWithCookies(authCookie, secretCookie))
	require.NoError(t, err)

	for _, name := range []string{DefaultCookieName, DefaultPasswordCookieName} {
		cleared := responseCookie(t, rec, name)
		require.NotNil(t, cleared, "cookie %s must be overwritten", name)
		assert.Empty(t, cleared.Value)
		assert.True(t, cleared.Expires.Before(time.Now()), "cookie %s expiry must be in the past", name)
	}

	record := store.records["alice"]
	require.NotNil(t, record, "logout soft-expires, it does not delete")
	assert.True(t, record.IsExpired)
	assert.Empty(t, record.RandomPasswordHash)

	// Replaying the pre-logout cookie pair comes back anonymous
	user, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, secretCookie))
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDatabaseAuthenticator_Resume_RotatesSecret(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)
	authCookie, firstSecret := login(t, a, "alice", "h1")
	firstHash := store.records["alice"].RandomPasswordHash

	rec1 := httptest.NewRecorder()
	expiresAt, err := a.Resume(context.Background(), rec1, requestWithCookies(authCookie, firstSecret))
	require.NoError(t, err)
	require.False(t, expiresAt.IsZero())
	secondSecret := responseCookie(t, rec1, DefaultPasswordCookieName)
	require.NotNil(t, secondSecret)
	secondHash := store.records["alice"].RandomPasswordHash

	rec2 := httptest.NewRecorder()
	_, err = a.Resume(context.Background(), rec2, requestWithCookies(authCookie, secondSecret))
	require.NoError(t, err)
	thirdSecret := responseCookie(t, rec2, DefaultPasswordCookieName)
	require.NotNil(t, thirdSecret)
	thirdHash := store.records["alice"].RandomPasswordHash

	// Two resumes, two fresh secrets, two fresh hashes
	assert.NotEqual(t, firstSecret.Value, secondSecret.Value)
	assert.NotEqual(t, secondSecret.Value, thirdSecret.Value)
	assert.NotEqual(t, firstHash, secondHash)
	assert.NotEqual(t, secondHash, thirdHash)

	// The HMAC cookie got its window extended without rotating
	resumed := responseCookie(t, rec1, DefaultCookieName)
	require.NotNil(t, resumed)
	assert.Equal(t, authCookie.Value, resumed.Value)
	assert.False(t, store.records["alice"].ExpirationDate.Before(expiresAt),
		"record expiry must track the resumed cookie expiry")

	// A secret captured before the last resume no longer authenticates
	user, err := a.AutoLogin(context.Background(), requestWithCookies(authCookie, secondSecret))
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.True(t, store.records["alice"].IsExpired, "replay of a rotated secret burns the session")

	// The current secret would have worked, but the burn is final
	user, err = a.AutoLogin(context.Background(), requestWithCookies(authCookie, thirdSecret))
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDatabaseAuthenticator_Resume_NoCookie(t *testing.T) {
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(), store)

	rec := httptest.NewRecorder()
	expiresAt, err := a.Resume(context.Background(), rec, requestWithCookies())
	require.NoError(t, err)
	assert.True(t, expiresAt.IsZero())
	assert.Empty(t, rec.Result().Cookies())
}

func TestDatabaseAuthenticator_Resume_DeadRecord(t *testing.T) {
	alice := &testUser{fields: map[string]string{"username": "alice"}, hash: "h1"}
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(alice), store)
	authCookie, secretCookie := login(t, a, "alice", "h1")

	store.records["alice"].IsExpired = true
	updatesBefore := store.updates

	rec := httptest.NewRecorder()
	expiresAt, err := a.Resume(context.Background(), rec, requestWithCookies(authCookie, secretCookie))
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero(), "the HMAC cookie still slides")
	assert.Nil(t, responseCookie(t, rec, DefaultPasswordCookieName), "no rotation for a burned session")
	assert.Equal(t, updatesBefore, store.updates)
}

func TestDatabaseAuthenticator_Resume_MalformedCookie(t *testing.T) {
	store := newStubStore()
	a := newDBAuth(t, newTestLookup(), store)

	rec := httptest.NewRecorder()
	r := requestWithCookies(&http.Cookie{Name: DefaultCookieName, Value: "not-a-token"})
	_, err := a.Resume(context.Background(), rec, r)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestRecord_Active(t *testing.T) {
	now := time.Now()
	var nilRecord *Record
	assert.False(t, nilRecord.Active(now))
	assert.False(t, (&Record{IsExpired: true, ExpirationDate: now.Add(time.Hour)}).Active(now))
	assert.False(t, (&Record{ExpirationDate: now.Add(-time.Second)}).Active(now))
	assert.True(t, (&Record{ExpirationDate: now.Add(time.Hour)}).Active(now))
}
