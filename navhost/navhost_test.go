package navhost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindtastic/authuser"
	"github.com/mindtastic/authuser/interceptor"
)

type mapStore map[authuser.Service]string

func (m mapStore) Get(_ context.Context, svc authuser.Service) (string, error) {
	a, ok := m[svc]
	if !ok {
		return "", authuser.ErrNotFound
	}
	return a, nil
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, authuser.Service) (string, error) {
	return "", errors.New("disk on fire")
}

func newHost(t *testing.T, store authuser.Store) *Host {
	t.Helper()
	h := New()
	require.NoError(t, interceptor.New(store, h).Register(h))
	return h
}

func navigate(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/navigate?url="+url.QueryEscape(target), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTPRedirects(t *testing.T) {
	h := newHost(t, mapStore{authuser.Meet: "2", authuser.Photos: "1"})

	testCases := []struct {
		target string
		want   string
	}{
		{"https://meet.google.com/abc-defg-hij?pli=1", "https://meet.google.com/abc-defg-hij?pli=1&authuser=2"},
		{"https://meet.google.com/abc?authuser=1", "https://meet.google.com/abc?authuser=1"},
		{"https://photos.google.com/", "https://photos.google.com/u/1/"},
		{"https://mail.google.com/", "https://mail.google.com/mail/u/0/"},
		{"https://www.youtube.com/embed/xyz", "https://www.youtube.com/embed/xyz"},
		{"https://example.com/", "https://example.com/"},
	}

	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			rec := navigate(h, tc.target)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tc.want, rec.Header().Get("Location"))
		})
	}
}

func TestServeHTTPRejectsBadTargets(t *testing.T) {
	h := newHost(t, mapStore{})

	for _, target := range []string{"", "mail.google.com/", "javascript:alert(1)", "https://"} {
		rec := navigate(h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %q", target)
	}

	req := httptest.NewRequest(http.MethodPost, "/navigate?url=https://mail.google.com/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTPStoreFailure(t *testing.T) {
	h := newHost(t, brokenStore{})

	rec := navigate(h, "https://mail.google.com/")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))

	// Guarded URLs never reach the store.
	rec = navigate(h, "https://meet.google.com/abc?authuser=0")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestTabsOutsideRequests(t *testing.T) {
	h := New()

	_, err := h.ActiveTab(context.Background())
	assert.ErrorIs(t, err, interceptor.ErrNoActiveTab)

	_, err = h.UpdateTab(context.Background(), "nope", "https://example.com/")
	assert.ErrorIs(t, err, ErrUnknownTab)

	outcome, err := interceptor.New(mapStore{}, h).Handle(context.Background(), authuser.Mail, "https://mail.google.com/")
	require.NoError(t, err)
	assert.Equal(t, interceptor.NoActiveTab, outcome)
}

func TestNavigateGivesEachRequestItsOwnTab(t *testing.T) {
	h := New()
	var ids []string
	require.NoError(t, h.Subscribe(interceptor.Subscription{
		Service: authuser.Meet,
		Rule:    authuser.MatchRuleFor(authuser.Meet),
		Handle: func(ctx context.Context, _ string) error {
			tab, err := h.ActiveTab(ctx)
			if err != nil {
				return err
			}
			ids = append(ids, tab.ID)
			return nil
		},
	}))

	for i := 0; i < 2; i++ {
		dest, err := h.Navigate(context.Background(), "https://meet.google.com/x")
		require.NoError(t, err)
		assert.Equal(t, "https://meet.google.com/x", dest)
	}
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestSubscribeRequiresHandler(t *testing.T) {
	err := New().Subscribe(interceptor.Subscription{Service: authuser.Drive})
	assert.Error(t, err)
}
