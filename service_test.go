package authuser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsTotal(t *testing.T) {
	services := Services()
	require.Len(t, services, int(numServices))

	for _, s := range services {
		t.Run(s.String(), func(t *testing.T) {
			assert.NotNil(t, RewriteFor(s))
			rule := MatchRuleFor(s)
			assert.True(t, rule.HostEquals != "" || rule.URLMatches != nil, "service %s has an empty match rule", s)
			assert.NotEmpty(t, s.Key())
		})
	}
}

func TestUnknownServicePanics(t *testing.T) {
	assert.Panics(t, func() { RewriteFor(numServices) })
	assert.Panics(t, func() { MatchRuleFor(Service(-1)) })
	assert.Equal(t, "Service(7)", Service(7).String())
}

func TestParseService(t *testing.T) {
	testCases := []struct {
		name    string
		want    Service
		wantErr bool
	}{
		{name: "Meet", want: Meet},
		{name: "photo", want: Photos},
		{name: "MAIL", want: Mail},
		{name: "Drive", want: Drive},
		{name: "youtube", want: YouTube},
		{name: "calendar", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseService(tc.name)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFamilies(t *testing.T) {
	assert.Equal(t, QueryParameter, FamilyOf(Meet))
	assert.Equal(t, QueryParameter, FamilyOf(YouTube))
	assert.Equal(t, PathSegment, FamilyOf(Photos))
	assert.Equal(t, PathSegment, FamilyOf(Mail))
	assert.Equal(t, PathSegment, FamilyOf(Drive))

	assert.True(t, Meet.Guarded())
	assert.True(t, YouTube.Guarded())
	assert.False(t, Mail.Guarded())
}

func TestMatchRules(t *testing.T) {
	testCases := []struct {
		svc   Service
		url   string
		match bool
	}{
		{Meet, "https://meet.google.com/abc-defg-hij", true},
		{Meet, "https://meet.google.com/", true},
		{Meet, "https://calendar.google.com/meet", false},
		{Photos, "https://photos.google.com/", true},
		{Photos, "https://photos.google.com/#albums", true},
		{Photos, "https://photos.google.com/u/1/", false},
		{Photos, "https://photos.google.com/albums", false},
		{Mail, "https://mail.google.com/", true},
		{Mail, "https://mail.google.com/mail/u/0/", false},
		{Drive, "https://drive.google.com/", true},
		{Drive, "https://drive.google.com/drive/my-drive", false},
		{YouTube, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{YouTube, "https://m.youtube.com/", false},
		{YouTube, "://bad", false},
	}

	for _, tc := range testCases {
		t.Run(tc.svc.String()+" "+tc.url, func(t *testing.T) {
			assert.Equal(t, tc.match, MatchRuleFor(tc.svc).Match(tc.url))
		})
	}
}

func TestQueryParameterRewrite(t *testing.T) {
	for _, s := range []Service{Meet, YouTube} {
		rewrite := RewriteFor(s)
		assert.Equal(t, "https://meet.google.com/abc-defg-hij?authuser=0", rewrite("0", "https://meet.google.com/abc-defg-hij"))
		assert.Equal(t, "https://meet.google.com/abc-defg-hij?pli=1&authuser=2", rewrite("2", "https://meet.google.com/abc-defg-hij?pli=1"))
		assert.Equal(t, "https://www.youtube.com/?authuser=3", rewrite("3", "https://www.youtube.com/"))
	}
}

func TestPathSegmentRewrite(t *testing.T) {
	assert.Equal(t, "https://photos.google.com/u/1/", RewriteFor(Photos)("1", "https://photos.google.com/"))
	assert.Equal(t, "https://mail.google.com/mail/u/0/", RewriteFor(Mail)("0", "https://mail.google.com/"))
	assert.Equal(t, "https://drive.google.com/drive/u/4/", RewriteFor(Drive)("4", "https://drive.google.com/"))
}

// Path-segment rewrites have no guard: applying one twice appends twice.
func TestPathSegmentRewriteIsNotIdempotent(t *testing.T) {
	rewrite := RewriteFor(Mail)
	once := rewrite("1", "https://mail.google.com/")
	twice := rewrite("1", once)
	assert.Equal(t, "https://mail.google.com/mail/u/1/mail/u/1/", twice)
}

func TestAlreadyRewritten(t *testing.T) {
	assert.True(t, AlreadyRewritten("https://meet.google.com/abc?authuser=1"))
	assert.True(t, AlreadyRewritten("https://www.youtube.com/?foo=bar&authuser=0"))
	assert.True(t, AlreadyRewritten("https://www.youtube.com/embed/dQw4w9WgXcQ"))
	assert.False(t, AlreadyRewritten("https://meet.google.com/abc-defg-hij"))
	assert.False(t, AlreadyRewritten("https://meet.google.com/abc?authuser="))
}

type mapStore map[Service]string

func (m mapStore) Get(_ context.Context, svc Service) (string, error) {
	a, ok := m[svc]
	if !ok {
		return "", ErrNotFound
	}
	return a, nil
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, Service) (string, error) {
	return "", f.err
}

func TestDefaultAccount(t *testing.T) {
	ctx := context.Background()

	account, err := DefaultAccount(ctx, mapStore{}, Meet)
	require.NoError(t, err)
	assert.Equal(t, "0", account)

	account, err = DefaultAccount(ctx, mapStore{Meet: "2"}, Meet)
	require.NoError(t, err)
	assert.Equal(t, "2", account)

	errBroken := errors.New("storage unavailable")
	_, err = DefaultAccount(ctx, failingStore{errBroken}, Mail)
	assert.ErrorIs(t, err, errBroken)
	assert.NotErrorIs(t, err, ErrNotFound)
}
