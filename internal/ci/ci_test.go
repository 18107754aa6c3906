package ci

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"branchgraph.dev/branchgraph/internal/runner"
	"branchgraph.dev/branchgraph/internal/testrepo"
)

func TestResolveRemoteSlugsSkipsNonGitHubRemotes(t *testing.T) {
	tr := testrepo.New(t, "main")
	tr.Commit("root")
	tr.AddRemoteBranch("origin", "main", tr.Hash("main"))
	tr.AddRemoteBranch("internal", "main", tr.Hash("main"))

	g := runner.NewGit(tr.Dir)
	g.Command("config", "remote.origin.url", "git@github.com:acme/widgets.git").Run(context.Background())
	g.Command("config", "remote.internal.url", "https://git.example.com/acme/widgets.git").Run(context.Background())

	slugs, err := ResolveRemoteSlugs(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"origin": "acme/widgets"}, slugs)
}

func TestResolveRemoteSlugsEmptyWhenNoRemotesConfigured(t *testing.T) {
	tr := testrepo.New(t, "main")
	tr.Commit("root")

	g := runner.NewGit(tr.Dir)
	slugs, err := ResolveRemoteSlugs(context.Background(), g)
	require.NoError(t, err)
	require.Empty(t, slugs)
}

func TestResolveBuildServerURLsReadsPerRemoteKey(t *testing.T) {
	tr := testrepo.New(t, "main")
	tr.Commit("root")

	g := runner.NewGit(tr.Dir)
	g.Command("config", "remote.ci.buildserver-url", "https://bamboo.internal").Run(context.Background())

	urls, err := ResolveBuildServerURLs(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"ci": "https://bamboo.internal"}, urls)
}

func TestBuildServerProviderMapsSuccessfulToGreen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/latest/result/byChangeset/abc123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"result":[{"state":"Successful"}]}}`))
	}))
	defer srv.Close()

	p := NewBuildServerProvider(nil, map[string]string{"ci": srv.URL}, "", "")
	status, ok, err := p.Status(context.Background(), "ci", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Green, status)
}

func TestBuildServerProviderAbsentForUnknownRemote(t *testing.T) {
	p := NewBuildServerProvider(nil, map[string]string{}, "", "")
	_, ok, err := p.Status(context.Background(), "ci", "abc123")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBuildServerProviderAbsentWhenNoResultYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"result":[]}}`))
	}))
	defer srv.Close()

	p := NewBuildServerProvider(nil, map[string]string{"ci": srv.URL}, "", "")
	_, ok, err := p.Status(context.Background(), "ci", "abc123")
	require.NoError(t, err)
	require.False(t, ok)
}

type fakeProvider struct {
	status Status
	ok     bool
	err    error
}

func (f fakeProvider) Status(ctx context.Context, remote, sha string) (Status, bool, error) {
	return f.status, f.ok, f.err
}

func TestAggregateReturnsFirstProviderWithAnOpinion(t *testing.T) {
	agg := Aggregate{Providers: []Provider{
		fakeProvider{ok: false},
		fakeProvider{status: Yellow, ok: true},
		fakeProvider{status: Red, ok: true},
	}}
	status, ok, err := agg.Status(context.Background(), "origin", "deadbeef")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Yellow, status)
}

func TestAggregateIsolatesAFailingProviderAndTriesTheRest(t *testing.T) {
	boom := errors.New("boom")
	agg := Aggregate{Providers: []Provider{
		fakeProvider{err: boom},
		fakeProvider{status: Green, ok: true},
	}}
	status, ok, err := agg.Status(context.Background(), "origin", "deadbeef")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Green, status)
}

func TestAggregateReturnsErrorOnlyWhenEveryProviderFails(t *testing.T) {
	boom := errors.New("boom")
	agg := Aggregate{Providers: []Provider{fakeProvider{err: boom}, fakeProvider{err: boom}}}
	_, ok, err := agg.Status(context.Background(), "origin", "deadbeef")
	require.Error(t, err)
	require.False(t, ok)
}

func TestPollTaskDistinguishesAbsentFromStatus(t *testing.T) {
	task := PollTask(context.Background(), fakeProvider{ok: false}, "origin", "deadbeef")
	result, err := task()
	require.NoError(t, err)
	require.Nil(t, result.(*Status))

	task = PollTask(context.Background(), fakeProvider{status: Green, ok: true}, "origin", "deadbeef")
	result, err = task()
	require.NoError(t, err)
	require.Equal(t, Green, *result.(*Status))
}
