package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/maprank/feed"
	"github.com/use-agent/maprank/metrics"
	"github.com/use-agent/maprank/models"
	"github.com/use-agent/maprank/session"
	"github.com/use-agent/maprank/session/sessiontest"
)

const testBase = "https://map.test/search/"

func testOptions() Options {
	return Options{
		MaxScrollAttempts: 50,
		StagnationLimit:   3,
		BaseURL:           testBase,
		EncodeQuery:       true,
		ContainerSelector: "#_pcmap_list_scroll_container",
		ScrollSelector:    "#_pcmap_list_scroll_container",
	}
}

func newResolver(t *testing.T, opts Options) *Resolver {
	t.Helper()
	p, err := feed.NewParser(feed.DefaultSelectors)
	require.NoError(t, err)
	return New(opts, p, nil)
}

func TestResolve_FoundAmongOrganic(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{
		Pages: []string{sessiontest.Names("A", "B", "C")},
	}}

	res, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "B"})
	require.NoError(t, err)
	assert.Equal(t, models.Found(2), res.Outcome)
	assert.Equal(t, 1, res.Cycles)
	assert.Zero(t, sess.Scrolls, "a match short-circuits before scrolling")
}

func TestResolve_SponsoredCountsButNeverMatches(t *testing.T) {
	markup := sessiontest.Markup(sessiontest.Ad("A"), sessiontest.Organic("A"), sessiontest.Organic("B"))
	sess := &sessiontest.Session{Default: sessiontest.Feed{Pages: []string{markup}}}

	res, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "A"})
	require.NoError(t, err)
	assert.Equal(t, models.Found(2), res.Outcome)
}

func TestResolve_SponsoredOnlyIsNotFound(t *testing.T) {
	markup := sessiontest.Markup(sessiontest.Ad("Z"), sessiontest.Organic("A"))
	sess := &sessiontest.Session{Default: sessiontest.Feed{Pages: []string{markup}}}

	opts := testOptions().WithMaxScrollAttempts(3)
	res, err := newResolver(t, opts).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "Z"})
	require.NoError(t, err)
	assert.Equal(t, models.NotFound, res.Outcome)
	assert.Equal(t, 3, res.Cycles)
}

func TestResolve_ExhaustsBudgetOnStaticFeed(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{
		Pages: []string{sessiontest.Names("A", "B")},
	}}

	opts := testOptions().WithMaxScrollAttempts(5)
	res, err := newResolver(t, opts).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "Z"})
	require.NoError(t, err)
	assert.Equal(t, models.NotFound, res.Outcome)
	assert.Equal(t, 5, res.Cycles)
	assert.Equal(t, 5, sess.Snapshots)
	assert.Equal(t, 5, sess.Scrolls, "every non-matching cycle ends with a scroll")
	assert.Equal(t, 2, res.Entries)
}

func TestResolve_FoundAfterScrolling(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{Pages: []string{
		sessiontest.Names("A", "B"),
		sessiontest.Names("A", "B", "C", "D"),
		sessiontest.Names("A", "B", "C", "D", "E", "F"),
	}}}

	res, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "F"})
	require.NoError(t, err)
	assert.Equal(t, models.Found(6), res.Outcome)
	assert.Equal(t, 3, res.Cycles)
	assert.Equal(t, 2, sess.Scrolls)
}

func TestResolve_OrdinalsStableAcrossCycles(t *testing.T) {
	// "C" is at ordinal 3 in every snapshot it appears in.
	pages := []string{
		sessiontest.Names("A", "B", "C"),
		sessiontest.Names("A", "B", "C", "D"),
	}
	p, err := feed.NewParser(feed.DefaultSelectors)
	require.NoError(t, err)
	for _, markup := range pages {
		page, err := p.Parse(markup)
		require.NoError(t, err)
		e, ok := page.FirstMatch("C")
		require.True(t, ok)
		assert.Equal(t, 3, e.Position)
	}
}

func TestResolve_DuplicateIdentityLowestOrdinalWins(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{
		Pages: []string{sessiontest.Names("X", "Twin", "Y", "Twin")},
	}}
	res, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "Twin"})
	require.NoError(t, err)
	assert.Equal(t, models.Found(2), res.Outcome)
}

func TestResolve_MissingNameNeverMatches(t *testing.T) {
	markup := sessiontest.Markup(sessiontest.Item{NoName: true}, sessiontest.Organic("A"))
	sess := &sessiontest.Session{Default: sessiontest.Feed{Pages: []string{markup}}}

	res, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "A"})
	require.NoError(t, err)
	assert.Equal(t, models.Found(2), res.Outcome)
}

func TestResolve_NavigationTimeoutIsNotFound(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{
		ReadyErr: fmt.Errorf("%w: container", session.ErrTimeout),
	}}

	res, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "A"})
	assert.Equal(t, models.NotFound, res.Outcome)
	assert.Zero(t, res.Cycles)
	assert.Zero(t, sess.Snapshots)

	var re *models.RankError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, models.ErrCodeNavigationTimeout, re.Code)
}

func TestResolve_NavigateFailure(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{NavErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}}

	res, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "A"})
	assert.Equal(t, models.NotFound, res.Outcome)
	assert.Equal(t, models.ErrCodeNavigation, models.DetailOf(err).Code)
}

func TestResolve_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess := &sessiontest.Session{Default: sessiontest.Feed{Pages: []string{sessiontest.Names("A")}}}

	res, err := newResolver(t, testOptions()).Resolve(ctx, sess, models.Pair{Query: "q", Target: "A"})
	assert.Equal(t, models.NotFound, res.Outcome)
	assert.Equal(t, models.ErrCodeCanceled, models.DetailOf(err).Code)
}

type panickySession struct{ sessiontest.Session }

func (p *panickySession) Snapshot(ctx context.Context) (string, error) {
	panic("renderer went away")
}

func TestResolve_RecoversPanic(t *testing.T) {
	res, err := newResolver(t, testOptions()).Resolve(context.Background(), &panickySession{}, models.Pair{Query: "q", Target: "A"})
	assert.Equal(t, models.NotFound, res.Outcome)
	assert.Equal(t, models.ErrCodeUnexpected, models.DetailOf(err).Code)
	assert.Contains(t, models.DetailOf(err).Message, "renderer went away")
}

func TestResolve_InvalidPair(t *testing.T) {
	sess := &sessiontest.Session{}
	_, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: " ", Target: "A"})
	assert.Equal(t, models.ErrCodeInvalidInput, models.DetailOf(err).Code)
	assert.Empty(t, sess.Navigations)
}

func TestResolve_StopOnStagnation(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{
		Pages: []string{sessiontest.Names("A", "B")},
	}}
	opts := testOptions()
	opts.StopOnStagnation = true
	opts.StagnationLimit = 2

	res, err := newResolver(t, opts).Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "Z"})
	require.NoError(t, err)
	assert.Equal(t, models.NotFound, res.Outcome)
	assert.Equal(t, 3, res.Cycles, "first cycle sets the baseline, two flat cycles stop it")
}

func TestResolve_NavigatesToEncodedURL(t *testing.T) {
	sess := &sessiontest.Session{Default: sessiontest.Feed{Pages: []string{sessiontest.Names("A")}}}

	_, err := newResolver(t, testOptions()).Resolve(context.Background(), sess, models.Pair{Query: "강남 카페/2층", Target: "A"})
	require.NoError(t, err)
	require.Len(t, sess.Navigations, 1)
	assert.Equal(t, testBase+"%EA%B0%95%EB%82%A8%20%EC%B9%B4%ED%8E%98%2F2%EC%B8%B5", sess.Navigations[0])
}

func TestResolve_RecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p, err := feed.NewParser(feed.DefaultSelectors)
	require.NoError(t, err)
	r := New(testOptions(), p, m)

	sess := &sessiontest.Session{Default: sessiontest.Feed{Pages: []string{sessiontest.Names("A", "B")}}}
	_, err = r.Resolve(context.Background(), sess, models.Pair{Query: "q", Target: "B"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("found", "")))
}

func TestBuildSearchURL(t *testing.T) {
	tests := []struct {
		query  string
		encode bool
		want   string
	}{
		{"gangnam cafe", true, testBase + "gangnam%20cafe"},
		{"gangnam cafe", false, testBase + "gangnam cafe"},
		{"  a?b#c  ", true, testBase + "a%3Fb%23c"},
		{"a?b#c", false, testBase + "a?b#c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildSearchURL(testBase, tt.query, tt.encode), tt.query)
	}
}

func TestOptions_WithMaxScrollAttempts(t *testing.T) {
	o := testOptions()
	assert.Equal(t, 7, o.WithMaxScrollAttempts(7).MaxScrollAttempts)
	assert.Equal(t, 50, o.WithMaxScrollAttempts(0).MaxScrollAttempts)
	assert.Equal(t, 50, o.MaxScrollAttempts, "receiver is not modified")
}
