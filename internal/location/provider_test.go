package location

import (
	"context"
	"testing"
	"time"

	"VoyagerGuard/internal/models"
	"VoyagerGuard/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedGeocoder struct{ name string }

func (g namedGeocoder) Name(lat, lon float64) string { return g.name }

func newProvider(t *testing.T) *Provider {
	t.Helper()
	c, err := cache.NewCache(cache.Config{Type: "local"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return New(c, namedGeocoder{name: "Kolkata"}, time.Minute)
}

func TestReportAndCurrentFix(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	fix, err := p.Report(ctx, models.LocationFix{Latitude: 22.5726, Longitude: 88.3639})
	require.NoError(t, err)
	assert.NotZero(t, fix.TimestampMs)
	assert.Equal(t, "Kolkata", fix.LocationName)

	live, err := p.CurrentFix(ctx)
	require.NoError(t, err)
	assert.Equal(t, fix, live)
	assert.False(t, live.IsStale)
}

func TestReportRejectsInvalidFix(t *testing.T) {
	p := newProvider(t)

	_, err := p.Report(context.Background(), models.LocationFix{Latitude: 91, Longitude: 0})
	assert.ErrorIs(t, err, ErrInvalidFix)

	_, err = p.CurrentFix(context.Background())
	assert.Error(t, err)
}

func TestCurrentFixExpires(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.Report(ctx, models.LocationFix{Latitude: 22.5726, Longitude: 88.3639})
	require.NoError(t, err)

	p.now = func() time.Time { return time.Now().Add(5 * time.Minute) }

	_, err = p.CurrentFix(ctx)
	assert.Error(t, err, "stale live fix must not pass as current")

	// 缓存回退仍然可用
	cached, err := p.LastKnownFix(ctx)
	require.NoError(t, err)
	assert.Equal(t, 22.5726, cached.Latitude)
}

func TestLastKnownFixSurvivesProviderRestart(t *testing.T) {
	c, err := cache.NewCache(cache.Config{Type: "local"})
	require.NoError(t, err)
	defer c.Close()

	first := New(c, nil, time.Minute)
	_, err = first.Report(context.Background(), models.LocationFix{Latitude: 1, Longitude: 2})
	require.NoError(t, err)

	// 新 Provider 共享同一缓存层，内存里的 live 丢了但缓存还在
	second := New(c, nil, time.Minute)
	_, err = second.CurrentFix(context.Background())
	assert.Error(t, err)

	cached, err := second.LastKnownFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, cached.Latitude)
	assert.Equal(t, 2.0, cached.Longitude)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	ch, cancel := p.Subscribe(2)
	_, err := p.Report(ctx, models.LocationFix{Latitude: 10, Longitude: 20})
	require.NoError(t, err)

	select {
	case fix := <-ch:
		assert.Equal(t, 10.0, fix.Latitude)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast fix")
	}

	cancel()
	cancel() // 幂等

	_, err = p.Report(ctx, models.LocationFix{Latitude: 11, Longitude: 21})
	require.NoError(t, err)
	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")
}
