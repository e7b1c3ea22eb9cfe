package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/ratelimit"
	"github.com/tphakala/pestguard-go/internal/settings"
)

// fakeSettings backs a settings.Store with a fixed key/value map.
type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) GetSetting(key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", gorm.ErrRecordNotFound
}

func (f *fakeSettings) SetSetting(key, value string) error {
	f.values[key] = value
	return nil
}

// fakeSource scripts CaptureSnapshot responses in order.
type fakeSource struct {
	responses []func() ([]byte, error)
	calls     int
}

func (s *fakeSource) CaptureSnapshot(_ context.Context, _ *datastore.Camera) ([]byte, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx]()
}

func throttledErr() error {
	return errors.Newf("unexpected status 429").
		Component("unifi").
		Category(errors.CategoryHTTP).
		Context("status_code", 429).
		Build()
}

func fetcherWith(t *testing.T, source *fakeSource, values map[string]string) (*SnapshotFetcher, *[]time.Duration) {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	store := settings.New(&fakeSettings{values: values})
	f := NewSnapshotFetcher(source, ratelimit.New(1000, 100), store)

	var delays []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return f, &delays
}

func TestFetchReturnsSnapshot(t *testing.T) {
	t.Parallel()

	source := &fakeSource{responses: []func() ([]byte, error){
		func() ([]byte, error) { return []byte("img"), nil },
	}}
	f, _ := fetcherWith(t, source, nil)

	data, err := f.Fetch(context.Background(), &datastore.Camera{ID: 1, Name: "garden"})
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
	assert.Equal(t, 1, source.calls)
}

func TestFetchBacksOffOnThrottle(t *testing.T) {
	t.Parallel()

	source := &fakeSource{responses: []func() ([]byte, error){
		func() ([]byte, error) { return nil, throttledErr() },
		func() ([]byte, error) { return nil, throttledErr() },
		func() ([]byte, error) { return []byte("img"), nil },
	}}
	f, delays := fetcherWith(t, source, nil)

	data, err := f.Fetch(context.Background(), &datastore.Camera{ID: 1, Name: "garden"})
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays, "exponential backoff between throttled attempts")
}

func TestFetchGivesUpAfterThreeThrottledAttempts(t *testing.T) {
	t.Parallel()

	source := &fakeSource{responses: []func() ([]byte, error){
		func() ([]byte, error) { return nil, throttledErr() },
	}}
	f, _ := fetcherWith(t, source, nil)

	_, err := f.Fetch(context.Background(), &datastore.Camera{ID: 1, Name: "garden"})
	require.Error(t, err)
	assert.Equal(t, 3, source.calls)
}

func TestFetchRetriesOnceOnTransientFailure(t *testing.T) {
	t.Parallel()

	source := &fakeSource{responses: []func() ([]byte, error){
		func() ([]byte, error) { return nil, errors.Newf("connection refused").Component("unifi").Category(errors.CategoryNetwork).Build() },
		func() ([]byte, error) { return []byte("img"), nil },
	}}
	f, delays := fetcherWith(t, source, nil)

	data, err := f.Fetch(context.Background(), &datastore.Camera{ID: 1, Name: "garden"})
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
	assert.Equal(t, []time.Duration{2 * time.Second}, *delays)
}

func TestFetchTransientFailureIsNotRetriedTwice(t *testing.T) {
	t.Parallel()

	source := &fakeSource{responses: []func() ([]byte, error){
		func() ([]byte, error) { return nil, errors.Newf("connection refused").Component("unifi").Category(errors.CategoryNetwork).Build() },
	}}
	f, _ := fetcherWith(t, source, nil)

	_, err := f.Fetch(context.Background(), &datastore.Camera{ID: 1, Name: "garden"})
	require.Error(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestFetchRejectsOversizedImage(t *testing.T) {
	t.Parallel()

	big := make([]byte, 2*1024*1024)
	source := &fakeSource{responses: []func() ([]byte, error){
		func() ([]byte, error) { return big, nil },
	}}
	f, _ := fetcherWith(t, source, map[string]string{"max_image_size_mb": "1"})

	_, err := f.Fetch(context.Background(), &datastore.Camera{ID: 1, Name: "garden"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}
