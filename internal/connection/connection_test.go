package connection_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/connection"
)

type fakeClient struct{ id int }

func TestGetBuildsOnceAndCachesAfterward(t *testing.T) {
	cache := connection.New[*fakeClient]()
	builds := 0

	build := func() (*fakeClient, error) {
		builds++
		return &fakeClient{id: builds}, nil
	}

	key := connection.Key("risk1", "ex1", "frame1")

	first, err := cache.Get(key, build)
	require.NoError(t, err)

	second, err := cache.Get(key, build)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
}

func TestGetPropagatesBuildError(t *testing.T) {
	cache := connection.New[*fakeClient]()
	wantErr := errors.New("schema missing")

	_, err := cache.Get("key", func() (*fakeClient, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, cache.Len())
}

func TestClearEvictsSingleKey(t *testing.T) {
	cache := connection.New[*fakeClient]()
	build := func() (*fakeClient, error) { return &fakeClient{}, nil }

	keyA := connection.Key("a")
	keyB := connection.Key("b")

	_, _ = cache.Get(keyA, build)
	_, _ = cache.Get(keyB, build)
	assert.Equal(t, 2, cache.Len())

	cache.Clear(keyA)
	assert.Equal(t, 1, cache.Len())
}

func TestClearAllEvictsEverything(t *testing.T) {
	cache := connection.New[*fakeClient]()
	build := func() (*fakeClient, error) { return &fakeClient{}, nil }

	_, _ = cache.Get(connection.Key("a"), build)
	_, _ = cache.Get(connection.Key("b"), build)

	cache.ClearAll()
	assert.Equal(t, 0, cache.Len())
}

func TestKeyDistinguishesTuples(t *testing.T) {
	assert.NotEqual(t, connection.Key("a", "b"), connection.Key("ab"))
}
