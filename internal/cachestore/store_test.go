package cachestore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStorePutKeysRequests(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	require.NoError(t, st.Put(ctx, "static-v2", "/static/js/main.js"))
	require.NoError(t, st.Put(ctx, "static-v2", "/static/css/main.css"))
	require.NoError(t, st.Put(ctx, "static-v2", "/static/js/main.js"))
	require.NoError(t, st.Put(ctx, "api", "/api/me"))

	names, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "static-v2"}, names)

	reqs, err := st.Requests(ctx, "static-v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"/static/css/main.css", "/static/js/main.js"}, reqs)

	reqs, err = st.Requests(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestStoreNamePrefixesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.Put(ctx, "a", "/one"))
	require.NoError(t, st.Put(ctx, "ab", "/two"))

	reqs, err := st.Requests(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"/one"}, reqs)
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.Put(ctx, "old", "/x"))
	require.NoError(t, st.Put(ctx, "old", "/y"))
	require.NoError(t, st.Put(ctx, "new", "/x"))

	require.NoError(t, st.Delete(ctx, "old"))
	names, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, names)
}

func TestStoreRejectsBadNames(t *testing.T) {
	st := openTestStore(t)
	assert.Error(t, st.Put(context.Background(), "", "/x"))
	assert.Error(t, st.Put(context.Background(), "a\x00b", "/x"))
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpenPersistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, "pages", "/index.html"))
	require.NoError(t, st.Close())

	st, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer st.Close()
	infos, err := Inspect(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, []models.CacheInfo{{Name: "pages", Requests: []string{"/index.html"}, Count: 1}}, infos)
}

func TestInspectNilStorage(t *testing.T) {
	infos, err := Inspect(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, infos)
	assert.Empty(t, infos)
}

func TestInspectMemoryCaches(t *testing.T) {
	ctx := context.Background()
	mc := host.NewMemoryCaches()
	require.NoError(t, mc.Put(ctx, "runtime", "/b"))
	require.NoError(t, mc.Put(ctx, "runtime", "/a"))
	require.NoError(t, mc.Put(ctx, "empty-later", "/z"))

	infos, err := Inspect(ctx, mc)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, models.CacheInfo{Name: "runtime", Requests: []string{"/a", "/b"}, Count: 2}, infos[0])
	assert.Equal(t, 1, infos[1].Count)
}

func TestInspectHost(t *testing.T) {
	ctx := context.Background()

	infos, err := InspectHost(ctx, host.NewPage())
	require.NoError(t, err)
	assert.Empty(t, infos)

	st := openTestStore(t)
	require.NoError(t, st.Put(ctx, "v1", "/"))
	infos, err = InspectHost(ctx, host.NewPage(host.WithCaches(st)))
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

type failingStorage struct{}

func (failingStorage) Keys(context.Context) ([]string, error) { return nil, errors.New("denied") }
func (failingStorage) Requests(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestInspectPropagatesErrors(t *testing.T) {
	_, err := Inspect(context.Background(), failingStorage{})
	assert.ErrorContains(t, err, "denied")
}
