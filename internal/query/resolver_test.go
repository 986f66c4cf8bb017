package query_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/query"
	"github.com/JakeFAU/keyword-crawler/internal/storage/csvfs"
)

func ptr(s string) *string { return &s }

func seededResolver(t *testing.T) *query.Resolver {
	t.Helper()
	store, err := csvfs.New(csvfs.Config{DataRoot: filepath.Join(t.TempDir(), "data")})
	require.NoError(t, err)

	ctx := context.Background()
	for _, b := range []crawler.Batch{
		{Topic: "dress", Modifier: "a", Items: []crawler.ItemRecord{{Image: ptr("img-a"), Title: ptr("a dress")}}},
		{Topic: "dress", Modifier: "b", Items: []crawler.ItemRecord{{Image: ptr("img-b"), Title: ptr("b dress")}}},
		{Topic: "dress", Modifier: "c"},
		{Topic: "dress", Modifier: "dress", Items: []crawler.ItemRecord{{Image: ptr("img-self"), Title: ptr("dress")}}},
		{Topic: "shoes", Modifier: "red", Items: []crawler.ItemRecord{{Image: ptr("img-red"), Title: ptr("red shoes")}}},
	} {
		require.NoError(t, store.WriteBatch(ctx, b))
	}
	return query.NewResolver(store, zap.NewNop())
}

func TestSearchRanksRelevantFirstAndBackGroupReversed(t *testing.T) {
	r := seededResolver(t)

	got, err := r.SearchTokens(context.Background(), []string{"b", "dress"})
	require.NoError(t, err)
	assert.Equal(t, []query.Entry{
		{StorageKey: "dress/b", Header: "b dress", TopicKey: "b-dress", Image: "img-b"},
		{StorageKey: "dress/dress", Header: "dress", TopicKey: "dress-dress", Image: "img-self"},
		{StorageKey: "dress/c", Header: "c dress", TopicKey: "c-dress", Image: ""},
		{StorageKey: "dress/a", Header: "a dress", TopicKey: "a-dress", Image: "img-a"},
	}, got)
}

func TestSearchTokenizesText(t *testing.T) {
	r := seededResolver(t)

	got, err := r.Search(context.Background(), "  Cheap RED Shoes ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "red shoes", got[0].Header)
	assert.Equal(t, "img-red", got[0].Image)
}

func TestSearchFirstMatchingTokenWins(t *testing.T) {
	r := seededResolver(t)

	got, err := r.Search(context.Background(), "shoes dress")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "shoes/red", got[0].StorageKey)
}

func TestSearchUnknownTopicIsEmpty(t *testing.T) {
	r := seededResolver(t)

	got, err := r.Search(context.Background(), "blue maxi")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearchMissingDataRootIsEmpty(t *testing.T) {
	store, err := csvfs.New(csvfs.Config{DataRoot: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, err)
	r := query.NewResolver(store, nil)

	got, err := r.Search(context.Background(), "dress")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPage(t *testing.T) {
	r := seededResolver(t)
	ctx := context.Background()

	items, err := r.Page(ctx, "dress", "b")
	require.NoError(t, err)
	assert.Equal(t, []crawler.StoredItem{{Image: "img-b", Title: "b dress"}}, items)

	_, err = r.Page(ctx, "dress", "zzz")
	assert.ErrorIs(t, err, crawler.ErrNotFound)

	topics, err := r.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dress", "shoes"}, topics)
}

type failingStore struct {
	crawler.Store
}

func (failingStore) Topics(context.Context) ([]string, error) {
	return nil, errors.New("db down")
}

func TestSearchSurfacesStoreErrors(t *testing.T) {
	r := query.NewResolver(failingStore{}, zap.NewNop())
	_, err := r.Search(context.Background(), "dress")
	assert.ErrorContains(t, err, "db down")
}
