package reccache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
)

var (
	heat  = recommend.Item{Title: "Heat", MediaType: "movie", Year: 1995}
	ronin = recommend.Item{Title: "Ronin", MediaType: "movie", Year: 1998}
	alien = recommend.Item{Title: "Alien", MediaType: "movie", Year: 1979}
)

func TestResultsSurviveReload(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	c, err := Load(ctx, store, "u1")
	require.NoError(t, err)
	require.NoError(t, c.SetResults(ctx, []recommend.Item{heat, ronin}))
	_, err = c.Select(ctx, "ronin")
	require.NoError(t, err)

	again, err := Load(ctx, store, "u1")
	require.NoError(t, err)

	snap := again.Snapshot()
	assert.Equal(t, []recommend.Item{heat, ronin}, snap.Current)
	assert.Equal(t, []recommend.Item{heat, ronin}, snap.All)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, ronin, *snap.Selected)
}

func TestEmptyListNeverOverwritesStorage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	c, err := Load(ctx, store, "u1")
	require.NoError(t, err)
	require.NoError(t, c.SetResults(ctx, []recommend.Item{heat}))
	require.NoError(t, c.SetCurrent(ctx, nil))

	assert.Empty(t, c.Snapshot().Current)

	again, err := Load(ctx, store, "u1")
	require.NoError(t, err)
	assert.Equal(t, []recommend.Item{heat}, again.Snapshot().Current)
}

func TestNewResultsKeepStoredSelection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	c, err := Load(ctx, store, "u1")
	require.NoError(t, err)
	require.NoError(t, c.SetResults(ctx, []recommend.Item{heat}))
	_, err = c.Select(ctx, "Heat")
	require.NoError(t, err)

	require.NoError(t, c.SetResults(ctx, []recommend.Item{alien}))
	assert.Nil(t, c.Snapshot().Selected)

	again, err := Load(ctx, store, "u1")
	require.NoError(t, err)
	require.NotNil(t, again.Snapshot().Selected)
	assert.Equal(t, "Heat", again.Snapshot().Selected.Title)
}

func TestSimilarTitlesReplaceOnlyCurrent(t *testing.T) {
	ctx := context.Background()
	c, err := Load(ctx, NewMemoryStorage(), "u1")
	require.NoError(t, err)

	require.NoError(t, c.SetResults(ctx, []recommend.Item{heat, ronin}))
	require.NoError(t, c.SetCurrent(ctx, []recommend.Item{alien}))

	snap := c.Snapshot()
	assert.Equal(t, []recommend.Item{alien}, snap.Current)
	assert.Equal(t, []recommend.Item{heat, ronin}, snap.All)

	// Titles from the full list stay selectable.
	item, err := c.Select(ctx, "Heat")
	require.NoError(t, err)
	assert.Equal(t, heat, item)
}

func TestSelectErrors(t *testing.T) {
	ctx := context.Background()
	c, err := Load(ctx, NewMemoryStorage(), "u1")
	require.NoError(t, err)

	_, err = c.Select(ctx, "Heat")
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, c.SetResults(ctx, []recommend.Item{heat}))
	_, err = c.Select(ctx, "Vertigo")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestClearRemovesMemoryAndStorage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	c, err := Load(ctx, store, "u1")
	require.NoError(t, err)
	require.NoError(t, c.SetResults(ctx, []recommend.Item{heat}))
	_, err = c.Select(ctx, "Heat")
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, Snapshot{}, c.Snapshot())
	assert.Empty(t, store.data)
}

func TestUnreadableSlotIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	require.NoError(t, store.Set(ctx, "u1:"+SlotCurrent, "{not json"))
	require.NoError(t, store.Set(ctx, "u1:"+SlotAll, `[{"title":"Heat"}]`))

	c, err := Load(ctx, store, "u1")
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Empty(t, snap.Current)
	assert.Equal(t, []recommend.Item{{Title: "Heat"}}, snap.All)
}

type failingStorage struct{ MemoryStorage }

func (*failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

// brokenWrites rejects multi-key writes and keeps the rest working.
type brokenWrites struct{ *MemoryStorage }

func (brokenWrites) SetMany(context.Context, map[string]string) error {
	return errors.New("write refused")
}

func TestFailedResultsWriteLeavesStoredPairIntact(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()

	c, err := Load(ctx, mem, "u1")
	require.NoError(t, err)
	require.NoError(t, c.SetResults(ctx, []recommend.Item{heat}))

	c.storage = brokenWrites{mem}
	err = c.SetResults(ctx, []recommend.Item{ronin, alien})
	require.Error(t, err)
	assert.Equal(t, []recommend.Item{ronin, alien}, c.Snapshot().Current)

	again, err := Load(ctx, mem, "u1")
	require.NoError(t, err)
	snap := again.Snapshot()
	assert.Equal(t, []recommend.Item{heat}, snap.Current)
	assert.Equal(t, []recommend.Item{heat}, snap.All)
}

func TestLoadPropagatesStorageErrors(t *testing.T) {
	_, err := Load(context.Background(), &failingStorage{}, "u1")
	assert.Error(t, err)
}

func TestManagerCachesPerOwner(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStorage())

	a, err := m.For(ctx, "a")
	require.NoError(t, err)
	a2, err := m.For(ctx, "a")
	require.NoError(t, err)
	b, err := m.For(ctx, "b")
	require.NoError(t, err)

	assert.Same(t, a, a2)
	assert.NotSame(t, a, b)

	require.NoError(t, a.SetResults(ctx, []recommend.Item{heat}))
	m.Forget("a")

	reloaded, err := m.For(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, a, reloaded)
	assert.Equal(t, []recommend.Item{heat}, reloaded.Snapshot().Current)
	assert.Empty(t, b.Snapshot().Current)
}

func TestManagerConcurrentFirstUseSharesOneCache(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStorage())

	const n = 16
	got := make([]*Cache, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.For(ctx, "u1")
			assert.NoError(t, err)
			got[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range got[1:] {
		assert.Same(t, got[0], c)
	}
}
