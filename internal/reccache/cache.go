package reccache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/metrics"
	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
)

var (
	// ErrEmpty is returned when selecting from a cache with no results.
	ErrEmpty = errors.New("reccache: no cached recommendations")
	// ErrUnknownItem is returned when selecting a title that is not cached.
	ErrUnknownItem = errors.New("reccache: title not in cached recommendations")
)

// Slot names double as storage key suffixes.
const (
	SlotCurrent  = "recommendations"
	SlotAll      = "all_recommendations"
	SlotSelected = "selected_recommendation"
)

// Snapshot is a copy of the three slots.
type Snapshot struct {
	Current  []recommend.Item `json:"recommendations"`
	All      []recommend.Item `json:"all_recommendations"`
	Selected *recommend.Item  `json:"selected"`
}

// Cache holds one owner's recommendation slots. Every change is written
// through to storage, except that an empty list or a missing selection is
// never written: the stored slot keeps its last non-empty value until
// Clear.
type Cache struct {
	owner   string
	storage Storage

	mu       sync.RWMutex
	current  []recommend.Item
	all      []recommend.Item
	selected *recommend.Item
}

// Load builds the Cache for owner and rehydrates it from storage. A slot
// that cannot be decoded is logged and left empty.
func Load(ctx context.Context, storage Storage, owner string) (*Cache, error) {
	c := &Cache{owner: owner, storage: storage}

	if err := c.load(ctx, SlotCurrent, &c.current); err != nil {
		return nil, err
	}
	if err := c.load(ctx, SlotAll, &c.all); err != nil {
		return nil, err
	}
	if err := c.load(ctx, SlotSelected, &c.selected); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Cache) key(slot string) string {
	return c.owner + ":" + slot
}

func (c *Cache) load(ctx context.Context, slot string, dst any) error {
	raw, ok, err := c.storage.Get(ctx, c.key(slot))
	if err != nil {
		return fmt.Errorf("reccache: load %s: %w", slot, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logger.Warn("discarding unreadable cached slot", map[string]any{
			"owner": c.owner,
			"slot":  slot,
			"error": err.Error(),
		})
	}
	return nil
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Current: append([]recommend.Item(nil), c.current...),
		All:     append([]recommend.Item(nil), c.all...),
	}
	if c.selected != nil {
		sel := *c.selected
		s.Selected = &sel
	}
	return s
}

// SetResults stores a fresh result list as both the current and the full
// list and drops the selection from memory. Both slots are written in one
// storage call, so a failed write leaves the stored pair as it was.
func (c *Cache) SetResults(ctx context.Context, items []recommend.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = append([]recommend.Item(nil), items...)
	c.all = append([]recommend.Item(nil), items...)
	c.selected = nil

	if len(items) == 0 {
		metrics.RecCacheWrites.WithLabelValues(SlotCurrent, "skipped_empty").Inc()
		metrics.RecCacheWrites.WithLabelValues(SlotAll, "skipped_empty").Inc()
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("reccache: marshal results: %w", err)
	}

	err = c.storage.SetMany(ctx, map[string]string{
		c.key(SlotCurrent): string(data),
		c.key(SlotAll):     string(data),
	})
	if err != nil {
		metrics.RecCacheWrites.WithLabelValues(SlotCurrent, "error").Inc()
		metrics.RecCacheWrites.WithLabelValues(SlotAll, "error").Inc()
		return fmt.Errorf("reccache: write results: %w", err)
	}

	metrics.RecCacheWrites.WithLabelValues(SlotCurrent, "written").Inc()
	metrics.RecCacheWrites.WithLabelValues(SlotAll, "written").Inc()
	return nil
}

// SetCurrent replaces only the displayed list, as for similar titles.
func (c *Cache) SetCurrent(ctx context.Context, items []recommend.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = append([]recommend.Item(nil), items...)
	return c.persistList(ctx, SlotCurrent, c.current)
}

// Select marks the cached item titled title as selected.
func (c *Cache) Select(ctx context.Context, title string) (recommend.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.current) == 0 && len(c.all) == 0 {
		return recommend.Item{}, ErrEmpty
	}

	item, ok := findTitle(c.current, title)
	if !ok {
		item, ok = findTitle(c.all, title)
	}
	if !ok {
		return recommend.Item{}, ErrUnknownItem
	}

	c.selected = &item
	return item, c.persist(ctx, SlotSelected, item)
}

// Clear empties every slot in memory and storage.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current, c.all, c.selected = nil, nil, nil

	if err := c.storage.Delete(ctx, c.key(SlotCurrent), c.key(SlotAll), c.key(SlotSelected)); err != nil {
		return fmt.Errorf("reccache: clear: %w", err)
	}
	return nil
}

func (c *Cache) persistList(ctx context.Context, slot string, items []recommend.Item) error {
	if len(items) == 0 {
		metrics.RecCacheWrites.WithLabelValues(slot, "skipped_empty").Inc()
		return nil
	}
	return c.persist(ctx, slot, items)
}

func (c *Cache) persist(ctx context.Context, slot string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.RecCacheWrites.WithLabelValues(slot, "error").Inc()
		return fmt.Errorf("reccache: marshal %s: %w", slot, err)
	}

	if err := c.storage.Set(ctx, c.key(slot), string(data)); err != nil {
		metrics.RecCacheWrites.WithLabelValues(slot, "error").Inc()
		return fmt.Errorf("reccache: write %s: %w", slot, err)
	}

	metrics.RecCacheWrites.WithLabelValues(slot, "written").Inc()
	return nil
}

func findTitle(items []recommend.Item, title string) (recommend.Item, bool) {
	for _, it := range items {
		if strings.EqualFold(it.Title, title) {
			return it, true
		}
	}
	return recommend.Item{}, false
}

// Manager hands out one Cache per owner, loading it on first use.
// Concurrent first uses for one owner share a single load.
type Manager struct {
	storage Storage
	flight  singleflight.Group

	mu     sync.Mutex
	caches map[string]*Cache
}

func NewManager(storage Storage) *Manager {
	return &Manager{
		storage: storage,
		caches:  make(map[string]*Cache),
	}
}

func (m *Manager) For(ctx context.Context, owner string) (*Cache, error) {
	if c, ok := m.cached(owner); ok {
		return c, nil
	}

	v, err, _ := m.flight.Do(owner, func() (any, error) {
		if c, ok := m.cached(owner); ok {
			return c, nil
		}
		c, err := Load(ctx, m.storage, owner)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.caches[owner] = c
		m.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cache), nil
}

func (m *Manager) cached(owner string) (*Cache, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[owner]
	return c, ok
}

// Forget drops owner's in-memory Cache; storage is untouched.
func (m *Manager) Forget(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, owner)
}
