package affinity

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/metrics"
	"storefront/recommender/internal/store"
)

const (
	MaxRecentlyViewed = 20
	MaxSearches       = 10
	MaxCategories     = 50
)

const (
	journalViewed     = "viewed"
	journalSearches   = "searches"
	journalCategories = "categories"
)

// Tracker records the browsing signals of one client session.
//
// Every store failure is logged and counted, never returned: reads fall back to an empty
// journal and writes are dropped. An update whose read failed is dropped as well, so an
// unreachable store never overwrites the stored journal.
type Tracker struct {
	store   store.PersistentStore
	session string
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *log.Entry

	mu sync.Locker
}

type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// withLock makes the tracker serialize on a lock shared with other trackers of the session.
func withLock(l sync.Locker) Option {
	return func(t *Tracker) {
		t.mu = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func NewTracker(s store.PersistentStore, sessionID string, opts ...Option) *Tracker {
	t := &Tracker{
		store:   s,
		session: sessionID,
		now:     time.Now,
		mu:      &sync.Mutex{},
		logger:  log.WithFields(log.Fields{"component": "affinity", "session": sessionID}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Session returns the session id the tracker is bound to.
func (t *Tracker) Session() string {
	return t.session
}

// TrackProductView moves the product to the front of the recently viewed journal
// and bumps the affinity of its category.
func (t *Tracker) TrackProductView(ctx context.Context, p domain.Product) {
	if p.ID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	if viewed, ok := t.readViewed(ctx); ok {
		viewed = slices.DeleteFunc(viewed, func(r domain.ViewedProductRecord) bool { return r.ID == p.ID })
		viewed = slices.Insert(viewed, 0, domain.ViewedProductRecord{
			ID:         p.ID,
			Title:      p.Title,
			CategoryID: p.CategoryID,
			ViewedAt:   now,
		})
		t.write(ctx, journalViewed, capped(viewed, MaxRecentlyViewed))
	}

	if p.CategoryID == "" {
		return
	}

	categories, ok := t.readCategories(ctx)
	if !ok {
		return
	}
	found := false
	for i := range categories {
		if categories[i].CategoryID == p.CategoryID {
			categories[i].ViewCount++
			categories[i].LastViewedAt = now
			found = true
			break
		}
	}
	if !found {
		categories = append(categories, domain.CategoryAffinity{CategoryID: p.CategoryID, ViewCount: 1, LastViewedAt: now})
	}
	slices.SortStableFunc(categories, func(a, b domain.CategoryAffinity) int {
		return cmp.Compare(b.ViewCount, a.ViewCount)
	})
	t.write(ctx, journalCategories, capped(categories, MaxCategories))
}

// TrackSearch records a search query. Blank queries are ignored and repeats are
// matched case-insensitively.
func (t *Tracker) TrackSearch(ctx context.Context, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	searches, ok := t.readSearches(ctx)
	if !ok {
		return
	}
	searches = slices.DeleteFunc(searches, func(r domain.SearchRecord) bool { return strings.EqualFold(r.Query, query) })
	searches = slices.Insert(searches, 0, domain.SearchRecord{Query: query, SearchedAt: t.now()})
	t.write(ctx, journalSearches, capped(searches, MaxSearches))
}

// RecentlyViewed returns the viewed journal, most recent first.
func (t *Tracker) RecentlyViewed(ctx context.Context) []domain.ViewedProductRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	viewed, _ := t.readViewed(ctx)
	return viewed
}

func (t *Tracker) SearchHistory(ctx context.Context) []domain.SearchRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	searches, _ := t.readSearches(ctx)
	return searches
}

// LastSearch returns the most recent query, if any.
func (t *Tracker) LastSearch(ctx context.Context) (string, bool) {
	searches := t.SearchHistory(ctx)
	if len(searches) == 0 {
		return "", false
	}
	return searches[0].Query, true
}

// CategoryAffinities returns the tracked categories ordered by view count.
func (t *Tracker) CategoryAffinities(ctx context.Context) []domain.CategoryAffinity {
	t.mu.Lock()
	defer t.mu.Unlock()
	categories, _ := t.readCategories(ctx)
	return categories
}

// TopCategories returns up to limit category ids, most viewed first.
func (t *Tracker) TopCategories(ctx context.Context, limit int) []string {
	if limit <= 0 {
		return nil
	}
	categories := t.CategoryAffinities(ctx)
	ids := make([]string, 0, min(limit, len(categories)))
	for _, c := range capped(categories, limit) {
		ids = append(ids, c.CategoryID)
	}
	return ids
}

// Snapshot returns all journals at once.
func (t *Tracker) Snapshot(ctx context.Context) domain.AffinitySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	viewed, _ := t.readViewed(ctx)
	searches, _ := t.readSearches(ctx)
	categories, _ := t.readCategories(ctx)
	return domain.AffinitySnapshot{
		RecentlyViewed: viewed,
		Searches:       searches,
		Categories:     categories,
	}
}

func (t *Tracker) ClearRecentlyViewed(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(ctx, journalViewed)
}

func (t *Tracker) ClearSearchHistory(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(ctx, journalSearches)
}

// ClearAll empties every journal, category affinity included.
func (t *Tracker) ClearAll(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, journal := range []string{journalViewed, journalSearches, journalCategories} {
		t.remove(ctx, journal)
	}
}

func (t *Tracker) readViewed(ctx context.Context) ([]domain.ViewedProductRecord, bool) {
	var out []domain.ViewedProductRecord
	ok := t.read(ctx, journalViewed, &out)
	return capped(out, MaxRecentlyViewed), ok
}

func (t *Tracker) readSearches(ctx context.Context) ([]domain.SearchRecord, bool) {
	var out []domain.SearchRecord
	ok := t.read(ctx, journalSearches, &out)
	return capped(out, MaxSearches), ok
}

func (t *Tracker) readCategories(ctx context.Context) ([]domain.CategoryAffinity, bool) {
	var out []domain.CategoryAffinity
	ok := t.read(ctx, journalCategories, &out)
	return capped(out, MaxCategories), ok
}

// read decodes a journal into dst. It returns false only when the store could not be
// reached; a corrupt payload reads as empty and may be overwritten.
func (t *Tracker) read(ctx context.Context, journal string, dst any) bool {
	raw, err := t.store.Get(ctx, t.key(journal))
	if err != nil {
		t.fail("get", journal, err)
		return false
	}
	if raw == nil {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.fail("decode", journal, err)
	}
	return true
}

func (t *Tracker) write(ctx context.Context, journal string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		t.fail("encode", journal, err)
		return
	}
	if err := t.store.Set(ctx, t.key(journal), raw); err != nil {
		t.fail("set", journal, err)
	}
}

func (t *Tracker) remove(ctx context.Context, journal string) {
	if err := t.store.Remove(ctx, t.key(journal)); err != nil {
		t.fail("remove", journal, err)
	}
}

// fail swallows a journal error after logging and counting it.
func (t *Tracker) fail(op, journal string, err error) {
	t.metrics.IncJournalError(op)
	t.logger.WithField("journal", journal).Warnf("⚠️ Affinity journal %s failed: %v", op, err)
}

func (t *Tracker) key(journal string) string {
	return "affinity:" + t.session + ":" + journal
}

func capped[T any](list []T, n int) []T {
	if len(list) > n {
		return list[:n]
	}
	return list
}
