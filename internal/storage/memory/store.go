package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
//
// Transactions work on a private copy of the data that replaces the shared
// copy on commit. Transactions and writes made outside a transaction are
// serialized by txMu; reads only take mu.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	d    *data
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) Close() error { return nil }

func (s *Store) read(fn func(d *data) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.d)
}

func (s *Store) write(fn func(d *data) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.d)
}

// BeginTx starts a transaction. It blocks while another transaction is open.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	s.txMu.Lock()
	if err := ctx.Err(); err != nil {
		s.txMu.Unlock()
		return nil, err
	}
	s.mu.RLock()
	snapshot := s.d.clone()
	s.mu.RUnlock()
	return &Tx{store: s, d: snapshot}, nil
}

// Tx is a transaction over a copy of the store's data.
type Tx struct {
	store *Store
	d     *data
	done  bool
}

// Commit publishes the transaction's changes.
func (t *Tx) Commit() error {
	if t.done {
		return storage.ErrTxDone
	}
	t.store.mu.Lock()
	t.store.d = t.d
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards the transaction's changes.
func (t *Tx) Rollback() error {
	if t.done {
		return storage.ErrTxDone
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	t.d = nil
	t.store.txMu.Unlock()
}

func (t *Tx) Close() error { return nil }

func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, storage.ErrNestedTx
}

func (t *Tx) use(fn func(d *data) error) error {
	if t.done {
		return storage.ErrTxDone
	}
	return fn(t.d)
}

// ============================================
// data
// ============================================

type data struct {
	apiKeys   map[string]*domain.APIKey
	stories   map[string]*domain.Story
	tags      map[string]*domain.Tag          // key: id
	storyTags map[string]*domain.StoryTag     // key: storyID:tagID
	supports  map[string]*domain.StorySupport // key: storyID:userID
}

func newData() *data {
	return &data{
		apiKeys:   make(map[string]*domain.APIKey),
		stories:   make(map[string]*domain.Story),
		tags:      make(map[string]*domain.Tag),
		storyTags: make(map[string]*domain.StoryTag),
		supports:  make(map[string]*domain.StorySupport),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.apiKeys {
		c.apiKeys[k] = copyAPIKey(v)
	}
	for k, v := range d.stories {
		c.stories[k] = copyStory(v)
	}
	for k, v := range d.tags {
		cp := *v
		c.tags[k] = &cp
	}
	for k, v := range d.storyTags {
		cp := *v
		c.storyTags[k] = &cp
	}
	for k, v := range d.supports {
		cp := *v
		c.supports[k] = &cp
	}
	return c
}

func pairKey(a, b string) string { return a + ":" + b }

func copyAPIKey(k *domain.APIKey) *domain.APIKey {
	cp := *k
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}

func copyStory(s *domain.Story) *domain.Story {
	cp := *s
	cp.Tags = nil
	return &cp
}

func floorAdd(v, delta int) int {
	if v+delta < 0 {
		return 0
	}
	return v + delta
}

// ============================================
// API Keys
// ============================================

func (d *data) createAPIKey(key *domain.APIKey) error {
	for _, k := range d.apiKeys {
		if k.KeyHash == key.KeyHash {
			return domain.ErrAlreadyExists
		}
	}
	if _, ok := d.apiKeys[key.ID]; ok {
		return domain.ErrAlreadyExists
	}
	d.apiKeys[key.ID] = copyAPIKey(key)
	return nil
}

func (d *data) getAPIKeyByHash(keyHash string) (*domain.APIKey, error) {
	for _, k := range d.apiKeys {
		if k.KeyHash == keyHash {
			return copyAPIKey(k), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (d *data) listAPIKeys() []*domain.APIKey {
	keys := make([]*domain.APIKey, 0, len(d.apiKeys))
	for _, k := range d.apiKeys {
		keys = append(keys, copyAPIKey(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys
}

func (d *data) deleteAPIKey(id string) error {
	if _, ok := d.apiKeys[id]; !ok {
		return domain.ErrNotFound
	}
	delete(d.apiKeys, id)
	return nil
}

func (d *data) updateAPIKeyLastUsed(id string) error {
	k, ok := d.apiKeys[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	k.LastUsedAt = &now
	return nil
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return s.write(func(d *data) error { return d.createAPIKey(key) })
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return t.use(func(d *data) error { return d.createAPIKey(key) })
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (key *domain.APIKey, err error) {
	err = s.read(func(d *data) error {
		key, err = d.getAPIKeyByHash(keyHash)
		return err
	})
	return key, err
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (key *domain.APIKey, err error) {
	err = t.use(func(d *data) error {
		key, err = d.getAPIKeyByHash(keyHash)
		return err
	})
	return key, err
}

func (s *Store) ListAPIKeys(ctx context.Context) (keys []*domain.APIKey, err error) {
	err = s.read(func(d *data) error {
		keys = d.listAPIKeys()
		return nil
	})
	return keys, err
}

func (t *Tx) ListAPIKeys(ctx context.Context) (keys []*domain.APIKey, err error) {
	err = t.use(func(d *data) error {
		keys = d.listAPIKeys()
		return nil
	})
	return keys, err
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return s.write(func(d *data) error { return d.deleteAPIKey(id) })
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return t.use(func(d *data) error { return d.deleteAPIKey(id) })
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return s.write(func(d *data) error { return d.updateAPIKeyLastUsed(id) })
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return t.use(func(d *data) error { return d.updateAPIKeyLastUsed(id) })
}

func (s *Store) CountAPIKeys(ctx context.Context) (n int, err error) {
	err = s.read(func(d *data) error {
		n = len(d.apiKeys)
		return nil
	})
	return n, err
}

func (t *Tx) CountAPIKeys(ctx context.Context) (n int, err error) {
	err = t.use(func(d *data) error {
		n = len(d.apiKeys)
		return nil
	})
	return n, err
}

// ============================================
// Stories
// ============================================

func (d *data) createStory(story *domain.Story) error {
	if _, ok := d.stories[story.ID]; ok {
		return domain.ErrAlreadyExists
	}
	d.stories[story.ID] = copyStory(story)
	return nil
}

func (d *data) getStory(id string) (*domain.Story, error) {
	st, ok := d.stories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyStory(st), nil
}

// lockStory only checks existence. Transactions already hold txMu.
func (d *data) lockStory(id string) error {
	if _, ok := d.stories[id]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (d *data) listStories(limit, offset int) []*domain.Story {
	stories := make([]*domain.Story, 0, len(d.stories))
	for _, st := range d.stories {
		stories = append(stories, copyStory(st))
	}
	sort.Slice(stories, func(i, j int) bool {
		if stories[i].CreatedAt.Equal(stories[j].CreatedAt) {
			return stories[i].ID < stories[j].ID
		}
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
	if offset >= len(stories) {
		return []*domain.Story{}
	}
	stories = stories[offset:]
	if limit > 0 && limit < len(stories) {
		stories = stories[:limit]
	}
	return stories
}

func (d *data) adjustStorySupportCount(storyID string, delta int) error {
	st, ok := d.stories[storyID]
	if !ok {
		return domain.ErrNotFound
	}
	st.SupportCount = floorAdd(st.SupportCount, delta)
	st.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CreateStory(ctx context.Context, story *domain.Story) error {
	return s.write(func(d *data) error { return d.createStory(story) })
}

func (t *Tx) CreateStory(ctx context.Context, story *domain.Story) error {
	return t.use(func(d *data) error { return d.createStory(story) })
}

func (s *Store) GetStory(ctx context.Context, id string) (story *domain.Story, err error) {
	err = s.read(func(d *data) error {
		story, err = d.getStory(id)
		return err
	})
	return story, err
}

func (t *Tx) GetStory(ctx context.Context, id string) (story *domain.Story, err error) {
	err = t.use(func(d *data) error {
		story, err = d.getStory(id)
		return err
	})
	return story, err
}

func (s *Store) ListStories(ctx context.Context, limit, offset int) (stories []*domain.Story, err error) {
	err = s.read(func(d *data) error {
		stories = d.listStories(limit, offset)
		return nil
	})
	return stories, err
}

func (t *Tx) ListStories(ctx context.Context, limit, offset int) (stories []*domain.Story, err error) {
	err = t.use(func(d *data) error {
		stories = d.listStories(limit, offset)
		return nil
	})
	return stories, err
}

func (s *Store) LockStory(ctx context.Context, storyID string) error {
	return s.read(func(d *data) error { return d.lockStory(storyID) })
}

func (t *Tx) LockStory(ctx context.Context, storyID string) error {
	return t.use(func(d *data) error { return d.lockStory(storyID) })
}

func (s *Store) AdjustStorySupportCount(ctx context.Context, storyID string, delta int) error {
	return s.write(func(d *data) error { return d.adjustStorySupportCount(storyID, delta) })
}

func (t *Tx) AdjustStorySupportCount(ctx context.Context, storyID string, delta int) error {
	return t.use(func(d *data) error { return d.adjustStorySupportCount(storyID, delta) })
}

// ============================================
// Tags
// ============================================

func (d *data) createTag(tag *domain.Tag) error {
	if _, ok := d.tags[tag.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, t := range d.tags {
		if t.Slug == tag.Slug {
			return domain.ErrAlreadyExists
		}
	}
	cp := *tag
	d.tags[tag.ID] = &cp
	return nil
}

func (d *data) getTagBySlug(slug string) (*domain.Tag, error) {
	for _, t := range d.tags {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (d *data) listTags(activeOnly bool, limit int) []*domain.Tag {
	tags := make([]*domain.Tag, 0, len(d.tags))
	for _, t := range d.tags {
		if activeOnly && !t.IsActive {
			continue
		}
		cp := *t
		tags = append(tags, &cp)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].UsageCount != tags[j].UsageCount {
			return tags[i].UsageCount > tags[j].UsageCount
		}
		return tags[i].Slug < tags[j].Slug
	})
	if limit > 0 && limit < len(tags) {
		tags = tags[:limit]
	}
	return tags
}

func (d *data) updateTag(tag *domain.Tag) error {
	t, ok := d.tags[tag.ID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Name = tag.Name
	t.IsActive = tag.IsActive
	t.UpdatedAt = tag.UpdatedAt
	return nil
}

func (d *data) adjustTagUsage(tagID string, delta int) error {
	t, ok := d.tags[tagID]
	if !ok {
		return domain.ErrNotFound
	}
	t.UsageCount = floorAdd(t.UsageCount, delta)
	t.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	return s.write(func(d *data) error { return d.createTag(tag) })
}

func (t *Tx) CreateTag(ctx context.Context, tag *domain.Tag) error {
	return t.use(func(d *data) error { return d.createTag(tag) })
}

func (s *Store) GetTagBySlug(ctx context.Context, slug string) (tag *domain.Tag, err error) {
	err = s.read(func(d *data) error {
		tag, err = d.getTagBySlug(slug)
		return err
	})
	return tag, err
}

func (t *Tx) GetTagBySlug(ctx context.Context, slug string) (tag *domain.Tag, err error) {
	err = t.use(func(d *data) error {
		tag, err = d.getTagBySlug(slug)
		return err
	})
	return tag, err
}

func (s *Store) ListTags(ctx context.Context, activeOnly bool, limit int) (tags []*domain.Tag, err error) {
	err = s.read(func(d *data) error {
		tags = d.listTags(activeOnly, limit)
		return nil
	})
	return tags, err
}

func (t *Tx) ListTags(ctx context.Context, activeOnly bool, limit int) (tags []*domain.Tag, err error) {
	err = t.use(func(d *data) error {
		tags = d.listTags(activeOnly, limit)
		return nil
	})
	return tags, err
}

func (s *Store) UpdateTag(ctx context.Context, tag *domain.Tag) error {
	return s.write(func(d *data) error { return d.updateTag(tag) })
}

func (t *Tx) UpdateTag(ctx context.Context, tag *domain.Tag) error {
	return t.use(func(d *data) error { return d.updateTag(tag) })
}

func (s *Store) AdjustTagUsage(ctx context.Context, tagID string, delta int) error {
	return s.write(func(d *data) error { return d.adjustTagUsage(tagID, delta) })
}

func (t *Tx) AdjustTagUsage(ctx context.Context, tagID string, delta int) error {
	return t.use(func(d *data) error { return d.adjustTagUsage(tagID, delta) })
}

// ============================================
// Story Tags
// ============================================

func (d *data) createStoryTag(st *domain.StoryTag) error {
	if _, ok := d.stories[st.StoryID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := d.tags[st.TagID]; !ok {
		return domain.ErrNotFound
	}
	key := pairKey(st.StoryID, st.TagID)
	if _, ok := d.storyTags[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *st
	d.storyTags[key] = &cp
	return nil
}

func (d *data) deleteStoryTag(storyID, tagID string) error {
	key := pairKey(storyID, tagID)
	if _, ok := d.storyTags[key]; !ok {
		return domain.ErrNotFound
	}
	delete(d.storyTags, key)
	return nil
}

func (d *data) listStoryTags(storyID string) []*domain.Tag {
	var links []*domain.StoryTag
	for _, st := range d.storyTags {
		if st.StoryID == storyID {
			links = append(links, st)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return d.tags[links[i].TagID].Slug < d.tags[links[j].TagID].Slug
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	tags := make([]*domain.Tag, 0, len(links))
	for _, st := range links {
		cp := *d.tags[st.TagID]
		tags = append(tags, &cp)
	}
	return tags
}

func (s *Store) CreateStoryTag(ctx context.Context, storyTag *domain.StoryTag) error {
	return s.write(func(d *data) error { return d.createStoryTag(storyTag) })
}

func (t *Tx) CreateStoryTag(ctx context.Context, storyTag *domain.StoryTag) error {
	return t.use(func(d *data) error { return d.createStoryTag(storyTag) })
}

func (s *Store) DeleteStoryTag(ctx context.Context, storyID, tagID string) error {
	return s.write(func(d *data) error { return d.deleteStoryTag(storyID, tagID) })
}

func (t *Tx) DeleteStoryTag(ctx context.Context, storyID, tagID string) error {
	return t.use(func(d *data) error { return d.deleteStoryTag(storyID, tagID) })
}

func (s *Store) ListStoryTags(ctx context.Context, storyID string) (tags []*domain.Tag, err error) {
	err = s.read(func(d *data) error {
		tags = d.listStoryTags(storyID)
		return nil
	})
	return tags, err
}

func (t *Tx) ListStoryTags(ctx context.Context, storyID string) (tags []*domain.Tag, err error) {
	err = t.use(func(d *data) error {
		tags = d.listStoryTags(storyID)
		return nil
	})
	return tags, err
}

// ============================================
// Story Supports
// ============================================

func (d *data) createStorySupport(sp *domain.StorySupport) error {
	if _, ok := d.stories[sp.StoryID]; !ok {
		return domain.ErrNotFound
	}
	key := pairKey(sp.StoryID, sp.UserID)
	if _, ok := d.supports[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *sp
	d.supports[key] = &cp
	return nil
}

func (d *data) getStorySupport(storyID, userID string) (*domain.StorySupport, error) {
	sp, ok := d.supports[pairKey(storyID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sp
	return &cp, nil
}

func (d *data) updateStorySupport(sp *domain.StorySupport) error {
	existing, ok := d.supports[pairKey(sp.StoryID, sp.UserID)]
	if !ok {
		return domain.ErrNotFound
	}
	existing.SupportType = sp.SupportType
	existing.UpdatedAt = sp.UpdatedAt
	return nil
}

func (d *data) deleteStorySupport(storyID, userID string) error {
	key := pairKey(storyID, userID)
	if _, ok := d.supports[key]; !ok {
		return domain.ErrNotFound
	}
	delete(d.supports, key)
	return nil
}

func (d *data) countStorySupportsByType(storyID string) map[domain.SupportType]int {
	counts := make(map[domain.SupportType]int)
	for _, sp := range d.supports {
		if sp.StoryID == storyID {
			counts[sp.SupportType]++
		}
	}
	return counts
}

func (s *Store) CreateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return s.write(func(d *data) error { return d.createStorySupport(support) })
}

func (t *Tx) CreateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return t.use(func(d *data) error { return d.createStorySupport(support) })
}

func (s *Store) GetStorySupport(ctx context.Context, storyID, userID string) (sp *domain.StorySupport, err error) {
	err = s.read(func(d *data) error {
		sp, err = d.getStorySupport(storyID, userID)
		return err
	})
	return sp, err
}

func (t *Tx) GetStorySupport(ctx context.Context, storyID, userID string) (sp *domain.StorySupport, err error) {
	err = t.use(func(d *data) error {
		sp, err = d.getStorySupport(storyID, userID)
		return err
	})
	return sp, err
}

func (s *Store) UpdateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return s.write(func(d *data) error { return d.updateStorySupport(support) })
}

func (t *Tx) UpdateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return t.use(func(d *data) error { return d.updateStorySupport(support) })
}

func (s *Store) DeleteStorySupport(ctx context.Context, storyID, userID string) error {
	return s.write(func(d *data) error { return d.deleteStorySupport(storyID, userID) })
}

func (t *Tx) DeleteStorySupport(ctx context.Context, storyID, userID string) error {
	return t.use(func(d *data) error { return d.deleteStorySupport(storyID, userID) })
}

func (s *Store) CountStorySupportsByType(ctx context.Context, storyID string) (counts map[domain.SupportType]int, err error) {
	err = s.read(func(d *data) error {
		counts = d.countStorySupportsByType(storyID)
		return nil
	})
	return counts, err
}

func (t *Tx) CountStorySupportsByType(ctx context.Context, storyID string) (counts map[domain.SupportType]int, err error) {
	err = t.use(func(d *data) error {
		counts = d.countStorySupportsByType(storyID)
		return nil
	})
	return counts, err
}
