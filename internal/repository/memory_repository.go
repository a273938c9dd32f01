package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// MemoryCounterRepository is a process-local counter store. A single mutex
// makes every operation atomic, which is all the dispatch run relies on.
type MemoryCounterRepository struct {
	mu   sync.Mutex
	days map[string]*model.DailyCounter
}

func NewMemoryCounterRepository() *MemoryCounterRepository {
	return &MemoryCounterRepository{days: make(map[string]*model.DailyCounter)}
}

func (r *MemoryCounterRepository) Get(ctx context.Context, day time.Time) (*model.DailyCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *r.bucket(day)
	return &c, nil
}

func (r *MemoryCounterRepository) IncrementSent(ctx context.Context, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucket(day).SentCount++
	return nil
}

func (r *MemoryCounterRepository) IncrementOpens(ctx context.Context, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucket(day).OpenCount++
	return nil
}

func (r *MemoryCounterRepository) IncrementClicks(ctx context.Context, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucket(day).ClickCount++
	return nil
}

func (r *MemoryCounterRepository) Recent(ctx context.Context, limit int) ([]model.DailyCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters := make([]model.DailyCounter, 0, len(r.days))
	for _, c := range r.days {
		counters = append(counters, *c)
	}
	sort.Slice(counters, func(i, j int) bool {
		return counters[i].Day.After(counters[j].Day)
	})
	if limit >= 0 && len(counters) > limit {
		counters = counters[:limit]
	}
	return counters, nil
}

// Put overwrites a bucket. Used for seeding history.
func (r *MemoryCounterRepository) Put(c model.DailyCounter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Day = model.DayOf(c.Day)
	r.days[model.DayKey(c.Day)] = &c
}

// bucket must be called with mu held.
func (r *MemoryCounterRepository) bucket(day time.Time) *model.DailyCounter {
	key := model.DayKey(day)
	c, ok := r.days[key]
	if !ok {
		c = &model.DailyCounter{Day: model.DayOf(day)}
		r.days[key] = c
	}
	return c
}

// MemoryRecipientRepository claims recipients in insertion order.
type MemoryRecipientRepository struct {
	Audience string
	Now      func() time.Time

	mu         sync.Mutex
	recipients []*model.Recipient
	nextID     int64
}

func NewMemoryRecipientRepository(audience string) *MemoryRecipientRepository {
	return &MemoryRecipientRepository{Audience: audience}
}

// Add stores a copy of rec, assigning an ID when it has none, and returns the ID.
func (r *MemoryRecipientRepository) Add(rec model.Recipient) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == 0 {
		r.nextID++
		rec.ID = r.nextID
	} else if rec.ID > r.nextID {
		r.nextID = rec.ID
	}
	r.recipients = append(r.recipients, &rec)
	return rec.ID
}

func (r *MemoryRecipientRepository) ClaimNext(ctx context.Context) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.recipients {
		if !rec.Claimable(r.Audience) {
			continue
		}
		now := r.now()
		rec.LastContactedAt = &now
		claimed := *rec
		return &claimed, nil
	}
	return nil, nil
}

func (r *MemoryRecipientRepository) Release(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.recipients {
		if rec.ID == id {
			rec.LastContactedAt = nil
		}
	}
	return nil
}

// Snapshot returns copies of all stored recipients.
func (r *MemoryRecipientRepository) Snapshot() []model.Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Recipient, len(r.recipients))
	for i, rec := range r.recipients {
		out[i] = *rec
	}
	return out
}

// Claimable counts recipients a claim could currently pick.
func (r *MemoryRecipientRepository) Claimable() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.recipients {
		if rec.Claimable(r.Audience) {
			n++
		}
	}
	return n
}

func (r *MemoryRecipientRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

var (
	_ CounterRepositoryInterface   = (*MemoryCounterRepository)(nil)
	_ RecipientRepositoryInterface = (*MemoryRecipientRepository)(nil)
)
