package pending

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"expensebot/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(10 * time.Minute)
	s.now = clock.Now
	return s, clock
}

func TestMemoryStore_PutGetTake(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	amount := decimal.NewFromInt(480)
	e, err := s.Put(ctx, Entry{ChatID: 1, Candidate: models.CandidateExpense{Amount: &amount, Vendor: "Linella"}})
	require.NoError(t, err)
	assert.Len(t, e.ID, 36)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Linella", got.Candidate.Vendor)

	// 修改返回值不影响存储内容
	*got.Candidate.Amount = decimal.NewFromInt(1)
	again, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, again.Candidate.Amount.Equal(decimal.NewFromInt(480)))

	taken, err := s.Take(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, taken.ID)

	_, err = s.Take(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UniqueIDs(t *testing.T) {
	s, _ := newTestStore()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		e, err := s.Put(context.Background(), Entry{ChatID: 7})
		require.NoError(t, err)
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}
	assert.Equal(t, 200, s.Len())
}

func TestMemoryStore_Expiry(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	e, err := s.Put(ctx, Entry{ChatID: 1})
	require.NoError(t, err)

	clock.Advance(9*time.Minute + 59*time.Second)
	_, err = s.Get(ctx, e.ID)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Take(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_SweepExpired(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	_, _ = s.Put(ctx, Entry{ChatID: 1})
	_, _ = s.Put(ctx, Entry{ChatID: 2})
	clock.Advance(11 * time.Minute)
	fresh, _ := s.Put(ctx, Entry{ChatID: 3})

	assert.Equal(t, 2, s.SweepExpired(ctx))
	assert.Equal(t, 1, s.Len())
	_, err := s.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_Delete(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	e, _ := s.Put(ctx, Entry{ChatID: 1})
	require.NoError(t, s.Delete(ctx, e.ID))
	assert.ErrorIs(t, s.Delete(ctx, e.ID), ErrNotFound)
}

func TestMemoryStore_ConcurrentTake(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	e, err := s.Put(ctx, Entry{ChatID: 1})
	require.NoError(t, err)

	var wins, misses int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, e.ID); err == nil {
				atomic.AddInt32(&wins, 1)
			} else {
				atomic.AddInt32(&misses, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(31), misses)
}

func TestMemoryStore_TakeIfSameChat(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	e, err := s.Put(ctx, Entry{ChatID: 42})
	require.NoError(t, err)

	// 其他会话取不走，记录保留
	_, err = s.TakeIf(ctx, e.ID, SameChat(7))
	assert.ErrorIs(t, err, ErrMismatch)
	assert.Equal(t, 1, s.Len())

	got, err := s.TakeIf(ctx, e.ID, SameChat(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ChatID)

	_, err = s.TakeIf(ctx, e.ID, SameChat(42))
	assert.ErrorIs(t, err, ErrNotFound)

	// chatID 为 0 不限制会话
	e2, err := s.Put(ctx, Entry{ChatID: 42})
	require.NoError(t, err)
	assert.Nil(t, SameChat(0))
	_, err = s.TakeIf(ctx, e2.ID, SameChat(0))
	require.NoError(t, err)

	// 过期优先于条件判断
	e3, err := s.Put(ctx, Entry{ChatID: 42})
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)
	_, err = s.TakeIf(ctx, e3.ID, SameChat(7))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_TakeIfConcurrentChats(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	e, err := s.Put(ctx, Entry{ChatID: 42})
	require.NoError(t, err)

	var wins, foreignWins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		chat := int64(42)
		if i%2 == 1 {
			chat = 7
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TakeIf(ctx, e.ID, SameChat(chat)); err == nil {
				atomic.AddInt32(&wins, 1)
				if chat != 42 {
					atomic.AddInt32(&foreignWins, 1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(0), foreignWins)
}
