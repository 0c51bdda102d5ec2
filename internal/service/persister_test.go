package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/internal/models"
	"allocator/internal/portfolio"
)

func save(userID string, p models.Portfolio) portfolio.Change {
	return portfolio.Change{Op: portfolio.OpSave, UserID: userID, Portfolio: p, PortfolioID: p.ID}
}

func TestCoalesce(t *testing.T) {
	a := models.NewPortfolio(1, "A")
	b := models.NewPortfolio(2, "B")
	a2 := a
	a2.Name = "A2"

	q := coalesce(nil, save("u", a))
	q = coalesce(q, save("u", b))
	q = coalesce(q, save("u", a2))
	require.Len(t, q, 2)
	assert.Equal(t, "A2", q[0].Portfolio.Name)

	q = coalesce(q, portfolio.Change{Op: portfolio.OpState, UserID: "u", ActiveID: 1, NextID: 3})
	q = coalesce(q, portfolio.Change{Op: portfolio.OpState, UserID: "u", ActiveID: 2, NextID: 3})
	require.Len(t, q, 3)
	assert.Equal(t, int64(2), q[2].ActiveID)

	q = coalesce(q, portfolio.Change{Op: portfolio.OpPurge, UserID: "u", PortfolioID: 2})
	ops := []portfolio.ChangeOp{}
	for _, c := range q {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []portfolio.ChangeOp{portfolio.OpSave, portfolio.OpState, portfolio.OpPurge}, ops)

	// another user's save of the same id is untouched
	q = coalesce(q, save("v", a))
	assert.Len(t, q, 4)
}

func TestPersister_WritesChanges(t *testing.T) {
	store := newMemStore()
	p := NewPersister(store, quietLogger())
	defer p.Stop(context.Background())

	pf := models.NewPortfolio(1, "Main portfolio")
	p.Enqueue(save("u1", pf))
	p.Enqueue(portfolio.Change{Op: portfolio.OpState, UserID: "u1", ActiveID: 1, NextID: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Flush(ctx))

	got, ok := store.stored("u1", 1)
	require.True(t, ok)
	assert.Equal(t, "Main portfolio", got.Name)
	ws, err := store.LoadWorkspace(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ws.NextID)

	p.Enqueue(portfolio.Change{Op: portfolio.OpPurge, UserID: "u1", PortfolioID: 1})
	require.NoError(t, p.Flush(ctx))
	_, ok = store.stored("u1", 1)
	assert.False(t, ok)
	assert.Equal(t, int64(0), p.Failures())
}

func TestPersister_RetriesThenSucceeds(t *testing.T) {
	store := newMemStore()
	store.failSaves = 2
	p := NewPersister(store, quietLogger(), WithRetries(3), WithBackoff(time.Millisecond))
	defer p.Stop(context.Background())

	p.Enqueue(save("u1", models.NewPortfolio(1, "A")))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Flush(ctx))

	_, ok := store.stored("u1", 1)
	assert.True(t, ok)
	assert.Equal(t, int64(0), p.Failures())
}

func TestPersister_GivesUpAndCounts(t *testing.T) {
	store := newMemStore()
	store.failSaves = 10
	p := NewPersister(store, quietLogger(), WithRetries(2), WithBackoff(0))
	defer p.Stop(context.Background())

	p.Enqueue(save("u1", models.NewPortfolio(1, "A")))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, int64(1), p.Failures())
	_, ok := store.stored("u1", 1)
	assert.False(t, ok)
}

func TestPersister_StopDrainsAndDropsLater(t *testing.T) {
	store := newMemStore()
	p := NewPersister(store, quietLogger())

	p.Enqueue(save("u1", models.NewPortfolio(1, "A")))
	require.NoError(t, p.Stop(context.Background()))
	_, ok := store.stored("u1", 1)
	assert.True(t, ok)

	p.Enqueue(save("u1", models.NewPortfolio(2, "B")))
	_, ok = store.stored("u1", 2)
	assert.False(t, ok)
	assert.NoError(t, p.Stop(context.Background()))
}

func TestPersister_ManagerSoftDeleteEndToEnd(t *testing.T) {
	store := newMemStore()
	p := NewPersister(store, quietLogger())
	defer p.Stop(context.Background())

	m := portfolio.NewManager("u1", nil, p, quietLogger(), portfolio.WithGracePeriod(300*time.Millisecond))
	defer m.Close()
	_, err := m.AddPortfolio()
	require.NoError(t, err)
	_, err = m.DeletePortfolio(2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Flush(ctx))
	_, ok := store.stored("u1", 2)
	assert.True(t, ok, "row stays until the grace period ends")

	require.Eventually(t, func() bool {
		_, ok := store.stored("u1", 2)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
