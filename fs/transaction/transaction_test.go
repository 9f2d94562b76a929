package transaction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsspec/filesystem-spec/fs/transaction"
)

func TestCompleteRunsQueueInOrder(t *testing.T) {
	tx := transaction.New()
	tx.Start()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		tx.Defer(transaction.Action{Run: func(ctx context.Context) error {
			order = append(order, i)
			return nil
		}})
	}

	result := tx.Complete(context.Background())
	require.NoError(t, result.Err)
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 3, result.Committed)
	assert.Equal(t, 3, result.Total)
}

func TestCompleteReportsPartialCommitOnFailure(t *testing.T) {
	tx := transaction.New()
	tx.Start()
	var ran []int
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		i := i
		tx.Defer(transaction.Action{Run: func(ctx context.Context) error {
			ran = append(ran, i)
			if i == 1 {
				return boom
			}
			return nil
		}})
	}

	result := tx.Complete(context.Background())
	assert.Equal(t, boom, result.Err)
	assert.Equal(t, 1, result.Committed, "only the first action should be reported committed")
	assert.Equal(t, []int{0, 1}, ran, "the failing action runs but is not counted as committed")
}

func TestCancelAbortsEveryQueuedAction(t *testing.T) {
	tx := transaction.New()
	tx.Start()
	var aborted []int
	for i := 0; i < 2; i++ {
		i := i
		tx.Defer(transaction.Action{
			Run:   func(ctx context.Context) error { return nil },
			Abort: func(ctx context.Context) error { aborted = append(aborted, i); return nil },
		})
	}

	tx.Cancel(context.Background())
	assert.Equal(t, []int{0, 1}, aborted)
	assert.False(t, tx.Active())
}

func TestActiveReflectsLifecycle(t *testing.T) {
	tx := transaction.New()
	assert.False(t, tx.Active())
	tx.Start()
	assert.True(t, tx.Active())
	tx.Complete(context.Background())
	assert.False(t, tx.Active())
}
