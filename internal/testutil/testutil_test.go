package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/plan"
)

func TestSequenceIDs(t *testing.T) {
	ids := NewSequenceIDs("")
	assert.Equal(t, int64(0), ids.Issued())
	assert.Equal(t, "req-1", ids.Generate())
	assert.Equal(t, "req-2", ids.Generate())
	assert.Equal(t, int64(2), ids.Issued())

	ids.Reset()
	assert.Equal(t, "req-1", ids.Generate())

	assert.Equal(t, "gw-1", NewSequenceIDs("gw").Generate())
}

func TestSequenceIDs_Concurrent(t *testing.T) {
	ids := NewSequenceIDs("req")
	const goroutines, perGoroutine = 10, 100

	seen := sync.Map{}
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				_, dup := seen.LoadOrStore(ids.Generate(), true)
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(goroutines*perGoroutine), ids.Issued())
}

func TestRecordingTransport(t *testing.T) {
	boom := errors.New("boom")
	tr := NewRecordingTransport().
		Respond("sqlite", plan.KindQuery, plan.Response{Columns: []string{"n"}, Rows: [][]any{{2}}}).
		Fail("sqlite", plan.KindIntrospect, boom)
	ctx := context.Background()

	resp, err := tr.Send(ctx, plan.Request{ID: "a", Engine: "sqlite", Kind: plan.KindQuery})
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, resp.Columns)

	_, err = tr.Send(ctx, plan.Request{ID: "b", Engine: "sqlite", Kind: plan.KindIntrospect})
	assert.ErrorIs(t, err, boom)

	_, err = tr.Send(ctx, plan.Request{ID: "c", Engine: "postgres", Kind: plan.KindQuery})
	assert.ErrorContains(t, err, "no response for postgres/query")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tr.Send(cancelled, plan.Request{ID: "d", Engine: "sqlite", Kind: plan.KindQuery})
	assert.ErrorIs(t, err, context.Canceled)

	reqs := tr.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, "a", reqs[0].ID)
	assert.Equal(t, "d", reqs[3].ID)

	reqs[0].ID = "changed"
	assert.Equal(t, "a", tr.Requests()[0].ID)
}
