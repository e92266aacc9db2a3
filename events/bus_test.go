package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredFlushPublishesInQueueOrder(t *testing.T) {
	recorder := NewRecorder()
	deferred := NewDeferred(recorder)

	deferred.Queue(WaiverClaimed, 1, "a")
	deferred.Queue(WaiverClaimFailed, 1, "b")
	assert.Equal(t, 2, deferred.Len())
	assert.Empty(t, recorder.Events(), "nothing published before flush")

	deferred.Flush(context.Background())
	assert.Equal(t, []string{WaiverClaimed, WaiverClaimFailed}, recorder.Kinds())
	assert.Equal(t, 0, deferred.Len())

	// A second flush is a no-op.
	deferred.Flush(context.Background())
	assert.Len(t, recorder.Events(), 2)
}

func TestDeferredDiscardDropsBuffer(t *testing.T) {
	recorder := NewRecorder()
	deferred := NewDeferred(recorder)

	deferred.Queue(WaiverClaimed, 1, "a")
	deferred.Discard()
	deferred.Flush(context.Background())

	assert.Empty(t, recorder.Events())
}

func TestDeferredToleratesNilBus(t *testing.T) {
	deferred := NewDeferred(nil)
	deferred.Queue(WaiverClaimed, 1, "a")
	deferred.Flush(context.Background())
	assert.Equal(t, 0, deferred.Len())
}

func TestNewPopulatesEnvelope(t *testing.T) {
	ev := New(WaiverProcessed, 42, map[string]int{"week": 3})
	require.NotEmpty(t, ev.ID)
	assert.Equal(t, WaiverProcessed, ev.Kind)
	assert.Equal(t, int64(42), ev.LeagueID)
	assert.False(t, ev.EmittedAt.IsZero())
}
