package cli

import (
	"context"
	"testing"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchModel_FollowsJobsUntilDone(t *testing.T) {
	slot := jobs.NewSlot(time.Minute)
	m := newWatchModel(nil, slot)
	assert.Equal(t, "Loading jobs...\n", m.renderContent())

	next, cmd := m.Update(recordsMsg{records: []jobs.Record{
		{ID: "a", Title: "Mesyuarat", Status: jobs.StatusProcessing, Progress: 40},
		{ID: "old", Title: "Lama", Status: jobs.StatusCompleted},
	}})
	m = next.(watchModel)
	require.NotNil(t, cmd)
	assert.False(t, m.done)
	require.Len(t, m.rows, 1, "finished jobs not seen in flight are hidden")
	assert.Contains(t, m.renderContent(), "Mesyuarat")
	assert.Contains(t, m.renderContent(), " 40%")

	slot.Notify(context.Background(), jobs.Notification{JobID: "a", Title: "Mesyuarat", Level: jobs.LevelSuccess, Message: "Transcript is ready"})
	assert.Contains(t, m.renderContent(), "Transcript is ready")

	next, cmd = m.Update(recordsMsg{records: []jobs.Record{
		{ID: "a", Title: "Mesyuarat", Status: jobs.StatusCompleted, Progress: 100},
		{ID: "old", Title: "Lama", Status: jobs.StatusCompleted},
	}})
	m = next.(watchModel)
	require.NotNil(t, cmd)
	assert.True(t, m.done)
	require.Len(t, m.rows, 1)
	assert.Contains(t, m.renderContent(), "Completed")
	assert.Empty(t, m.failures())
}

func TestWatchModel_OnlySelectedIDs(t *testing.T) {
	m := newWatchModel(nil, jobs.NewSlot(time.Minute), "b")

	next, _ := m.Update(recordsMsg{records: []jobs.Record{
		{ID: "a", Status: jobs.StatusProcessing},
		{ID: "b", Title: "Laporan", Status: jobs.StatusError, Message: "model crashed"},
	}})
	m = next.(watchModel)
	assert.True(t, m.done, "the selected job is terminal")
	require.Len(t, m.failures(), 1)
	assert.Contains(t, m.renderContent(), "model crashed")
}

func TestWatchModel_ReadError(t *testing.T) {
	m := newWatchModel(nil, jobs.NewSlot(time.Minute))
	next, _ := m.Update(recordsMsg{err: assert.AnError})
	m = next.(watchModel)
	assert.True(t, m.done)
	assert.ErrorIs(t, m.err, assert.AnError)
}
