package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	records  *Collection
	backend  *fakeBackend
	blobs    *MemoryBlobs
	notes    *recorder
	stops    *stopRecorder
	rec      *Reconciler
	kind     Kind
	ctx      context.Context
	recordID string
}

func newReconcilerFixture(t *testing.T, kind Kind) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		records:  NewCollection(kind, NewMemoryMirror()),
		backend:  newFakeBackend(),
		blobs:    NewMemoryBlobs(),
		notes:    &recorder{},
		stops:    &stopRecorder{},
		kind:     kind,
		ctx:      context.Background(),
		recordID: "job-1",
	}
	f.records.now = fixedNow
	f.rec = NewReconciler(f.records, f.backend, f.blobs, f.notes, f.stops, testLogger())
	f.rec.now = fixedNow

	require.NoError(t, f.records.Put(f.ctx, Record{
		ID:        f.recordID,
		Title:     "Board meeting",
		Status:    StatusPending,
		CreatedAt: testNow,
	}))
	return f
}

func (f *reconcilerFixture) get(t *testing.T) Record {
	t.Helper()
	r, err := f.records.Get(f.ctx, f.recordID)
	require.NoError(t, err)
	return r
}

// Scenario: pending, then processing at 40%, then completed with the result
// attached and exactly one notification.
func TestReconciler_PendingToCompleted(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	f.backend.setResult(f.recordID, Result{Text: "hello world"})

	f.backend.set(f.recordID, Update{Status: StatusProcessing, Progress: 40})
	assert.Equal(t, OutcomeProgress, f.rec.Tick(f.ctx, f.recordID))

	r := f.get(t)
	assert.Equal(t, StatusProcessing, r.Status)
	assert.Equal(t, 40, r.Progress)
	assert.Equal(t, 0, f.stops.count(f.recordID))

	f.backend.set(f.recordID, Update{Status: StatusCompleted, Progress: 90})
	assert.Equal(t, OutcomeCompleted, f.rec.Tick(f.ctx, f.recordID))

	r = f.get(t)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 100, r.Progress)
	assert.Equal(t, "hello world", r.ResultText)
	assert.True(t, r.NotifiedCompletion)
	assert.Equal(t, 1, f.stops.count(f.recordID))

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelSuccess, notes[0].Level)
	assert.Equal(t, "Transcript is ready", notes[0].Message)
	assert.Equal(t, "Board meeting", notes[0].Title)
}

// Scenario: the server no longer knows the job; it is treated as completed.
func TestReconciler_NotFoundIsCompletion(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	f.backend.fail(f.recordID, fmt.Errorf("poll: %w", ErrNotFound))
	f.backend.setResult(f.recordID, Result{Text: "recovered"})

	assert.Equal(t, OutcomeCompleted, f.rec.Tick(f.ctx, f.recordID))

	r := f.get(t)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 100, r.Progress)
	assert.Equal(t, "recovered", r.ResultText)
	assert.Equal(t, 1, f.stops.count(f.recordID))
	assert.Len(t, f.notes.all(), 1)
}

// Scenario: a stale processing response after completion leaves the record
// completed.
func TestReconciler_TerminalIsSticky(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	f.backend.set(f.recordID, Update{Status: StatusCompleted, Progress: 100})
	require.Equal(t, OutcomeCompleted, f.rec.Tick(f.ctx, f.recordID))

	out := f.rec.Apply(f.ctx, f.recordID, Update{Status: StatusProcessing, Progress: 50}, nil)
	assert.Equal(t, OutcomeStopped, out)

	r := f.get(t)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 100, r.Progress)

	// A late transport error does not turn it into an error either.
	out = f.rec.Apply(f.ctx, f.recordID, Update{}, errors.New("connection refused"))
	assert.Equal(t, OutcomeStopped, out)
	assert.Equal(t, StatusCompleted, f.get(t).Status)

	assert.Len(t, f.notes.all(), 1, "no second notification")
	assert.Equal(t, 1, f.backend.resultCount(f.recordID), "result fetched once")
}

func TestReconciler_TransportErrorIsTerminal(t *testing.T) {
	f := newReconcilerFixture(t, KindReport)
	f.backend.set(f.recordID, Update{Status: StatusProcessing, Progress: 30})
	require.Equal(t, OutcomeProgress, f.rec.Tick(f.ctx, f.recordID))

	f.backend.fail(f.recordID, errors.New("dial tcp: connection refused"))
	assert.Equal(t, OutcomeFailed, f.rec.Tick(f.ctx, f.recordID))

	r := f.get(t)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, 0, r.Progress)
	assert.Contains(t, r.Message, "connection refused")
	assert.Equal(t, 1, f.stops.count(f.recordID))

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelError, notes[0].Level)
	assert.Contains(t, notes[0].Message, "Report failed")
}

func TestReconciler_ServerReportsError(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	f.backend.set(f.recordID, Update{Status: StatusError, Progress: 10, Message: "bad audio"})

	assert.Equal(t, OutcomeFailed, f.rec.Tick(f.ctx, f.recordID))
	r := f.get(t)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, "bad audio", r.Message)
	assert.Equal(t, 0, f.backend.resultCount(f.recordID))
}

func TestReconciler_UnknownStatusIsIgnored(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	_, parseErr := ParseStatus("exploded")

	out := f.rec.Apply(f.ctx, f.recordID, Update{}, parseErr)
	assert.Equal(t, OutcomeIgnored, out)
	assert.Equal(t, StatusPending, f.get(t).Status)
	assert.Equal(t, 0, f.stops.count(f.recordID))
	assert.Empty(t, f.notes.all())
}

func TestReconciler_CancelledTickIsIgnored(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	out := f.rec.Apply(ctx, f.recordID, Update{}, context.Canceled)
	assert.Equal(t, OutcomeIgnored, out)
	assert.Equal(t, StatusPending, f.get(t).Status)
}

func TestReconciler_ProgressRegressionIsStored(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)

	f.rec.Apply(f.ctx, f.recordID, Update{Status: StatusProcessing, Progress: 60}, nil)
	f.rec.Apply(f.ctx, f.recordID, Update{Status: StatusProcessing, Progress: 20}, nil)
	assert.Equal(t, 20, f.get(t).Progress)

	f.rec.Apply(f.ctx, f.recordID, Update{Status: StatusProcessing, Progress: 400}, nil)
	assert.Equal(t, 100, f.get(t).Progress)
}

func TestReconciler_ReportResultStoredAsBlob(t *testing.T) {
	f := newReconcilerFixture(t, KindReport)
	f.backend.setResult(f.recordID, Result{Data: []byte("PK docx bytes")})

	assert.Equal(t, OutcomeCompleted, f.rec.Apply(f.ctx, f.recordID, Update{Status: StatusCompleted}, nil))

	r := f.get(t)
	assert.Equal(t, "mem:job-1.docx", r.ResultBlobRef)
	data, err := f.blobs.GetBlob(f.ctx, r.ResultBlobRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK docx bytes"), data)
}

func TestReconciler_ResultFetchFailureWarns(t *testing.T) {
	f := newReconcilerFixture(t, KindReport)
	f.backend.resultErr = errors.New("timeout")

	assert.Equal(t, OutcomeCompleted, f.rec.Apply(f.ctx, f.recordID, Update{Status: StatusCompleted}, nil))

	r := f.get(t)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.True(t, r.NotifiedCompletion)
	assert.Contains(t, r.Message, "result unavailable")

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelWarning, notes[0].Level)
}

func TestReconciler_DeletedRecordStopsPolling(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	_, err := f.records.Delete(f.ctx, f.recordID)
	require.NoError(t, err)

	f.backend.set(f.recordID, Update{Status: StatusProcessing, Progress: 10})
	assert.Equal(t, OutcomeStopped, f.rec.Tick(f.ctx, f.recordID))
	assert.Equal(t, 1, f.stops.count(f.recordID))
}

func TestReconciler_NotifiesOnceUnderConcurrentTicks(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	f.backend.set(f.recordID, Update{Status: StatusCompleted, Progress: 100})
	f.backend.setResult(f.recordID, Result{Text: "done"})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.rec.Tick(f.ctx, f.recordID)
		}()
	}
	wg.Wait()

	assert.Len(t, f.notes.all(), 1)
	assert.Equal(t, 1, f.backend.resultCount(f.recordID))
	assert.True(t, f.get(t).NotifiedCompletion)
}

func TestReconciler_ResultSurvivesCancelledTick(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	f.backend.setResult(f.recordID, Result{Text: "kept"})

	// Stopping the poller cancels the tick context mid-transition.
	ctx, cancel := context.WithCancel(f.ctx)
	f.rec.stopper = stopperFunc(func(string) { cancel() })

	assert.Equal(t, OutcomeCompleted, f.rec.Apply(ctx, f.recordID, Update{Status: StatusCompleted}, nil))
	assert.Equal(t, "kept", f.get(t).ResultText)
	assert.Len(t, f.notes.all(), 1)
}

type stopperFunc func(id string)

func (f stopperFunc) Stop(id string) { f(id) }

func TestReconciler_EditedTextSurvivesCompletion(t *testing.T) {
	f := newReconcilerFixture(t, KindTranscription)
	_, err := f.records.Update(f.ctx, f.recordID, func(r *Record) bool {
		r.ResultText = "Teks disunting"
		return true
	})
	require.NoError(t, err)
	f.backend.setResult(f.recordID, Result{Text: "Teks pelayan"})

	assert.Equal(t, OutcomeCompleted, f.rec.Apply(f.ctx, f.recordID, Update{Status: StatusCompleted}, nil))

	r := f.get(t)
	assert.Equal(t, "Teks disunting", r.ResultText)
	assert.True(t, r.NotifiedCompletion)
}
