package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned by a Backend when the server no longer knows the job.
var ErrNotFound = errors.New("job not found on server")

// Update is one status report from the server.
type Update struct {
	Status   Status
	Progress int
	Message  string
}

// Result is the payload of a completed job: transcript text or a rendered
// document.
type Result struct {
	Text string
	Data []byte
}

// Backend is the part of the external service the reconciler talks to.
type Backend interface {
	// Status returns the current status of a job. Unrecognized wire statuses
	// are reported as ErrUnknownStatus, missing jobs as ErrNotFound.
	Status(ctx context.Context, kind Kind, id string) (Update, error)
	// Result fetches the payload of a completed job.
	Result(ctx context.Context, kind Kind, id string) (Result, error)
}

// Stopper cancels polling for a job id.
type Stopper interface {
	Stop(id string)
}

// Outcome describes what a single reconcile step did.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"   // nothing changed, polling continues
	OutcomeProgress  Outcome = "progress"  // in-flight state merged
	OutcomeCompleted Outcome = "completed" // moved to completed
	OutcomeFailed    Outcome = "failed"    // moved to error
	OutcomeStopped   Outcome = "stopped"   // already terminal or gone; polling stopped
)

// Reconciler interprets poll responses and applies them to the mirror.
type Reconciler struct {
	records  *Collection
	backend  Backend
	blobs    BlobStore
	notifier Notifier
	stopper  Stopper
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler wires a reconciler. blobs and notifier may be nil.
func NewReconciler(records *Collection, backend Backend, blobs BlobStore, notifier Notifier, stopper Stopper, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if blobs == nil {
		blobs = NewMemoryBlobs()
	}
	return &Reconciler{
		records:  records,
		backend:  backend,
		blobs:    blobs,
		notifier: notifier,
		stopper:  stopper,
		logger:   logger,
		now:      time.Now,
	}
}

// Tick polls the server once for id and applies the answer.
func (r *Reconciler) Tick(ctx context.Context, id string) Outcome {
	upd, err := r.backend.Status(ctx, r.records.Kind(), id)
	return r.Apply(ctx, id, upd, err)
}

// Apply merges one poll response (or poll failure) into the record for id.
//
// Terminal states are sticky: once a record is completed or error, later
// responses only stop polling. The first terminal transition claims the
// NotifiedCompletion flag in the same write, so result fetching and the user
// notification happen exactly once even when stray ticks race.
func (r *Reconciler) Apply(ctx context.Context, id string, upd Update, pollErr error) Outcome {
	kind := r.records.Kind()
	log := r.logger.With("job_id", id, "kind", kind)

	if pollErr != nil {
		if ctx.Err() != nil {
			// Aborted by stop or teardown; not a job failure.
			return OutcomeIgnored
		}
		if errors.Is(pollErr, ErrUnknownStatus) {
			log.Warn("ignoring unrecognized job status", "error", pollErr)
			return OutcomeIgnored
		}
	}

	claimed := false
	rec, err := r.records.Update(ctx, id, func(rec *Record) bool {
		if rec.Status.Terminal() {
			return false
		}
		switch {
		case pollErr != nil && errors.Is(pollErr, ErrNotFound):
			// The server lost track of the job, most likely after a restart.
			// Treat it as finished rather than stranding it in flight.
			rec.Status = StatusCompleted
			rec.Progress = 100
			rec.Message = "job is no longer tracked by the server"
		case pollErr != nil:
			rec.Status = StatusError
			rec.Progress = 0
			rec.Message = pollErr.Error()
		default:
			rec.Status = upd.Status
			rec.Progress = clampProgress(upd.Progress)
			if upd.Status == StatusCompleted {
				rec.Progress = 100
			}
			if upd.Message != "" {
				rec.Message = upd.Message
			}
		}
		if rec.Status.Terminal() && !rec.NotifiedCompletion {
			rec.NotifiedCompletion = true
			claimed = true
		}
		return true
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			// Deleted locally while polling.
			r.stop(id)
			return OutcomeStopped
		}
		log.Error("failed to update job record", "error", err)
		return OutcomeIgnored
	}

	if !rec.Status.Terminal() {
		log.Debug("job progress", "status", rec.Status, "progress", rec.Progress)
		return OutcomeProgress
	}

	r.stop(id)
	if !claimed {
		return OutcomeStopped
	}

	// Polling for id is stopped, which cancels ctx; the side effects of the
	// terminal transition still have to run to completion.
	ctx = context.WithoutCancel(ctx)

	if rec.Status == StatusError {
		log.Warn("job failed", "message", rec.Message)
		r.notify(ctx, rec, LevelError, fmt.Sprintf("%s failed: %s", kindLabel(kind), rec.Message))
		return OutcomeFailed
	}

	log.Info("job completed")
	if err := r.attachResult(ctx, id); err != nil {
		log.Warn("job completed but result could not be fetched", "error", err)
		r.notify(ctx, rec, LevelWarning, fmt.Sprintf("%s completed, but its result could not be fetched", kindLabel(kind)))
		return OutcomeCompleted
	}
	r.notify(ctx, rec, LevelSuccess, fmt.Sprintf("%s is ready", kindLabel(kind)))
	return OutcomeCompleted
}

// attachResult fetches the result for id and stores it on the record.
func (r *Reconciler) attachResult(ctx context.Context, id string) error {
	kind := r.records.Kind()
	res, err := r.backend.Result(ctx, kind, id)
	if err != nil {
		r.markResultMissing(ctx, id, err)
		return fmt.Errorf("fetch result: %w", err)
	}

	var ref string
	if len(res.Data) > 0 {
		ref, err = r.blobs.PutBlob(ctx, blobName(kind, id), res.Data)
		if err != nil {
			r.markResultMissing(ctx, id, err)
			return fmt.Errorf("store result: %w", err)
		}
	}

	_, err = r.records.Update(ctx, id, func(rec *Record) bool {
		// Text the user already edited wins over the fetched result.
		if res.Text != "" && rec.ResultText == "" {
			rec.ResultText = res.Text
		}
		if ref != "" {
			rec.ResultBlobRef = ref
		}
		return true
	})
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (r *Reconciler) markResultMissing(ctx context.Context, id string, cause error) {
	_, err := r.records.Update(ctx, id, func(rec *Record) bool {
		rec.Message = "result unavailable: " + cause.Error()
		return true
	})
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		r.logger.Error("failed to update job record", "job_id", id, "error", err)
	}
}

func (r *Reconciler) notify(ctx context.Context, rec Record, level Level, msg string) {
	r.notifier.Notify(ctx, Notification{
		JobID:   rec.ID,
		Kind:    rec.Kind,
		Title:   rec.Title,
		Level:   level,
		Message: msg,
		At:      r.now(),
	})
}

func (r *Reconciler) stop(id string) {
	if r.stopper != nil {
		r.stopper.Stop(id)
	}
}

func blobName(kind Kind, id string) string {
	if kind == KindReport {
		return id + ".docx"
	}
	return id + ".bin"
}

func kindLabel(kind Kind) string {
	switch kind {
	case KindTranscription:
		return "Transcript"
	case KindReport:
		return "Report"
	default:
		return "Job"
	}
}
