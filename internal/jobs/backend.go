package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/raphaelgruber/minutes-go/internal/client"
)

// APIBackend polls the REST service through a client.Client.
type APIBackend struct {
	Client *client.Client
}

// NewAPIBackend creates a backend for c.
func NewAPIBackend(c *client.Client) *APIBackend {
	return &APIBackend{Client: c}
}

// Status fetches the progress endpoint for kind and parses the wire status.
func (b *APIBackend) Status(ctx context.Context, kind Kind, id string) (Update, error) {
	var (
		p   *client.Progress
		err error
	)
	switch kind {
	case KindTranscription:
		p, err = b.Client.TranscriptionProgress(ctx, id)
	case KindReport:
		p, err = b.Client.ReportProgress(ctx, id)
	default:
		return Update{}, fmt.Errorf("poll %s: unsupported kind %q", id, kind)
	}
	if err != nil {
		return Update{}, translate(err)
	}

	status, err := ParseStatus(p.Status)
	if err != nil {
		return Update{}, err
	}
	return Update{
		Status:   status,
		Progress: int(math.Round(p.Progress)),
		Message:  p.Message,
	}, nil
}

// Result fetches the transcript text or the rendered report document.
func (b *APIBackend) Result(ctx context.Context, kind Kind, id string) (Result, error) {
	switch kind {
	case KindTranscription:
		t, err := b.Client.GetTranscript(ctx, id)
		if err != nil {
			return Result{}, translate(err)
		}
		return Result{Text: t.Text}, nil
	case KindReport:
		data, err := b.Client.GetReport(ctx, id)
		if err != nil {
			return Result{}, translate(err)
		}
		return Result{Data: data}, nil
	default:
		return Result{}, fmt.Errorf("fetch result %s: unsupported kind %q", id, kind)
	}
}

func translate(err error) error {
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
