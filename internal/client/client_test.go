package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/devserver"
	"github.com/raphaelgruber/minutes-go/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var demoUser = client.RegisterInput{
	Username:        "aminah",
	Email:           "aminah@example.my",
	Password:        "Rahsia123",
	ConfirmPassword: "Rahsia123",
	FullName:        "Aminah Yusof",
}

func newTestClient(t *testing.T, step int) (*client.Client, *devserver.Server) {
	t.Helper()
	srv, err := devserver.New(devserver.Options{Step: step, Users: []client.RegisterInput{demoUser}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return client.NewWithHTTPClient(ts.URL+"/", ts.Client()), srv
}

func loggedIn(t *testing.T, step int) (*client.Client, *devserver.Server) {
	t.Helper()
	c, srv := newTestClient(t, step)
	_, err := c.Login(context.Background(), demoUser.Email, demoUser.Password)
	require.NoError(t, err)
	return c, srv
}

func TestNew_BaseURL(t *testing.T) {
	t.Setenv("MINUTES_SERVER_URL", "")
	assert.Equal(t, client.DefaultBaseURL, client.New("").BaseURL())

	t.Setenv("MINUTES_SERVER_URL", "http://minutes.internal:9000")
	assert.Equal(t, "http://minutes.internal:9000", client.New("").BaseURL())
	assert.Equal(t, "http://explicit", client.New("http://explicit/").BaseURL())
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t, 0)
	ctx := context.Background()

	_, err := c.Login(ctx, demoUser.Email, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Empty(t, c.Token())

	resp, err := c.Login(ctx, demoUser.Email, demoUser.Password)
	require.NoError(t, err)
	assert.Equal(t, resp.AccessToken, c.Token())
	assert.Equal(t, "bearer", resp.TokenType)
}

func TestUnauthenticatedCall(t *testing.T) {
	c, _ := newTestClient(t, 0)

	_, err := c.Statistics(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Not authenticated", apiErr.Detail)
}

func TestRegister(t *testing.T) {
	c, _ := newTestClient(t, 0)
	ctx := context.Background()

	in := demoUser
	in.Username, in.Email = "Budi", "budi@example.my"
	resp, err := c.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "budi", resp.Username)

	_, err = c.Register(ctx, in)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "Username already registered")
}

func TestTranscriptionFlow(t *testing.T) {
	c, _ := loggedIn(t, 60)
	ctx := context.Background()

	up, err := c.Upload(ctx, "mesyuarat.mp3", strings.NewReader("ID3 audio bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, up.FileID)

	started, err := c.Transcribe(ctx, client.TranscribeInput{FileID: up.FileID, Title: "Mesyuarat Mingguan", MaxWorkers: 6, ModelName: "Whisper Malaysia", Language: "auto"})
	require.NoError(t, err)

	p, err := c.TranscriptionProgress(ctx, started.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "transcribing", p.Status)
	assert.InDelta(t, 60, p.Progress, 0.001)

	p, err = c.TranscriptionProgress(ctx, started.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Status)

	tr, err := c.GetTranscript(ctx, started.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "Mesyuarat Mingguan", tr.Title)

	require.NoError(t, c.UpdateTranscript(ctx, started.RequestID, "teks baharu"))
	tr, err = c.GetTranscript(ctx, started.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "teks baharu", tr.Text)

	require.NoError(t, c.DeleteTranscript(ctx, started.RequestID))
	_, err = c.GetTranscript(ctx, started.RequestID)
	assert.ErrorIs(t, err, client.ErrNotFound)
	_, err = c.TranscriptionProgress(ctx, started.RequestID)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestReportFlow(t *testing.T) {
	c, _ := loggedIn(t, 100)
	ctx := context.Background()

	up, err := c.Upload(ctx, "a.wav", strings.NewReader("RIFF"))
	require.NoError(t, err)
	tr, err := c.Transcribe(ctx, client.TranscribeInput{FileID: up.FileID, Title: "Taklimat"})
	require.NoError(t, err)
	for range 2 {
		_, err = c.TranscriptionProgress(ctx, tr.RequestID)
		require.NoError(t, err)
	}

	rep, err := c.GenerateReport(ctx, client.GenerateReportInput{TranscriptID: tr.RequestID, Prompt: "Ringkaskan", Title: "Ringkasan Taklimat"})
	require.NoError(t, err)

	list, err := c.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pending", list[0].Status)
	assert.False(t, list[0].CreatedAt.IsZero())

	for range 2 {
		_, err = c.ReportProgress(ctx, rep.ReportID)
		require.NoError(t, err)
	}
	data, err := c.GetReport(ctx, rep.ReportID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "PK"), "docx is a zip archive")

	require.NoError(t, c.DeleteReport(ctx, rep.ReportID))
	err = c.DeleteReport(ctx, rep.ReportID)
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.Error(t, c.DeleteReport(ctx, ""))
}

func TestStatistics(t *testing.T) {
	c, _ := loggedIn(t, 0)
	ctx := context.Background()

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalUsers)

	users, err := c.UserStatistics(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, users.UserCount)
	assert.Equal(t, "aminah", users.Users[0].Username)

	_, err = c.UserStatistics(ctx, "decade")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Detail, "Invalid period")
}

func TestMetricsRecorded(t *testing.T) {
	c, _ := newTestClient(t, 0)
	m := metrics.NewCollector()
	c.WithMetrics(m)
	ctx := context.Background()

	_, err := c.Login(ctx, demoUser.Email, demoUser.Password)
	require.NoError(t, err)
	_, err = c.TranscriptionProgress(ctx, "missing")
	require.Error(t, err)

	login := m.Operation(metrics.OpLogin)
	require.NotNil(t, login)
	assert.EqualValues(t, 1, login.Count)
	assert.EqualValues(t, 0, login.Errors)

	status := m.Operation(metrics.OpTranscriptionStatus)
	require.NotNil(t, status)
	assert.EqualValues(t, 1, status.Errors)
}

func TestListReports_BareArray(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"r1","title":"Minit","status":"completed","created_at":"2026-03-02T10:00:00Z"}]`))
	}))
	defer ts.Close()

	c := client.NewWithHTTPClient(ts.URL, ts.Client())
	c.SetToken("tok")
	list, err := c.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
}

func TestAPIError_Detail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", http.StatusBadRequest, `{"detail":"File type not supported"}`, "File type not supported"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","title"]}]}`, `[{"loc":["body","title"]}]`},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := client.NewWithHTTPClient(ts.URL, ts.Client()).Statistics(context.Background())
			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, apiErr.Detail)
		})
	}
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := client.NewWithHTTPClient(url, http.DefaultClient).Statistics(context.Background())
	require.Error(t, err)
	var apiErr *client.APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "execute request")
}
