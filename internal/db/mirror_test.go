// Package db provides integration tests against a SurrealDB container.
package db

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client

// TestMain sets up and tears down the SurrealDB container for all tests.
// With -short no container is started and every test skips.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)

	os.Exit(code)
}

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	if testDB == nil {
		t.Skip("integration test: requires a SurrealDB container")
	}
	require.NoError(t, testDB.WipeData(context.Background()))
	return NewMirror(testDB, nil)
}

func TestMirror_EmptyCollection(t *testing.T) {
	m := newTestMirror(t)

	records, err := m.Load(context.Background(), jobs.KindTranscription)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestMirror_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestMirror(t)

	created := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	want := []jobs.Record{
		{ID: "r1", Kind: jobs.KindReport, Title: "Board", Status: jobs.StatusProcessing, Progress: 40, SourceID: "t1", CreatedAt: created},
		{ID: "r2", Kind: jobs.KindReport, Title: "Minutes", Status: jobs.StatusCompleted, Progress: 100, ResultBlobRef: "/tmp/r2.docx", NotifiedCompletion: true, CreatedAt: created},
		{ID: "r3", Kind: jobs.KindReport, Status: jobs.StatusError, Message: "render failed", NotifiedCompletion: true, CreatedAt: created},
	}
	require.NoError(t, m.Save(ctx, jobs.KindReport, want))

	got, err := m.Load(ctx, jobs.KindReport)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Status, got[i].Status)
		assert.Equal(t, want[i].Progress, got[i].Progress)
		assert.Equal(t, want[i].NotifiedCompletion, got[i].NotifiedCompletion)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}

	// Kinds do not share a collection.
	other, err := m.Load(ctx, jobs.KindTranscription)
	require.NoError(t, err)
	assert.Empty(t, other)

	// Save overwrites.
	require.NoError(t, m.Save(ctx, jobs.KindReport, want[:1]))
	got, err = m.Load(ctx, jobs.KindReport)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMirror_CorruptDocumentDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	m := newTestMirror(t)

	require.NoError(t, m.writeRaw(ctx, jobs.KindTranscription, "{definitely not json"))

	records, err := m.Load(ctx, jobs.KindTranscription)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMirror_DrivesSynchronizer(t *testing.T) {
	ctx := context.Background()
	m := newTestMirror(t)

	// A stale in-flight record planted by an earlier session is swept on open.
	require.NoError(t, m.Save(ctx, jobs.KindTranscription, []jobs.Record{
		{ID: "old", Status: jobs.StatusProcessing, CreatedAt: time.Now().Add(-3 * time.Hour)},
		{ID: "kept", Status: jobs.StatusCompleted, CreatedAt: time.Now().Add(-3 * time.Hour)},
	}))

	s := jobs.NewSynchronizer(jobs.KindTranscription, m, nil, jobs.Options{Interval: time.Hour})
	defer s.Close()

	report, err := s.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	records, err := m.Load(ctx, jobs.KindTranscription)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].ID)
}
