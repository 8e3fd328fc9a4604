package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if a container runtime is not available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("wingman_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetFailure(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := storage.NewFailureRecord("req_itest1", api.StageContextAnalysis,
		"openai", `{"topic": "half`, errors.New("no complete JSON object recovered"))

	if err := store.SaveFailure(ctx, rec); err != nil {
		t.Fatalf("SaveFailure: %v", err)
	}

	got, err := store.GetFailure(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetFailure: %v", err)
	}
	if got.RequestID != rec.RequestID {
		t.Errorf("request id = %q, want %q", got.RequestID, rec.RequestID)
	}
	if got.Stage != api.StageContextAnalysis {
		t.Errorf("stage = %q", got.Stage)
	}
	if got.RawTextTruncated != rec.RawTextTruncated || got.RawTextLength != rec.RawTextLength {
		t.Errorf("raw text = %q (%d)", got.RawTextTruncated, got.RawTextLength)
	}
	if got.ParseError != rec.ParseError {
		t.Errorf("parse error = %q", got.ParseError)
	}
}

func TestGetFailureMissing(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetFailure(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListFailuresNewestFirst(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := storage.NewFailureRecord(fmt.Sprintf("req_list%d", i),
			api.StageReply, "openai", "{", errors.New("parse error"))
		// Spread the timestamps so the ordering is deterministic.
		rec.Timestamp = rec.Timestamp.Add(time.Duration(i) * time.Second)
		if err := store.SaveFailure(ctx, rec); err != nil {
			t.Fatalf("SaveFailure: %v", err)
		}
	}

	recs, err := store.ListFailures(ctx, 2)
	if err != nil {
		t.Fatalf("ListFailures: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].RequestID != "req_list2" || recs[1].RequestID != "req_list1" {
		t.Errorf("order = %s, %s", recs[0].RequestID, recs[1].RequestID)
	}
}

func TestHealthCheck(t *testing.T) {
	store := setupTestDB(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
