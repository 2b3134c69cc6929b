//go:build integration

package capture

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testArchive *MySQLArchive

// TestMain starts a MySQL container shared by the archive tests.
func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mysql:8.0",
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "root",
				"MYSQL_DATABASE":      "traductor",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("port: 3306  MySQL Community Server"),
				wait.ForListeningPort("3306/tcp"),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start MySQL container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testArchive, err = OpenArchive(ctx, fmt.Sprintf("root:root@tcp(%s:%s)/traductor", host, port.Port()))
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}

	code := m.Run()

	_ = testArchive.Close()
	_ = container.Terminate(ctx)

	os.Exit(code)
}

func TestArchiveSaveAndRecent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, testArchive.Save(ctx, Result{
		CapturedAt:   base,
		Lines:        []string{"hello", "zombie"},
		Translations: []string{"hola", "zombi"},
	}))
	id, err := testArchive.insert(ctx, Result{
		CapturedAt:   base.Add(time.Second),
		Lines:        []string{"植物"},
		Translations: []string{"plantas"},
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	records, err := testArchive.Recent(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 2)

	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "植物", records[0].RawText)
	assert.Equal(t, "plantas", records[0].TranslatedText)
	assert.True(t, records[0].CapturedAt.Equal(base.Add(time.Second)))

	assert.Equal(t, "hello\nzombie", records[1].RawText)
	assert.Equal(t, "hola\nzombi", records[1].TranslatedText)

	one, err := testArchive.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestArchiveSchemaIsIdempotent(t *testing.T) {
	_, err := testArchive.db.ExecContext(context.Background(), schema)
	assert.NoError(t, err)
}

func TestOpenArchiveBadDSN(t *testing.T) {
	_, err := OpenArchive(context.Background(), "not a dsn")
	assert.Error(t, err)
}
