package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func writePlaybookFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadPlaybooksFromFiles(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	writePlaybookFile(t, dir, "content-brief.toml", `
name = "Content Brief"
enabled = true

[[steps]]
key = "research"
type = "template"

[[steps]]
key = "draft"
type = "template"
[steps.config]
input = "write from {{steps.research.output}}"
`)

	// Missing required name field: skipped, not fatal
	writePlaybookFile(t, dir, "broken.toml", `
[[steps]]
key = "only"
type = "template"
`)

	// Not TOML: ignored
	writePlaybookFile(t, dir, "readme.md", "not a playbook")

	err := LoadPlaybooksFromFiles(context.Background(), manager.PlaybookStorage(), dir, arbor.NewLogger())
	require.NoError(t, err)

	playbooks, err := manager.PlaybookStorage().ListPlaybooks(context.Background())
	require.NoError(t, err)
	require.Len(t, playbooks, 1)

	// ID defaults to the file name, step ids and positions are filled in
	loaded := playbooks[0]
	assert.Equal(t, "content-brief", loaded.ID)
	assert.Equal(t, 1, loaded.Version)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "content-brief.research", loaded.Steps[0].ID)
	assert.Equal(t, 1, loaded.Steps[0].Position)
	assert.Equal(t, 2, loaded.Steps[1].Position)
}

func TestLoadPlaybooksFromFiles_MissingDirectory(t *testing.T) {
	manager := newTestManager(t)

	err := LoadPlaybooksFromFiles(context.Background(), manager.PlaybookStorage(), "/nonexistent/playbooks", arbor.NewLogger())
	assert.NoError(t, err)
}

func TestLoadPlaybooksFromFiles_InvalidSchedule(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	writePlaybookFile(t, dir, "scheduled.toml", `
name = "Scheduled"
schedule = "not a cron expression"

[[steps]]
key = "only"
type = "template"
`)

	err := LoadPlaybooksFromFiles(context.Background(), manager.PlaybookStorage(), dir, arbor.NewLogger())
	require.NoError(t, err)

	playbooks, err := manager.PlaybookStorage().ListPlaybooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, playbooks)
}

func TestLoadPlaybooksFromFiles_ValidSchedule(t *testing.T) {
	manager := newTestManager(t)
	dir := t.TempDir()

	writePlaybookFile(t, dir, "nightly.toml", `
name = "Nightly"
schedule = "0 2 * * *"
enabled = true

[[steps]]
key = "only"
type = "template"
`)

	err := LoadPlaybooksFromFiles(context.Background(), manager.PlaybookStorage(), dir, arbor.NewLogger())
	require.NoError(t, err)

	loaded, err := manager.PlaybookStorage().GetPlaybook(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", loaded.Schedule)
	assert.True(t, loaded.Enabled)
}
