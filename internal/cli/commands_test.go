package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/jaki95/registry-sync/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdTree(t *testing.T) {
	root := RootCmd()

	for _, name := range []string{"sync", "import", "snapshots"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	sync, _, _ := root.Find([]string{"sync"})
	assert.NotNil(t, sync.Flags().Lookup("company"))
	assert.NotNil(t, sync.Flags().Lookup("max-pages"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestImportRequiresSnapshotName(t *testing.T) {
	root := RootCmd()
	root.SetArgs([]string{"import"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}

func TestSnapshotsDisabled(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  type: memory\n"), 0o644))

	root := RootCmd()
	root.SetArgs([]string{"snapshots", "--config", configPath})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.ErrorIs(t, root.Execute(), errSnapshotsDisabled)
}

func TestPrintSummaries(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	PrintSyncSummary(&out, &syncer.Summary{
		Scraped: 12, Inserted: 5, Updated: 2, Unchanged: 5, Errors: 1,
		Pages: syncer.PageStats{Total: 3, Success: 2, Errors: 1},
	})
	assert.Equal(t, "\nScraped 12 records from 3 pages (1 failed): 5 inserted, 2 updated, 5 unchanged, 1 errors\n", out.String())

	out.Reset()
	PrintImportSummary(&out, &syncer.ImportSummary{Scraped: 4, Inserted: 4})
	assert.Equal(t, "\nImported 4 records: 4 inserted, 0 updated, 0 unchanged, 0 errors\n", out.String())
}
