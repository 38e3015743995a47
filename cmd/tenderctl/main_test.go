package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/tender-scout/internal/models"
)

const sampleCSV = "Name of Work,Organization,Estimated Cost,Tender No,Turnover\n" +
	"Bridge construction over Ganga,NHAI,Rs. 2500000,NH/2025/77,3 crore\n" +
	"Supply of office furniture,CPWD,90000,,\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fixture(t *testing.T) (dbPath, csvPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "week.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o600))
	return filepath.Join(dir, "data", "tenders.db"), csvPath
}

func TestImportTwiceCountsDuplicates(t *testing.T) {
	dbPath, csvPath := fixture(t)

	out, err := run(t, "import", csvPath, "--db", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "week.csv")
	assert.Contains(t, out, "completed")

	out, err = run(t, "import", csvPath, "--db", dbPath, "--json")
	require.NoError(t, err, out)
	var batches []models.ImportBatch
	require.NoError(t, json.Unmarshal([]byte(out), &batches), out)
	require.Len(t, batches, 1)
	assert.Equal(t, 0, batches[0].RowsImported)
	assert.Equal(t, 2, batches[0].RowsDuplicate)
}

func importJSON(t *testing.T, args ...string) models.ImportBatch {
	t.Helper()
	out, err := run(t, append([]string{"import", "--json"}, args...)...)
	require.NoError(t, err, out)
	var batches []models.ImportBatch
	require.NoError(t, json.Unmarshal([]byte(out), &batches), out)
	require.Len(t, batches, 1)
	return batches[0]
}

func TestDryRunWritesNothing(t *testing.T) {
	dbPath, csvPath := fixture(t)

	first := importJSON(t, csvPath, "--db", dbPath, "--dry-run")
	assert.Equal(t, 2, first.RowsImported)
	_, err := os.Stat(dbPath)
	assert.ErrorIs(t, err, os.ErrNotExist, "dry run against a missing database creates nothing")

	stored := importJSON(t, csvPath, "--db", dbPath)
	assert.Equal(t, 2, stored.RowsImported)
}

func TestDryRunSeesStoredTenders(t *testing.T) {
	dbPath, csvPath := fixture(t)
	importJSON(t, csvPath, "--db", dbPath)

	dry := importJSON(t, csvPath, "--db", dbPath, "--dry-run")
	assert.Equal(t, 0, dry.RowsImported)
	assert.Equal(t, 2, dry.RowsDuplicate)
}

func TestImportMissingFile(t *testing.T) {
	dbPath, _ := fixture(t)
	_, err := run(t, "import", filepath.Join(t.TempDir(), "nope.xlsx"), "--db", dbPath)
	assert.Error(t, err)

	_, err = run(t, "import", "--db", dbPath)
	assert.Error(t, err)
}

func TestProfileScoreAndRescore(t *testing.T) {
	dbPath, csvPath := fixture(t)

	_, err := run(t, "profile", "show", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no company profile")

	_, err = run(t, "import", csvPath, "--db", dbPath)
	require.NoError(t, err)

	out, err := run(t, "profile", "set", "--db", dbPath, "--turnover", "5 crore", "--sector", "bridge", "--sector", "Bridge")
	require.NoError(t, err, out)
	assert.Contains(t, out, "rescored 2 of 2 tenders (0 failed)")

	out, err = run(t, "profile", "show", "--db", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "bridge")
	assert.NotContains(t, out, "Bridge")

	out, err = run(t, "score", csvPath, "--db", dbPath, "--breakdown")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Bridge construction over Ganga")
	assert.Contains(t, out, "2 of 2 tenders shown")
	assert.Contains(t, out, "business_sectors")

	out, err = run(t, "rescore", "--db", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "rescored 2 of 2 tenders")

	_, err = run(t, "profile", "set", "--db", dbPath, "--turnover", "plenty")
	assert.Error(t, err)
}

func TestScoreRequiresProfile(t *testing.T) {
	dbPath, csvPath := fixture(t)
	_, err := run(t, "score", csvPath, "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile set")
}
