package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/janus/internal/ingest"
)

type reportJSON struct {
	Baseline   string   `json:"baseline"`
	Seed       uint64   `json:"seed"`
	SampleSize int      `json:"sample_size"`
	Order      []string `json:"order"`
	Variants   map[string]struct {
		Baseline    bool    `json:"baseline"`
		Exposures   int     `json:"exposures"`
		Conversions int     `json:"conversions"`
		TotalValue  float64 `json:"total_value"`
		Statistics  map[string]struct {
			ChanceToBeat *float64        `json:"chance_to_beat"`
			Bootstrap    json.RawMessage `json:"bootstrap"`
		} `json:"statistics"`
	} `json:"variants"`
}

func run(t *testing.T, cmd *cobra.Command, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	err := cmd.Execute()
	return out.String(), err
}

func useTempDB(t *testing.T) {
	t.Helper()

	old := dbPath
	dbPath = filepath.Join(t.TempDir(), "janus.db")
	t.Cleanup(func() { dbPath = old })
}

func TestCompareCmd(t *testing.T) {
	out, err := run(t, newCompareCmd(), nil,
		"--variant", "control:1000:100:1000",
		"--variant", "treatment:1000:150:1500",
		"--seed", "7", "--samples", "5000")
	require.NoError(t, err)

	assert.Contains(t, out, "BASELINE: control")
	assert.Contains(t, out, "SEED: 7")
	assert.Contains(t, out, "CONVERSION")
	assert.Contains(t, out, "VALUE PER EXPOSURE")
	assert.Contains(t, out, `Decision: "treatment" wins`)
}

func TestCompareCmd_JSON(t *testing.T) {
	out, err := run(t, newCompareCmd(), nil,
		"-v", "a:500:50", "-v", "b:500:40",
		"--baseline", "b", "--metrics", "conversion",
		"--seed", "3", "--samples", "2000", "--json")
	require.NoError(t, err)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "b", report.Baseline)
	assert.Equal(t, uint64(3), report.Seed)
	assert.Equal(t, 2000, report.SampleSize)
	assert.Equal(t, []string{"b", "a"}, report.Order)
	assert.True(t, report.Variants["b"].Baseline)
	assert.Contains(t, report.Variants["a"].Statistics, "conversion")
	assert.NotContains(t, report.Variants["a"].Statistics, "value_per_exposure")
}

func TestCompareCmd_Errors(t *testing.T) {
	_, err := run(t, newCompareCmd(), nil)
	assert.Error(t, err)

	_, err = run(t, newCompareCmd(), nil, "-v", "a:10:1")
	assert.Error(t, err)

	_, err = run(t, newCompareCmd(), nil, "-v", "a:10:1", "-v", "b:10:bad")
	assert.Error(t, err)
}

func TestSimulateThenAnalyze(t *testing.T) {
	csv, err := run(t, newSimulateCmd(), nil, "--exposures", "2000", "--seed", "11")
	require.NoError(t, err)

	rows, err := ingest.ReadRows(strings.NewReader(csv), ingest.DefaultColumns())
	require.NoError(t, err)
	assert.Len(t, rows, 2000)

	out, err := run(t, newAnalyzeCmd(), strings.NewReader(csv),
		"-", "--baseline", "baseline", "--seed", "5", "--samples", "2000",
		"--bootstrap", "--bootstrap-samples", "200", "--json")
	require.NoError(t, err)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "baseline", report.Baseline)
	require.Contains(t, report.Variants, "test")
	assert.Equal(t, 1000, report.Variants["test"].Exposures)
	assert.NotEmpty(t, report.Variants["test"].Statistics["conversion"].Bootstrap)
}

func TestSimulate_ScenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exposures: 400\ntreatment_name: variant_b\n"), 0o644))

	csv, err := run(t, newSimulateCmd(), nil, "--scenario", path, "--exposures", "600")
	require.NoError(t, err)

	rows, err := ingest.ReadRows(strings.NewReader(csv), ingest.DefaultColumns())
	require.NoError(t, err)
	assert.Len(t, rows, 600)

	labels := rowLabels(rows)
	assert.ElementsMatch(t, []string{"baseline", "variant_b"}, labels)
}

func TestAnalyzeCmd_Summary(t *testing.T) {
	summary := `alternative,period,exposures,conversions,value
control,d1,500,40,400
treatment,d1,500,50,600
control,d2,500,45,450
treatment,d2,500,55,660
`
	out, err := run(t, newAnalyzeCmd(), strings.NewReader(summary),
		"-", "--format", "summary", "--baseline", "control", "--seed", "1", "--samples", "2000")
	require.NoError(t, err)
	assert.Contains(t, out, "BASELINE: control")
	assert.Contains(t, out, "1,000")
	assert.Contains(t, out, "Decision:")
}

func TestImportRecordResults(t *testing.T) {
	useTempDB(t)

	path := filepath.Join(t.TempDir(), "daily.csv")
	summary := `alternative,period,exposures,conversions,value
control,2024-05-01,500,40,400
treatment,2024-05-01,500,50,600
control,2024-05-02,500,45,450
treatment,2024-05-02,500,55,660
`
	require.NoError(t, os.WriteFile(path, []byte(summary), 0o644))

	out, err := run(t, newImportCmd(), nil, "checkout", path, "--baseline", "control")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 4 rows into 'checkout'")

	// replaces the stored treatment row for the second day
	out, err = run(t, newRecordCmd(), nil, "checkout",
		"-a", "treatment", "-p", "2024-05-02", "-e", "600", "-c", "70", "--value", "800")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded treatment/2024-05-02")

	out, err = run(t, newResultsCmd(), nil, "checkout", "--seed", "2", "--samples", "2000", "--json")
	require.NoError(t, err)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "control", report.Baseline)
	assert.Equal(t, 1000, report.Variants["control"].Exposures)
	assert.Equal(t, 85, report.Variants["control"].Conversions)
	assert.Equal(t, 1100, report.Variants["treatment"].Exposures)
	assert.Equal(t, 120, report.Variants["treatment"].Conversions)
	assert.InDelta(t, 1400, report.Variants["treatment"].TotalValue, 1e-9)

	out, err = run(t, newExportCmd(), nil, "checkout", "--format", "json")
	require.NoError(t, err)

	var exported jsonExport
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	assert.Equal(t, "checkout", exported.Experiment)
	assert.Len(t, exported.Observations, 4)

	out, err = run(t, newExportCmd(), nil, "checkout", "--expand")
	require.NoError(t, err)
	rows, err := ingest.ReadRows(strings.NewReader(out), ingest.DefaultColumns())
	require.NoError(t, err)
	assert.Len(t, rows, 2100)
}

func TestRecordCmd_Validation(t *testing.T) {
	useTempDB(t)

	_, err := run(t, newRecordCmd(), nil, "checkout", "-e", "10")
	assert.ErrorContains(t, err, "--alternative is required")

	_, err = run(t, newRecordCmd(), nil, "checkout", "-a", "control", "-e", "10", "-c", "20")
	assert.Error(t, err)
}

func TestResultsCmd_NotFound(t *testing.T) {
	useTempDB(t)

	_, err := run(t, newResultsCmd(), nil, "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestExportCmd_InvalidFormat(t *testing.T) {
	useTempDB(t)

	_, err := run(t, newExportCmd(), nil, "checkout", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}
