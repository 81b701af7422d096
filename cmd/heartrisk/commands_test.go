package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"heartrisk/ml"
)

// testApp returns an app whose output is captured and whose exit codes are
// returned instead of terminating the test binary.
func testApp(stdin string) (*cli.App, *bytes.Buffer) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, &out
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
model:
  dir: %[1]s/models
  data_path: %[1]s/data/heart.csv
  watch: false
database:
  path: %[1]s/data/heartrisk.db
log:
  level: error
`, filepath.ToSlash(dir))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, dir
}

func healthServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckHealth(t *testing.T) {
	cases := map[string]struct {
		status  int
		body    string
		wantErr string
	}{
		"loaded":       {http.StatusOK, `{"status":"ok","model_loaded":true}`, ""},
		"not loaded":   {http.StatusOK, `{"status":"ok","model_loaded":false}`, "no model loaded"},
		"server error": {http.StatusInternalServerError, `{"error":"boom"}`, "status 500"},
		"not json":     {http.StatusOK, `ok`, "invalid character"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := healthServer(t, tc.status, tc.body)
			err := checkHealth(context.Background(), srv.URL+"/api/health", time.Second)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCheckHealthTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	err := checkHealth(context.Background(), srv.URL+"/api/health", 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenDataTrainPredictVerify(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	dataPath := filepath.Join(dir, "data", "heart.csv")

	app, _ := testApp("")
	require.NoError(t, app.Run([]string{"heartrisk", "-c", cfgPath, "gen-data", "--rows", "300", "--seed", "7"}))
	ds, err := ml.LoadCSV(dataPath, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, 300, ds.Len())

	app, out := testApp("")
	require.NoError(t, app.Run([]string{"heartrisk", "-c", cfgPath, "train", "--trees", "10", "--max-depth", "4"}))
	assert.Contains(t, out.String(), "model saved to")
	assert.FileExists(t, filepath.Join(dir, "models", "heart_disease_pipeline.json"))
	assert.FileExists(t, filepath.Join(dir, "models", "model_metadata.json"))

	app, out = testApp("")
	require.NoError(t, app.Run([]string{"heartrisk", "-c", cfgPath, "predict", "--age", "63", "--cholesterol", "280"}))
	var result struct {
		Prediction  int                `json:"prediction"`
		Probability float64            `json:"probability"`
		RiskLevel   string             `json:"risk_level"`
		Input       map[string]float64 `json:"input"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 63.0, result.Input["age"])
	assert.Equal(t, 280.0, result.Input["cholesterol"])
	assert.Equal(t, 130.0, result.Input["resting_bp_s"])
	assert.Contains(t, []string{"Low", "Medium", "High"}, result.RiskLevel)

	record, err := json.Marshal(ml.DefaultRecord())
	require.NoError(t, err)
	app, out = testApp(string(record))
	require.NoError(t, app.Run([]string{"heartrisk", "-c", cfgPath, "predict", "--input", "-"}))
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 50.0, result.Input["age"])

	srv := healthServer(t, http.StatusOK, `{"status":"ok","model_loaded":true}`)
	app, out = testApp("")
	require.NoError(t, app.Run([]string{"heartrisk", "-c", cfgPath, "verify", "--url", srv.URL}))
	assert.Contains(t, out.String(), "all checks passed")
}

func TestPredictRejectsInvalidInput(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	app, _ := testApp("")
	require.NoError(t, app.Run([]string{"heartrisk", "-c", cfgPath, "gen-data", "--rows", "120"}))
	app, _ = testApp("")
	require.NoError(t, app.Run([]string{"heartrisk", "-c", cfgPath, "train", "--trees", "5", "--max-depth", "3"}))

	app, _ = testApp(`{"age": 45}`)
	err := app.Run([]string{"heartrisk", "-c", cfgPath, "predict", "--input", "-"})
	assert.ErrorContains(t, err, "invalid input")
}

func TestVerifyFailsWithExitCode(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	srv := healthServer(t, http.StatusOK, `{"status":"ok","model_loaded":false}`)

	app, out := testApp("")
	err := app.Run([]string{"heartrisk", "-c", cfgPath, "verify", "--url", srv.URL})
	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit), "got %v", err)
	assert.Equal(t, 1, exit.ExitCode())
	assert.Contains(t, out.String(), "MISSING")
	assert.Contains(t, out.String(), "FAILED  health")
}

func TestServeRequiresModelFile(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	app, _ := testApp("")
	err := app.Run([]string{"heartrisk", "-c", cfgPath, "serve", "--port", "0"})
	assert.ErrorContains(t, err, "run `heartrisk train` first")
}

func TestGenDataRejectsTinyDatasets(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	app, _ := testApp("")
	err := app.Run([]string{"heartrisk", "-c", cfgPath, "gen-data", "--rows", "3"})
	assert.ErrorContains(t, err, "at least 10")
}
