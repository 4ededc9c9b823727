package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"MARKETML_CONFIG", "ML_DATA_DIR", "INDICATORS_CONFIG_PATH", "ML_S3_BUCKET",
	"ML_REMOTE_TYPE", "SUPABASE_URL", "SUPABASE_KEY", "SUPABASE_SERVICE_ROLE",
	"SINK_TYPE", "SINK_DSN", "LOG_LEVEL",
}

// setup writes a config rooted in a temp dir and returns its path and the
// data directory.
func setup(t *testing.T) (cfgPath, dataDir string) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	indicators := filepath.Join(dir, "indicators.yaml")
	writeFile(t, indicators, "indicators:\n  - name: sma\n    params: {length: 3}\n")

	cfgPath = filepath.Join(dir, "marketml.yaml")
	writeFile(t, cfgPath, fmt.Sprintf(`
storage:
  data_dir: %q
  indicators_path: %q
sink:
  type: none
logging:
  level: error
`, dataDir, indicators))
	return cfgPath, dataDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// pricesCSV writes n daily rows whose close rises by one each day.
func pricesCSV(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + float64(i) + float64(i%3)*0.25
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%d\n",
			start.AddDate(0, 0, i).Format(time.RFC3339), c, c+1, c-1, c, 1000+i*10)
	}
	path := filepath.Join(t.TempDir(), "prices.csv")
	writeFile(t, path, b.String())
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("ml-pipeline %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestFeaturesFromFileToCacheAndOutput(t *testing.T) {
	cfg, dataDir := setup(t)
	input := pricesCSV(t, 12)
	output := filepath.Join(t.TempDir(), "features.csv")

	execute(t, "--config", cfg, "features",
		"--input", input,
		"--symbol", "TEST", "--mode", "daily", "--outputsize", "full",
		"--add-target", "return",
		"--cache-version", "v1",
		"--output", output,
	)

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if !strings.Contains(lines[0], "SMA_3") || !strings.Contains(lines[0], "target") {
		t.Errorf("header = %q, want SMA_3 and target", lines[0])
	}
	// 12 rows, 2 lost to the SMA lookback and 1 to the forward target.
	if got := len(lines) - 1; got != 9 {
		t.Errorf("rows = %d, want 9", got)
	}

	for _, v := range []string{"v1", "latest"} {
		path := filepath.Join(dataDir, "features", "TEST", "daily", "full", v+".parquet")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected cached artifact %s: %v", path, err)
		}
	}

	got := execute(t, "--config", cfg, "versions",
		"--symbol", "TEST", "--type", "features", "--mode", "daily", "--outputsize", "full")
	if strings.TrimSpace(got) != "v1" {
		t.Errorf("versions output = %q, want v1", got)
	}
}

func TestTrainThenPredictFromCache(t *testing.T) {
	cfg, dataDir := setup(t)
	input := pricesCSV(t, 40)
	common := []string{"--symbol", "TEST", "--mode", "daily", "--outputsize", "full"}

	execute(t, append([]string{"--config", cfg, "features", "--input", input, "--add-target", "return", "--no-cache=false"}, common...)...)

	metricsLog := filepath.Join(t.TempDir(), "metrics.yaml")
	execute(t, append([]string{"--config", cfg, "train",
		"--model", "ridge_regression", "--hyperparams", `{"alpha": 1}`,
		"--n-splits", "3", "--metrics-log", metricsLog}, common...)...)

	modelDir := filepath.Join(dataDir, "models", "TEST", "ridge_regression")
	for _, name := range []string{"latest.model.json", "latest.meta.json"} {
		if _, err := os.Stat(filepath.Join(modelDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(metricsLog); err != nil {
		t.Errorf("metrics log not written: %v", err)
	}

	output := filepath.Join(t.TempDir(), "predictions.csv")
	execute(t, append([]string{"--config", cfg, "predict",
		"--model", "ridge_regression", "--output", output}, common...)...)

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read predictions: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "timestamp,prediction" {
		t.Errorf("header = %q", lines[0])
	}
	if got := len(lines) - 1; got != 37 {
		t.Errorf("predictions = %d, want 37", got)
	}
}

func TestTrainMissingDataset(t *testing.T) {
	cfg, _ := setup(t)
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "train", "--symbol", "NOPE"})
	if err := root.Execute(); err == nil {
		t.Fatal("train without a cached dataset should fail")
	}
}
