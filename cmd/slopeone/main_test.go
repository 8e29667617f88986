// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

const testRatingsCSV = `userId,movieId,rating
1,10,5
1,20,3
1,30,2
2,10,3
2,20,4
3,20,2
3,30,5
3,40,4.5
4,10,1
4,40,2.5
`

// writeTestConfig lays out a CSV history and a file model store in a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "ratings.csv")
	if err := os.WriteFile(csvPath, []byte(testRatingsCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := `
logging:
  level: error
training:
  workers: 3
ratings:
  source: csv
  csv_path: ` + csvPath + `
model:
  store: file
  path: ` + filepath.Join(dir, "models") + `
  retain_runs: 2
`
	cfgPath := filepath.Join(dir, "slopeone.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func runCmd(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestTrainThenPredict(t *testing.T) {
	cfgPath := writeTestConfig(t)

	code, out, stderr := runCmd(t, "-config", cfgPath, "train")
	if code != 0 {
		t.Fatalf("train exit = %d, stderr = %s", code, stderr)
	}
	var summary trainSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode train summary: %v (%q)", err, out)
	}
	if summary.Items != 4 || summary.Users != 4 || summary.Ratings != 10 || summary.Partitions != 3 {
		t.Errorf("train summary = %+v", summary)
	}

	code, out, stderr = runCmd(t, "-config", cfgPath, "predict", "-user", "2", "-k", "2")
	if code != 0 {
		t.Fatalf("predict exit = %d, stderr = %s", code, stderr)
	}
	want := "item_id,predicted_rating\n30,4.5\n40,1.5\n"
	if out != want {
		t.Errorf("predict csv = %q, want %q", out, want)
	}

	outPath := filepath.Join(t.TempDir(), "preds.json")
	code, _, stderr = runCmd(t, "-config", cfgPath, "predict", "-user", "4", "-all", "-format", "json", "-out", outPath)
	if code != 0 {
		t.Fatalf("predict -all exit = %d, stderr = %s", code, stderr)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var res predictResult
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode predictions: %v", err)
	}
	wantItems := slopeone.Predictions{{ItemID: 20, Rating: 3.25}, {ItemID: 30, Rating: 3}}
	if res.UserID != 4 || res.RunID != summary.RunID || len(res.Items) != len(wantItems) {
		t.Fatalf("predict -all = %+v", res)
	}
	for i := range wantItems {
		if res.Items[i] != wantItems[i] {
			t.Errorf("item %d = %+v, want %+v", i, res.Items[i], wantItems[i])
		}
	}

	// strict top-k: user 2 has only two candidates
	if code, _, _ = runCmd(t, "-config", cfgPath, "predict", "-user", "2", "-k", "5"); code != 1 {
		t.Errorf("predict -k 5 exit = %d, want 1", code)
	}
}

func TestPredictWithoutModel(t *testing.T) {
	cfgPath := writeTestConfig(t)

	code, _, stderr := runCmd(t, "-config", cfgPath, "predict", "-user", "1")
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "slopeone train") {
		t.Errorf("stderr does not suggest training: %s", stderr)
	}
}

func TestUsageErrors(t *testing.T) {
	cfgPath := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: []string{"-config", cfgPath}},
		{name: "unknown command", args: []string{"-config", cfgPath, "evaluate"}},
		{name: "predict without user", args: []string{"-config", cfgPath, "predict"}},
		{name: "predict bad format", args: []string{"-config", cfgPath, "predict", "-user", "1", "-format", "xml"}},
		{name: "predict negative k", args: []string{"-config", cfgPath, "predict", "-user", "1", "-k", "-3"}},
		{name: "import without csv", args: []string{"-config", cfgPath, "import"}},
		{name: "train stray argument", args: []string{"-config", cfgPath, "train", "now"}},
		{name: "unknown flag", args: []string{"-config", cfgPath, "train", "-fast"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runCmd(t, tt.args...); code != 2 {
				t.Errorf("exit = %d, want 2", code)
			}
		})
	}
}

func TestWritePredictions(t *testing.T) {
	res := &predictResult{UserID: 7, RunID: "r1", Items: slopeone.Predictions{{ItemID: 3, Rating: 4.125}, {ItemID: 1, Rating: -0.5}}}

	var buf bytes.Buffer
	if err := writePredictions(&buf, outputCSV, res); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "item_id,predicted_rating\n3,4.125\n1,-0.5\n"; got != want {
		t.Errorf("csv = %q, want %q", got, want)
	}

	buf.Reset()
	if err := writePredictions(&buf, outputJSON, res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"predicted_rating": 4.125`) {
		t.Errorf("json = %s", buf.String())
	}
}
