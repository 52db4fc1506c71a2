package ml

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInterpreter writes a shell script that stands in for python. It is called
// as: <interpreter> <script> <model> and speaks the worker line protocol.
func fakeInterpreter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell interpreter stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.pkl")
	require.NoError(t, os.WriteFile(path, []byte("pickle"), 0o600))
	return path
}

const (
	readyLine = `echo '{"ok": true, "model_type": "RandomForestClassifier", "n_features": 3}'`
	requestID = `id=$(printf '%s' "$line" | sed 's/.*"id":\([0-9]*\).*/\1/')`
)

var okInterpreter = readyLine + `
while read -r line; do
  ` + requestID + `
  echo "{\"id\": $id, \"prediction\": 1, \"probabilities\": [0.18, 0.82]}"
done
`

func TestPickleClassifier_Score(t *testing.T) {
	python := fakeInterpreter(t, okInterpreter)

	pc, err := NewPickleClassifier(context.Background(), writeModel(t), python, 2*time.Second)
	require.NoError(t, err)
	defer pc.Close()

	label, p, err := pc.Score(context.Background(), []float64{3000, 10, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.Equal(t, 0.82, p)

	_, err = os.Stat(pc.scriptPath)
	assert.NoError(t, err, "inference script should exist while loaded")

	require.NoError(t, pc.Close())
	_, err = os.Stat(pc.scriptPath)
	assert.True(t, os.IsNotExist(err), "Close should remove the inference script")

	_, _, err = pc.Score(context.Background(), []float64{3000, 10, 1})
	assert.Error(t, err, "closed classifier should not serve predictions")
}

func TestPickleClassifier_SingleWorker(t *testing.T) {
	starts := filepath.Join(t.TempDir(), "starts")
	python := fakeInterpreter(t, fmt.Sprintf("echo started >> %q\n", starts)+okInterpreter)

	pc, err := NewPickleClassifier(context.Background(), writeModel(t), python, 2*time.Second)
	require.NoError(t, err)
	defer pc.Close()

	for i := 0; i < 5; i++ {
		_, p, err := pc.Score(context.Background(), []float64{float64(i), 1, 0})
		require.NoError(t, err)
		assert.Equal(t, 0.82, p)
	}

	data, err := os.ReadFile(starts)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "started"), "all predictions should share one interpreter")
}

func TestPickleClassifier_MissingModel(t *testing.T) {
	_, err := NewPickleClassifier(context.Background(), filepath.Join(t.TempDir(), "model.pkl"), "python3", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPickleClassifier_CorruptModel(t *testing.T) {
	python := fakeInterpreter(t, `echo '{"ok": false, "error": "cannot unpickle model: invalid load key"}'; exit 1`)

	_, err := NewPickleClassifier(context.Background(), writeModel(t), python, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot unpickle model")
}

func TestPickleClassifier_WrongArityModel(t *testing.T) {
	python := fakeInterpreter(t, `echo '{"ok": true, "model_type": "LogisticRegression", "n_features": 5}'
while read -r line; do :; done
`)

	_, err := NewPickleClassifier(context.Background(), writeModel(t), python, time.Second)
	assert.ErrorIs(t, err, ErrFeatureArity)
}

func TestPickleClassifier_MissingDependency(t *testing.T) {
	python := fakeInterpreter(t, `echo "ModuleNotFoundError: No module named 'sklearn'" >&2; exit 1`)

	_, err := NewPickleClassifier(context.Background(), writeModel(t), python, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model dependency missing")
}

func TestPickleClassifier_InferenceError(t *testing.T) {
	python := fakeInterpreter(t, `echo '{"ok": true, "model_type": "X"}'
while read -r line; do
  `+requestID+`
  echo "{\"id\": $id, \"error\": \"boom\"}"
done
`)

	pc, err := NewPickleClassifier(context.Background(), writeModel(t), python, time.Second)
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.Predict(context.Background(), []float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// the worker survives a failed request
	_, err = pc.Predict(context.Background(), []float64{1, 2, 3})
	assert.Contains(t, err.Error(), "boom")

	_, err = pc.PredictProba(context.Background(), []float64{1, 2})
	assert.ErrorIs(t, err, ErrFeatureArity)
}

func TestPickleClassifier_WorkerExit(t *testing.T) {
	python := fakeInterpreter(t, readyLine+`
read -r line
echo "MemoryError" >&2
exit 1
`)

	pc, err := NewPickleClassifier(context.Background(), writeModel(t), python, 2*time.Second)
	require.NoError(t, err)
	defer pc.Close()

	_, _, err = pc.Score(context.Background(), []float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference worker exited")
	assert.Contains(t, err.Error(), "MemoryError")

	_, _, err = pc.Score(context.Background(), []float64{1, 2, 3})
	assert.Error(t, err)
}

func TestPickleClassifier_Timeout(t *testing.T) {
	python := fakeInterpreter(t, readyLine+`
while read -r line; do exec sleep 5; done
`)

	pc, err := NewPickleClassifier(context.Background(), writeModel(t), python, 200*time.Millisecond)
	require.NoError(t, err)
	defer pc.Close()

	_, _, err = pc.Score(context.Background(), []float64{1, 2, 3})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPickleClassifier_LateReplyDiscarded(t *testing.T) {
	python := fakeInterpreter(t, readyLine+`
n=0
while read -r line; do
  n=$((n+1))
  `+requestID+`
  if [ "$n" -eq 1 ]; then sleep 1; fi
  echo "{\"id\": $id, \"prediction\": $id, \"probabilities\": [0.7, 0.3]}"
done
`)

	pc, err := NewPickleClassifier(context.Background(), writeModel(t), python, 800*time.Millisecond)
	require.NoError(t, err)
	defer pc.Close()

	_, _, err = pc.Score(context.Background(), []float64{1, 2, 3})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	label, p, err := pc.Score(context.Background(), []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, label, "reply to the timed out request must not be returned")
	assert.Equal(t, 0.3, p)
}

const stubModelSource = `
class Stub:
    n_features_in_ = 3

    def __init__(self, label, p):
        self.label = label
        self.p = p

    def predict(self, rows):
        return [self.label for _ in rows]

    def predict_proba(self, rows):
        return [[1 - self.p, self.p] for _ in rows]
`

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("python3")
	if err != nil || !isPython3(path) {
		t.Skip("python3 not available")
	}
	return path
}

// pickleStub writes a pickled Stub with a fixed label and probability to path
func pickleStub(t *testing.T, python, path string, label int, p float64) {
	t.Helper()
	cmd := exec.Command(python, "-c",
		"import pickle, sys, stubmodel\n"+
			"with open(sys.argv[1], 'wb') as f:\n"+
			"    pickle.dump(stubmodel.Stub(int(sys.argv[2]), float(sys.argv[3])), f)\n",
		path, fmt.Sprint(label), fmt.Sprint(p))
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestPickleClassifier_ModelFixedAfterLoad(t *testing.T) {
	python := requirePython(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stubmodel.py"), []byte(stubModelSource), 0o644))
	t.Setenv("PYTHONPATH", dir)

	path := filepath.Join(dir, "model.pkl")
	pickleStub(t, python, path, 1, 0.9)

	pc, err := NewPickleClassifier(context.Background(), path, python, 5*time.Second)
	require.NoError(t, err)
	defer pc.Close()

	features := []float64{3000, 10, 1}
	assertLoaded := func(stage string) {
		t.Helper()
		label, p, err := pc.Score(context.Background(), features)
		require.NoError(t, err, stage)
		assert.Equal(t, 1, label, stage)
		assert.InDelta(t, 0.9, p, 1e-9, stage)
	}

	assertLoaded("after load")

	pickleStub(t, python, path, 0, 0.3)
	assertLoaded("after the file was replaced")

	require.NoError(t, os.Remove(path))
	assertLoaded("after the file was deleted")
}
