package ml

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	startupTimeout = 30 * time.Second
	maxReplySize   = 1 << 20
	maxStderrSize  = 64 << 10
)

// PickleClassifier evaluates a pickled scikit-learn model in a long-lived
// Python worker. The worker unpickles the model once at startup; every
// prediction after that is served from the in-memory object, so replacing or
// deleting the file on disk has no effect until the classifier is reloaded.
type PickleClassifier struct {
	modelPath  string
	pythonPath string
	scriptDir  string
	scriptPath string
	timeout    time.Duration

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *syncBuffer
	replies chan []byte
	quit    chan struct{}
	exited  chan struct{}
	waitErr error // valid once exited is closed

	mu     sync.Mutex // one request in flight
	nextID uint64

	closeOnce sync.Once
	closeErr  error
}

type pickleRequest struct {
	ID       uint64    `json:"id"`
	Features []float64 `json:"features"`
}

type pickleResponse struct {
	ID            uint64    `json:"id"`
	Prediction    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

type pickleCheck struct {
	OK        bool   `json:"ok"`
	ModelType string `json:"model_type"`
	Features  *int   `json:"n_features"`
	Error     string `json:"error,omitempty"`
}

// NewPickleClassifier starts the inference worker for the model at path and
// waits for it to report that the model unpickled into an object exposing
// predict and predict_proba. pythonPath may be empty, in which case an
// interpreter is discovered.
func NewPickleClassifier(ctx context.Context, path, pythonPath string, timeout time.Duration) (*PickleClassifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	if pythonPath == "" {
		found, err := findPython()
		if err != nil {
			return nil, err
		}
		pythonPath = found
	}

	scriptDir, err := os.MkdirTemp("", "insights-inference-")
	if err != nil {
		return nil, fmt.Errorf("failed to create script directory: %w", err)
	}
	scriptPath := filepath.Join(scriptDir, "pickle_inference.py")
	if err := os.WriteFile(scriptPath, []byte(inferenceScript), 0o755); err != nil {
		os.RemoveAll(scriptDir)
		return nil, fmt.Errorf("failed to write inference script: %w", err)
	}

	pc := &PickleClassifier{
		modelPath:  path,
		pythonPath: pythonPath,
		scriptDir:  scriptDir,
		scriptPath: scriptPath,
		timeout:    timeout,
	}

	if err := pc.start(); err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.handshake(ctx); err != nil {
		pc.Close()
		return nil, err
	}

	return pc, nil
}

// Close stops the worker and removes the embedded inference script
func (pc *PickleClassifier) Close() error {
	pc.closeOnce.Do(func() {
		if pc.cmd != nil {
			close(pc.quit)
			pc.stdin.Close()

			// EOF on stdin ends the worker loop; kill it if it is stuck
			select {
			case <-pc.exited:
			case <-time.After(time.Second):
				pc.cmd.Process.Kill()
				<-pc.exited
			}
		}
		if pc.scriptDir != "" {
			pc.closeErr = os.RemoveAll(pc.scriptDir)
		}
	})
	return pc.closeErr
}

func (pc *PickleClassifier) Predict(ctx context.Context, features []float64) (int, error) {
	label, _, err := pc.Score(ctx, features)
	return label, err
}

func (pc *PickleClassifier) PredictProba(ctx context.Context, features []float64) (float64, error) {
	_, p, err := pc.Score(ctx, features)
	return p, err
}

// Score runs predict and predict_proba in one worker round trip
func (pc *PickleClassifier) Score(ctx context.Context, features []float64) (int, float64, error) {
	if err := checkFeatures(features); err != nil {
		return 0, 0, err
	}

	resp, err := pc.exchange(ctx, features)
	if err != nil {
		log.Error().
			Err(err).
			Str("python_path", pc.pythonPath).
			Str("model_path", pc.modelPath).
			Floats64("features", features).
			Dur("timeout", pc.timeout).
			Msg("Python inference execution failed")
		return 0, 0, err
	}
	if resp.Error != "" {
		return 0, 0, fmt.Errorf("python inference error: %s", resp.Error)
	}
	if len(resp.Probabilities) != 2 {
		return 0, 0, fmt.Errorf("%w: expected 2 probabilities, got %d", ErrInvalidOutput, len(resp.Probabilities))
	}

	log.Debug().
		Floats64("features", features).
		Floats64("probabilities", resp.Probabilities).
		Int("prediction", resp.Prediction).
		Msg("Prediction successful")

	return resp.Prediction, resp.Probabilities[1], nil
}

func (pc *PickleClassifier) start() error {
	cmd := exec.Command(pc.pythonPath, pc.scriptPath, pc.modelPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}
	pc.stderr = &syncBuffer{}
	cmd.Stderr = pc.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start inference worker: %w", err)
	}

	pc.cmd = cmd
	pc.stdin = stdin
	pc.replies = make(chan []byte)
	pc.quit = make(chan struct{})
	pc.exited = make(chan struct{})
	go pc.readLoop(stdout)
	return nil
}

// readLoop forwards every stdout line to replies until the worker exits
func (pc *PickleClassifier) readLoop(stdout io.Reader) {
	defer close(pc.exited)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxReplySize)
loop:
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case pc.replies <- line:
		case <-pc.quit:
			break loop
		}
	}

	pc.waitErr = pc.cmd.Wait()
}

// handshake waits for the worker's model check, written once after unpickling
func (pc *PickleClassifier) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	line, err := pc.receive(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("model load timeout after %v: %w", startupTimeout, err)
		}
		return fmt.Errorf("failed to load model %s: %w", pc.modelPath, err)
	}

	var resp pickleCheck
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("failed to parse model check: %w, stdout: %s", err, line)
	}
	if !resp.OK {
		return fmt.Errorf("failed to load model %s: %s", pc.modelPath, resp.Error)
	}
	if resp.Features != nil && *resp.Features != FeatureCount {
		return fmt.Errorf("%w: model %s expects %d features, want %d",
			ErrFeatureArity, pc.modelPath, *resp.Features, FeatureCount)
	}

	log.Info().
		Str("model_path", pc.modelPath).
		Str("model_type", resp.ModelType).
		Str("python_path", pc.pythonPath).
		Int("pid", pc.cmd.Process.Pid).
		Msg("pickled model loaded successfully")
	return nil
}

// exchange sends one request and waits for its reply. Replies to earlier
// requests that timed out are skipped by id.
func (pc *PickleClassifier) exchange(ctx context.Context, features []float64) (pickleResponse, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	select {
	case <-pc.exited:
		return pickleResponse{}, pc.exitError()
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	pc.nextID++
	id := pc.nextID
	req, err := json.Marshal(pickleRequest{ID: id, Features: features})
	if err != nil {
		return pickleResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := pc.stdin.Write(append(req, '\n')); err != nil {
		return pickleResponse{}, fmt.Errorf("inference worker unavailable: %w", err)
	}

	for {
		line, err := pc.receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return pickleResponse{}, fmt.Errorf("inference timeout after %v: %w", pc.timeout, context.DeadlineExceeded)
			}
			return pickleResponse{}, err
		}

		var resp pickleResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return pickleResponse{}, fmt.Errorf("failed to parse response: %w, stdout: %s", err, line)
		}
		if resp.ID != id {
			log.Debug().Uint64("id", resp.ID).Uint64("want", id).Msg("discarding late inference reply")
			continue
		}
		return resp, nil
	}
}

func (pc *PickleClassifier) receive(ctx context.Context) ([]byte, error) {
	select {
	case line := <-pc.replies:
		return line, nil
	case <-pc.exited:
		return nil, pc.exitError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (pc *PickleClassifier) exitError() error {
	stderr := pc.stderr.String()
	if strings.Contains(stderr, "ModuleNotFoundError") {
		return fmt.Errorf("model dependency missing: %v, stderr: %s", pc.waitErr, stderr)
	}
	if strings.Contains(stderr, "Permission denied") {
		return fmt.Errorf("permission denied accessing model files: %v", pc.waitErr)
	}
	return fmt.Errorf("inference worker exited: %v, stderr: %s", pc.waitErr, stderr)
}

// syncBuffer collects worker stderr, keeping the first maxStderrSize bytes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := maxStderrSize - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *syncBuffer) String() string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func findPython() (string, error) {
	var candidates []string

	// Prefer an activated virtual environment
	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates = append(candidates,
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		)
	}

	// Then a project venv next to the working directory
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates,
			filepath.Join(wd, "venv", "bin", "python3"),
			filepath.Join(wd, ".venv", "bin", "python3"),
		)
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil && isPython3(c) {
			log.Info().Str("python_path", c).Msg("Using virtual environment Python")
			return c, nil
		}
	}

	for _, name := range []string{"python3", "python"} {
		path, err := exec.LookPath(name)
		if err == nil && isPython3(path) {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("no suitable Python 3 executable found; set PYTHON_PATH")
}

func isPython3(path string) bool {
	cmd := exec.Command(path, "-c", "import sys; exit(0 if sys.version_info[0] == 3 else 1)")
	return cmd.Run() == nil
}

const inferenceScript = `#!/usr/bin/env python3
"""Pickled classifier inference worker for trader-insights.

Unpickles the model once, reports the check result as the first line, then
answers one JSON request per stdin line until stdin closes.
"""
import json
import pickle
import sys


def reply(obj):
    sys.stdout.write(json.dumps(obj) + "\n")
    sys.stdout.flush()


def load(model_path):
    try:
        with open(model_path, "rb") as f:
            model = pickle.load(f)
    except Exception as e:
        reply({"ok": False, "error": "cannot unpickle model: %s" % e})
        return None

    missing = [a for a in ("predict", "predict_proba") if not hasattr(model, a)]
    if missing:
        reply({"ok": False, "error": "model lacks " + ", ".join(missing)})
        return None

    n = getattr(model, "n_features_in_", None)
    reply({
        "ok": True,
        "model_type": type(model).__name__,
        "n_features": int(n) if n is not None else None,
    })
    return model


def serve(model):
    while True:
        line = sys.stdin.readline()
        if not line:
            return
        line = line.strip()
        if not line:
            continue

        try:
            request = json.loads(line)
        except Exception as e:
            reply({"error": "bad request: %s" % e})
            continue

        rid = request.get("id")
        try:
            features = [request["features"]]
            prediction = int(model.predict(features)[0])
            probabilities = [float(p) for p in model.predict_proba(features)[0]]
        except Exception as e:
            reply({"id": rid, "error": str(e)})
            continue

        reply({"id": rid, "prediction": prediction, "probabilities": probabilities})


def main():
    if len(sys.argv) != 2:
        reply({"ok": False, "error": "usage: pickle_inference.py <model_path>"})
        return 1

    model = load(sys.argv[1])
    if model is None:
        return 1
    serve(model)
    return 0


if __name__ == "__main__":
    sys.exit(main())
`
