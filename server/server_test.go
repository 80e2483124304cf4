//go:build !windows

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/cyclopcam/yolotrain/pkg/dbh"
	"github.com/cyclopcam/yolotrain/pkg/shell"
	"github.com/cyclopcam/yolotrain/pkg/storage"
	"github.com/cyclopcam/yolotrain/server/config"
	"github.com/cyclopcam/yolotrain/server/rundb"
	"github.com/cyclopcam/yolotrain/server/train"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	dir       string
	sourceDir string
	server    *Server
	http      *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "conda", "envs", "train", "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "python"), []byte("#!/bin/sh\necho \"args: $*\"\necho 'epoch 1'\n"), 0755))
	entry := filepath.Join(dir, "start.py")
	require.NoError(t, os.WriteFile(entry, []byte("# training script\n"), 0644))

	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	for i := 0; i < 5; i++ {
		stem := fmt.Sprintf("img%v", i)
		require.NoError(t, os.WriteFile(filepath.Join(src, stem+".png"), []byte("png "+stem), 0644))
		doc := `{"imageWidth": 100, "imageHeight": 100, "shapes": [{"label": "dog", "points": [[10, 10], [30, 50]], "shape_type": "rectangle"}]}`
		require.NoError(t, os.WriteFile(filepath.Join(src, stem+".json"), []byte(doc), 0644))
	}
	classes := filepath.Join(dir, "classes.txt")
	require.NoError(t, os.WriteFile(classes, []byte("cat\ndog\n"), 0644))

	cfg := config.Default()
	cfg.Sandbox.Mode = config.SandboxNative
	cfg.Sandbox.EnvBaseDir = filepath.Join(dir, "conda")
	cfg.EntryPoint = entry
	cfg.Dataset.ClassesFile = classes
	cfg.Dataset.Ratios = dataset.Ratios{Train: 4, Val: 1, Test: 0}
	cfg.DB = dbh.MakeSqliteConfig(filepath.Join(dir, "runs.sqlite"))
	cfg.Storage.Filesystem = &storage.ConfigFS{Root: filepath.Join(dir, "blobs")}

	s, err := NewServer(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.httpRouter)
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown()
	})
	return &testServer{
		dir:       dir,
		sourceDir: src,
		server:    s,
		http:      ts,
	}
}

func (ts *testServer) post(t *testing.T, path string, body any, expectCode int, response any) {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.http.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	require.Equal(t, expectCode, resp.StatusCode, "%v: %v", path, string(respBody))
	if response != nil {
		require.NoError(t, json.Unmarshal(respBody, response))
	}
}

func (ts *testServer) get(t *testing.T, path string, response any) {
	resp, err := http.Get(ts.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode, path)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(response))
}

func (ts *testServer) waitIdle(t *testing.T) train.RunStatus {
	status := train.RunStatus{}
	require.Eventually(t, func() bool {
		ts.get(t, "/api/train/status", &status)
		return status.State != shell.StateRunning
	}, 20*time.Second, 20*time.Millisecond)
	return status
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.http.URL + "/api/ping")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}

func TestBuildAndTrain(t *testing.T) {
	ts := newTestServer(t)
	out := filepath.Join(ts.dir, "ds")

	res := dataset.BuildResult{}
	ts.post(t, "/api/dataset/build", map[string]any{"sourceDir": ts.sourceDir, "outputDir": out}, 200, &res)
	require.Equal(t, out, res.Root)
	require.Equal(t, []int{4, 1, 0}, []int{res.Train, res.Val, res.Test})
	label, err := os.ReadFile(filepath.Join(out, "labels", "train", "img0.txt"))
	if os.IsNotExist(err) {
		label, err = os.ReadFile(filepath.Join(out, "labels", "val", "img0.txt"))
	}
	require.NoError(t, err)
	require.Equal(t, "1 0.200000 0.300000 0.200000 0.400000\n", string(label))

	started := struct {
		RunID string `json:"runID"`
	}{}
	ts.post(t, "/api/train/start", train.TrainRequest{DatasetRoot: out}, 200, &started)
	require.NotEmpty(t, started.RunID)

	// The log stream starts with the backlog, so it doesn't matter if the run has already finished
	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/train/logs"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c.Close()
	lines := []string{}
	c.SetReadDeadline(time.Now().Add(20 * time.Second))
	for {
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)
		lines = append(lines, string(msg))
		if strings.HasPrefix(string(msg), "training finished:") {
			break
		}
	}
	require.Equal(t, []string{
		"args: " + filepath.Join(ts.dir, "start.py") + " --dataset " + out,
		"epoch 1",
		"training finished: completed (exit code 0)",
	}, lines)

	status := ts.waitIdle(t)
	require.Equal(t, started.RunID, status.RunID)
	require.Equal(t, shell.StateCompleted, status.State)

	runs := []rundb.Run{}
	ts.get(t, "/api/train/runs?limit=5", &runs)
	require.Len(t, runs, 1)
	require.Equal(t, "completed", runs[0].State)

	stopped := true
	ts.post(t, "/api/train/stop", nil, 200, &stopped)
	require.False(t, stopped)

	published := map[string]string{}
	ts.post(t, "/api/dataset/publish", map[string]string{"root": out}, 200, &published)
	require.Equal(t, "", published["url"])
	require.FileExists(t, filepath.Join(ts.dir, "blobs", "datasets", "ds.zip"))

	resp, err := http.Get(ts.http.URL + "/api/dataset/download?root=" + out)
	require.NoError(t, err)
	zipped, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	require.True(t, bytes.HasPrefix(zipped, []byte("PK")))
}

func TestOneClick(t *testing.T) {
	ts := newTestServer(t)
	started := struct {
		RunID string               `json:"runID"`
		Build *dataset.BuildResult `json:"build"`
	}{}
	ts.post(t, "/api/train/oneclick", map[string]any{"sourceDir": ts.sourceDir}, 200, &started)
	require.NotEmpty(t, started.RunID)
	require.True(t, started.Build.Temporary)
	require.Equal(t, shell.StateCompleted, ts.waitIdle(t).State)
	require.Eventually(t, func() bool {
		_, err := os.Stat(started.Build.Root)
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.post(t, "/api/dataset/build", map[string]any{}, 400, nil)
	ts.post(t, "/api/dataset/build", map[string]any{"sourceDir": filepath.Join(ts.dir, "nope")}, 400, nil)
	ts.post(t, "/api/dataset/build", map[string]any{"sourceDir": ts.sourceDir, "ratios": []int{0, 0, 0}}, 400, nil)
	ts.post(t, "/api/dataset/build", map[string]any{"sourceDir": ts.sourceDir, "onCollision": "merge"}, 400, nil)
	// Not a dataset
	ts.post(t, "/api/train/start", train.TrainRequest{DatasetRoot: ts.sourceDir}, 400, nil)
	ts.post(t, "/api/train/start", train.TrainRequest{}, 400, nil)

	resp, err := http.Get(ts.http.URL + "/api/dataset/download?root=" + ts.sourceDir)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 400, resp.StatusCode)
}

func TestCheckTrainError(t *testing.T) {
	code := func(err error) (c int) {
		defer func() {
			if rec := recover(); rec != nil {
				c = 500
				if he, ok := rec.(www.HTTPError); ok {
					c = he.Code
				}
			}
		}()
		checkTrainError(err)
		return 200
	}
	require.Equal(t, 200, code(nil))
	require.Equal(t, 409, code(train.ErrBusy))
	require.Equal(t, 400, code(fmt.Errorf("%w: nope", dataset.ErrFormat)))
	require.Equal(t, 501, code(storage.ErrNotConfigured))
	require.Equal(t, 500, code(io.ErrUnexpectedEOF))
}
