package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/cyclopcam/yolotrain/server/train"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type runStartedJSON struct {
	RunID string                `json:"runID"`
	Build *dataset.BuildResult `json:"build,omitempty"`
}

func (s *Server) httpTrainStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := train.TrainRequest{}
	www.ReadJSON(w, r, &req, 1024*1024)
	if req.DatasetRoot == "" {
		www.PanicBadRequestf("datasetRoot is required")
	}
	runID, err := s.Trainer.StartTraining(req)
	checkTrainError(err)
	www.SendJSON(w, &runStartedJSON{RunID: runID})
}

func (s *Server) httpTrainOneClick(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := struct {
		SourceDir  string `json:"sourceDir"`
		ExportPath string `json:"exportPath"`
		Persist    bool   `json:"persist"`
	}{}
	www.ReadJSON(w, r, &req, 1024*1024)
	if req.SourceDir == "" {
		www.PanicBadRequestf("sourceDir is required")
	}
	runID, res, err := s.Trainer.RunOneClick(req.SourceDir, req.ExportPath, req.Persist)
	checkTrainError(err)
	www.SendJSON(w, &runStartedJSON{RunID: runID, Build: res})
}

func (s *Server) httpTrainStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSONBool(w, s.Trainer.Stop())
}

func (s *Server) httpTrainStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Trainer.Status())
}

func (s *Server) httpTrainRuns(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	runs, err := s.Trainer.RecentRuns(www.QueryInt(r, "limit"))
	www.Check(err)
	www.SendJSON(w, runs)
}

// httpTrainLogs sends the output of the current run over a websocket.
// Lines that were emitted before the client connected are sent first.
func (s *Server) httpTrainLogs(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpTrainLogs websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	backlog, lines := s.Trainer.AddWatcher()
	defer s.Trainer.RemoveWatcher(lines)

	// We don't expect any messages from the client, but we need to read in order to notice when it goes away
	clientGone := make(chan struct{})
	go func() {
		for {
			if _, _, err := c.NextReader(); err != nil {
				close(clientGone)
				return
			}
		}
	}()

	for _, line := range backlog {
		if err := c.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
	for {
		select {
		case line := <-lines:
			if err := c.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				s.Log.Infof("httpTrainLogs write failed: %v", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
