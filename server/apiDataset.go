package server

import (
	"net/http"
	"path/filepath"

	"github.com/cyclopcam/www"
	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/julienschmidt/httprouter"
)

type buildJSON struct {
	SourceDir   string                   `json:"sourceDir"`
	ClassesFile string                   `json:"classesFile"` // Defaults to the configured class list
	Ratios      *dataset.Ratios          `json:"ratios"`
	Seed        *uint64                  `json:"seed"`
	OutputDir   *string                  `json:"outputDir"` // Empty string for a temporary directory
	OnCollision *dataset.CollisionPolicy `json:"onCollision"`
}

func (s *Server) httpDatasetBuild(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := buildJSON{}
	www.ReadJSON(w, r, &req, 1024*1024)
	if req.SourceDir == "" {
		www.PanicBadRequestf("sourceDir is required")
	}
	opts := s.cfg.BuildOptions(req.SourceDir)
	if req.ClassesFile != "" {
		opts.ClassesFile = req.ClassesFile
	}
	if req.Ratios != nil {
		opts.Ratios = *req.Ratios
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.OutputDir != nil {
		opts.OutputDir = *req.OutputDir
	}
	if req.OnCollision != nil {
		opts.Collision = *req.OnCollision
	}
	res, err := s.Trainer.BuildDataset(opts)
	checkTrainError(err)
	www.SendJSON(w, res)
}

func (s *Server) httpDatasetPublish(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := struct {
		Root string `json:"root"`
		Name string `json:"name"`
	}{}
	www.ReadJSON(w, r, &req, 1024*1024)
	if req.Root == "" {
		www.PanicBadRequestf("root is required")
	}
	url, err := s.Trainer.Publish(r.Context(), req.Root, req.Name)
	checkTrainError(err)
	www.SendJSON(w, map[string]string{"url": url})
}

// example: curl -o ds.zip "http://localhost:8090/api/dataset/download?root=/tmp/yolo_ds_123"
func (s *Server) httpDatasetDownload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	root := www.RequiredQueryValue(r, "root")
	_, err := dataset.LoadManifest(root)
	checkTrainError(err)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(root)+".zip")
	if err := dataset.Archive(root, w); err != nil {
		// Too late for an error code
		s.Log.Errorf("Dataset download of %v failed: %v", root, err)
	}
}
