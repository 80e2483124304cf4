// Package server exposes dataset builds and training runs over HTTP.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/yolotrain/pkg/storage"
	"github.com/cyclopcam/yolotrain/server/config"
	"github.com/cyclopcam/yolotrain/server/rundb"
	"github.com/cyclopcam/yolotrain/server/train"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log              logs.Log
	Trainer          *train.Trainer
	ShutdownComplete chan struct{} // Closed when Shutdown() is finished

	cfg        *config.Config
	runDB      *rundb.RunDB
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader
	shutdown   sync.Once
}

// NewServer opens the run history DB and the (optional) blob store, and sets up the HTTP routes.
// The server takes ownership of logger, and closes it during Shutdown.
func NewServer(logger logs.Log, cfg *config.Config) (*Server, error) {
	runDB, err := rundb.Open(logger, cfg.DB, 0)
	if err != nil {
		return nil, err
	}
	var store storage.Storage
	if cfg.Storage.IsConfigured() {
		if store, err = storage.Open(logger, cfg.Storage); err != nil {
			runDB.Close()
			return nil, err
		}
	} else {
		logger.Infof("No blob storage configured. Datasets can't be published.")
	}
	s := &Server{
		Log:              logger,
		Trainer:          train.NewTrainer(logger, cfg, runDB, store),
		ShutdownComplete: make(chan struct{}),
		cfg:              cfg,
		runDB:            runDB,
	}
	s.setupHttpRoutes()
	return s, nil
}

// port example: ":8090"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops any active training run, and closes the HTTP server and the run DB.
// It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdown.Do(s.shutdownOnce)
}

func (s *Server) shutdownOnce() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	if s.Trainer.Stop() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := s.Trainer.WaitRun(ctx, s.Trainer.Status().RunID); err != nil {
			s.Log.Warnf("Training run did not finish: %v", err)
		}
		cancel()
	}
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.httpServer.Shutdown(ctx)
		cancel()
		if err != nil {
			s.Log.Warnf("HTTP shutdown error: %v", err)
		}
	}
	s.runDB.Close()
	s.Log.Infof("Shutdown complete")
	s.Log.Close()
	close(s.ShutdownComplete)
}
