package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/cyclopcam/yolotrain/pkg/storage"
	"github.com/cyclopcam/yolotrain/server/train"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Builds and runs are expensive, so we keep a lid on how often they can be requested.
	// There is a unique rate limiter for each endpoint.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	ratelimited("POST", "/api/dataset/build", s.httpDatasetBuild, 30, time.Minute)
	handle("POST", "/api/dataset/publish", s.httpDatasetPublish)
	handle("GET", "/api/dataset/download", s.httpDatasetDownload)
	ratelimited("POST", "/api/train/start", s.httpTrainStart, 30, time.Minute)
	ratelimited("POST", "/api/train/oneclick", s.httpTrainOneClick, 30, time.Minute)
	handle("POST", "/api/train/stop", s.httpTrainStop)
	handle("GET", "/api/train/status", s.httpTrainStatus)
	handle("GET", "/api/train/runs", s.httpTrainRuns)
	handle("GET", "/api/train/logs", s.httpTrainLogs)

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendOK(w)
}

// checkTrainError turns the errors of a build or run request into an HTTP response code
func checkTrainError(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, train.ErrBusy):
		www.Panic(http.StatusConflict, err.Error())
	case errors.Is(err, dataset.ErrConfiguration),
		errors.Is(err, dataset.ErrFormat),
		errors.Is(err, dataset.ErrConsistency),
		errors.Is(err, dataset.ErrCollision):
		www.PanicBadRequestf("%v", err)
	case errors.Is(err, storage.ErrNotConfigured):
		www.Panic(http.StatusNotImplemented, err.Error())
	}
	www.Check(err)
}
