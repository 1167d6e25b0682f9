// Package server exposes the document editor over HTTP: uploads,
// rendered previews, annotation batches, version rollback and
// downloads.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/pagemark/pagemark/apply"
	"github.com/pagemark/pagemark/render"
)

type Server struct {
	svc       *apply.Service
	raster    render.Rasterizer
	maxUpload int64
	log       *slog.Logger

	// Writes to one document are serialized; concurrent batches would
	// both read the same base revision and one would silently win.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(svc *apply.Service, raster render.Rasterizer, maxUploadBytes int64, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if raster == nil {
		raster = render.Placeholder{}
	}
	return &Server{
		svc:       svc,
		raster:    raster,
		maxUpload: maxUploadBytes,
		log:       log,
		locks:     map[string]*sync.Mutex{},
	}
}

func (s *Server) docLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/upload", s.handleUpload).Methods("POST")
	r.HandleFunc("/thumbs/{doc}", s.handleThumbs).Methods("GET")
	r.Handle("/thumb/{doc}/{page:[0-9]+}", noStore(http.HandlerFunc(s.handleThumb))).Methods("GET")
	r.Handle("/page/{doc}/{page:[0-9]+}", noStore(http.HandlerFunc(s.handlePage))).Methods("GET")
	r.HandleFunc("/annotate/{doc}", s.handleAnnotate).Methods("POST")
	r.HandleFunc("/revert/{doc}", s.handleRevert).Methods("POST")
	r.HandleFunc("/download/{doc}", s.handleDownload).Methods("GET")

	return withLogging(s.log, r)
}
