package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/app"
	"github.com/dharsanguruparan/FolderDrop/internal/archive"
	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/config"
	"github.com/dharsanguruparan/FolderDrop/internal/folders"
	"github.com/dharsanguruparan/FolderDrop/internal/objectstore"
)

// WarmQueue schedules archive prebuilds in the background.
type WarmQueue interface {
	EnqueueWarm(ctx context.Context, folderID string) error
}

// Server exposes the FolderDrop HTTP API.
type Server struct {
	cfg      *config.Config
	access   *access.Service
	folders  *folders.Service
	archives *archive.Service
	local    *archive.LocalStore
	objects  http.Handler
	warm     WarmQueue
	logger   *slog.Logger

	once    sync.Once
	handler http.Handler
}

// New constructs a Server over the wired services.
func New(a *app.App) *Server {
	s := &Server{
		cfg:      a.Config,
		access:   a.Access,
		folders:  a.Folders,
		archives: a.Archives,
		local:    a.Local,
		logger:   a.Logger.With(slog.String("component", "api")),
	}
	if a.Objects != nil {
		s.objects = a.Objects
	}
	if a.Queue != nil {
		s.warm = a.Queue
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(s.logger))
	router.Use(metrics)
	router.Use(cors)

	router.Get("/healthz", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())
	router.Get(archive.LocalPath+"{id}", s.handleLocalArchive)
	if s.objects != nil {
		router.Handle(objectstore.ObjectsPath+"*", s.objects)
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/tokens", s.handleIssueToken)
		r.Post("/files", s.handleUpload)
		r.Get("/files/{fileID}", s.handleDownload)
		r.Route("/folders/{folderID}", func(r chi.Router) {
			r.Post("/archive", s.handleArchive)
			r.Post("/files", s.handleUpload)
			r.Post("/uploads", s.handleRequestUpload)
			r.Post("/uploads/complete", s.handleCompleteUpload)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireMaster)
			r.Get("/folders", s.handleListFolders)
			r.Post("/folders", s.handleCreateFolder)
			r.Get("/folders/{folderID}/files", s.handleFolderFiles)
			r.Patch("/folders/{folderID}/pause", s.handlePause)
			r.Delete("/folders/{folderID}", s.handleDeleteFolder)
			r.Post("/folders/{folderID}/warm", s.handleWarm)
			r.Delete("/files/{fileID}", s.handleDeleteFile)
			r.Route("/tokens", func(r chi.Router) {
				r.Get("/", s.handleListTokens)
				r.Post("/", s.handleCreateToken)
				r.Post("/purge-expired", s.handlePurgeTokens)
				r.Patch("/{tokenID}", s.handleUpdateToken)
				r.Delete("/{tokenID}", s.handleDeleteToken)
				r.Put("/{tokenID}/folders/{folderID}", s.handleAssignFolder)
				r.Delete("/{tokenID}/folders/{folderID}", s.handleRemoveFolder)
			})
		})
	})
	return router
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", slog.String("address", s.cfg.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireMaster(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.access.RequireMaster(r.Context(), requestToken(r)); err != nil {
			s.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestToken reads the caller's token from a bearer Authorization header or
// from X-Access-Token.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-Access-Token"))
}

// clientIP strips the port from RemoteAddr; middleware.RealIP has already
// applied any forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, common.ErrInvalidArgument)
	}
	return nil
}
