// Package server is the tinkerblog development server: it renders pages per
// request, serves assets and static files, evaluates live code edits and
// pushes hot reload notifications.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog"
	"github.com/livetemplate/tinkerblog/internal/assets"
	"github.com/livetemplate/tinkerblog/internal/code"
	"github.com/livetemplate/tinkerblog/internal/config"
	"github.com/livetemplate/tinkerblog/internal/highlight"
	"github.com/livetemplate/tinkerblog/internal/sandbox"
	"github.com/livetemplate/tinkerblog/internal/site"
)

// Server is the tinkerblog development server.
type Server struct {
	rootDir string
	config  *config.Config
	logger  *zap.Logger

	site     *site.Manager
	pages    *site.Pages
	renderer *code.Renderer
	sessions *SessionStore
	live     *LiveHandler
	reload   *ReloadHub
	watcher  *Watcher

	closers []func()
}

// New creates a server for the site in rootDir. Call Discover before serving.
func New(rootDir string, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	h, err := highlight.New(cfg.Highlight.Theme)
	if err != nil {
		return nil, err
	}

	sandboxes, closeSandboxes := sandbox.NewFromConfig(cfg.Sandbox, logger)
	sessions := NewSessionStore(cfg.Sandbox.GetSessionTTL(), cfg.Sandbox.GetMaxSessions(), logger)
	renderer := code.NewRenderer(h, sandboxes, sessions, logger)

	manager := site.New(rootDir, cfg, logger)
	widget, stopBio := site.NewBioWidget(cfg, manager.StaticDir(), logger)
	pages := site.NewPages(cfg, manager, tinkerblog.NewMarkdown(renderer), widget, site.PageOptions{
		Live:      true,
		HotReload: cfg.Features.HotReload,
	}, logger)

	return &Server{
		rootDir:  rootDir,
		config:   cfg,
		logger:   logger,
		site:     manager,
		pages:    pages,
		renderer: renderer,
		sessions: sessions,
		live:     NewLiveHandler(sessions, renderer, cfg.Sandbox.GetMaxCodeSize(), logger),
		reload:   NewReloadHub(logger),
		closers:  []func(){closeSandboxes, stopBio},
	}, nil
}

// Discover scans the content directory for posts.
func (s *Server) Discover() error {
	return s.site.Discover()
}

// Site returns the post manager.
func (s *Server) Site() *site.Manager {
	return s.site
}

// Sessions returns the live session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// Handler builds the router. Background work started for it (session
// expiry, rate limiter cleanup) stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	go s.sessions.Run(ctx)

	limit, _ := RateLimitMiddleware(ctx, s.config.Server.RateLimit.GetRPS(), s.config.Server.RateLimit.GetBurst(), 0, s.logger)
	liveSocket := NewLiveSocket(s.live, s.config.Server.RateLimit.GetRPS(), s.config.Server.RateLimit.GetBurst())

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(AccessLogMiddleware(s.logger))
	router.Use(middleware.Recoverer)
	router.Use(SecurityHeadersMiddleware())

	routes := func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)
		r.Get("/assets/*", s.handleAsset)
		r.Get("/static/*", s.handleStatic)

		r.Route("/live", func(r chi.Router) {
			r.With(limit).Post("/{session}/eval", s.live.HandleEval)
			r.Handle("/ws", liveSocket)
		})
		r.Handle("/reload/ws", s.reload)

		r.Group(func(r chi.Router) {
			r.Use(CompressionMiddleware)
			r.Get("/", s.handleIndex)
			r.Get("/{slug}", s.handleSlugRedirect)
			r.Get("/{slug}/", s.handlePost)
			r.NotFound(s.handleNotFound)
		})
	}

	prefix := strings.TrimRight(s.config.PathPrefix, "/")
	if prefix == "" {
		routes(router)
	} else {
		router.Route(prefix, routes)
		router.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, prefix+"/", http.StatusFound)
		})
	}

	return router
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.pages.RenderIndex(r.Context(), &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.site.Post(chi.URLParam(r, "slug"))
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	var buf bytes.Buffer
	if err := s.pages.RenderPost(r.Context(), &buf, post); err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

func (s *Server) handleSlugRedirect(w http.ResponseWriter, r *http.Request) {
	post, ok := s.site.Post(chi.URLParam(r, "slug"))
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	http.Redirect(w, r, post.URLPath(s.config.PathPrefix), http.StatusMovedPermanently)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.pages.RenderNotFound(r.Context(), &buf, r.URL.Path); err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusNotFound, buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"posts":    len(s.site.Posts()),
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if r.URL.Query().Get("v") == assets.Version() {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	serveFile(w, r, assets.ClientFS(), name)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	dir := s.site.StaticDir()
	if dir == "" {
		http.NotFound(w, r)
		return
	}
	serveFile(w, r, os.DirFS(dir), chi.URLParam(r, "*"))
}

// serveFile serves a regular file of fsys; directories and invalid names
// are not found.
func serveFile(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	if !fs.ValidPath(name) || name == "." {
		http.NotFound(w, r)
		return
	}
	info, err := fs.Stat(fsys, name)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, fsys, name)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("failed to render page",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))

	msg := "Internal Server Error"
	var perr *tinkerblog.ParseError
	if s.config.Server.Debug && errors.As(err, &perr) {
		msg = perr.Format()
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// EnableWatch watches the content and static directories: post changes
// re-discover posts, static changes drop the cached bio, and both notify
// connected browsers.
func (s *Server) EnableWatch() error {
	watcher, err := NewWatcher(s.site.ContentDir(), s.site.StaticDir(), s.onChange, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()

	s.logger.Info("file watcher started", zap.String("dir", s.site.ContentDir()))
	return nil
}

func (s *Server) onChange(kind ChangeKind, filePath string) error {
	switch kind {
	case ChangePost:
		if err := s.site.Reload(filePath); err != nil {
			return fmt.Errorf("failed to re-discover posts: %w", err)
		}
	case ChangeStatic:
		s.pages.InvalidateBio()
	}
	s.reload.Broadcast(filePath)
	return nil
}

// Close stops the watcher and releases sandbox and cache resources.
func (s *Server) Close() error {
	var err error
	if s.watcher != nil {
		err = s.watcher.Stop()
		s.watcher = nil
	}
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
	return err
}
