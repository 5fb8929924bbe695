package server

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plotup/plotup/internal/metrics"
)

// Router serves plot images over HTTP for agent-chat-ui.
// Every response carries permissive CORS headers so the browser-based UI
// can fetch images from a different origin; OPTIONS preflights are
// answered with 200.
//
// Endpoints:
//
//	GET  {basePath}/healthz      liveness probe
//	GET  {basePath}/<file>       stream a file from the plots directory
//	OPTIONS {basePath}/<any>     CORS preflight
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	dir      string
	basePath string
}

// NewRouter constructs a Router serving files from dir under basePath.
func NewRouter(dir, basePath string) *Router {
	return &Router{dir: dir, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), corsHeaders())
	g.GET(r.basePath+"/healthz", handleHealth)
	// File serving is the catch-all so healthz keeps a fixed route.
	g.NoRoute(r.handleFile)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The listener is bound synchronously so an occupied port surfaces as an
// error instead of a server that silently serves nothing. Shutdown is done
// by closing or shutting down the returned http.Server.
func NewServer(addr, basePath, dir string) (*http.Server, error) {
	r := NewRouter(dir, basePath)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// corsHeaders mirrors the headers agent-chat-ui expects on plot responses.
func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleFile(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		writeJSON(c, http.StatusMethodNotAllowed, errorResp{Error: "method not allowed"})
		return
	}
	rel := strings.TrimPrefix(c.Request.URL.Path, r.basePath)
	rel = strings.TrimPrefix(rel, "/")
	if !isSafeRelPath(rel) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid path"})
		return
	}
	full := filepath.Join(r.dir, filepath.FromSlash(rel))
	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "not found"})
		return
	}
	metrics.IncServed()
	c.File(full)
}
