// Package webui provides the HTTP API and WebSocket transport for the
// ghostwriter service: profile and book management, the per-book viewer
// channel, and the diagnostic endpoints.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/logx"
	"ghostwriter/pkg/metrics"
	"ghostwriter/pkg/persistence"
	"ghostwriter/pkg/session"
)

// Server is the web-facing HTTP server.
type Server struct {
	cfg     *config.Config
	store   *persistence.Store
	manager *session.Manager
	client  llm.Client
	query   *metrics.QueryService
	logger  *logx.Logger
	http    *http.Server
}

// NewServer creates the web server. The metrics query service is optional and
// only wired when a Prometheus URL is configured.
func NewServer(cfg *config.Config, store *persistence.Store, manager *session.Manager, client llm.Client) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		manager: manager,
		client:  client,
		logger:  logx.NewLogger("webui"),
	}

	if cfg.PrometheusURL != "" {
		query, err := metrics.NewQueryService(cfg.PrometheusURL)
		if err != nil {
			s.logger.Warn("metrics query service unavailable: %v", err)
		} else {
			s.query = query
		}
	}

	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.GET("/logs", s.handleLogs)

		api.POST("/users", s.handleCreateUser)
		api.GET("/users/:id", s.handleGetUser)
		api.POST("/users/:id/timeline", s.handleAddTimelineEntry)
		api.POST("/users/:id/documents", s.handleAddDocument)
		api.GET("/users/:id/documents", s.handleListDocuments)
		api.GET("/users/:id/books", s.handleListBooks)

		api.POST("/books", s.handleCreateBook)
		api.GET("/books/:id", s.handleGetBook)
		api.GET("/books/:id/costs", s.handleBookCosts)
	}

	r.GET("/ws/books/:id", s.handleBookSocket)

	return r
}

// Start runs the HTTP server and shuts it down when the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting web server on %s", addr)

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is cancelled; shutdown needs a fresh one
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleLogs implements GET /api/logs with optional component and since
// filters over the in-memory log buffer.
func (s *Server) handleLogs(c *gin.Context) {
	component := c.Query("component")

	var since time.Time
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since parameter (use RFC3339)"})
			return
		}
		since = parsed
	}

	c.JSON(http.StatusOK, logx.GetRecentLogEntries(component, since))
}

type createUserRequest struct {
	Name     string                 `json:"name" binding:"required"`
	Bio      string                 `json:"bio"`
	Timeline []timelineEntryRequest `json:"timeline"`
}

type timelineEntryRequest struct {
	Location    string `json:"location" binding:"required"`
	Description string `json:"description"`
	DateStart   string `json:"date_start" binding:"required"`
	DateEnd     string `json:"date_end"`
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &persistence.User{
		ID:   persistence.GenerateID(),
		Name: req.Name,
		Bio:  req.Bio,
	}
	if err := s.store.UpsertUser(user); err != nil {
		s.logger.Error("failed to create user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	for i := range req.Timeline {
		entry, err := req.Timeline[i].toModel(user.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.store.UpsertTimelineEntry(entry); err != nil {
			s.logger.Error("failed to store timeline entry: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store timeline"})
			return
		}
	}

	s.logger.Info("created user %s (%s)", user.Name, user.ID)
	c.JSON(http.StatusCreated, user)
}

func (r *timelineEntryRequest) toModel(userID string) (*persistence.TimelineEntry, error) {
	start, err := time.Parse("2006-01-02", r.DateStart)
	if err != nil {
		return nil, fmt.Errorf("invalid date_start %q (use YYYY-MM-DD)", r.DateStart)
	}

	entry := &persistence.TimelineEntry{
		ID:          persistence.GenerateID(),
		UserID:      userID,
		Location:    r.Location,
		Description: r.Description,
		DateStart:   start,
	}
	if r.DateEnd != "" {
		end, err := time.Parse("2006-01-02", r.DateEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid date_end %q (use YYYY-MM-DD)", r.DateEnd)
		}
		entry.DateEnd = &end
	}
	return entry, nil
}

func (s *Server) handleGetUser(c *gin.Context) {
	user, err := s.store.GetUserByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		s.logger.Error("failed to load user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	timeline, err := s.store.GetTimelineByUser(user.ID)
	if err != nil {
		s.logger.Error("failed to load timeline: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load timeline"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "timeline": timeline})
}

func (s *Server) handleAddTimelineEntry(c *gin.Context) {
	userID := c.Param("id")
	if _, err := s.store.GetUserByID(userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	var req timelineEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := req.toModel(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.UpsertTimelineEntry(entry); err != nil {
		s.logger.Error("failed to store timeline entry: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store timeline entry"})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

type addDocumentRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// handleAddDocument stores background material as extracted text. Extraction
// happens upstream; the API only accepts plain text.
func (s *Server) handleAddDocument(c *gin.Context) {
	userID := c.Param("id")
	if _, err := s.store.GetUserByID(userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	var req addDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc := &persistence.Document{
		ID:      persistence.GenerateID(),
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
	}
	if err := s.store.UpsertDocument(doc); err != nil {
		s.logger.Error("failed to store document: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store document"})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	docs, err := s.store.GetDocumentsByUser(c.Param("id"))
	if err != nil {
		s.logger.Error("failed to list documents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) handleListBooks(c *gin.Context) {
	books, err := s.store.ListBooksByUser(c.Param("id"))
	if err != nil {
		s.logger.Error("failed to list books: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list books"})
		return
	}
	c.JSON(http.StatusOK, books)
}

type createBookRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Title   string `json:"title" binding:"required"`
	Premise string `json:"premise"`
}

// handleCreateBook creates a book and bootstraps its outline with one forced
// add_chapters completion. The book is created even when outline planning
// fails; the outline can be expanded later from inside the session.
func (s *Server) handleCreateBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.GetUserByID(req.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	book := &persistence.Book{
		ID:     persistence.GenerateID(),
		UserID: user.ID,
		Title:  req.Title,
	}
	if err := s.store.UpsertBook(book); err != nil {
		s.logger.Error("failed to create book: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create book"})
		return
	}

	outline, err := s.bootstrapOutline(c.Request.Context(), user, book, req.Premise)
	if err != nil {
		s.logger.Warn("outline bootstrap for book %s failed: %v", book.ID, err)
	}

	s.logger.Info("created book %q (%s) with %d planned chapters", book.Title, book.ID, len(outline))
	c.JSON(http.StatusCreated, gin.H{"book": book, "outline": outline})
}

func (s *Server) handleGetBook(c *gin.Context) {
	book, err := s.store.GetBookByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
			return
		}
		s.logger.Error("failed to load book: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load book"})
		return
	}

	outline, err := s.store.GetOutline(book.ID)
	if err != nil {
		s.logger.Error("failed to load outline: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load outline"})
		return
	}

	archived, err := s.store.GetArchivedChapters(book.ID)
	if err != nil {
		s.logger.Error("failed to load archived chapters: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load archived chapters"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"book":              book,
		"outline":           outline,
		"archived_chapters": archived,
	})
}

// handleBookCosts implements GET /api/books/:id/costs, backed by Prometheus.
func (s *Server) handleBookCosts(c *gin.Context) {
	if s.query == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics backend not configured"})
		return
	}

	bookID := c.Param("id")
	totals, err := s.query.GetBookMetrics(c.Request.Context(), bookID)
	if err != nil {
		s.logger.Error("failed to query book metrics: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "metrics query failed"})
		return
	}

	byAgent, err := s.query.GetBookMetricsByAgent(c.Request.Context(), bookID)
	if err != nil {
		s.logger.Warn("per-agent metrics query failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"totals": totals, "by_agent": byAgent})
}

// handleBookSocket upgrades to a WebSocket and attaches the viewer to the
// book's session, starting the session if this is the first viewer.
func (s *Server) handleBookSocket(c *gin.Context) {
	bookID := c.Param("id")

	sess, err := s.manager.Get(bookID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	viewer := newWSViewer(conn, s.logger)
	sess.Attach(viewer)
	s.logger.Info("viewer %s attached to book %s", viewer.ID(), bookID)

	go viewer.writePump()
	go viewer.readPump(sess)
}
