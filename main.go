package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Shared server state, set up in main
var (
	pipeline     *Pipeline
	sessionCache *SessionCache
)

func main() {
	InitLogger("motion-review", LogLevel)

	// Load configuration
	LoadConfig()
	logger := InitLogger("motion-review", LogLevel)

	roster, err := LoadRoster(RosterPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", RosterPath).Msg("failed to load roster")
	}

	reviewer := NewLLMReviewer()
	pipeline, err = NewPipeline(roster, reviewer, reviewer, DefaultPipelineOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	sessionCache = NewSessionCache(SessionCacheTTL)
	RegisterMetrics()

	if len(os.Args) > 1 && os.Args[1] == "run" {
		if err := runOnce(os.Args[2:]); err != nil {
			log.Fatal().Err(err).Msg("session failed")
		}
		return
	}

	router := setupRouter(logger)

	log.Info().Str("addr", ListenAddr).Msg("starting motion review backend")
	if err := router.Run(ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

// runOnce runs a single session from an export file and persists it.
// Usage: motion-review run -export path/to/export.json [-session id]
func runOnce(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	exportPath := fs.String("export", "", "path to the consolidator export")
	sessionID := fs.String("session", "", "session id (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	export, err := LoadMotionExport(*exportPath)
	if err != nil {
		return err
	}
	if *sessionID == "" {
		*sessionID = uuid.New().String()
	}
	if err := ReserveSession(*sessionID); err != nil {
		return err
	}

	result, err := executeSession(context.Background(), *sessionID, export, nil)
	if err != nil {
		return err
	}

	log.Info().
		Str("session", result.SessionID).
		Str("dir", GetSessionDir(result.SessionID)).
		Int("ratified", result.Counts.Ratified).
		Int("rejected", result.Counts.Rejected).
		Int("deferred", result.Counts.Deferred).
		Msg("session written")
	return nil
}

// setupRouter builds the gin engine with middleware and routes
func setupRouter(logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(RequestMetricsMiddleware())

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	// CORS middleware with dynamic origin validation
	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  allowOrigin,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	// Routes
	router.GET("/", healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/sessions", listSessionsHandler)
	router.POST("/api/sessions", runSessionHandler)
	router.POST("/api/sessions/stream", runSessionStreamHandler)
	router.GET("/api/sessions/:id", getSessionHandler)
	router.GET("/api/sessions/:id/packets/:member", getPacketHandler)

	return router
}

// allowOrigin accepts configured origins, or any localhost origin when none are configured
func allowOrigin(origin string) bool {
	if len(CORSAllowedOrigins) > 0 {
		for _, allowedOrigin := range CORSAllowedOrigins {
			if origin == allowedOrigin {
				return true
			}
		}
		return false
	}
	return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "Motion Review API",
	})
}

// listSessionsHandler lists all sessions with metadata only.
// GET /api/sessions - Returns array of session metadata, newest first.
func listSessionsHandler(c *gin.Context) {
	sessions, err := ListSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list sessions: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// getSessionHandler gets a session's full result.
// GET /api/sessions/:id - Serves from the cache first, then from disk.
func getSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")

	if result, ok := sessionCache.Get(sessionID); ok {
		c.JSON(http.StatusOK, result)
		return
	}

	result, err := GetSession(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get session: %v", err),
		})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Session not found",
		})
		return
	}

	sessionCache.Set(result)
	c.JSON(http.StatusOK, result)
}

// getPacketHandler returns one member's review packet.
// GET /api/sessions/:id/packets/:member
func getPacketHandler(c *gin.Context) {
	packet, err := GetPacket(c.Param("id"), c.Param("member"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get packet: %v", err),
		})
		return
	}
	if packet == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Packet not found",
		})
		return
	}

	c.JSON(http.StatusOK, packet)
}

// runSessionHandler runs the full pipeline and returns the result at once.
// POST /api/sessions - Body: {"session_id"?, "export" | "export_url"}.
// Use runSessionStreamHandler for the SSE streaming version.
func runSessionHandler(c *gin.Context) {
	sessionID, export, status, err := prepareSession(c)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	result, err := executeSession(context.WithoutCancel(c.Request.Context()), sessionID, export, nil)
	if err != nil {
		c.JSON(statusForRunError(err), gin.H{
			"error": fmt.Sprintf("Pipeline failed: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// runSessionStreamHandler runs the pipeline and streams progress via SSE.
// POST /api/sessions/stream - Same body as runSessionHandler.
// Events: phase_start, phase_complete (one pair per phase), complete.
func runSessionStreamHandler(c *gin.Context) {
	sessionID, export, status, err := prepareSession(c)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sendSSEEvent(c, gin.H{"type": "session_start", "data": gin.H{"session_id": sessionID}})

	listener := func(event PhaseEvent) {
		sendSSEEvent(c, event)
	}
	result, err := executeSession(context.WithoutCancel(c.Request.Context()), sessionID, export, listener)
	if err != nil {
		sendSSEError(c, fmt.Sprintf("Pipeline failed: %v", err))
		return
	}

	sendSSEEvent(c, gin.H{"type": "complete", "data": gin.H{
		"session_id": result.SessionID,
		"counts":     result.Counts,
	}})
}

// prepareSession binds the request, resolves the export and reserves the session id.
// The returned status applies only when err is non-nil.
func prepareSession(c *gin.Context) (string, *MotionExport, int, error) {
	var request RunSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		return "", nil, http.StatusBadRequest, fmt.Errorf("invalid request: %v", err)
	}

	sessionID := strings.TrimSpace(request.SessionID)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if err := ValidateRecordID(sessionID); err != nil {
		return "", nil, http.StatusBadRequest, err
	}

	export := request.Export
	if export == nil && request.ExportURL != "" {
		fetched, err := FetchMotionExport(c.Request.Context(), request.ExportURL)
		if err != nil {
			return "", nil, statusForRunError(err), fmt.Errorf("failed to fetch export: %w", err)
		}
		export = fetched
	}

	if err := ReserveSession(sessionID); err != nil {
		if errors.Is(err, ErrSessionExists) {
			return "", nil, http.StatusConflict, err
		}
		return "", nil, http.StatusInternalServerError, err
	}

	return sessionID, export, 0, nil
}

// executeSession runs the pipeline for a reserved session, persists every record
// and caches the result. The reservation is released when the run fails.
func executeSession(ctx context.Context, sessionID string, export *MotionExport, listener PhaseListener) (*PipelineResult, error) {
	result, err := pipeline.Run(ctx, sessionID, export, listener)
	if err != nil {
		releaseSession(sessionID)
		return nil, err
	}

	if err := SaveSession(result); err != nil {
		releaseSession(sessionID)
		return nil, fmt.Errorf("%w: %v", ErrSessionSave, err)
	}
	sessionCache.Set(result)

	return result, nil
}

func releaseSession(sessionID string) {
	if err := ReleaseSession(sessionID); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("failed to release session")
	}
}

func statusForRunError(err error) int {
	var missing *InputMissingError
	if errors.As(err, &missing) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrSessionSave) {
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal SSE event")
		return
	}
	c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", string(jsonData)))
	c.Writer.Flush()
}

// sendSSEError sends an error event via SSE.
func sendSSEError(c *gin.Context, message string) {
	sendSSEEvent(c, gin.H{"type": "error", "message": message})
}
