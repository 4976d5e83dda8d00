package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"checkpoint-gateway/backend/internal/checkpoint"
	"checkpoint-gateway/backend/internal/clientip"
	"checkpoint-gateway/backend/internal/config"
	"checkpoint-gateway/backend/internal/store"
)

// Config defines server dependencies.
type Config struct {
	Engine                config.EngineConfig
	ClientIP              config.ClientIPConfig
	TrackCheckpointEvents bool
	DBPath                string
	SilentDB              bool
	AllowedOrigins        []string
	// NewEngine and Predicates override the decision engine collaborator, mainly for tests.
	NewEngine  checkpoint.EngineFactory
	Predicates *checkpoint.Predicates
}

// Server wires HTTP handlers with the checkpoint adapter and audit trail.
type Server struct {
	adapter        *checkpoint.Adapter
	resolver       clientip.Resolver
	db             *store.Database
	notifier       *CheckpointNotifier
	allowedOrigins []string
	trustedProxies []string
}

// NewServer constructs the API server. A missing engine configuration is
// logged, not fatal: checkpoint requests then fail individually.
func NewServer(cfg Config) (*Server, error) {
	adapter := checkpoint.NewAdapter(checkpoint.AdapterConfig{
		Engine:      cfg.Engine,
		NewEngine:   cfg.NewEngine,
		Predicates:  cfg.Predicates,
		TrackEvents: cfg.TrackCheckpointEvents,
	})
	if err := cfg.Engine.Validate(); err != nil {
		logrus.WithError(err).Warn("decision engine not configured; checkpoint requests will fail")
	} else {
		logrus.WithFields(logrus.Fields{
			"api_url":            cfg.Engine.APIURL,
			"checkpoint_timeout": cfg.Engine.CheckpointTimeout,
			"track_events":       cfg.TrackCheckpointEvents,
		}).Info("decision engine configured")
	}

	var db *store.Database
	if path := strings.TrimSpace(cfg.DBPath); path != "" {
		opened, err := store.Open(path, cfg.SilentDB)
		if err != nil {
			return nil, err
		}
		db = opened
		logrus.WithField("path", path).Info("checkpoint audit trail enabled")
	} else {
		logrus.Info("checkpoint audit trail disabled - no database path configured")
	}

	return &Server{
		adapter:        adapter,
		resolver:       clientip.New(cfg.ClientIP.Static, cfg.ClientIP.Fallback),
		db:             db,
		notifier:       NewCheckpointNotifier(),
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: cfg.ClientIP.TrustedProxies,
	}, nil
}

// Close releases the audit database, if any.
func (s *Server) Close() error {
	return s.db.Close()
}

// Router configures gin routes. Forwarding headers are only honoured from
// the configured trusted proxies.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()
	if err := r.SetTrustedProxies(s.trustedProxies); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	corsCfg := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"*"}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.POST("/checkpoint", s.handleCheckpoint)
	r.OPTIONS("/checkpoint", s.handleOptions)
	r.POST("/event", s.handleEvent)
	r.OPTIONS("/event", s.handleOptions)

	r.GET("/api/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/checkpoints", s.handleListCheckpoints)
		api.GET("/checkpoints/summary", s.handleCheckpointSummary)
		api.GET("/checkpoints/stream", s.handleCheckpointStream)
		api.GET("/checkpoints/:id", s.handleGetCheckpoint)
	}

	return r, nil
}

func (s *Server) handleOptions(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		EngineConfigured: s.adapter.Configured(),
		AuditEnabled:     s.db != nil,
		StreamClients:    s.notifier.ClientCount(),
	})
}

func (s *Server) handleCheckpoint(c *gin.Context) {
	var req checkpoint.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("decode checkpoint request")
		c.JSON(http.StatusInternalServerError, checkpoint.ResponseBody{Message: err.Error()})
		return
	}

	ip := s.resolver.Resolve(c)
	result := s.adapter.Handle(c.Request.Context(), req, ip)
	s.recordCheckpoint(req, ip, result)

	c.JSON(result.Status, result.Body)
}

func (s *Server) handleEvent(c *gin.Context) {
	var req checkpoint.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, EventResponse{ErrorMessage: err.Error()})
		return
	}
	if strings.TrimSpace(req.EventName) == "" {
		c.JSON(http.StatusBadRequest, EventResponse{ErrorMessage: "eventName is required"})
		return
	}

	if err := s.adapter.Track(c.Request.Context(), req); err != nil {
		logrus.WithError(err).WithField("event", req.EventName).Error("send server event")
		c.JSON(http.StatusInternalServerError, EventResponse{ErrorMessage: err.Error()})
		return
	}
	logrus.WithField("event", req.EventName).Info("server event sent")
	c.JSON(http.StatusOK, EventResponse{Success: true})
}

// recordCheckpoint persists and broadcasts a completed checkpoint. Failures
// here are logged and never change the response.
func (s *Server) recordCheckpoint(req checkpoint.Request, ip string, result checkpoint.Result) {
	record := store.CheckpointRecord{
		CheckpointName: req.CheckpointName,
		Decision:       string(result.Decision),
		HTTPStatus:     result.Status,
		Message:        result.Body.Message,
		SourceIP:       ip,
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		DurationMs:     result.Duration.Milliseconds(),
	}
	if result.Outcome != nil && result.Outcome.Verification != nil {
		record.VerificationID = result.Outcome.Verification.ID
		record.VerificationStatus = result.Outcome.Verification.Status
		record.VerificationOutcome = result.Outcome.Verification.Outcome
	}

	if s.db != nil {
		if err := s.db.SaveCheckpoint(&record); err != nil {
			logrus.WithError(err).WithField("checkpoint", req.CheckpointName).Warn("save checkpoint record")
		}
	}

	s.notifier.Broadcast(CheckpointEvent{
		Type:           "checkpoint",
		RecordID:       record.ID,
		CheckpointName: record.CheckpointName,
		Decision:       record.Decision,
		Status:         record.HTTPStatus,
		VerificationID: record.VerificationID,
		Message:        record.Message,
		DurationMs:     record.DurationMs,
	})
}

func (s *Server) handleListCheckpoints(c *gin.Context) {
	if !s.requireAudit(c) {
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", c.Query("pageSize")))
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 500 {
		pageSize = 500
	}

	rows, total, err := s.db.ListCheckpoints(store.CheckpointQuery{
		CheckpointName: c.Query("checkpoint"),
		Decision:       c.Query("decision"),
		UserID:         c.Query("user"),
		Offset:         page * pageSize,
		Limit:          pageSize,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]CheckpointRecordDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, RecordFromModel(row))
	}
	c.JSON(http.StatusOK, CheckpointsResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetCheckpoint(c *gin.Context) {
	if !s.requireAudit(c) {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	record, err := s.db.GetCheckpoint(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("checkpoint record %s not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, RecordFromModel(*record))
}

func (s *Server) handleCheckpointSummary(c *gin.Context) {
	if !s.requireAudit(c) {
		return
	}
	counts, err := s.db.CountByDecision()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if counts == nil {
		counts = []store.DecisionCount{}
	}
	c.JSON(http.StatusOK, SummaryResponse{Decisions: counts})
}

func (s *Server) handleCheckpointStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("checkpoint websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("checkpoint websocket closed")
			} else {
				logrus.WithError(err).Warn("checkpoint websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) requireAudit(c *gin.Context) bool {
	if s.db == nil {
		s.renderError(c, http.StatusServiceUnavailable, errors.New("checkpoint audit trail disabled"))
		return false
	}
	return true
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
