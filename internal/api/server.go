// Package api exposes the monitor and escalation services over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/ctxutil"
	"github.com/example/warden/internal/metrics"
	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/ports/secondary"
)

// ActorHeader carries the authenticated user id set by the portal's auth layer.
const ActorHeader = "X-Actor-ID"

const defaultStatsWindowDays = 7

// Server is the warden control surface.
type Server struct {
	gin         *gin.Engine
	monitor     primary.MonitorService
	escalations primary.EscalationService
	log         *zap.SugaredLogger
}

// NewServer builds the gin engine and registers every route.
func NewServer(log *zap.Logger, monitor primary.MonitorService, escalations primary.EscalationService, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		actorMiddleware(),
	)

	s := &Server{
		gin:         engine,
		monitor:     monitor,
		escalations: escalations,
		log:         log.Sugar(),
	}

	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := engine.Group("/api")
	mon := api.Group("/monitor")
	mon.GET("", s.getMonitorStatus)
	mon.POST("/start", s.startMonitor)
	mon.POST("/stop", s.stopMonitor)
	mon.POST("/check", s.checkNow)

	esc := api.Group("/escalations")
	esc.GET("", s.listEscalations)
	esc.POST("", s.createManualEscalation)
	esc.GET("/stats", s.getStats)
	esc.GET("/:id", s.getEscalation)
	esc.GET("/:id/chain", s.getChain)
	esc.GET("/:id/activity", s.getActivity)
	esc.POST("/:id/start", s.startEscalation)
	esc.POST("/:id/resolve", s.resolveEscalation)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("http server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(ActorHeader)); actor != "" {
			c.Request = c.Request.WithContext(ctxutil.WithActorID(c.Request.Context(), actor))
		}
		c.Next()
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps service errors to status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var guardErr *escalation.GuardError
	switch {
	case errors.Is(err, secondary.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &guardErr), errors.Is(err, secondary.ErrStaleTransition):
		status = http.StatusConflict
	case errors.Is(err, secondary.ErrOrphanApproval):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) getMonitorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetStatus())
}

func (s *Server) startMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.StartMonitoring(c.Request.Context()))
}

func (s *Server) stopMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.StopMonitoring())
}

func (s *Server) checkNow(c *gin.Context) {
	result, err := s.monitor.ForceCheckNow(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listEscalations(c *gin.Context) {
	filters := primary.EscalationFilters{
		WorkItemClass: c.Query("class"),
		WorkItemID:    c.Query("workItemId"),
		Status:        c.Query("status"),
		Priority:      c.Query("priority"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		filters.Limit = limit
	}
	if filters.Status != "" {
		if _, err := escalation.ParseStatus(filters.Status); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	list, err := s.escalations.ListEscalations(c.Request.Context(), filters)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if list == nil {
		list = []*primary.Escalation{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getStats(c *gin.Context) {
	windowDays := defaultStatsWindowDays
	if raw := c.Query("windowDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "windowDays must be a positive integer")
			return
		}
		windowDays = n
	}

	stats, err := s.escalations.GetStats(c.Request.Context(), windowDays)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getEscalation(c *gin.Context) {
	e, err := s.escalations.GetEscalation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) getChain(c *gin.Context) {
	chain, err := s.escalations.GetChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

func (s *Server) getActivity(c *gin.Context) {
	entries, err := s.escalations.ListActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*primary.ActivityEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) createManualEscalation(c *gin.Context) {
	var req primary.ManualEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if _, err := escalation.ParseItemClass(req.WorkItemClass); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.ActorID = resolveActor(c.Request.Context(), req.ActorID)

	e, err := s.escalations.CreateManualEscalation(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

type startRequest struct {
	ActorID string `json:"actorId"`
}

func (s *Server) startEscalation(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	actor := resolveActor(c.Request.Context(), req.ActorID)
	if actor == "" {
		badRequest(c, "an actor is required")
		return
	}

	if err := s.escalations.StartEscalation(c.Request.Context(), c.Param("id"), actor); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondEscalation(c, c.Param("id"))
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	ResolvedBy string `json:"resolvedBy"`
}

func (s *Server) resolveEscalation(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Resolution) == "" {
		badRequest(c, "resolution is required")
		return
	}
	actor := resolveActor(c.Request.Context(), req.ResolvedBy)
	if actor == "" {
		badRequest(c, "an actor is required")
		return
	}

	err := s.escalations.ResolveEscalation(c.Request.Context(), primary.ResolveEscalationRequest{
		EscalationID: c.Param("id"),
		Resolution:   req.Resolution,
		ResolvedBy:   actor,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondEscalation(c, c.Param("id"))
}

func (s *Server) respondEscalation(c *gin.Context, id string) {
	e, err := s.escalations.GetEscalation(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// resolveActor prefers the authenticated actor over one named in the body.
func resolveActor(ctx context.Context, fromBody string) string {
	if actor := ctxutil.ActorFromContext(ctx); actor != "" {
		return actor
	}
	return strings.TrimSpace(fromBody)
}
