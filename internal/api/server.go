// Package api exposes cached rates and the widget snapshot over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"currex/internal/config"
	"currex/internal/fetcher"
	"currex/internal/rates"
	"currex/internal/storage"
	"currex/internal/widget"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// WidgetReader reads the shared widget snapshot.
type WidgetReader interface {
	Read(ctx context.Context) (widget.Snapshot, bool)
}

// ArchiveReader reads the quote archive and the alert log.
type ArchiveReader interface {
	ListRecent(ctx context.Context, currency string, limit int) ([]storage.QuoteSample, error)
	CountQuotes(ctx context.Context) (int64, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error)
}

// Server serves the read API.
type Server struct {
	cfg        *config.Config
	current    fetcher.CurrentRatesFetcher
	historical fetcher.HistoricalRatesFetcher
	widget     WidgetReader
	archive    ArchiveReader
	router     *gin.Engine
	logger     zerolog.Logger
}

// NewServer wires handlers. Any collaborator may be nil; its routes then answer 503.
func NewServer(cfg *config.Config, current fetcher.CurrentRatesFetcher, historical fetcher.HistoricalRatesFetcher, reader WidgetReader, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		current:    current,
		historical: historical,
		widget:     reader,
		logger:     logger.With().Str("component", "api").Logger(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/rates/:currency", s.currentRates)
	v1.GET("/history/:currency", s.history)
	v1.GET("/widget", s.widgetSnapshot)
	v1.GET("/widget/:currency", s.widgetCurrency)
	v1.GET("/archive/:currency", s.archivedQuotes)
	v1.GET("/alerts", s.recentAlerts)

	s.router = r
	return s
}

// WithArchive enables the archive and alert routes.
func (s *Server) WithArchive(archive ArchiveReader) *Server {
	s.archive = archive
	return s
}

// Router returns the underlying engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("read api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(started)).
			Msg("request served")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) currentRates(c *gin.Context) {
	if s.current == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "current rates are not configured"})
		return
	}
	snap, err := s.current.FetchCurrent(c.Request.Context(), c.Param("currency"))
	if err != nil {
		s.fail(c, err)
		return
	}
	best := rates.SelectBest(snap.Quotes)
	c.JSON(http.StatusOK, gin.H{
		"currency":  snap.Currency,
		"timestamp": snap.Timestamp,
		"quotes":    snap.Quotes,
		"bestBuy":   best.Buy,
		"bestSell":  best.Sell,
	})
}

func (s *Server) history(c *gin.Context) {
	if s.historical == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "historical rates are not configured"})
		return
	}

	override := 0
	if raw := strings.TrimSpace(c.Query("period")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be a positive number of days"})
			return
		}
		override = n
	}

	series, err := s.historical.FetchHistorical(c.Request.Context(), c.Param("currency"), s.cfg.ResolvePeriod(override))
	if err != nil {
		s.fail(c, err)
		return
	}

	banks := series.AvailableBanks()
	resp := gin.H{
		"currency":    series.Currency,
		"period_days": series.PeriodDays,
		"banks":       banks,
		"points":      series.Points,
	}
	if from, to, ok := series.DateRange(); ok {
		resp["from"], resp["to"] = from, to
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) widgetSnapshot(c *gin.Context) {
	snap, ok := s.readWidget(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) widgetCurrency(c *gin.Context) {
	snap, ok := s.readWidget(c)
	if !ok {
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(c.Param("currency")))
	resp := gin.H{
		"currency":    currency,
		"rates":       snap.RatesFor(currency),
		"lastUpdated": snap.LastUpdated,
	}
	if q, ok := snap.BestBuy(currency); ok {
		resp["bestBuy"] = q
	}
	if q, ok := snap.BestSell(currency); ok {
		resp["bestSell"] = q
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) archivedQuotes(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quote archive is not configured"})
		return
	}
	limit, ok := listLimit(c)
	if !ok {
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(c.Param("currency")))
	samples, err := s.archive.ListRecent(c.Request.Context(), currency, limit)
	if err != nil {
		s.archiveFailed(c, err)
		return
	}
	total, err := s.archive.CountQuotes(c.Request.Context())
	if err != nil {
		s.archiveFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"currency":      currency,
		"samples":       samples,
		"archive_total": total,
	})
}

func (s *Server) recentAlerts(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert log is not configured"})
		return
	}
	limit, ok := listLimit(c)
	if !ok {
		return
	}

	alerts, err := s.archive.ListRecentAlerts(c.Request.Context(), limit)
	if err != nil {
		s.archiveFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// listLimit parses ?limit=, capped at maxListLimit.
func listLimit(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

func (s *Server) archiveFailed(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("archive query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "archive query failed"})
}

func (s *Server) readWidget(c *gin.Context) (widget.Snapshot, bool) {
	if s.widget == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "widget store is not configured"})
		return widget.Snapshot{}, false
	}
	snap, ok := s.widget.Read(c.Request.Context())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no widget snapshot has been written yet"})
		return widget.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn().Err(err).Str("path", c.FullPath()).Msg("upstream request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, fetcher.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
