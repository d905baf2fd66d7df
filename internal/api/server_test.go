package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"currex/internal/config"
	"currex/internal/fetcher"
	"currex/internal/kv"
	"currex/internal/rates"
	"currex/internal/storage"
	"currex/internal/widget"
)

type stubCurrent struct {
	err error
}

func (s stubCurrent) FetchCurrent(_ context.Context, currency string) (rates.CurrencySnapshot, error) {
	if s.err != nil {
		return rates.CurrencySnapshot{}, s.err
	}
	return rates.CurrencySnapshot{
		Currency:  currency,
		Timestamp: "2025-03-05T12:00:00.000Z",
		Quotes: []rates.BankQuote{
			{Bank: "Alpha", Currency: currency, Buy: decimal.RequireFromString("38.5"), Sell: decimal.RequireFromString("39.2")},
			{Bank: "Beta", Currency: currency, Buy: decimal.RequireFromString("38.7"), Sell: decimal.RequireFromString("39.5")},
			{Bank: "Gamma", Currency: currency, Buy: decimal.RequireFromString("38.4"), Sell: decimal.RequireFromString("39.1")},
		},
	}, nil
}

type stubHistorical struct {
	gotPeriod int
}

func (s *stubHistorical) FetchHistorical(_ context.Context, currency string, periodDays int) (rates.HistoricalSeries, error) {
	s.gotPeriod = periodDays
	return rates.HistoricalSeries{
		Currency:   currency,
		PeriodDays: periodDays,
		Points: []rates.HistoricalPoint{
			{At: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Banks: map[string]rates.BankRate{"Alpha": {}}},
		},
	}, nil
}

func setupRouter(t *testing.T, current fetcher.CurrentRatesFetcher, hist fetcher.HistoricalRatesFetcher, reader WidgetReader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Rates.DefaultPeriod = 7
	return NewServer(cfg, current, hist, reader, zerolog.Nop()).Router()
}

func get(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealthz(t *testing.T) {
	w, body := get(t, setupRouter(t, nil, nil, nil), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	w, _ := get(t, setupRouter(t, nil, nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCurrentRates(t *testing.T) {
	w, body := get(t, setupRouter(t, stubCurrent{}, nil, nil), "/v1/rates/USD")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["quotes"], 3)

	require.Equal(t, "Beta", body["bestBuy"].(map[string]any)["bankName"])
	require.Equal(t, "Gamma", body["bestSell"].(map[string]any)["bankName"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		kind error
		want int
	}{
		{fetcher.ErrInvalidRequest, http.StatusBadRequest},
		{fetcher.ErrConfiguration, http.StatusServiceUnavailable},
		{fetcher.ErrTransport, http.StatusBadGateway},
		{fetcher.ErrInvalidResponse, http.StatusBadGateway},
		{fetcher.ErrDecode, http.StatusBadGateway},
	}
	for _, tc := range cases {
		err := &fetcher.Error{Kind: tc.kind, Op: "fetch current rates", Err: errors.New("cause")}
		w, body := get(t, setupRouter(t, stubCurrent{err: err}, nil, nil), "/v1/rates/USD")
		require.Equal(t, tc.want, w.Code, tc.kind.Error())
		require.Contains(t, body["error"], tc.kind.Error())
	}
}

func TestHistoryPeriod(t *testing.T) {
	hist := &stubHistorical{}
	router := setupRouter(t, nil, hist, nil)

	w, body := get(t, router, "/v1/history/EUR")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 7, hist.gotPeriod, "default period")
	require.Equal(t, []any{"Alpha"}, body["banks"])

	w, _ = get(t, router, "/v1/history/EUR?period=30")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 30, hist.gotPeriod)

	w, _ = get(t, router, "/v1/history/EUR?period=abc")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWidgetRoutes(t *testing.T) {
	store := widget.NewStore(kv.NewMemory(), zerolog.Nop())
	router := setupRouter(t, nil, nil, store)

	w, _ := get(t, router, "/v1/widget")
	require.Equal(t, http.StatusNotFound, w.Code, "never written")

	snap, err := stubCurrent{}.FetchCurrent(context.Background(), "USD")
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), widget.Build([]rates.CurrencySnapshot{snap}, false, time.Now())))

	w, body := get(t, router, "/v1/widget")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, body, "bestBuyRates")
	require.NotContains(t, body, "allRates")

	w, body = get(t, router, "/v1/widget/usd")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "USD", body["currency"])
	require.Len(t, body["rates"], 2, "best buy and best sell from different banks")
	require.Equal(t, "Beta", body["bestBuy"].(map[string]any)["bankName"])
}

func TestUnconfiguredRoutes(t *testing.T) {
	router := setupRouter(t, nil, nil, nil)
	for _, path := range []string{"/v1/rates/USD", "/v1/history/USD", "/v1/widget", "/v1/archive/USD", "/v1/alerts"} {
		w, _ := get(t, router, path)
		require.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

type stubArchive struct {
	err         error
	gotLimit    int
	gotCurrency string
}

func (s *stubArchive) ListRecent(_ context.Context, currency string, limit int) ([]storage.QuoteSample, error) {
	s.gotCurrency, s.gotLimit = currency, limit
	if s.err != nil {
		return nil, s.err
	}
	return []storage.QuoteSample{
		{ObservedAt: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC), Currency: currency, Bank: "Beta",
			Buy: decimal.RequireFromString("38.7"), Sell: decimal.RequireFromString("39.1"), Source: storage.SourceCurrent},
	}, nil
}

func (s *stubArchive) CountQuotes(context.Context) (int64, error) {
	return 42, s.err
}

func (s *stubArchive) ListRecentAlerts(_ context.Context, limit int) ([]storage.AlertRecord, error) {
	s.gotLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return []storage.AlertRecord{
		{ID: 7, Currency: "USD", Side: "buy", Bank: "Alpha",
			Previous: decimal.RequireFromString("38.5"), Current: decimal.RequireFromString("39.0"),
			ChangePct: decimal.RequireFromString("1.2987"), ThresholdPct: decimal.RequireFromString("1"),
			Channels: []string{"log"}},
	}, nil
}

func archiveRouter(t *testing.T, archive ArchiveReader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Rates.DefaultPeriod = 7
	return NewServer(cfg, nil, nil, nil, zerolog.Nop()).WithArchive(archive).Router()
}

func TestArchiveRoutes(t *testing.T) {
	archive := &stubArchive{}
	router := archiveRouter(t, archive)

	w, body := get(t, router, "/v1/archive/usd?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "USD", archive.gotCurrency)
	require.Equal(t, 10, archive.gotLimit)
	require.Equal(t, "USD", body["currency"])
	require.EqualValues(t, 42, body["archive_total"])
	samples := body["samples"].([]any)
	require.Len(t, samples, 1)
	require.Equal(t, "Beta", samples[0].(map[string]any)["bank"])

	w, body = get(t, router, "/v1/alerts")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, defaultListLimit, archive.gotLimit)
	alerts := body["alerts"].([]any)
	require.Len(t, alerts, 1)
	first := alerts[0].(map[string]any)
	require.EqualValues(t, 7, first["id"])
	require.Equal(t, "39", first["current"])

	_, _ = get(t, router, "/v1/alerts?limit=100000")
	require.Equal(t, maxListLimit, archive.gotLimit)

	for _, path := range []string{"/v1/alerts?limit=0", "/v1/archive/USD?limit=abc"} {
		w, _ := get(t, router, path)
		require.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestArchiveRouteErrors(t *testing.T) {
	w, _ := get(t, archiveRouter(t, &stubArchive{err: storage.ErrNotConfigured}), "/v1/alerts")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, body := get(t, archiveRouter(t, &stubArchive{err: errors.New("connection reset")}), "/v1/archive/USD")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, body["error"], "connection reset")
}
