package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currex/internal/cache"
	"currex/internal/rates"
)

const usdPayload = `{
	"Alpha": [{"base_currency":"UAH","currency":"USD","rate_buy":"38.50","rate_sell":"39.20"}],
	"Beta":  [{"base_currency":"UAH","currency":"USD","rate_buy":"38.70","rate_sell":"39.10"}],
	"Gamma": [{"base_currency":"UAH","currency":"USD","rate_buy":"38.30","rate_sell":"38.90"}],
	"timestamp": "2025-03-05T12:00:00.000Z"
}`

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:   baseURL,
		Username:  "user",
		Password:  "secret",
		Timeout:   time.Second,
		UserAgent: "test",
	}
}

func newCountingServer(t *testing.T, status int, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewCurrentMissingConfig(t *testing.T) {
	if _, err := NewCurrent(Options{Username: "u", Password: "p"}, nil, nil, noopLogger()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("缺少 base url 应返回 ErrConfiguration, 实际 %v", err)
	}
	if _, err := NewCurrent(Options{BaseURL: "http://localhost"}, nil, nil, noopLogger()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("缺少凭证应返回 ErrConfiguration, 实际 %v", err)
	}
}

func TestFetchCurrentRequestShape(t *testing.T) {
	var seen *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		_, _ = w.Write([]byte(usdPayload))
	}))
	defer srv.Close()

	c, err := NewCurrent(testOptions(srv.URL+"/"), nil, nil, noopLogger())
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	if _, err := c.FetchCurrent(context.Background(), " usd "); err != nil {
		t.Fatalf("请求不应失败: %v", err)
	}

	if seen.URL.Path != "/api/exchange_rates" {
		t.Fatalf("路径不正确: %s", seen.URL.Path)
	}
	if got := seen.URL.Query().Get("currency"); got != "USD" {
		t.Fatalf("currency 参数应为 USD, 实际 %q", got)
	}
	if got := seen.Header.Get("Authorization"); got != "Basic dXNlcjpzZWNyZXQ=" {
		t.Fatalf("Authorization 头不正确: %q", got)
	}
	if seen.Header.Get("Cache-Control") != "no-cache" {
		t.Fatal("应绕过中间缓存")
	}
	if seen.Header.Get("X-Request-ID") == "" {
		t.Fatal("应携带 X-Request-ID")
	}
}

func TestFetchCurrentEndToEndWithCache(t *testing.T) {
	var calls atomic.Int32
	srv := newCountingServer(t, http.StatusOK, usdPayload, &calls)

	store := cache.New[rates.CurrencySnapshot]("current", cache.CurrentRatesTTL)
	c, err := NewCurrent(testOptions(srv.URL), store, nil, noopLogger())
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	first, err := c.FetchCurrent(context.Background(), "USD")
	if err != nil {
		t.Fatalf("首次请求失败: %v", err)
	}
	if len(first.Quotes) != 3 {
		t.Fatalf("应返回 3 家银行, 实际 %d", len(first.Quotes))
	}

	best := rates.SelectBest(first.Quotes)
	if best.Buy.Bank != "Beta" || !best.Buy.Buy.Equal(decimal.RequireFromString("38.70")) {
		t.Fatalf("best buy 应为 Beta 38.70, 实际 %+v", best.Buy)
	}
	if best.Sell.Bank != "Gamma" || !best.Sell.Sell.Equal(decimal.RequireFromString("38.90")) {
		t.Fatalf("best sell 应为 Gamma 38.90, 实际 %+v", best.Sell)
	}

	second, err := c.FetchCurrent(context.Background(), "USD")
	if err != nil {
		t.Fatalf("第二次请求失败: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("缓存期内不应再次请求, 实际请求 %d 次", calls.Load())
	}
	if len(second.Quotes) != len(first.Quotes) {
		t.Fatal("缓存应返回同一快照")
	}
	for i := range first.Quotes {
		if !first.Quotes[i].Equal(second.Quotes[i]) {
			t.Fatalf("第 %d 条报价不一致", i)
		}
	}
}

func TestFetchCurrentCacheIsolatedFromCallers(t *testing.T) {
	var calls atomic.Int32
	srv := newCountingServer(t, http.StatusOK, usdPayload, &calls)

	c, err := NewCurrent(testOptions(srv.URL), nil, nil, noopLogger())
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	first, err := c.FetchCurrent(context.Background(), "USD")
	if err != nil {
		t.Fatalf("首次请求失败: %v", err)
	}
	first.Quotes[0].Buy = decimal.NewFromInt(999)
	first.Quotes = first.Quotes[:1]

	second, err := c.FetchCurrent(context.Background(), "USD")
	if err != nil {
		t.Fatalf("第二次请求失败: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("第二次应命中缓存, 实际请求 %d 次", calls.Load())
	}
	if len(second.Quotes) != 3 {
		t.Fatalf("缓存中的报价不应被调用方截断, 实际 %d", len(second.Quotes))
	}
	if !second.Quotes[0].Buy.Equal(decimal.RequireFromString("38.50")) {
		t.Fatalf("缓存中的报价不应被调用方修改, 实际 %s", second.Quotes[0].Buy)
	}

	second.Quotes[1].Bank = "Mutated"
	third, _ := c.FetchCurrent(context.Background(), "USD")
	if third.Quotes[1].Bank != "Beta" {
		t.Fatalf("缓存命中返回的值也应是副本, 实际 %s", third.Quotes[1].Bank)
	}
}

func TestFetchCurrentRefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	srv := newCountingServer(t, http.StatusOK, usdPayload, &calls)

	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	store := cache.New[rates.CurrencySnapshot]("current", cache.CurrentRatesTTL, cache.WithClock(func() time.Time { return now }))
	c, err := NewCurrent(testOptions(srv.URL), store, nil, noopLogger())
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	if _, err := c.FetchCurrent(context.Background(), "USD"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(cache.CurrentRatesTTL)
	if _, err := c.FetchCurrent(context.Background(), "USD"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("过期后应重新请求, 实际 %d 次", calls.Load())
	}
}

func TestFetchCurrentRejectsOversizedBody(t *testing.T) {
	var calls atomic.Int32
	srv := newCountingServer(t, http.StatusOK, usdPayload, &calls)

	opts := testOptions(srv.URL)
	opts.MaxResponseBytes = int64(len(usdPayload) - 1)
	c, err := NewCurrent(opts, nil, nil, noopLogger())
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	_, err = c.FetchCurrent(context.Background(), "USD")
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("超出上限的响应应返回 ErrInvalidResponse, 实际 %v", err)
	}

	opts.MaxResponseBytes = int64(len(usdPayload))
	c, _ = NewCurrent(opts, nil, nil, noopLogger())
	if _, err := c.FetchCurrent(context.Background(), "USD"); err != nil {
		t.Fatalf("恰好等于上限的响应应被接受: %v", err)
	}
}

func TestFetchCurrentHTTPError(t *testing.T) {
	var calls atomic.Int32
	srv := newCountingServer(t, http.StatusUnauthorized, `{"detail":"bad credentials"}`, &calls)

	c, _ := NewCurrent(testOptions(srv.URL), nil, nil, noopLogger())
	_, err := c.FetchCurrent(context.Background(), "USD")
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("HTTP 401 应返回 ErrInvalidResponse, 实际 %v", err)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Status != http.StatusUnauthorized {
		t.Fatalf("应携带状态码 401: %v", err)
	}

	// failures are not cached
	if _, err := c.FetchCurrent(context.Background(), "USD"); err == nil {
		t.Fatal("第二次仍应失败")
	}
	if calls.Load() != 2 {
		t.Fatalf("失败结果不应缓存, 实际请求 %d 次", calls.Load())
	}
}

func TestFetchCurrentDecodeError(t *testing.T) {
	var calls atomic.Int32
	srv := newCountingServer(t, http.StatusOK, `{"Alpha": "oops"}`, &calls)

	c, _ := NewCurrent(testOptions(srv.URL), nil, nil, noopLogger())
	if _, err := c.FetchCurrent(context.Background(), "USD"); !errors.Is(err, ErrDecode) {
		t.Fatalf("结构错误应返回 ErrDecode, 实际 %v", err)
	}
}

func TestFetchCurrentTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := NewCurrent(testOptions(url), nil, nil, noopLogger())
	if _, err := c.FetchCurrent(context.Background(), "USD"); !errors.Is(err, ErrTransport) {
		t.Fatalf("连接失败应返回 ErrTransport, 实际 %v", err)
	}
}

func TestFetchCurrentContextCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := newCountingServer(t, http.StatusOK, usdPayload, &calls)

	c, _ := NewCurrent(testOptions(srv.URL), nil, nil, noopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchCurrent(ctx, "USD")
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("取消的 context 应同时匹配 ErrTransport 与 context.Canceled, 实际 %v", err)
	}
}

func TestFetchCurrentInvalidRequest(t *testing.T) {
	c, err := NewCurrent(testOptions("not a url"), nil, nil, noopLogger())
	if err != nil {
		t.Fatalf("构造不应失败: %v", err)
	}
	if _, err := c.FetchCurrent(context.Background(), "USD"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("非法 URL 应返回 ErrInvalidRequest, 实际 %v", err)
	}
	if _, err := c.FetchCurrent(context.Background(), "  "); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("空币种应返回 ErrInvalidRequest, 实际 %v", err)
	}
}
