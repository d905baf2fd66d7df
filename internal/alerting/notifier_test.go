package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currex/internal/rates"
)

func sampleNote() Notification {
	return Notification{
		ObservedAt:   time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC),
		Currency:     "USD",
		Side:         SideBuy,
		PreviousBank: "Alpha",
		Bank:         "Beta",
		Previous:     decimal.RequireFromString("38.5"),
		Current:      decimal.RequireFromString("39.5"),
		ChangePct:    decimal.RequireFromString("2.597"),
		ThresholdPct: decimal.NewFromInt(1),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.Path, "/bottoken/") {
			t.Fatalf("路径应包含 bot token, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "USD best buy rate") {
		t.Fatalf("text 内容不正确: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("502 应报错")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := RenderMessage(sampleNote())
	for _, want := range []string{"Previous: 38.500 (Alpha)", "Current: 39.500 (Beta)", "Change: 2.597% (threshold 1.000%)"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, msg)
		}
	}
}

type recordingNotifier struct {
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

func TestMultiNotifier(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("boom")}

	err := Multi{ok, failing, NewLogNotifier(testLogger())}.Notify(context.Background(), sampleNote())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("应返回下游错误, 实际 %v", err)
	}
	if len(ok.notes) != 1 || len(failing.notes) != 1 {
		t.Fatalf("每个通道都应收到告警: %d %d", len(ok.notes), len(failing.notes))
	}
}

func quote(bank, buy, sell string) *rates.BankQuote {
	return &rates.BankQuote{
		Bank:     bank,
		Currency: "USD",
		Buy:      decimal.RequireFromString(buy),
		Sell:     decimal.RequireFromString(sell),
	}
}

func TestDetect(t *testing.T) {
	prev := rates.Best{Buy: quote("Alpha", "38.500", "39.200"), Sell: quote("Alpha", "38.500", "39.200")}
	cur := rates.Best{Buy: quote("Beta", "39.000", "39.500"), Sell: quote("Gamma", "38.400", "39.250")}
	threshold := decimal.NewFromInt(1)

	notes := Detect("USD", prev, cur, threshold, time.Now())
	if len(notes) != 1 {
		t.Fatalf("只有买入价变动超过阈值, 实际 %d 条", len(notes))
	}
	note := notes[0]
	if note.Side != SideBuy || note.Bank != "Beta" || note.PreviousBank != "Alpha" {
		t.Fatalf("告警内容不正确: %+v", note)
	}
	if note.ChangePct.StringFixed(3) != "1.299" {
		t.Fatalf("变动百分比不正确: %s", note.ChangePct)
	}

	if got := Detect("USD", rates.Best{}, cur, threshold, time.Now()); len(got) != 0 {
		t.Fatalf("缺少历史最优价时不应告警: %+v", got)
	}
	if got := Detect("USD", prev, cur, decimal.Zero, time.Now()); len(got) != 0 {
		t.Fatalf("阈值为 0 时不应告警: %+v", got)
	}

	// exactly at the threshold does not alert
	edge := rates.Best{Buy: quote("Beta", "38.885", "39.200")}
	if got := Detect("USD", prev, edge, threshold, time.Now()); len(got) != 0 {
		t.Fatalf("等于阈值不应告警: %+v", got)
	}
}

func TestChangePct(t *testing.T) {
	if !ChangePct(decimal.Zero, decimal.NewFromInt(5)).IsZero() {
		t.Fatal("previous 为 0 时应返回 0")
	}
	got := ChangePct(decimal.NewFromInt(40), decimal.NewFromInt(38))
	if !got.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("期望 -5, 实际 %s", got)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
