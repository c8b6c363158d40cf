package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/creatorpay/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithGateway(ctx, "verotel")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-9" {
		t.Fatalf("expected request_id, got %v", fields["request_id"])
	}
	if fields["gateway"] != "verotel" {
		t.Fatalf("expected gateway field, got %v", fields["gateway"])
	}
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		if obscontext.RequestIDFromContext(c.Request.Context()) == "" {
			t.Errorf("expected request id in context")
		}
		c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "abc" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestQueryLoggerLogsErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewQueryLogger(QueryLogConfig{Level: gormlogger.Warn, SlowThreshold: time.Second})
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "UPDATE transactions SET status = 'success'", 1
	}, errors.New("boom"))
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM orders WHERE id = ?", 0
	}, gormlogger.ErrRecordNotFound)

	entries := logs.FilterMessage("db.query").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 query entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "UPDATE" || fields["table"] != "transactions" {
		t.Fatalf("unexpected query fields %v", fields)
	}
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{"SELECT id FROM payment_events WHERE gateway = ?", "SELECT", "payment_events"},
		{"INSERT INTO `earnings` (`id`) VALUES (?)", "INSERT", "earnings"},
		{"UPDATE balances SET amount = amount + ?", "UPDATE", "balances"},
		{"DELETE FROM outbox_events WHERE id = ?", "DELETE", "outbox_events"},
		{"PRAGMA foreign_keys = ON", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		if op != tc.op || table != tc.table {
			t.Fatalf("%q: got (%s, %s), want (%s, %s)", tc.sql, op, table, tc.op, tc.table)
		}
	}
}
