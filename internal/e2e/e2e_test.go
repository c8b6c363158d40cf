//go:build e2e

// Package e2e boots the full dependency graph against Postgres and drives it
// over HTTP. Run with: go test -tags e2e ./internal/e2e/...
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creatorpay/internal/audit"
	"github.com/smallbiznis/creatorpay/internal/balance"
	"github.com/smallbiznis/creatorpay/internal/catalog"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/coupon"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/smallbiznis/creatorpay/internal/earning"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/smallbiznis/creatorpay/internal/gatewayconfig"
	"github.com/smallbiznis/creatorpay/internal/migration"
	"github.com/smallbiznis/creatorpay/internal/notification"
	"github.com/smallbiznis/creatorpay/internal/observability"
	"github.com/smallbiznis/creatorpay/internal/order"
	"github.com/smallbiznis/creatorpay/internal/payment"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/verotel"
	"github.com/smallbiznis/creatorpay/internal/providers"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	"github.com/smallbiznis/creatorpay/internal/recurring"
	"github.com/smallbiznis/creatorpay/internal/server"
	"github.com/smallbiznis/creatorpay/internal/settings"
	"github.com/smallbiznis/creatorpay/internal/settlement"
	"github.com/smallbiznis/creatorpay/internal/subscription"
	"github.com/smallbiznis/creatorpay/internal/wallet"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const adminToken = "e2e-admin-token"

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	relay   *events.Relay
	baseURL string
	httpSrv *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resetDatabase(t, env.db)

	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_WalletTipSettlesEarning(t *testing.T) {
	resetDatabase(t, env.db)
	node := newNode(t)
	userID, performerID := node.Generate(), node.Generate()
	dbtest.SeedUser(t, env.db, userID, "50")
	dbtest.SeedPerformer(t, env.db, performerID, "9.99", "99.00")

	resp, body := doJSON(t, http.MethodPost, "/api/wallet/tips", map[string]any{
		"performer_id": performerID.String(),
		"amount":       "15",
	}, userHeaders(userID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	drainOutbox(t)
	if got := countRows(t, env.db, "earnings", "performer_id = ? AND source_type = ?", performerID, "tip"); got != 1 {
		t.Fatalf("expected one tip earning, got %d", got)
	}
	if got := countRows(t, env.db, "outbox_events", "published_at IS NULL"); got != 0 {
		t.Fatalf("expected drained outbox, got %d pending", got)
	}
}

func TestE2E_VerotelSubscriptionLifecycle(t *testing.T) {
	resetDatabase(t, env.db)
	node := newNode(t)
	userID, performerID := node.Generate(), node.Generate()
	dbtest.SeedUser(t, env.db, userID, "0")
	dbtest.SeedPerformer(t, env.db, performerID, "9.99", "99.00")

	resp, body := doJSON(t, http.MethodPut, "/admin/gateways/verotel", map[string]any{
		"config": map[string]any{"shop_id": "55", "signature_key": "e2e-verotel-key"},
	}, map[string]string{server.HeaderAdminToken: adminToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("configure gateway: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, "/api/orders/subscriptions", map[string]any{
		"performer_id": performerID.String(),
		"period":       "monthly",
		"gateway":      "verotel",
	}, userHeaders(userID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: %d %s", resp.StatusCode, body)
	}
	var order struct {
		Data struct {
			ID snowflake.ID `json:"id"`
		} `json:"data"`
	}
	decode(t, body, &order)

	resp, body = doJSON(t, http.MethodPost, "/api/transactions", map[string]any{
		"order_id": order.Data.ID.String(),
	}, userHeaders(userID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: %d %s", resp.StatusCode, body)
	}
	var checkout struct {
		Data struct {
			TransactionID snowflake.ID `json:"transaction_id"`
			PaymentURL    string       `json:"payment_url"`
		} `json:"data"`
	}
	decode(t, body, &checkout)
	if checkout.Data.PaymentURL == "" {
		t.Fatalf("expected a hosted payment url")
	}

	postback := url.Values{
		"type":          {"subscription"},
		"event":         {"initial"},
		"saleID":        {"E2E-1"},
		"referenceID":   {checkout.Data.TransactionID.String()},
		"priceAmount":   {"9.99"},
		"transactionID": {"VT-1"},
	}
	postback.Set("signature", verotel.Sign("e2e-verotel-key", postback))
	for i := 0; i < 2; i++ {
		resp, body = doJSON(t, http.MethodGet, "/webhooks/verotel?"+postback.Encode(), nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("postback %d: %d %s", i, resp.StatusCode, body)
		}
	}

	drainOutbox(t)
	if got := countRows(t, env.db, "transactions", "id = ? AND status = ?", checkout.Data.TransactionID, "success"); got != 1 {
		t.Fatalf("expected successful transaction")
	}
	if got := countRows(t, env.db, "subscriptions", "user_id = ? AND performer_id = ? AND status = ?", userID, performerID, "active"); got != 1 {
		t.Fatalf("expected active subscription, got %d", got)
	}
	if got := countRows(t, env.db, "earnings", "transaction_id = ?", checkout.Data.TransactionID); got != 1 {
		t.Fatalf("duplicate postback must settle once, got %d earnings", got)
	}
	if got := countRows(t, env.db, "audit_logs", "action = ?", "gateway_config.upsert"); got != 1 {
		t.Fatalf("expected gateway config audit entry, got %d", got)
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		cfg    config.Config
		relay  *events.Relay
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,
		events.Module,
		settings.Module,
		catalog.Module,
		balance.Module,
		coupon.Module,
		gatewayconfig.Module,
		order.Module,
		payment.Module,
		earning.Module,
		subscription.Module,
		wallet.Module,
		recurring.Module,
		notification.Module,
		settlement.Module,
		audit.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(9)
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &cfg, &relay),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	if strings.ToLower(strings.TrimSpace(cfg.DBType)) != "postgres" {
		_ = app.Stop(context.Background())
		return nil, fmt.Errorf("expected postgres db, got %s", cfg.DBType)
	}

	httpSrv := httptest.NewServer(srv.Engine())
	return &testEnv{
		app:     app,
		db:      dbConn,
		relay:   relay,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("GATEWAY_CONFIG_SECRET", "e2e-gateway-secret")
	setEnvIfEmpty("ADMIN_TOKEN", adminToken)
	setEnvIfEmpty("OTEL_ENABLED", "false")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	type tableRow struct {
		Name string `gorm:"column:tablename"`
	}
	var rows []tableRow
	if err := dbConn.Raw(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`,
	).Scan(&rows).Error; err != nil {
		t.Fatalf("list tables: %v", err)
	}
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Name) != "" {
			tables = append(tables, `"`+row.Name+`"`)
		}
	}
	if len(tables) == 0 {
		return
	}
	if err := dbConn.Exec("TRUNCATE TABLE " + strings.Join(tables, ", ") + " CASCADE").Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func drainOutbox(t *testing.T) {
	t.Helper()
	if _, err := env.relay.Drain(context.Background()); err != nil {
		t.Fatalf("drain outbox: %v", err)
	}
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return node
}

func userHeaders(id snowflake.ID) map[string]string {
	return map[string]string{server.HeaderUserID: id.String()}
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func decode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func doJSON(t *testing.T, method, path string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
