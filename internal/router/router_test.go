package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	webhookhandlers "github.com/dujiao-next/discount-engine/internal/http/handlers/webhook"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/provider"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testShop = "router-shop.example.com"

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func newFakePlatform(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/price_rules.json"):
			_, _ = io.WriteString(w, `{"price_rule":{"id":555}}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/batch.json"):
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"discount_code_creation":{"id":1}}`)
		case r.Method == http.MethodPut:
			_, _ = io.WriteString(w, `{"price_rule":{"id":555}}`)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/orders.json"):
			_, _ = io.WriteString(w, `{"orders":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupRouterTest(t *testing.T) (*gin.Engine, *provider.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))

	platformSrv := newFakePlatform(t)
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		Platform: config.PlatformConfig{
			BaseURLTemplate: platformSrv.URL + "/shops/%s/api/%s",
			APIVersion:      "test",
			TimeoutSeconds:  2,
			MaxRetries:      1,
			WebhookSecret:   "global-secret",
		},
		Engine: config.DefaultEngineConfig(),
	}
	c := provider.NewContainer(cfg, db)
	return SetupRouter(cfg, c), c
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// createSet 通过管理接口创建商户与活动，返回活动 ID
func createSet(t *testing.T, r http.Handler, quantity int, autoReplenish bool) uint {
	t.Helper()
	resp := decodeEnvelope(t, doJSON(t, r, http.MethodPost, "/api/v1/admin/merchants", gin.H{
		"shop_domain":    testShop,
		"access_token":   "shpat_router",
		"webhook_secret": "merchant-secret",
	}))
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var merchant models.Merchant
	require.NoError(t, json.Unmarshal(resp.Data, &merchant))

	resp = decodeEnvelope(t, doJSON(t, r, http.MethodPost, "/api/v1/admin/discount-sets", gin.H{
		"merchant_id":    merchant.ID,
		"title":          "Quiz reward",
		"code_prefix":    "QZ-",
		"code_length":    6,
		"quantity":       quantity,
		"discount_type":  "percentage",
		"value":          "10",
		"starts_at":      time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		"auto_replenish": autoReplenish,
		"button_style":   gin.H{"button_style_type": "custom", "standard_btn_text": "Show my code"},
	}))
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var created struct {
		Set   models.DiscountSet `json:"set"`
		Batch struct {
			Success bool                  `json:"success"`
			Created []models.DiscountCode `json:"created"`
		} `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.True(t, created.Batch.Success)
	require.Len(t, created.Batch.Created, quantity)
	require.Equal(t, "555", created.Set.PriceRuleID)
	return created.Set.ID
}

func TestProxyRevealLifecycle(t *testing.T) {
	r, _ := setupRouterTest(t)
	setID := createSet(t, r, 2, false)
	base := fmt.Sprintf("/api/v1/proxy/discounts/%d", setID)

	w := doJSON(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	code, _ := first["discountCode"].(string)
	require.True(t, strings.HasPrefix(code, "QZ-"))
	require.Len(t, code, len("QZ-")+6)
	require.Equal(t, "custom", first["button_style_type"])
	require.Equal(t, "Show my code", first["standard_btn_text"])

	w = doJSON(t, r, http.MethodGet, base+"/codes/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var repeat map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &repeat))
	require.Equal(t, code, repeat["discountCode"])

	w = doJSON(t, r, http.MethodGet, base+"/codes/"+code+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"codeStatus":true}`, w.Body.String())

	w = doJSON(t, r, http.MethodGet, base+"/codes/QZ-unknown/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"codeStatus":false}`, w.Body.String())

	w = doJSON(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusGone, w.Code)
	var exhausted map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exhausted))
	require.Contains(t, exhausted, "discountCode")
	require.Nil(t, exhausted["discountCode"])
	require.NotEmpty(t, exhausted["error"])

	w = doJSON(t, r, http.MethodGet, "/api/v1/proxy/discounts/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/proxy/discounts/9999", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxyDeactivatedSetIsLocked(t *testing.T) {
	r, _ := setupRouterTest(t)
	setID := createSet(t, r, 3, true)

	resp := decodeEnvelope(t, doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/admin/discount-sets/%d/deactivate", setID), nil))
	require.Equal(t, 0, resp.StatusCode)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/proxy/discounts/%d", setID), nil)
	require.Equal(t, http.StatusLocked, w.Code)

	resp = decodeEnvelope(t, doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/admin/discount-sets/%d", setID), nil))
	require.Equal(t, 0, resp.StatusCode)
	resp = decodeEnvelope(t, doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/admin/discount-sets/%d/activate", setID), nil))
	require.Equal(t, 404, resp.StatusCode)
}

func TestSetRevealedEndpoint(t *testing.T) {
	r, c := setupRouterTest(t)
	setID := createSet(t, r, 2, false)
	codes, _, err := c.DiscountSetService.ListCodes(t.Context(), setID, repository.DiscountCodeListFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.NotEmpty(t, codes)
	code := codes[0].Code

	w := doJSON(t, r, http.MethodPost, "/api/v1/proxy/codes/"+code+"/reveal?status=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true}`, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/proxy/codes/"+code+"/reveal?status=1", nil)
	require.JSONEq(t, `{"success":true}`, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/v1/proxy/codes/"+code+"/reveal?status=0", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/proxy/codes/NOPE/reveal?status=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":false}`, w.Body.String())

	row, err := c.CodeRepo.GetByCode(t.Context(), code)
	require.NoError(t, err)
	require.True(t, row.Revealed)
}

func TestOrderWebhookRecordsOnce(t *testing.T) {
	r, c := setupRouterTest(t)
	setID := createSet(t, r, 2, false)
	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/proxy/discounts/%d", setID), nil)
	var revealed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &revealed))
	code := revealed["discountCode"].(string)

	body := []byte(fmt.Sprintf(`{"id":820982911946154508,"total_price":"42.50","currency":"USD","discount_codes":[{"code":%q},{"code":"SOMEONE-ELSE"}]}`, code))
	send := func(secret string) envelope {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/orders/create", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(webhookhandlers.HeaderShopDomain, testShop)
		req.Header.Set(webhookhandlers.HeaderHmac, webhookhandlers.Sign(body, secret))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return decodeEnvelope(t, rec)
	}

	resp := send("wrong-secret")
	require.Equal(t, 401, resp.StatusCode)

	resp = send("merchant-secret")
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var result struct {
		Codes    int  `json:"codes"`
		Queued   bool `json:"queued"`
		Recorded struct {
			Credited   int `json:"credited"`
			Duplicates int `json:"duplicates"`
			Skipped    int `json:"skipped"`
		} `json:"recorded"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Equal(t, 2, result.Codes)
	require.False(t, result.Queued)
	require.Equal(t, 1, result.Recorded.Credited)
	require.Equal(t, 1, result.Recorded.Skipped)

	resp = send("merchant-secret")
	require.Equal(t, 0, resp.StatusCode)
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Equal(t, 0, result.Recorded.Credited)
	require.Equal(t, 1, result.Recorded.Duplicates)

	set, err := c.SetRepo.GetByID(t.Context(), setID)
	require.NoError(t, err)
	require.Equal(t, 1, set.UsageCount)
	require.Equal(t, "42.50", set.Revenue.String())

	resp = decodeEnvelope(t, doJSON(t, r, http.MethodGet, "/api/v1/admin/merchants/"+testShop+"/orders/820982911946154508", nil))
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
}

func TestAdminErrorMapping(t *testing.T) {
	r, _ := setupRouterTest(t)

	resp := decodeEnvelope(t, doJSON(t, r, http.MethodGet, "/api/v1/admin/discount-sets/0", nil))
	require.Equal(t, 400, resp.StatusCode)

	resp = decodeEnvelope(t, doJSON(t, r, http.MethodGet, "/api/v1/admin/discount-sets/77", nil))
	require.Equal(t, 404, resp.StatusCode)

	resp = decodeEnvelope(t, doJSON(t, r, http.MethodPost, "/api/v1/admin/discount-sets", gin.H{
		"merchant_id":   1,
		"title":         "missing merchant",
		"quantity":      5,
		"discount_type": "percentage",
		"value":         "10",
	}))
	require.Equal(t, 404, resp.StatusCode)

	resp = decodeEnvelope(t, doJSON(t, r, http.MethodGet, "/api/v1/admin/discount-sets?page=1&page_size=10", nil))
	require.Equal(t, 0, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := setupRouterTest(t)

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","database":"ok","redis":"disabled"}`, w.Body.String())

	setID := createSet(t, r, 1, false)
	doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/proxy/discounts/%d", setID), nil)

	w = doJSON(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "discount_reveals_total")
	require.Contains(t, w.Body.String(), "discount_codes_generated_total")
}
