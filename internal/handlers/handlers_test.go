package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/doris-payments/internal/aws/awstest"
	"github.com/imrishuroy/doris-payments/internal/courses"
	"github.com/imrishuroy/doris-payments/internal/notifylog"
	"github.com/imrishuroy/doris-payments/internal/orders"
	"github.com/imrishuroy/doris-payments/internal/payments"
	"github.com/imrishuroy/doris-payments/internal/payuni"
	"github.com/imrishuroy/doris-payments/internal/storage"
)

const adminToken = "admin-token"

type testEnv struct {
	router  *gin.Engine
	gateway *payuni.Client
	db      *awstest.DynamoDB
	orders  *orders.Store
}

func newTestEnv(t *testing.T, withUploads bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := func() time.Time { return time.Unix(1700000000, 0) }

	gateway, err := payuni.New(payuni.Config{
		MerchantID: "S01421169",
		HashKey:    "12345678901234567890123456789012",
		HashIV:     "1234567890123456",
		Now:        now,
	})
	require.NoError(t, err)

	db := awstest.NewDynamoDB()
	db.CreateTable("orders", "order_no")
	db.CreateTable("courses", "slug")
	db.CreateTable("payment_notifications", "notification_id")
	item, err := attributevalue.MarshalMap(courses.Course{Slug: "go-101", Title: "Go Basics", Price: 1280, Published: true})
	require.NoError(t, err)
	db.Seed("courses", item)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ordersStore := orders.NewStore(db, "orders")
	catalog := courses.NewStore(db, "courses")
	svc := payments.NewService(payments.Config{
		Gateway:     gateway,
		Orders:      ordersStore,
		Catalog:     catalog,
		Log:         notifylog.NewStore(db, "payment_notifications", time.Hour),
		Logger:      logger,
		OrderPrefix: "DORIS",
		NotifyURL:   "https://api.example.com/payments/notify",
		ReturnURL:   "https://api.example.com/payments/return",
		Now:         now,
	})

	cfg := HandlerConfig{
		Payments:    svc,
		Orders:      ordersStore,
		Courses:     catalog,
		AdminToken:  adminToken,
		FrontendURL: "https://shop.example.com/",
		Logger:      logger,
	}
	if withUploads {
		cfg.Presigner = storage.NewPresigner(&awstest.S3Presign{BaseURL: "https://bucket.s3.amazonaws.com"}, "bucket", "courses", "https://cdn.example.com")
	}
	return &testEnv{router: NewRouter(cfg), gateway: gateway, db: db, orders: ordersStore}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) checkout(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"email":"student@example.com","course_slugs":["go-101"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := e.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		OrderNo string `json:"order_no"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.OrderNo
}

func (e *testEnv) envelope(t *testing.T, orderNo, status string) url.Values {
	t.Helper()
	enc, err := e.gateway.Encrypt(url.Values{
		"MerID":       {"S01421169"},
		"MerTradeNo":  {orderNo},
		"TradeNo":     {"PAYUNI-0001"},
		"TradeAmt":    {"1280"},
		"TradeStatus": {status},
	})
	require.NoError(t, err)
	return url.Values{"MerID": {"S01421169"}, "Version": {payuni.Version}, "EncryptInfo": {enc}, "HashInfo": {e.gateway.Hash(enc)}}
}

func formPost(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, false)
	w := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestListCourses(t *testing.T) {
	e := newTestEnv(t, false)
	w := e.do(httptest.NewRequest(http.MethodGet, "/courses", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"courses":[{"slug":"go-101","title":"Go Basics","price":1280}]}`, w.Body.String())
}

func TestCheckout_JSON(t *testing.T) {
	e := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"email":"student@example.com","course_slugs":["go-101"],"payment_method":"atm"}`))
	req.Header.Set("Content-Type", "application/json")
	w := e.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		OrderNo string `json:"order_no"`
		Amount  int64  `json:"amount"`
		Form    struct {
			Action string            `json:"action"`
			Fields map[string]string `json:"fields"`
		} `json:"form"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "DORIS1700000000", body.OrderNo)
	assert.Equal(t, int64(1280), body.Amount)
	assert.Equal(t, payuni.SandboxURL, body.Form.Action)
	assert.Equal(t, "S01421169", body.Form.Fields["MerID"])
	assert.Equal(t, e.gateway.Hash(body.Form.Fields["EncryptInfo"]), body.Form.Fields["HashInfo"])
	assert.Equal(t, "/orders/DORIS1700000000", w.Header().Get("Location"))
}

func TestCheckout_HTMLAutoSubmit(t *testing.T) {
	e := newTestEnv(t, false)
	req := formPost("/checkout", url.Values{"email": {"student@example.com"}, "course_slugs": {"go-101"}})
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := e.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `action="`+payuni.SandboxURL+`"`)
	assert.Contains(t, w.Body.String(), `name="EncryptInfo"`)
	assert.Contains(t, w.Body.String(), "document.forms[0].submit()")
}

func TestCheckout_Rejections(t *testing.T) {
	e := newTestEnv(t, false)

	for body, want := range map[string]int{
		`{"email":"student@example.com","course_slugs":["missing"]}`: http.StatusUnprocessableEntity,
		`{"email":"student@example.com","course_slugs":[]}`:          http.StatusBadRequest,
		`{"email":"nope","course_slugs":["go-101"]}`:                 http.StatusBadRequest,
		`not json`: http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, want, e.do(req).Code, body)
	}
	assert.Equal(t, 0, e.db.Len("orders"))
}

func TestNotify_PaidThenRedelivered(t *testing.T) {
	e := newTestEnv(t, false)
	orderNo := e.checkout(t)
	form := e.envelope(t, orderNo, payuni.TradeStatusPaid)

	for i := 0; i < 2; i++ {
		w := e.do(formPost("/payments/notify", form))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "SUCCESS", w.Body.String())
	}

	o, err := e.orders.Get(context.Background(), orderNo)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
}

func TestNotify_Rejections(t *testing.T) {
	e := newTestEnv(t, false)
	orderNo := e.checkout(t)

	tampered := e.envelope(t, orderNo, payuni.TradeStatusPaid)
	tampered.Set("HashInfo", strings.Repeat("A", 64))
	w := e.do(formPost("/payments/notify", tampered))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"hash_mismatch"}`, w.Body.String())

	garbage := url.Values{"EncryptInfo": {"zz"}, "HashInfo": {e.gateway.Hash("zz")}}
	w = e.do(formPost("/payments/notify", garbage))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"malformed_payload"}`, w.Body.String())

	w = e.do(formPost("/payments/notify", url.Values{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	o, err := e.orders.Get(context.Background(), orderNo)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestNotify_StoreFailureAsksForRedelivery(t *testing.T) {
	e := newTestEnv(t, false)
	orderNo := e.checkout(t)
	form := e.envelope(t, orderNo, payuni.TradeStatusPaid)
	e.db.Err = errors.New("throttled")

	w := e.do(formPost("/payments/notify", form))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"reconcile_failed"}`, w.Body.String())
}

func TestReturn_RedirectsWithoutMutating(t *testing.T) {
	e := newTestEnv(t, false)
	orderNo := e.checkout(t)

	w := e.do(formPost("/payments/return", e.envelope(t, orderNo, payuni.TradeStatusPaid)))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://shop.example.com/checkout/result?order_no="+orderNo+"&status=paid", w.Header().Get("Location"))

	o, err := e.orders.Get(context.Background(), orderNo)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)

	w = e.do(formPost("/payments/return", url.Values{"EncryptInfo": {"x"}, "HashInfo": {"y"}}))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://shop.example.com/checkout/result?status=invalid", w.Header().Get("Location"))
}

func TestGetOrder(t *testing.T) {
	e := newTestEnv(t, false)
	orderNo := e.checkout(t)

	w := e.do(httptest.NewRequest(http.MethodGet, "/orders/"+orderNo+"?email=Student@Example.com", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, float64(1280), body["amount"])
	assert.NotContains(t, body, "email")

	for _, path := range []string{
		"/orders/" + orderNo + "?email=other@example.com",
		"/orders/" + orderNo,
		"/orders/DORIS1?email=student@example.com",
	} {
		assert.Equal(t, http.StatusNotFound, e.do(httptest.NewRequest(http.MethodGet, path, nil)).Code, path)
	}
}

func TestPresignUpload(t *testing.T) {
	e := newTestEnv(t, true)
	body := `{"filename":"cover.png","content_type":"image/png"}`

	req := httptest.NewRequest(http.MethodPost, "/admin/uploads/presign", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnauthorized, e.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/uploads/presign", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := e.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res storage.PresignResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, strings.HasPrefix(res.Key, "courses/"))
	assert.Equal(t, "https://cdn.example.com/"+res.Key, res.PublicURL)

	req = httptest.NewRequest(http.MethodPost, "/admin/uploads/presign", strings.NewReader(`{"filename":"run.exe","content_type":"application/octet-stream"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusBadRequest, e.do(req).Code)
}

func TestPresignUpload_DisabledWithoutBucket(t *testing.T) {
	e := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodPost, "/admin/uploads/presign", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusNotFound, e.do(req).Code)
}

func TestNotify_PaidWithoutAmountAsksForRedelivery(t *testing.T) {
	e := newTestEnv(t, false)
	orderNo := e.checkout(t)
	enc, err := e.gateway.Encrypt(url.Values{
		"MerID":       {"S01421169"},
		"MerTradeNo":  {orderNo},
		"TradeNo":     {"PAYUNI-0001"},
		"TradeStatus": {payuni.TradeStatusPaid},
	})
	require.NoError(t, err)

	w := e.do(formPost("/payments/notify", url.Values{"EncryptInfo": {enc}, "HashInfo": {e.gateway.Hash(enc)}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"malformed_payload"}`, w.Body.String())

	o, err := e.orders.Get(context.Background(), orderNo)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}
