package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waste3d/courseplatform-api/internal/application/usecase"
	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/database"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/payment"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/ratelimit"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/repository"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/security"
	"github.com/waste3d/courseplatform-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const webhookSecret = "whsec_test"

type testServer struct {
	router *gin.Engine
	admin  *usecase.AdminUseCase
	course *domain.Course
}

func fakeStripe(t *testing.T) *httptest.Server {
	t.Helper()
	var seq atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents" {
			n := seq.Add(1)
			fmt.Fprintf(w, `{"id":"pi_%d","status":"requires_payment_method","client_secret":"pi_%d_secret"}`, n, n)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "http.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	courses := repository.NewCourseRepository(db)
	purchases := repository.NewPurchaseRepository(db)
	settings := repository.NewSettingRepository(db)
	progress := repository.NewProgressRepository(db)

	course := &domain.Course{
		Slug: "forex-101", Name: "Forex 101", Price: decimal.RequireFromString("199.00"), Currency: "PLN", IsPublished: true,
		Lessons: []domain.Lesson{
			{Title: "Welcome", VideoURL: "videos/1.m3u8", IsFreePreview: true, IsPublished: true, Position: 1},
			{Title: "Leverage", VideoURL: "videos/2.m3u8", IsPublished: true, Position: 2},
		},
	}
	if err := courses.Create(context.Background(), course); err != nil {
		t.Fatalf("seed: %v", err)
	}

	log := zap.NewNop()
	stripe := payment.NewStripe(payment.StripeConfig{
		SecretKey: "sk_test", WebhookSecret: webhookSecret, APIURL: fakeStripe(t).URL, Timeout: time.Second,
	})
	registry := payment.NewRegistry(stripe, payment.NewManual())
	tokens := security.NewTokenManager("test-secret", 24*time.Hour, time.Hour)
	governor := ratelimit.NewGovernor(ratelimit.NewMemoryStore(), nil)

	auth := usecase.NewAuthUseCase(users, settings, security.NewPasswordHasherWithCost(4), tokens, log)
	ledger := usecase.NewPurchaseUseCase(courses, purchases, registry, log)
	reconciler := usecase.NewReconcileUseCase(ledger, registry, time.Second, log)
	access := usecase.NewAccessUseCase(courses, purchases, tokens, governor, 10, time.Minute, log)
	admin := usecase.NewAdminUseCase(users, settings, ledger, reconciler, log)

	router := NewRouter(Handlers{
		Auth:     NewAuthHandler(auth, false, log),
		Purchase: NewPurchaseHandler(ledger, reconciler, log),
		Lesson:   NewLessonHandler(access, usecase.NewProgressUseCase(courses, purchases, progress), nil, log),
		Admin:    NewAdminHandler(admin, log),
	}, auth, middleware.NewRateLimiter(governor, log), RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		LoginLimit:     5,
		LoginWindow:    time.Minute,
	}, log)

	return &testServer{router: router, admin: admin, course: course}
}

type response struct {
	code   int
	header http.Header
	body   map[string]any
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers map[string]string) response {
	t.Helper()
	var buf []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		buf = b
	default:
		buf, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := response{code: w.Code, header: w.Header()}
	json.Unmarshal(w.Body.Bytes(), &out.body)
	return out
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": email, "password": "secret1", "name": "Alice"}, nil)
	if res.code != http.StatusOK {
		t.Fatalf("register %s: %d %v", email, res.code, res.body)
	}
	res = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "secret1"}, nil)
	if res.code != http.StatusOK {
		t.Fatalf("login %s: %d %v", email, res.code, res.body)
	}
	return res.body["token"].(string)
}

func stripeWebhook(ref, eventType string) ([]byte, map[string]string) {
	payload := []byte(fmt.Sprintf(`{"id":"evt_%s","object":"event","type":%q,"data":{"object":{"id":%q,"object":"payment_intent"}}}`, ref, eventType, ref))
	return payload, map[string]string{
		"Stripe-Signature": payment.SignStripePayload(webhookSecret, payload, time.Now()),
	}
}

func purchaseField(res response, key string) string {
	p, _ := res.body["purchase"].(map[string]any)
	s, _ := p[key].(string)
	return s
}

func TestPurchaseToContentAccess(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice@example.com")
	paid := s.course.Lessons[1].ID.String()

	res := s.do(t, http.MethodGet, "/api/v1/lessons/"+paid+"/access-token", token, nil, nil)
	if res.code != http.StatusForbidden || res.body["code"] != "ACCESS_DENIED" {
		t.Fatalf("before purchase: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodPost, "/api/v1/purchases", token, gin.H{"course_slug": "forex-101", "provider": "stripe"}, nil)
	if res.code != http.StatusOK || purchaseField(res, "status") != "PENDING" {
		t.Fatalf("checkout: %d %v", res.code, res.body)
	}
	if res.body["client_secret"] == nil || purchaseField(res, "amount") != "199.00" {
		t.Fatalf("checkout body: %v", res.body)
	}
	ref := purchaseField(res, "reference")

	payload, headers := stripeWebhook(ref, "payment_intent.succeeded")
	res = s.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", "", payload, headers)
	if res.code != http.StatusOK {
		t.Fatalf("webhook: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodGet, "/api/v1/purchases/"+ref, token, nil, nil)
	if res.code != http.StatusOK || purchaseField(res, "status") != "COMPLETED" {
		t.Fatalf("status: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodGet, "/api/v1/lessons/"+paid+"/access-token", token, nil, nil)
	if res.code != http.StatusOK || res.body["token"] == "" || res.body["video_url"] != "videos/2.m3u8" {
		t.Fatalf("access token: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodPost, "/api/v1/purchases", token, gin.H{"course_slug": "forex-101", "provider": "stripe"}, nil)
	if res.code != http.StatusBadRequest || res.body["code"] != "ALREADY_OWNED" {
		t.Fatalf("second checkout: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodGet, "/api/v1/purchases", token, nil, nil)
	if list, _ := res.body["purchases"].([]any); res.code != http.StatusOK || len(list) != 1 {
		t.Fatalf("history: %d %v", res.code, res.body)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/purchases", token, gin.H{"course_slug": "forex-101", "provider": "stripe"}, nil)
	ref := purchaseField(res, "reference")

	payload, _ := stripeWebhook(ref, "payment_intent.succeeded")
	res = s.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", "", payload, map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	if res.code != http.StatusBadRequest || res.body["code"] != "INVALID_SIGNATURE" {
		t.Fatalf("bad signature: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodGet, "/api/v1/purchases/"+ref, token, nil, nil)
	if purchaseField(res, "status") != "PENDING" {
		t.Fatalf("purchase changed by forged webhook: %v", res.body)
	}

	payload, headers := stripeWebhook("pi_unknown", "payment_intent.succeeded")
	res = s.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", "", payload, headers)
	if res.code != http.StatusNotFound {
		t.Fatalf("unknown reference: %d %v", res.code, res.body)
	}
}

func TestContentTokenRateLimit(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice@example.com")
	free := "/api/v1/lessons/" + s.course.Lessons[0].ID.String() + "/access-token"
	ip := map[string]string{"X-Forwarded-For": "203.0.113.5"}

	for i := 1; i <= 10; i++ {
		res := s.do(t, http.MethodGet, free, token, nil, ip)
		if res.code != http.StatusOK {
			t.Fatalf("call %d: %d %v", i, res.code, res.body)
		}
		if got := res.header.Get("X-RateLimit-Remaining"); got != strconv.Itoa(10-i) {
			t.Fatalf("call %d: remaining header %q", i, got)
		}
	}

	res := s.do(t, http.MethodGet, free, token, nil, ip)
	if res.code != http.StatusTooManyRequests || res.body["code"] != "RATE_LIMITED" {
		t.Fatalf("11th call: %d %v", res.code, res.body)
	}
	if res.header.Get("X-RateLimit-Remaining") != "0" || res.header.Get("Retry-After") == "" {
		t.Fatalf("missing limit headers: %v", res.header)
	}
}

func TestAuthErrors(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "alice@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "bad", "password": "secret1", "name": "Al"}, nil)
	if res.code != http.StatusBadRequest || res.body["success"] != false {
		t.Fatalf("invalid register: %d %v", res.code, res.body)
	}
	res = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "alice@example.com", "password": "secret1", "name": "Alice"}, nil)
	if res.code != http.StatusBadRequest || res.body["code"] != "CONFLICT" {
		t.Fatalf("duplicate register: %d %v", res.code, res.body)
	}
	res = s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil, nil)
	if res.code != http.StatusUnauthorized {
		t.Fatalf("me without token: %d", res.code)
	}
	res = s.do(t, http.MethodPost, "/api/v1/purchases/verify", "garbage.token.value", gin.H{"reference": "x"}, nil)
	if res.code != http.StatusUnauthorized {
		t.Fatalf("forged token: %d", res.code)
	}

	ip := map[string]string{"X-Forwarded-For": "198.51.100.20"}
	for i := 0; i < 5; i++ {
		res = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "nope"}, ip)
		if res.code != http.StatusUnauthorized || res.body["code"] != "INVALID_CREDENTIALS" {
			t.Fatalf("login %d: %d %v", i+1, res.code, res.body)
		}
	}
	res = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret1"}, ip)
	if res.code != http.StatusTooManyRequests {
		t.Fatalf("login throttle: %d", res.code)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	userToken := s.login(t, "alice@example.com")
	adminToken := s.login(t, "root@example.com")
	if _, err := s.admin.GrantRole(context.Background(), "root@example.com", domain.RoleAdmin); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	// роль берётся из базы, старый токен уже админский
	res := s.do(t, http.MethodPut, "/api/v1/admin/settings/registration", userToken, gin.H{"enabled": false}, nil)
	if res.code != http.StatusForbidden {
		t.Fatalf("user on admin route: %d", res.code)
	}
	res = s.do(t, http.MethodPut, "/api/v1/admin/settings/registration", adminToken, gin.H{"enabled": false}, nil)
	if res.code != http.StatusOK {
		t.Fatalf("toggle registration: %d %v", res.code, res.body)
	}
	res = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "carol@example.com", "password": "secret1", "name": "Carol"}, nil)
	if res.code != http.StatusForbidden || res.body["code"] != "REGISTRATION_DISABLED" {
		t.Fatalf("register while disabled: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodPost, "/api/v1/purchases", userToken, gin.H{"course_slug": "forex-101", "provider": "manual"}, nil)
	ref := purchaseField(res, "reference")
	res = s.do(t, http.MethodPost, "/api/v1/admin/purchases/"+ref+"/confirm", adminToken, nil, nil)
	if res.code != http.StatusOK || purchaseField(res, "status") != "COMPLETED" {
		t.Fatalf("confirm: %d %v", res.code, res.body)
	}

	paid := s.course.Lessons[1].ID.String()
	res = s.do(t, http.MethodPost, "/api/v1/lessons/"+paid+"/progress", userToken, gin.H{"progress_percent": 95, "last_position": 700}, nil)
	if res.code != http.StatusOK || res.body["is_completed"] != true {
		t.Fatalf("progress: %d %v", res.code, res.body)
	}

	res = s.do(t, http.MethodGet, "/api/v1/auth/me", userToken, nil, nil)
	user, _ := res.body["user"].(map[string]any)
	aliceID, _ := user["id"].(string)
	res = s.do(t, http.MethodPut, "/api/v1/admin/users/"+aliceID+"/active", adminToken, gin.H{"active": false}, nil)
	if res.code != http.StatusOK {
		t.Fatalf("deactivate: %d %v", res.code, res.body)
	}
	for _, path := range []string{"/api/v1/purchases", "/api/v1/lessons/" + paid + "/access-token"} {
		res = s.do(t, http.MethodGet, path, userToken, nil, nil)
		if res.code != http.StatusForbidden || res.body["code"] != "ACCOUNT_DISABLED" {
			t.Fatalf("deactivated session on %s: %d %v", path, res.code, res.body)
		}
	}
}

func TestContentTokenRateLimitPerUser(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice@example.com")
	bob := s.login(t, "bob@example.com")
	free := "/api/v1/lessons/" + s.course.Lessons[0].ID.String() + "/access-token"

	// ни у кого нет X-Forwarded-For
	for i := 1; i <= 10; i++ {
		if res := s.do(t, http.MethodGet, free, alice, nil, nil); res.code != http.StatusOK {
			t.Fatalf("alice call %d: %d", i, res.code)
		}
	}
	if res := s.do(t, http.MethodGet, free, alice, nil, nil); res.code != http.StatusTooManyRequests {
		t.Fatalf("alice 11th call: %d", res.code)
	}
	res := s.do(t, http.MethodGet, free, bob, nil, nil)
	if res.code != http.StatusOK || res.header.Get("X-RateLimit-Remaining") != "9" {
		t.Fatalf("bob throttled by alice: %d remaining=%q", res.code, res.header.Get("X-RateLimit-Remaining"))
	}
}
