package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/database"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/payment"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/ratelimit"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/repository"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/security"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeProvider stands in for a card network: it captures, polls and sends webhooks
// signed with a fixed header value.
type fakeProvider struct {
	mu       sync.Mutex
	seq      int
	statuses map[string]payment.Status
	captures int
	fetchErr error
	block    bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{statuses: make(map[string]payment.Status)}
}

func (f *fakeProvider) Name() domain.Provider { return domain.ProviderStripe }

func (f *fakeProvider) CreatePayment(_ context.Context, _ decimal.Decimal, _ string, _ map[string]string) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ref := fmt.Sprintf("pi_%d", f.seq)
	f.statuses[ref] = payment.StatusPending
	return &payment.Intent{Reference: ref, Status: payment.StatusPending, ClientSecret: ref + "_secret"}, nil
}

func (f *fakeProvider) FetchStatus(ctx context.Context, ref string) (payment.Status, error) {
	f.mu.Lock()
	block, err, st := f.block, f.fetchErr, f.statuses[ref]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return st, err
}

func (f *fakeProvider) Capture(_ context.Context, ref string) (payment.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	f.statuses[ref] = payment.StatusSucceeded
	return payment.StatusSucceeded, nil
}

func (f *fakeProvider) ParseWebhook(_ context.Context, payload []byte, headers http.Header) (*payment.Event, error) {
	if headers.Get("X-Test-Signature") != "valid" {
		return nil, domain.ErrInvalidSignature
	}
	var body struct {
		Type   string `json:"type"`
		Ref    string `json:"ref"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.Invalid("%v", err)
	}
	if body.Type == "ignored" {
		return nil, nil
	}
	return &payment.Event{Type: body.Type, Reference: body.Ref, Status: payment.Status(body.Status)}, nil
}

func (f *fakeProvider) set(ref string, st payment.Status) {
	f.mu.Lock()
	f.statuses[ref] = st
	f.mu.Unlock()
}

func webhook(ref string, st payment.Status) []byte {
	return []byte(fmt.Sprintf(`{"type":"test.event","ref":%q,"status":%q}`, ref, st))
}

func signed() http.Header {
	h := http.Header{}
	h.Set("X-Test-Signature", "valid")
	return h
}

type testEnv struct {
	db        *gorm.DB
	users     *repository.UserRepository
	purchases *repository.PurchaseRepository
	clock     *fakeClock
	provider  *fakeProvider
	course    *domain.Course

	auth       *AuthUseCase
	ledger     *PurchaseUseCase
	reconciler *ReconcileUseCase
	access     *AccessUseCase
	progress   *ProgressUseCase
	admin      *AdminUseCase
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "usecase.db")), &gorm.Config{
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

	log := zap.NewNop()
	clock := &fakeClock{t: time.Now().Truncate(time.Second)}
	users := repository.NewUserRepository(db)
	courses := repository.NewCourseRepository(db)
	purchases := repository.NewPurchaseRepository(db)
	settings := repository.NewSettingRepository(db)
	progress := repository.NewProgressRepository(db)

	course := &domain.Course{
		Slug:        "forex-101",
		Name:        "Forex 101",
		Price:       decimal.RequireFromString("199.00"),
		Currency:    "PLN",
		IsPublished: true,
		Lessons: []domain.Lesson{
			{Title: "Welcome", VideoURL: "videos/forex-101/1.m3u8", IsFreePreview: true, IsPublished: true, Position: 1},
			{Title: "Leverage", VideoURL: "videos/forex-101/2.m3u8", IsPublished: true, Position: 2},
		},
	}
	if err := courses.Create(context.Background(), course); err != nil {
		t.Fatalf("seed course: %v", err)
	}

	provider := newFakeProvider()
	registry := payment.NewRegistry(provider, payment.NewManual())
	tokens := security.NewTokenManager("test-secret", 24*time.Hour, time.Hour).WithClock(clock.Now)
	governor := ratelimit.NewGovernor(ratelimit.NewMemoryStore(), clock.Now)

	auth := NewAuthUseCase(users, settings, security.NewPasswordHasherWithCost(4), tokens, log)
	auth.now = clock.Now
	ledger := NewPurchaseUseCase(courses, purchases, registry, log)
	reconciler := NewReconcileUseCase(ledger, registry, 500*time.Millisecond, log)
	progressUC := NewProgressUseCase(courses, purchases, progress)
	progressUC.now = clock.Now

	return &testEnv{
		db:         db,
		users:      users,
		purchases:  purchases,
		clock:      clock,
		provider:   provider,
		course:     course,
		auth:       auth,
		ledger:     ledger,
		reconciler: reconciler,
		access:     NewAccessUseCase(courses, purchases, tokens, governor, 10, time.Minute, log),
		progress:   progressUC,
		admin:      NewAdminUseCase(users, settings, ledger, reconciler, log),
	}
}

func (e *testEnv) register(t *testing.T, email string) Principal {
	t.Helper()
	sess, err := e.auth.Register(context.Background(), RegisterInput{Email: email, Password: "secret1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return Principal{UserID: uuid.MustParse(sess.User.ID), Email: sess.User.Email, Role: sess.User.Role}
}

func (e *testEnv) paidLesson() uuid.UUID { return e.course.Lessons[1].ID }
func (e *testEnv) freeLesson() uuid.UUID { return e.course.Lessons[0].ID }
