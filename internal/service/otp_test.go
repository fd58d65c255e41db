package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/industrialcatalog/catalog-server/internal/database"
	"github.com/industrialcatalog/catalog-server/internal/metrics"
	"github.com/industrialcatalog/catalog-server/internal/model"
	"github.com/industrialcatalog/catalog-server/internal/repository"
)

const testBypassEmail = "qa@example.com"

type fixture struct {
	db       *database.DB
	admins   repository.AdminRepository
	sessions repository.OTPSessionRepository
	notifier *recordingNotifier
	clock    *fakeClock
	svc      *OTPService
}

func newFixture(t *testing.T, opts ...OTPOption) *fixture {
	t.Helper()
	db, err := database.Connect("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	f := &fixture{
		db:       db,
		admins:   repository.NewAdminRepository(db.DB),
		sessions: repository.NewOTPSessionRepository(db.DB),
		notifier: &recordingNotifier{},
		clock:    newFakeClock(),
	}
	opts = append([]OTPOption{WithClock(f.clock.Now)}, opts...)
	f.svc = NewOTPService(db, f.admins, f.sessions, f.notifier, OTPConfig{
		CodeTTL:         10 * time.Minute,
		MaxMintAttempts: 32,
		TestEmail:       testBypassEmail,
		AppName:         "Industrial Catalogue",
	}, opts...)
	return f
}

func (f *fixture) seed(t *testing.T, email string, active bool) *model.Admin {
	t.Helper()
	admin, err := f.admins.Create(context.Background(), model.CreateAdminParams{
		Email:     email,
		Role:      model.AdminRoleAdmin,
		FirstName: "Ada",
		LastName:  "Lovelace",
		IsActive:  active,
		CreatedAt: f.clock.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	return admin
}

func (f *fixture) storedSession(t *testing.T, adminID int64) *model.OTPSession {
	t.Helper()
	session, err := f.sessions.FindByAdminID(context.Background(), adminID)
	require.NoError(t, err)
	return session
}

func (f *fixture) issue(t *testing.T, admin *model.Admin) string {
	t.Helper()
	result, err := f.svc.IssueCode(context.Background(), admin.ID, admin.Email)
	require.NoError(t, err)
	require.Equal(t, IssueSent, result.Status)
	session := f.storedSession(t, admin.ID)
	require.NotNil(t, session)
	return session.Code
}

func TestOTPService_CheckAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	active := f.seed(t, "active@example.com", true)
	f.seed(t, "inactive@example.com", false)

	t.Run("active admin is found", func(t *testing.T) {
		result, err := f.svc.CheckAccount(ctx, "active@example.com")
		require.NoError(t, err)
		assert.Equal(t, AccountFound, result.Status)
		require.NotNil(t, result.Account)
		assert.Equal(t, active.ID, result.Account.ID)
		assert.Equal(t, model.AdminRoleAdmin, result.Account.Role)
	})

	t.Run("unknown email is not found", func(t *testing.T) {
		result, err := f.svc.CheckAccount(ctx, "ghost@example.com")
		require.NoError(t, err)
		assert.Equal(t, AccountNotFound, result.Status)
		assert.Nil(t, result.Account)
	})

	t.Run("inactive admin is deactivated", func(t *testing.T) {
		result, err := f.svc.CheckAccount(ctx, "inactive@example.com")
		require.NoError(t, err)
		assert.Equal(t, AccountDeactivated, result.Status)
		assert.Nil(t, result.Account)
	})

	t.Run("empty email is not found", func(t *testing.T) {
		result, err := f.svc.CheckAccount(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, AccountNotFound, result.Status)
	})

	t.Run("has no side effects", func(t *testing.T) {
		assert.Nil(t, f.storedSession(t, active.ID))
		assert.Zero(t, f.notifier.count())
	})
}

func TestOTPService_IssueThenVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seed(t, "buyer@example.com", true)

	code := f.issue(t, admin)
	assert.Len(t, code, 6)
	assert.NotEqual(t, TestBypassCode, code)

	msg := f.notifier.last()
	assert.Equal(t, "buyer@example.com", msg.To)
	assert.Contains(t, msg.Text, code)
	assert.Contains(t, msg.HTML, code)

	session := f.storedSession(t, admin.ID)
	assert.True(t, session.IsActive)
	assert.True(t, session.ExpiresAt.Equal(f.clock.Now().Add(10*time.Minute)))

	f.clock.Advance(time.Minute)
	result, err := f.svc.VerifyCode(ctx, admin.ID, code)
	require.NoError(t, err)
	require.Equal(t, VerifyAuthenticated, result.Status)
	require.NotNil(t, result.Admin)
	assert.Equal(t, admin.ID, result.Admin.ID)
	assert.Equal(t, "buyer@example.com", result.Admin.Email)
	assert.Equal(t, "Ada", result.Admin.FirstName)

	stored, err := f.admins.FindByID(ctx, admin.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, stored.LastLogin.Equal(f.clock.Now()))

	assert.False(t, f.storedSession(t, admin.ID).IsActive)
}

func TestOTPService_VerifyBeforeIssue(t *testing.T) {
	f := newFixture(t)
	admin := f.seed(t, "new@example.com", true)

	for _, code := range []string{"123456", "000000", "999999"} {
		result, err := f.svc.VerifyCode(context.Background(), admin.ID, code)
		require.NoError(t, err)
		assert.Equal(t, VerifyInvalid, result.Status)
		assert.Nil(t, result.Admin)
	}
}

func TestOTPService_VerifyRequiresArguments(t *testing.T) {
	f := newFixture(t)
	admin := f.seed(t, "args@example.com", true)
	code := f.issue(t, admin)

	result, err := f.svc.VerifyCode(context.Background(), 0, code)
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, result.Status)

	result, err = f.svc.VerifyCode(context.Background(), admin.ID, "")
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, result.Status)

	assert.True(t, f.storedSession(t, admin.ID).IsActive)
}

func TestOTPService_ReplayIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seed(t, "replay@example.com", true)
	code := f.issue(t, admin)

	first, err := f.svc.VerifyCode(ctx, admin.ID, code)
	require.NoError(t, err)
	assert.Equal(t, VerifyAuthenticated, first.Status)

	second, err := f.svc.VerifyCode(ctx, admin.ID, code)
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, second.Status)
}

func TestOTPService_WrongCodeKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCodeGenerator(&sequenceGenerator{codes: []string{"482913"}}))
	admin := f.seed(t, "typo@example.com", true)
	code := f.issue(t, admin)

	for _, wrong := range []string{"482914", "48291", "4829130", " 482913"} {
		result, err := f.svc.VerifyCode(ctx, admin.ID, wrong)
		require.NoError(t, err)
		assert.Equal(t, VerifyInvalid, result.Status, wrong)
	}
	assert.True(t, f.storedSession(t, admin.ID).IsActive)

	result, err := f.svc.VerifyCode(ctx, admin.ID, code)
	require.NoError(t, err)
	assert.Equal(t, VerifyAuthenticated, result.Status)
}

func TestOTPService_Expiry(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted just before expiry", func(t *testing.T) {
		f := newFixture(t)
		admin := f.seed(t, "early@example.com", true)
		code := f.issue(t, admin)

		f.clock.Advance(10*time.Minute - time.Second)
		result, err := f.svc.VerifyCode(ctx, admin.ID, code)
		require.NoError(t, err)
		assert.Equal(t, VerifyAuthenticated, result.Status)
	})

	t.Run("rejected at expiry", func(t *testing.T) {
		f := newFixture(t)
		admin := f.seed(t, "edge@example.com", true)
		code := f.issue(t, admin)

		f.clock.Advance(10 * time.Minute)
		result, err := f.svc.VerifyCode(ctx, admin.ID, code)
		require.NoError(t, err)
		assert.Equal(t, VerifyInvalid, result.Status)

		// Expired rows are left untouched.
		assert.True(t, f.storedSession(t, admin.ID).IsActive)
	})

	t.Run("rejected after expiry", func(t *testing.T) {
		f := newFixture(t)
		admin := f.seed(t, "late@example.com", true)
		code := f.issue(t, admin)

		f.clock.Advance(time.Hour)
		result, err := f.svc.VerifyCode(ctx, admin.ID, code)
		require.NoError(t, err)
		assert.Equal(t, VerifyInvalid, result.Status)
	})
}

func TestOTPService_ReissueOverwrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCodeGenerator(&sequenceGenerator{codes: []string{"111111", "222222"}}))
	admin := f.seed(t, "resend@example.com", true)

	first := f.issue(t, admin)
	f.clock.Advance(30 * time.Second)
	second := f.issue(t, admin)
	require.Equal(t, "111111", first)
	require.Equal(t, "222222", second)

	result, err := f.svc.VerifyCode(ctx, admin.ID, first)
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, result.Status)

	result, err = f.svc.VerifyCode(ctx, admin.ID, second)
	require.NoError(t, err)
	assert.Equal(t, VerifyAuthenticated, result.Status)
}

func TestOTPService_ReissueExtendsExpiry(t *testing.T) {
	f := newFixture(t)
	admin := f.seed(t, "extend@example.com", true)

	f.issue(t, admin)
	f.clock.Advance(8 * time.Minute)
	code := f.issue(t, admin)

	f.clock.Advance(5 * time.Minute)
	result, err := f.svc.VerifyCode(context.Background(), admin.ID, code)
	require.NoError(t, err)
	assert.Equal(t, VerifyAuthenticated, result.Status)
}

func TestOTPService_IssueAfterConsumeStartsOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seed(t, "again@example.com", true)

	code := f.issue(t, admin)
	result, err := f.svc.VerifyCode(ctx, admin.ID, code)
	require.NoError(t, err)
	require.Equal(t, VerifyAuthenticated, result.Status)

	next := f.issue(t, admin)
	assert.True(t, f.storedSession(t, admin.ID).IsActive)
	result, err = f.svc.VerifyCode(ctx, admin.ID, next)
	require.NoError(t, err)
	assert.Equal(t, VerifyAuthenticated, result.Status)
}

func TestOTPService_UniqueActiveCodes(t *testing.T) {
	t.Run("active code is redrawn for another admin", func(t *testing.T) {
		gen := &sequenceGenerator{codes: []string{"333333", "333333", "444444"}}
		f := newFixture(t, WithCodeGenerator(gen))
		a := f.seed(t, "a@example.com", true)
		b := f.seed(t, "b@example.com", true)

		assert.Equal(t, "333333", f.issue(t, a))
		assert.Equal(t, "444444", f.issue(t, b))
		assert.Equal(t, 3, gen.calls)
	})

	t.Run("concurrent mints never collide", func(t *testing.T) {
		f := newFixture(t)
		const n = 60
		admins := make([]*model.Admin, n)
		for i := range admins {
			admins[i] = f.seed(t, fmt.Sprintf("stress%02d@example.com", i), true)
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for _, admin := range admins {
			wg.Add(1)
			go func(admin *model.Admin) {
				defer wg.Done()
				result, err := f.svc.IssueCode(context.Background(), admin.ID, admin.Email)
				if err == nil && result.Status != IssueSent {
					err = fmt.Errorf("admin %d: status %s", admin.ID, result.Status)
				}
				errs <- err
			}(admin)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		seen := make(map[string]int64, n)
		for _, admin := range admins {
			session := f.storedSession(t, admin.ID)
			require.NotNil(t, session)
			if other, dup := seen[session.Code]; dup {
				t.Fatalf("admins %d and %d share code %s", other, admin.ID, session.Code)
			}
			seen[session.Code] = admin.ID
			assert.NotEqual(t, TestBypassCode, session.Code)
		}
	})
}

func TestOTPService_DeactivatedAdminNeverGetsCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seed(t, "gone@example.com", false)

	check, err := f.svc.CheckAccount(ctx, admin.Email)
	require.NoError(t, err)
	assert.Equal(t, AccountDeactivated, check.Status)

	result, err := f.svc.IssueCode(ctx, admin.ID, admin.Email)
	require.NoError(t, err)
	assert.Equal(t, IssueAdminNotFound, result.Status)
	assert.Nil(t, f.storedSession(t, admin.ID))
	assert.Zero(t, f.notifier.count())
}

func TestOTPService_IssueRejectsUnknownOrMismatched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seed(t, "real@example.com", true)

	result, err := f.svc.IssueCode(ctx, admin.ID+1000, "real@example.com")
	require.NoError(t, err)
	assert.Equal(t, IssueAdminNotFound, result.Status)

	result, err = f.svc.IssueCode(ctx, admin.ID, "attacker@example.com")
	require.NoError(t, err)
	assert.Equal(t, IssueAdminNotFound, result.Status)

	assert.Nil(t, f.storedSession(t, admin.ID))
	assert.Zero(t, f.notifier.count())
}

func TestOTPService_AdminDeactivatedAfterIssue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seed(t, "revoked@example.com", true)
	code := f.issue(t, admin)

	_, err := f.db.ExecContext(ctx, `UPDATE admins SET is_active = FALSE WHERE id = ?`, admin.ID)
	require.NoError(t, err)

	result, err := f.svc.VerifyCode(ctx, admin.ID, code)
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, result.Status)
	assert.True(t, f.storedSession(t, admin.ID).IsActive)
}

func TestOTPService_TestBypass(t *testing.T) {
	ctx := context.Background()

	t.Run("test email always receives the fixed code", func(t *testing.T) {
		f := newFixture(t)
		admin := f.seed(t, testBypassEmail, true)

		for i := 0; i < 3; i++ {
			assert.Equal(t, TestBypassCode, f.issue(t, admin))
		}
		assert.Contains(t, f.notifier.last().Text, TestBypassCode)

		result, err := f.svc.VerifyCode(ctx, admin.ID, TestBypassCode)
		require.NoError(t, err)
		assert.Equal(t, VerifyAuthenticated, result.Status)
	})

	t.Run("random draws skip the fixed code", func(t *testing.T) {
		f := newFixture(t, WithCodeGenerator(&sequenceGenerator{codes: []string{TestBypassCode, "654321"}}))
		admin := f.seed(t, "other@example.com", true)
		assert.Equal(t, "654321", f.issue(t, admin))
	})

	t.Run("disabled when no test email is configured", func(t *testing.T) {
		f := newFixture(t)
		f.svc.cfg.TestEmail = ""
		admin := f.seed(t, testBypassEmail, true)
		assert.NotEqual(t, TestBypassCode, f.issue(t, admin))
	})
}

func TestOTPService_DeliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.err = errors.New("smtp unavailable")
	admin := f.seed(t, "bounce@example.com", true)

	result, err := f.svc.IssueCode(ctx, admin.ID, admin.Email)
	require.NoError(t, err)
	assert.Equal(t, IssueDeliveryFailed, result.Status)
	assert.Empty(t, result.PreviewURL)

	// The row stays stored and the code remains usable until expiry.
	session := f.storedSession(t, admin.ID)
	require.NotNil(t, session)
	assert.True(t, session.IsActive)

	verify, err := f.svc.VerifyCode(ctx, admin.ID, session.Code)
	require.NoError(t, err)
	assert.Equal(t, VerifyAuthenticated, verify.Status)
}

func TestOTPService_PreviewURLIsSurfaced(t *testing.T) {
	f := newFixture(t)
	admin := f.seed(t, "dev@example.com", true)

	result, err := f.svc.IssueCode(context.Background(), admin.ID, admin.Email)
	require.NoError(t, err)
	assert.Equal(t, IssueSent, result.Status)
	assert.Equal(t, "file:///tmp/test.eml", result.PreviewURL)
	assert.Equal(t, "<test@example.com>", result.MessageID)
}

func TestOTPService_ConcurrentVerifySucceedsOnce(t *testing.T) {
	f := newFixture(t)
	admin := f.seed(t, "double@example.com", true)
	code := f.issue(t, admin)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan VerifyStatus, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := f.svc.VerifyCode(context.Background(), admin.ID, code)
			if err != nil {
				results <- "error"
				return
			}
			results <- result.Status
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	counts := map[VerifyStatus]int{}
	for status := range results {
		counts[status]++
	}
	assert.Equal(t, 1, counts[VerifyAuthenticated])
	assert.Equal(t, n-1, counts[VerifyInvalid])
}

func TestOTPService_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.cfg.TestEmail = "admin@example.com"

	_, err := f.db.ExecContext(ctx, `
		INSERT INTO admins (id, email, role, first_name, last_name, is_active, email_verified, created_at)
		VALUES (42, 'admin@example.com', 'super_admin', 'Grace', 'Hopper', 1, 1, ?)
	`, f.clock.Now().Add(-time.Hour))
	require.NoError(t, err)

	check, err := f.svc.CheckAccount(ctx, "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, AccountFound, check.Status)
	assert.Equal(t, int64(42), check.Account.ID)

	issue, err := f.svc.IssueCode(ctx, 42, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, IssueSent, issue.Status)
	session := f.storedSession(t, 42)
	assert.Equal(t, "123456", session.Code)
	assert.True(t, session.IsActive)
	assert.True(t, session.ExpiresAt.Equal(f.clock.Now().Add(10*time.Minute)))

	wrong, err := f.svc.VerifyCode(ctx, 42, "654321")
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, wrong.Status)
	assert.True(t, f.storedSession(t, 42).IsActive)

	ok, err := f.svc.VerifyCode(ctx, 42, "123456")
	require.NoError(t, err)
	require.Equal(t, VerifyAuthenticated, ok.Status)
	assert.Equal(t, model.AdminRoleSuperAdmin, ok.Admin.Role)
	assert.False(t, f.storedSession(t, 42).IsActive)

	admin, err := f.admins.FindByID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, admin.LastLogin)

	again, err := f.svc.VerifyCode(ctx, 42, "123456")
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, again.Status)
}

func TestOTPService_Metrics(t *testing.T) {
	reg := metrics.New()
	f := newFixture(t, WithMetrics(reg))
	admin := f.seed(t, "metrics@example.com", true)

	_, err := f.svc.CheckAccount(context.Background(), admin.Email)
	require.NoError(t, err)
	code := f.issue(t, admin)
	_, err = f.svc.VerifyCode(context.Background(), admin.ID, "000000")
	require.NoError(t, err)
	_, err = f.svc.VerifyCode(context.Background(), admin.ID, code)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.AccountChecks.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CodesIssued.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CodeVerifications.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CodeVerifications.WithLabelValues("authenticated")))
}

// Failure paths driven through mocks.

func activeAdmin() *model.Admin {
	return &model.Admin{ID: 7, Email: "mock@example.com", Role: model.AdminRoleAdmin, IsActive: true}
}

func newMockService(admins *mockAdminRepo, sessions *mockOTPSessionRepo, opts ...OTPOption) (*OTPService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	svc := NewOTPService(passthroughTx{}, admins, sessions, notifier, OTPConfig{AppName: "Test"}, opts...)
	return svc, notifier
}

func TestOTPService_CheckAccountStoreError(t *testing.T) {
	admins := &mockAdminRepo{}
	admins.On("FindByEmail", mock.Anything, "mock@example.com").Return(nil, errors.New("connection refused"))
	svc, _ := newMockService(admins, &mockOTPSessionRepo{})

	_, err := svc.CheckAccount(context.Background(), "mock@example.com")
	assert.ErrorContains(t, err, "connection refused")
}

func TestOTPService_MintExhausted(t *testing.T) {
	admins := &mockAdminRepo{}
	sessions := &mockOTPSessionRepo{}
	admins.On("FindByID", mock.Anything, int64(7)).Return(activeAdmin(), nil)
	sessions.On("IsCodeActive", mock.Anything, mock.Anything).Return(true, nil)

	svc, notifier := newMockService(admins, sessions,
		WithCodeGenerator(&sequenceGenerator{codes: []string{"777777"}}))
	svc.cfg.MaxMintAttempts = 5

	_, err := svc.IssueCode(context.Background(), 7, "mock@example.com")
	assert.ErrorIs(t, err, ErrMintExhausted)
	sessions.AssertNumberOfCalls(t, "IsCodeActive", 5)
	sessions.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	assert.Zero(t, notifier.count())
}

func TestOTPService_UpsertConflictRetries(t *testing.T) {
	admins := &mockAdminRepo{}
	sessions := &mockOTPSessionRepo{}
	admins.On("FindByID", mock.Anything, int64(7)).Return(activeAdmin(), nil)
	sessions.On("IsCodeActive", mock.Anything, mock.Anything).Return(false, nil)
	sessions.On("Upsert", mock.Anything, mock.MatchedBy(func(p model.UpsertOTPSessionParams) bool {
		return p.Code == "555555"
	})).Return(repository.ErrCodeInUse).Once()
	sessions.On("Upsert", mock.Anything, mock.MatchedBy(func(p model.UpsertOTPSessionParams) bool {
		return p.Code == "666666"
	})).Return(nil).Once()

	svc, notifier := newMockService(admins, sessions,
		WithCodeGenerator(&sequenceGenerator{codes: []string{"555555", "666666"}}))

	result, err := svc.IssueCode(context.Background(), 7, "mock@example.com")
	require.NoError(t, err)
	assert.Equal(t, IssueSent, result.Status)
	assert.Contains(t, notifier.last().Text, "666666")
	sessions.AssertExpectations(t)
}

func TestOTPService_UpsertError(t *testing.T) {
	admins := &mockAdminRepo{}
	sessions := &mockOTPSessionRepo{}
	admins.On("FindByID", mock.Anything, int64(7)).Return(activeAdmin(), nil)
	sessions.On("IsCodeActive", mock.Anything, mock.Anything).Return(false, nil)
	sessions.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	svc, notifier := newMockService(admins, sessions)

	_, err := svc.IssueCode(context.Background(), 7, "mock@example.com")
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, notifier.count())
}

func TestOTPService_VerifyAdminVanished(t *testing.T) {
	clock := newFakeClock()
	admins := &mockAdminRepo{}
	sessions := &mockOTPSessionRepo{}
	sessions.On("FindByAdminID", mock.Anything, int64(7)).Return(&model.OTPSession{
		AdminID: 7, Code: "246810", IsActive: true, ExpiresAt: clock.Now().Add(time.Minute),
	}, nil)
	admins.On("FindByID", mock.Anything, int64(7)).Return(nil, nil)

	svc, _ := newMockService(admins, sessions, WithClock(clock.Now))

	_, err := svc.VerifyCode(context.Background(), 7, "246810")
	assert.ErrorIs(t, err, ErrAdminVanished)
	sessions.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_VerifyLostRace(t *testing.T) {
	clock := newFakeClock()
	admins := &mockAdminRepo{}
	sessions := &mockOTPSessionRepo{}
	sessions.On("FindByAdminID", mock.Anything, int64(7)).Return(&model.OTPSession{
		AdminID: 7, Code: "246810", IsActive: true, ExpiresAt: clock.Now().Add(time.Minute),
	}, nil)
	admins.On("FindByID", mock.Anything, int64(7)).Return(activeAdmin(), nil)
	sessions.On("Deactivate", mock.Anything, int64(7), "246810", clock.Now()).Return(false, nil)

	svc, _ := newMockService(admins, sessions, WithClock(clock.Now))

	result, err := svc.VerifyCode(context.Background(), 7, "246810")
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, result.Status)
	admins.AssertNotCalled(t, "TouchLastLogin", mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_VerifyStoreError(t *testing.T) {
	admins := &mockAdminRepo{}
	sessions := &mockOTPSessionRepo{}
	sessions.On("FindByAdminID", mock.Anything, int64(7)).Return(nil, errors.New("timeout"))

	svc, _ := newMockService(admins, sessions)

	_, err := svc.VerifyCode(context.Background(), 7, "246810")
	assert.ErrorContains(t, err, "timeout")
}
