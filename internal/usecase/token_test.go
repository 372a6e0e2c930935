package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure/memory"
	"github.com/ErlanBelekov/passwordless/internal/usecase"
)

// ---- helpers ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	ownerA = domain.Owner{Type: domain.OwnerTypeUser, ID: "user-a"}
	ownerB = domain.Owner{Type: domain.OwnerTypeUser, ID: "user-b"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTokenService(t *testing.T) (*usecase.TokenService, *memory.TokenRepository, *fakeClock) {
	t.Helper()
	repo := memory.NewTokenRepository()
	clock := newFakeClock()
	return usecase.NewTokenService(repo, discardLogger(), usecase.WithClock(clock.Now)), repo, clock
}

// ---- Generate ----

func TestGenerate_TokenFormat(t *testing.T) {
	svc, repo, _ := newTokenService(t)

	tok, err := svc.Generate(context.Background(), ownerA, domain.ScopeLogin, 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	identifier, secret, ok := strings.Cut(tok, ".")
	if !ok {
		t.Fatalf("token %q has no separator", tok)
	}
	if len(identifier) != 22 || len(secret) != 43 {
		t.Errorf("identifier/secret lengths = %d/%d, want 22/43", len(identifier), len(secret))
	}

	rec, err := repo.FindByIdentifierAndScope(context.Background(), identifier, domain.ScopeLogin)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if strings.Contains(rec.Verifier, secret) {
		t.Error("raw secret must not be persisted")
	}
	if rec.Owner != ownerA {
		t.Errorf("owner = %+v, want %+v", rec.Owner, ownerA)
	}
}

func TestGenerate_ExpiresAfterTTL(t *testing.T) {
	svc, repo, clock := newTokenService(t)

	tok, err := svc.Generate(context.Background(), ownerA, domain.ScopeAuth, 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	identifier, _, _ := strings.Cut(tok, ".")
	rec, _ := repo.FindByIdentifierAndScope(context.Background(), identifier, domain.ScopeAuth)

	if want := clock.Now().Add(15 * time.Minute); !rec.ExpiresAt.Equal(want) {
		t.Errorf("expires = %v, want %v", rec.ExpiresAt, want)
	}
}

func TestGenerate_EmptyScope_Fails(t *testing.T) {
	svc, repo, _ := newTokenService(t)

	if _, err := svc.Generate(context.Background(), ownerA, "", time.Minute); err == nil {
		t.Fatal("expected error for empty scope")
	}
	if repo.Len() != 0 {
		t.Errorf("no record should be stored, got %d", repo.Len())
	}
}

// conflictOnceRepo fails the first Insert with a collision.
type conflictOnceRepo struct {
	*memory.TokenRepository
	inserts atomic.Int32
	always  bool
}

func (r *conflictOnceRepo) Insert(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, error) {
	if n := r.inserts.Add(1); n == 1 || r.always {
		return nil, domain.ErrTokenConflict
	}
	return r.TokenRepository.Insert(ctx, rec)
}

func TestGenerate_Conflict_RetriesOnce(t *testing.T) {
	repo := &conflictOnceRepo{TokenRepository: memory.NewTokenRepository()}
	svc := usecase.NewTokenService(repo, discardLogger())

	tok, err := svc.Generate(context.Background(), ownerA, domain.ScopeLogin, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.inserts.Load() != 2 {
		t.Errorf("inserts = %d, want 2", repo.inserts.Load())
	}
	if _, err := svc.Parse(context.Background(), tok, false, domain.ScopeLogin); err != nil {
		t.Errorf("token from retry should parse: %v", err)
	}
}

func TestGenerate_RepeatedConflict_Surfaces(t *testing.T) {
	repo := &conflictOnceRepo{TokenRepository: memory.NewTokenRepository(), always: true}
	svc := usecase.NewTokenService(repo, discardLogger())

	_, err := svc.Generate(context.Background(), ownerA, domain.ScopeLogin, time.Minute)
	if !errors.Is(err, domain.ErrTokenConflict) {
		t.Fatalf("want ErrTokenConflict, got %v", err)
	}
	if repo.inserts.Load() != 2 {
		t.Errorf("inserts = %d, want 2 (bounded retry)", repo.inserts.Load())
	}
}

// ---- Parse ----

func TestParse_RoundTrip_DoesNotConsume(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	ctx := context.Background()

	for _, scope := range []domain.Scope{domain.ScopeLogin, domain.ScopeAuth} {
		tok, err := svc.Generate(ctx, ownerA, scope, time.Hour)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		for i := 0; i < 3; i++ {
			owner, err := svc.Parse(ctx, tok, false, scope)
			if err != nil {
				t.Fatalf("parse %d in scope %s: %v", i, scope, err)
			}
			if owner != ownerA {
				t.Errorf("owner = %+v, want %+v", owner, ownerA)
			}
		}
	}
	if repo.Len() != 2 {
		t.Errorf("records = %d, want 2 (non-consuming parse)", repo.Len())
	}
}

func TestParse_HappyPath_OneTimeUse(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	ctx := context.Background()

	t1, err := svc.Generate(ctx, ownerA, domain.ScopeLogin, 30*time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	owner, err := svc.Parse(ctx, t1, true, domain.ScopeLogin)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	if owner != ownerA {
		t.Errorf("owner = %+v, want %+v", owner, ownerA)
	}

	if _, err := svc.Parse(ctx, t1, true, domain.ScopeLogin); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("second parse: want ErrTokenInvalid, got %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("records = %d, want 0 after redemption", repo.Len())
	}
}

func TestParse_ScopeIsolation(t *testing.T) {
	svc, _, _ := newTokenService(t)
	ctx := context.Background()

	login, _ := svc.Generate(ctx, ownerA, domain.ScopeLogin, time.Hour)
	auth, _ := svc.Generate(ctx, ownerA, domain.ScopeAuth, time.Hour)

	if _, err := svc.Parse(ctx, login, false, domain.ScopeAuth); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("login token in auth scope: want ErrTokenInvalid, got %v", err)
	}
	if _, err := svc.Parse(ctx, auth, true, domain.ScopeLogin); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("auth token in login scope: want ErrTokenInvalid, got %v", err)
	}

	// failed cross-scope attempts must not consume the tokens
	if _, err := svc.Parse(ctx, login, false, domain.ScopeLogin); err != nil {
		t.Errorf("login token should still be valid: %v", err)
	}
}

func TestParse_ZeroTTL_IsExpired(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	ctx := context.Background()

	tok, err := svc.Generate(ctx, ownerA, domain.ScopeLogin, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.Parse(ctx, tok, false, domain.ScopeLogin); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid, got %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("expired record should be deleted opportunistically, %d left", repo.Len())
	}
}

func TestParse_ClockAdvancedPastExpiry(t *testing.T) {
	svc, _, clock := newTokenService(t)
	ctx := context.Background()

	tok, _ := svc.Generate(ctx, ownerA, domain.ScopeAuth, 15*time.Minute)

	clock.Advance(14 * time.Minute)
	if _, err := svc.Parse(ctx, tok, false, domain.ScopeAuth); err != nil {
		t.Fatalf("token should be valid before expiry: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := svc.Parse(ctx, tok, false, domain.ScopeAuth); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid at expiry, got %v", err)
	}
}

func TestParse_TamperedSecret_Invalid(t *testing.T) {
	svc, _, _ := newTokenService(t)
	ctx := context.Background()

	tok, _ := svc.Generate(ctx, ownerA, domain.ScopeLogin, time.Hour)

	identifier, secret, _ := strings.Cut(tok, ".")
	for _, pos := range []int{0, len(secret) / 2} {
		b := []byte(secret)
		if b[pos] == 'A' {
			b[pos] = 'B'
		} else {
			b[pos] = 'A'
		}
		tampered := identifier + "." + string(b)

		if _, err := svc.Parse(ctx, tampered, true, domain.ScopeLogin); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Errorf("tamper at %d: want ErrTokenInvalid, got %v", pos, err)
		}
	}

	if _, err := svc.Parse(ctx, tok, true, domain.ScopeLogin); err != nil {
		t.Errorf("original token should survive tampering attempts: %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	svc, _, _ := newTokenService(t)
	valid, _ := svc.Generate(context.Background(), ownerA, domain.ScopeLogin, time.Hour)

	cases := map[string]string{
		"empty":           "",
		"no separator":    strings.Replace(valid, ".", "A", 1),
		"truncated":       valid[:len(valid)-1],
		"extra":           valid + "A",
		"bad alphabet":    strings.Repeat("*", 22) + "." + strings.Repeat("A", 43),
		"moved separator": valid[1:23] + "." + valid[23:],
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Parse(context.Background(), tok, false, domain.ScopeLogin); !errors.Is(err, domain.ErrMalformedToken) {
				t.Errorf("want ErrMalformedToken, got %v", err)
			}
		})
	}
}

func TestParse_ConcurrentRedemption_ExactlyOnce(t *testing.T) {
	svc, _, _ := newTokenService(t)
	ctx := context.Background()

	tok, _ := svc.Generate(ctx, ownerA, domain.ScopeLogin, time.Hour)

	const callers = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		invalid   atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Parse(ctx, tok, true, domain.ScopeLogin)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrTokenInvalid):
				invalid.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("successes = %d, want exactly 1", successes.Load())
	}
	if invalid.Load() != callers-1 {
		t.Errorf("invalid = %d, want %d", invalid.Load(), callers-1)
	}
}

// lostRaceRepo simulates a concurrent sweep deleting the row between lookup and claim.
type lostRaceRepo struct {
	*memory.TokenRepository
}

func (r *lostRaceRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	_, _ = r.TokenRepository.DeleteByID(ctx, id)
	return r.TokenRepository.DeleteByID(ctx, id)
}

func TestParse_RowAlreadyGone_IsInvalidNotError(t *testing.T) {
	repo := &lostRaceRepo{TokenRepository: memory.NewTokenRepository()}
	svc := usecase.NewTokenService(repo, discardLogger())
	ctx := context.Background()

	tok, _ := svc.Generate(ctx, ownerA, domain.ScopeLogin, time.Hour)
	if _, err := svc.Parse(ctx, tok, true, domain.ScopeLogin); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid, got %v", err)
	}
}

type unavailableRepo struct {
	*memory.TokenRepository
}

func (r *unavailableRepo) FindByIdentifierAndScope(context.Context, string, domain.Scope) (*domain.TokenRecord, error) {
	return nil, fmt.Errorf("find token: %w: connection refused", domain.ErrStoreUnavailable)
}

func TestParse_StoreUnavailable_NotInvalid(t *testing.T) {
	repo := &unavailableRepo{TokenRepository: memory.NewTokenRepository()}
	svc := usecase.NewTokenService(repo, discardLogger())
	ctx := context.Background()

	tok, _ := svc.Generate(ctx, ownerA, domain.ScopeLogin, time.Hour)
	_, err := svc.Parse(ctx, tok, true, domain.ScopeLogin)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrTokenInvalid) {
		t.Error("store outage must not masquerade as invalid token")
	}
}

// ---- ClearExpired ----

func TestClearExpired_RemovesOnlyExpired(t *testing.T) {
	svc, repo, clock := newTokenService(t)
	ctx := context.Background()

	const n, m = 3, 2
	for i := 0; i < n; i++ {
		if _, err := svc.Generate(ctx, ownerA, domain.ScopeLogin, 10*time.Minute); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	var survivors []string
	for i := 0; i < m; i++ {
		tok, err := svc.Generate(ctx, ownerB, domain.ScopeAuth, time.Hour)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		survivors = append(survivors, tok)
	}

	clock.Advance(11 * time.Minute)

	removed, err := svc.ClearExpired(ctx)
	if err != nil {
		t.Fatalf("clear expired: %v", err)
	}
	if removed != n {
		t.Errorf("removed = %d, want %d", removed, n)
	}
	if repo.Len() != m {
		t.Errorf("records = %d, want %d", repo.Len(), m)
	}
	for _, tok := range survivors {
		if owner, err := svc.Parse(ctx, tok, false, domain.ScopeAuth); err != nil || owner != ownerB {
			t.Errorf("survivor parse = (%+v, %v), want ownerB", owner, err)
		}
	}
}

func TestClearExpired_Empty_ReturnsZero(t *testing.T) {
	svc, _, _ := newTokenService(t)

	removed, err := svc.ClearExpired(context.Background())
	if err != nil || removed != 0 {
		t.Errorf("ClearExpired = (%d, %v), want (0, nil)", removed, err)
	}
}
