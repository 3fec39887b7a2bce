package services

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"web3-rewards-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// These tests exercise the storage-level guarantees (unique-index claim
// fence, guarded balance updates, IP binding exclusivity) against a real
// Postgres. They skip unless TEST_DATABASE_URL points at a disposable
// database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Claim{},
		&models.IPBinding{},
		&models.Prediction{},
		&models.Exchange{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := db.Exec("TRUNCATE users, claims, ip_bindings, predictions, exchanges, audit_logs CASCADE").Error; err != nil {
		t.Fatalf("failed to reset test database: %v", err)
	}
	return db
}

func newTestClaimService(db *gorm.DB) *ClaimService {
	audit := NewAuditService(db)
	ledger := NewLedgerService(db)
	users := NewUserService(db, ledger, audit)
	sybil := &SybilService{DB: db, MinTxCount: 5, FailOpen: true}
	return &ClaimService{
		DB:            db,
		Users:         users,
		Ledger:        ledger,
		Sybil:         sybil,
		Audit:         audit,
		NewsPoints:    10,
		SectionPoints: 35,
		DailyArticles: 3,
	}
}

func testWalletAddr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func TestGrantIdempotent(t *testing.T) {
	db := setupTestDB(t)
	s := newTestClaimService(db)
	wallet := testWalletAddr(1)
	key := models.SectionClaimKey(models.SectionTrading, time.Now())

	balance, err := s.grant(wallet, key, s.SectionPoints)
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if balance != s.SectionPoints {
		t.Errorf("balance after first claim = %d, want %d", balance, s.SectionPoints)
	}

	if _, err := s.grant(wallet, key, s.SectionPoints); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second claim: got %v, want ErrAlreadyClaimed", err)
	}

	var claimCount int64
	if err := db.Model(&models.Claim{}).Count(&claimCount).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if claimCount != 1 {
		t.Errorf("claim rows = %d, want exactly 1", claimCount)
	}

	user, err := s.Users.EnsureUser(db, wallet)
	if err != nil {
		t.Fatalf("fetch user failed: %v", err)
	}
	if user.Balance != s.SectionPoints {
		t.Errorf("balance after duplicate = %d, want %d (credited once)", user.Balance, s.SectionPoints)
	}
}

func TestGrantDuplicateBeatsDailyCap(t *testing.T) {
	db := setupTestDB(t)
	s := newTestClaimService(db)
	wallet := testWalletAddr(2)

	for i := 1; i <= 3; i++ {
		key := models.NewsClaimKey(fmt.Sprintf("article-%d", i))
		if _, err := s.grant(wallet, key, s.NewsPoints); err != nil {
			t.Fatalf("claim %d failed: %v", i, err)
		}
	}

	// Re-claiming an already-claimed article with the cap exhausted must
	// report the duplicate, not the cap.
	if _, err := s.grant(wallet, models.NewsClaimKey("article-1"), s.NewsPoints); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("re-claim at cap: got %v, want ErrAlreadyClaimed", err)
	}

	// A fourth distinct article hits the cap.
	if _, err := s.grant(wallet, models.NewsClaimKey("article-4"), s.NewsPoints); !errors.Is(err, ErrDailyLimit) {
		t.Errorf("fourth distinct article: got %v, want ErrDailyLimit", err)
	}

	user, err := s.Users.EnsureUser(db, wallet)
	if err != nil {
		t.Fatalf("fetch user failed: %v", err)
	}
	if want := 3 * s.NewsPoints; user.Balance != want {
		t.Errorf("balance = %d, want %d (failed claims must not credit)", user.Balance, want)
	}
}

func TestDebitFloorUnderConcurrency(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	audit := NewAuditService(db)
	users := NewUserService(db, ledger, audit)

	user, err := users.EnsureUser(db, testWalletAddr(3))
	if err != nil {
		t.Fatalf("ensure user failed: %v", err)
	}
	if err := ledger.Credit(db, user.ID, 100); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}

	// Many concurrent debits exceeding the balance: exactly one may win
	// and the floor must hold.
	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Debit(db, user.ID, 60); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("successful debits = %d, want exactly 1", successes.Load())
	}
	balance, err := ledger.Balance(db, user.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 40 {
		t.Errorf("final balance = %d, want 40", balance)
	}
	if balance < 0 {
		t.Errorf("balance went negative: %d", balance)
	}
}

func TestIPBindingExclusivity(t *testing.T) {
	db := setupTestDB(t)
	sybil := &SybilService{DB: db, MinTxCount: 5, FailOpen: true}
	walletA := testWalletAddr(4)
	walletB := testWalletAddr(5)

	if err := sybil.Bind(models.BindingTypeTrading, "10.0.0.1", walletA); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	// Same wallet from the bound IP passes.
	if err := sybil.CheckIPBinding(models.BindingTypeTrading, "10.0.0.1", walletA); err != nil {
		t.Errorf("bound wallet rejected from its own IP: %v", err)
	}

	// A different wallet on the bound IP is rejected.
	if err := sybil.CheckIPBinding(models.BindingTypeTrading, "10.0.0.1", walletB); !errors.Is(err, ErrIPBound) {
		t.Errorf("foreign wallet on bound IP: got %v, want ErrIPBound", err)
	}

	// Exhaust the per-wallet device allowance, then a fresh IP must fail.
	for i := 2; i <= models.MaxBindingsPerWallet; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i)
		if err := sybil.Bind(models.BindingTypeTrading, ip, walletA); err != nil {
			t.Fatalf("bind %s failed: %v", ip, err)
		}
	}
	if err := sybil.CheckIPBinding(models.BindingTypeTrading, "10.0.0.99", walletA); !errors.Is(err, ErrMaxDevices) {
		t.Errorf("sixth IP: got %v, want ErrMaxDevices", err)
	}

	// Rebinding never moves an IP to another wallet.
	if err := sybil.Bind(models.BindingTypeTrading, "10.0.0.1", walletB); err != nil {
		t.Fatalf("conflicting bind errored: %v", err)
	}
	var binding models.IPBinding
	if err := db.First(&binding, "ip = ? AND binding_type = ?", "10.0.0.1", models.BindingTypeTrading).Error; err != nil {
		t.Fatalf("fetch binding failed: %v", err)
	}
	if binding.WalletAddress != walletA {
		t.Errorf("binding moved to %s, must stay with %s", binding.WalletAddress, walletA)
	}
}
