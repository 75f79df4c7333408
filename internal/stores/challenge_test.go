package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestChallengeRoundTrip(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewLoginChallengeStore(rdb, "")
	ctx := context.Background()

	record := &LoginChallenge{
		UserID:    "u1",
		Method:    "totp",
		ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "ch1", record, 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "ch1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.Method != "totp" || got.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	deleted, err := store.Delete(ctx, "ch1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to report removal")
	}
	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("got %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeExpiredRecordRemoved(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewLoginChallengeStore(rdb, "")
	ctx := context.Background()

	// Key still present in redis, but the embedded deadline has passed.
	record := &LoginChallenge{
		UserID:    "u1",
		ExpiresAt: time.Now().Add(-time.Second).Unix(),
	}
	if err := store.Save(ctx, "ch1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("got %v, want ErrChallengeExpired", err)
	}
	// The lazy delete means a second read sees nothing at all.
	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("got %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeRecordFailureConsumesAtLimit(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewLoginChallengeStore(rdb, "")
	ctx := context.Background()

	record := &LoginChallenge{
		UserID:    "u1",
		ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "ch1", record, 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	exceeded, err := store.RecordFailure(ctx, "ch1", 3)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if exceeded {
		t.Fatal("first failure must not exceed a limit of 3")
	}

	got, err := store.Get(ctx, "ch1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}

	if _, err := store.RecordFailure(ctx, "ch1", 3); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	exceeded, err = store.RecordFailure(ctx, "ch1", 3)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !exceeded {
		t.Fatal("third failure must exceed a limit of 3")
	}
	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("exceeded challenge must be consumed, got %v", err)
	}
}

func TestChallengeRecordFailureUnknownID(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewLoginChallengeStore(rdb, "")

	_, err := store.RecordFailure(context.Background(), "missing", 3)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("got %v, want ErrChallengeNotFound", err)
	}
}

func TestSMSCodeLifecycle(t *testing.T) {
	rdb, mr := newTestRedis(t)
	store := NewSMSCodeStore(rdb, "")
	ctx := context.Background()

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrSMSCodeNotFound) {
		t.Fatalf("got %v, want ErrSMSCodeNotFound", err)
	}

	if err := store.Save(ctx, "u1", "digest-a", 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "digest-a" {
		t.Fatalf("got %q, want digest-a", got)
	}

	// A newer code supersedes the outstanding one.
	if err := store.Save(ctx, "u1", "digest-b", 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, _ = store.Get(ctx, "u1")
	if got != "digest-b" {
		t.Fatalf("got %q, want digest-b", got)
	}

	mr.FastForward(6 * time.Minute)
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrSMSCodeNotFound) {
		t.Fatalf("got %v, want ErrSMSCodeNotFound after ttl", err)
	}
}

func TestPendingTOTPRoundTrip(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewPendingTOTPStore(rdb, "")
	ctx := context.Background()

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrPendingTOTPNotFound) {
		t.Fatalf("got %v, want ErrPendingTOTPNotFound", err)
	}

	record := &PendingTOTP{
		Secret:           "JBSWY3DPEHPK3PXP",
		BackupCodeHashes: []string{"h1", "h2"},
	}
	if err := store.Save(ctx, "u1", record, 10*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Secret != record.Secret || len(got.BackupCodeHashes) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrPendingTOTPNotFound) {
		t.Fatalf("got %v, want ErrPendingTOTPNotFound after delete", err)
	}
}
