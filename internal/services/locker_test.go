package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.TryLock(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := l.TryLock(ctx, "k", time.Second); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second TryLock error = %v, want ErrLockHeld", err)
	}
	if _, err := l.TryLock(ctx, "other", time.Second); err != nil {
		t.Errorf("independent key: %v", err)
	}

	release()
	release()
	if _, err := l.TryLock(ctx, "k", time.Second); err != nil {
		t.Errorf("TryLock after release: %v", err)
	}
}

func TestAcquireLockWaitsForRelease(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	release, _ := l.TryLock(ctx, "k", time.Second)

	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	got, err := AcquireLock(ctx, l, "k", time.Second, time.Second, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	got()
}

func TestAcquireLockGivesUp(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	if _, err := l.TryLock(ctx, "k", time.Second); err != nil {
		t.Fatal(err)
	}

	_, err := AcquireLock(ctx, l, "k", time.Second, 20*time.Millisecond, 5*time.Millisecond)
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("AcquireLock error = %v, want ErrLockHeld", err)
	}
}
