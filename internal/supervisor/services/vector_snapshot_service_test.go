// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	saves atomic.Int64
	err   error
}

func (f *fakeSnapshotter) Save() error {
	f.saves.Add(1)
	return f.err
}

func TestVectorSnapshotServiceTicks(t *testing.T) {
	fake := &fakeSnapshotter{}
	svc := NewVectorSnapshotService(fake, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve returned %v, want context deadline", err)
	}

	// At least a few ticks plus the final shutdown snapshot.
	if got := fake.saves.Load(); got < 2 {
		t.Fatalf("saves = %d, want >= 2", got)
	}
}

func TestVectorSnapshotServiceFinalSaveOnShutdown(t *testing.T) {
	fake := &fakeSnapshotter{}
	// Interval far longer than the test: the only save should be the
	// shutdown one.
	svc := NewVectorSnapshotService(fake, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if got := fake.saves.Load(); got != 1 {
		t.Fatalf("saves = %d, want exactly the shutdown snapshot", got)
	}
}

func TestVectorSnapshotServiceSurvivesSaveFailure(t *testing.T) {
	fake := &fakeSnapshotter{err: errors.New("disk full")}
	svc := NewVectorSnapshotService(fake, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve returned %v, want context deadline (failures must not crash the service)", err)
	}
	if got := fake.saves.Load(); got < 2 {
		t.Fatalf("saves = %d, want repeated attempts despite failures", got)
	}
}

func TestVectorSnapshotServiceString(t *testing.T) {
	svc := NewVectorSnapshotService(&fakeSnapshotter{}, time.Minute)
	if svc.String() != "vector-snapshot" {
		t.Fatalf("String() = %q", svc.String())
	}
}
