package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"misgastos/internal/core"
)

func TestConnector_SingleFlightOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	var calls atomic.Int32
	release := make(chan struct{})
	opener := func(ctx context.Context, path string) (*sql.DB, error) {
		calls.Add(1)
		<-release
		return openSQLite(ctx, path)
	}
	c := NewConnector(path, WithOpener(opener))
	t.Cleanup(func() { c.Close() })

	const callers = 16
	var wg sync.WaitGroup
	handles := make([]*sql.DB, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = c.Acquire(context.Background())
		}(i)
	}

	// Let the callers pile up on the in-flight open.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("physical opens = %d, want 1", got)
	}
	for i := range handles {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
	if c.State() != StateOpen {
		t.Errorf("state = %v, want open", c.State())
	}

	// Later callers reuse the cached handle.
	db, err := c.Acquire(context.Background())
	if err != nil || db != handles[0] {
		t.Fatalf("cached Acquire = %p, %v", db, err)
	}
	if c.Opens() != 1 {
		t.Errorf("Opens() = %d, want 1", c.Opens())
	}
}

func TestConnector_FailedOpenIsRetried(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	errBoom := errors.New("disk on fire")

	var calls atomic.Int32
	release := make(chan struct{})
	opener := func(ctx context.Context, path string) (*sql.DB, error) {
		if calls.Add(1) == 1 {
			<-release
			return nil, errBoom
		}
		return openSQLite(ctx, path)
	}
	c := NewConnector(path, WithOpener(opener))
	t.Cleanup(func() { c.Close() })

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Acquire(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, errBoom) {
			t.Fatalf("caller %d error = %v, want %v", i, err, errBoom)
		}
		if !core.IsStorage(err) {
			t.Fatalf("caller %d error should be a StorageError", i)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("physical opens during failure = %d, want 1", calls.Load())
	}
	if c.State() != StateFailed {
		t.Errorf("state = %v, want failed", c.State())
	}

	db, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("retry Acquire: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("physical opens = %d, want 2", calls.Load())
	}
}

func TestConnector_Close(t *testing.T) {
	c := NewConnector(filepath.Join(t.TempDir(), "ledger.db"))
	if _, err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := c.Acquire(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Acquire after Close = %v, want ErrClosed", err)
	}
	if !core.IsStorage(err) {
		t.Error("closed error should be a StorageError")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnopened, "unopened"},
		{StateOpening, "opening"},
		{StateOpen, "open"},
		{StateFailed, "failed"},
		{StateClosed, "closed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
