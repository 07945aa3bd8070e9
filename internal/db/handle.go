package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

var (
	ErrClosed = errors.New("database connection is not open")
	ErrBusy   = errors.New("database is held for maintenance")
)

// Source hands out the current connection. The release func must be called
// once the caller is done with the connection.
type Source interface {
	Acquire() (*sql.DB, func(), error)
}

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Handle owns the single process-wide connection to the store file. Ordinary
// callers share it; Exclusive blocks them while the file is swapped.
type Handle struct {
	mu   sync.RWMutex
	path string
	opts Options
	conn *sql.DB
}

func Open(path string, opts Options) (*Handle, error) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 1
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	conn, err := OpenSQLite(path, opts.MaxOpenConns, opts.MaxIdleConns, opts.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	return &Handle{path: path, opts: opts, conn: conn}, nil
}

func (h *Handle) Path() string { return h.path }

func noop() {}

func (h *Handle) Acquire() (*sql.DB, func(), error) {
	h.mu.RLock()
	if h.conn == nil {
		h.mu.RUnlock()
		return nil, noop, ErrClosed
	}
	return h.conn, h.mu.RUnlock, nil
}

// TryAcquire is Acquire without waiting: it fails with ErrBusy while an
// exclusive holder is active or queued.
func (h *Handle) TryAcquire() (*sql.DB, func(), error) {
	if !h.mu.TryRLock() {
		return nil, noop, ErrBusy
	}
	if h.conn == nil {
		h.mu.RUnlock()
		return nil, noop, ErrClosed
	}
	return h.conn, h.mu.RUnlock, nil
}

type nonBlocking struct{ h *Handle }

func (n nonBlocking) Acquire() (*sql.DB, func(), error) { return n.h.TryAcquire() }

// NonBlocking returns a Source that fails with ErrBusy instead of waiting for
// an exclusive holder. Background maintenance uses it to skip a cycle.
func (h *Handle) NonBlocking() Source { return nonBlocking{h: h} }

// Exclusive runs fn with every other user of the handle blocked.
func (h *Handle) Exclusive(fn func(l *Lease) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(&Lease{h: h})
}

func (h *Handle) Ping(ctx context.Context) error {
	conn, release, err := h.Acquire()
	if err != nil {
		return err
	}
	defer release()
	return conn.PingContext(ctx)
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeLocked()
}

func (h *Handle) closeLocked() error {
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}

// Lease is the view of a Handle held under Exclusive. It is only valid inside
// the Exclusive callback.
type Lease struct {
	h *Handle
}

func (l *Lease) Path() string { return l.h.path }

func (l *Lease) Conn() *sql.DB { return l.h.conn }

// Acquire lets a Lease act as a Source for code running inside Exclusive.
func (l *Lease) Acquire() (*sql.DB, func(), error) {
	if l.h.conn == nil {
		return nil, noop, ErrClosed
	}
	return l.h.conn, noop, nil
}

func (l *Lease) Close() error {
	return l.h.closeLocked()
}

// Reopen closes any current connection and opens a fresh one on the same
// path.
func (l *Lease) Reopen() error {
	_ = l.h.closeLocked()
	conn, err := OpenSQLite(l.h.path, l.h.opts.MaxOpenConns, l.h.opts.MaxIdleConns, l.h.opts.ConnMaxLifetime)
	if err != nil {
		return err
	}
	l.h.conn = conn
	return nil
}
