package sqlfrag

import (
	"context"
	"log/slog"
)

// Future is the result of an asynchronous operation.
type Future[T any] struct {
	val  T
	err  error
	done chan struct{}
}

// resolved returns a future that is already complete.
func resolved[T any](v T, err error) *Future[T] {
	f := &Future[T]{val: v, err: err, done: make(chan struct{})}
	close(f.done)
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for the result or for ctx to end.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncConn mirrors Conn with operations returning futures. The work runs on
// the calling goroutine; the returned futures are already resolved.
type AsyncConn struct {
	db *Conn
}

// Sync returns the synchronous connection.
func (a *AsyncConn) Sync() *Conn { return a.db }

func (a *AsyncConn) All(ctx context.Context, q Query, dest any) *Future[struct{}] {
	return resolved(struct{}{}, a.db.All(ctx, q, dest))
}

func (a *AsyncConn) One(ctx context.Context, q Query, dest any) *Future[struct{}] {
	return resolved(struct{}{}, a.db.One(ctx, q, dest))
}

func (a *AsyncConn) Column(ctx context.Context, q Query) *Future[[]any] {
	return resolved(a.db.Column(ctx, q))
}

func (a *AsyncConn) Value(ctx context.Context, q Query) *Future[any] {
	return resolved(a.db.Value(ctx, q))
}

func (a *AsyncConn) Arrays(ctx context.Context, q Query) *Future[[][]any] {
	return resolved(a.db.Arrays(ctx, q))
}

func (a *AsyncConn) Array(ctx context.Context, q Query) *Future[[]any] {
	return resolved(a.db.Array(ctx, q))
}

func (a *AsyncConn) Exec(ctx context.Context, q Query) *Future[Changes] {
	return resolved(a.db.Exec(ctx, q))
}

func (a *AsyncConn) Run(ctx context.Context, q Query) *Future[struct{}] {
	return resolved(struct{}{}, a.db.Run(ctx, q))
}

func (a *AsyncConn) Insert(ctx context.Context, table, row any, opts ...WriteOptions) *Future[Changes] {
	return resolved(a.db.Insert(ctx, table, row, opts...))
}

func (a *AsyncConn) InsertAll(ctx context.Context, table, rows any, opts ...WriteOptions) *Future[Changes] {
	return resolved(a.db.InsertAll(ctx, table, rows, opts...))
}

func (a *AsyncConn) Update(ctx context.Context, table, row any, opts ...WriteOptions) *Future[Changes] {
	return resolved(a.db.Update(ctx, table, row, opts...))
}

func (a *AsyncConn) Delete(ctx context.Context, table, row any, opts ...WriteOptions) *Future[Changes] {
	return resolved(a.db.Delete(ctx, table, row, opts...))
}

func (a *AsyncConn) CreateTable(ctx context.Context, table any) *Future[struct{}] {
	return resolved(struct{}{}, a.db.CreateTable(ctx, table))
}

func (a *AsyncConn) DropTable(ctx context.Context, table any) *Future[struct{}] {
	return resolved(struct{}{}, a.db.DropTable(ctx, table))
}

func (a *AsyncConn) ListTables(ctx context.Context) *Future[[]string] {
	return resolved(a.db.ListTables(ctx))
}

// FilterFunc observes every SQL statement before it is prepared.
type FilterFunc func(ctx context.Context, sql string)

type filterConn struct {
	Connection
	fn FilterFunc
}

func (f filterConn) Prepare(ctx context.Context, sql string) (Stmt, error) {
	f.fn(ctx, sql)
	return f.Connection.Prepare(ctx, sql)
}

// WithFilter wraps conn so fn sees every statement first. Unwrap the result
// by keeping a reference to conn.
func WithFilter(conn Connection, fn FilterFunc) Connection {
	if fn == nil {
		return conn
	}
	return filterConn{Connection: conn, fn: fn}
}

// LogFilter returns a FilterFunc logging statements at debug level.
func LogFilter(l *slog.Logger) FilterFunc {
	if l == nil {
		l = slog.Default()
	}
	return func(ctx context.Context, sql string) {
		l.DebugContext(ctx, "sql", "statement", sql)
	}
}
