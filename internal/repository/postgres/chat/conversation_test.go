package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"kakehashi/internal/config"
	"kakehashi/internal/domain"
	chatModels "kakehashi/internal/domain/models/chat"
	"kakehashi/internal/domain/repositories"
	"kakehashi/internal/repository/postgres"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTx scripts the version reads and UPDATE outcomes AppendTurns sees, so
// the compare-and-swap retry path can be driven without a database. It rides
// into the repository through the context transaction.
type fakeTx struct {
	versions     []int64 // successive SELECT version results (last repeats)
	rowsAffected []int64 // successive UPDATE row counts (last repeats)

	versionReads int
	execs        [][]any
}

type fakeRow struct {
	version int64
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.version
	return nil
}

func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if len(f.versions) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	i := f.versionReads
	if i >= len(f.versions) {
		i = len(f.versions) - 1
	}
	f.versionReads++
	return fakeRow{version: f.versions[i]}
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, args)
	i := len(f.execs) - 1
	if i >= len(f.rowsAffected) {
		i = len(f.rowsAffected) - 1
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", f.rowsAffected[i])), nil
}

func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("unexpected Query")
}
func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("unexpected Begin") }
func (f *fakeTx) Commit(ctx context.Context) error          { panic("unexpected Commit") }
func (f *fakeTx) Rollback(ctx context.Context) error        { panic("unexpected Rollback") }
func (f *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("unexpected CopyFrom")
}
func (f *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("unexpected SendBatch")
}
func (f *fakeTx) LargeObjects() pgx.LargeObjects { panic("unexpected LargeObjects") }
func (f *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("unexpected Prepare")
}
func (f *fakeTx) Conn() *pgx.Conn { panic("unexpected Conn") }

func newAppendFixture(tx *fakeTx) (repositories.ConversationRepository, context.Context) {
	repo := NewConversationRepository(&postgres.RepositoryConfig{Logger: testLogger()})
	ctx := repositories.SetTx(context.Background(), tx)
	return repo, ctx
}

func TestAppendTurns_RetriesAfterVersionConflict(t *testing.T) {
	// First CAS loses to a concurrent writer (0 rows), the retry rereads the
	// moved version and wins
	tx := &fakeTx{
		versions:     []int64{3, 4},
		rowsAffected: []int64{0, 1},
	}
	repo, ctx := newAppendFixture(tx)

	err := repo.AppendTurns(ctx, "conv-1", []chatModels.Turn{chatModels.NewUserTurn("hi")})
	if err != nil {
		t.Fatalf("AppendTurns failed: %v", err)
	}

	if tx.versionReads != 2 {
		t.Errorf("expected the retry to reread the version, got %d reads", tx.versionReads)
	}
	if len(tx.execs) != 2 {
		t.Fatalf("expected 2 append attempts, got %d", len(tx.execs))
	}
	if got := tx.execs[0][2].(int64); got != 3 {
		t.Errorf("first attempt should use version 3, got %d", got)
	}
	if got := tx.execs[1][2].(int64); got != 4 {
		t.Errorf("retry should use the fresh version 4, got %d", got)
	}
}

func TestAppendTurns_ExhaustedRetriesConflict(t *testing.T) {
	// Every CAS loses: the append must give up with a conflict, never loop
	// forever or drop turns silently
	tx := &fakeTx{
		versions:     []int64{7},
		rowsAffected: []int64{0},
	}
	repo, ctx := newAppendFixture(tx)

	err := repo.AppendTurns(ctx, "conv-1", []chatModels.Turn{chatModels.NewUserTurn("hi")})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	var cErr *domain.ConflictError
	if !errors.As(err, &cErr) || cErr.ResourceID != "conv-1" {
		t.Errorf("expected ConflictError naming the conversation, got %v", err)
	}
	if len(tx.execs) != config.MaxAppendRetries {
		t.Errorf("expected %d attempts, got %d", config.MaxAppendRetries, len(tx.execs))
	}
}

func TestAppendTurns_MissingConversation(t *testing.T) {
	tx := &fakeTx{} // version read finds no row
	repo, ctx := newAppendFixture(tx)

	err := repo.AppendTurns(ctx, "gone", []chatModels.Turn{chatModels.NewUserTurn("hi")})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if len(tx.execs) != 0 {
		t.Errorf("no append should be attempted for a missing conversation, got %d", len(tx.execs))
	}
}

func TestAppendTurns_NoTurnsIsNoop(t *testing.T) {
	tx := &fakeTx{}
	repo, ctx := newAppendFixture(tx)

	if err := repo.AppendTurns(ctx, "conv-1", nil); err != nil {
		t.Fatalf("AppendTurns failed: %v", err)
	}
	if tx.versionReads != 0 || len(tx.execs) != 0 {
		t.Error("empty append should touch nothing")
	}
}
