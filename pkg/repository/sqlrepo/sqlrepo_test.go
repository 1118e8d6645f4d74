package sqlrepo_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	tu "github.com/vnykmshr/goflux/internal/testutil"
	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/repository"
	"github.com/vnykmshr/goflux/pkg/repository/sqlrepo"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive/rxtest"
)

func newStore(t *testing.T) (*sqlrepo.Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	tu.AssertNoError(t, err)
	// every pooled connection would get its own in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := sqlrepo.New(db)
	tu.AssertNoError(t, err)
	tu.AssertNoError(t, store.Migrate(context.Background()))
	return store, db
}

func TestNewRequiresDB(t *testing.T) {
	_, err := sqlrepo.New(nil)
	tu.AssertEqual(t, errors.Is(err, gferrors.ErrInvalidConfiguration), true)
}

func TestSaveUpsertsAndFinds(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	_, _, err := store.Save(repository.Participant{ID: "p1", Name: "Ada"}).Block(ctx)
	tu.AssertNoError(t, err)
	_, _, err = store.Save(repository.Participant{ID: "p1", Name: "Grace"}).Block(ctx)
	tu.AssertNoError(t, err)

	var n int
	tu.AssertNoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&n))
	tu.AssertEqual(t, n, 1)

	rxtest.Create[repository.Participant](store.FindByID("p1")).
		ExpectNext(repository.Participant{ID: "p1", Name: "Grace"}).
		ExpectComplete().
		Verify(t)

	rxtest.Create[repository.Participant](store.FindByID("nobody")).
		ExpectComplete().
		Verify(t)
}

func TestLookupsAreLazy(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	save := store.Save(repository.Participant{ID: "p1", Name: "Ada"})
	var n int
	tu.AssertNoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&n))
	tu.AssertEqual(t, n, 0)

	_, _, err := save.Block(ctx)
	tu.AssertNoError(t, err)
	_, _, err = save.Block(ctx)
	tu.AssertNoError(t, err)
	tu.AssertNoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&n))
	tu.AssertEqual(t, n, 1)
}

func TestFindAllOrderedAndDemandDriven(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for i := 5; i >= 1; i-- {
		_, _, err := store.Save(repository.Participant{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("n%d", i)}).Block(ctx)
		tu.AssertNoError(t, err)
	}

	rxtest.Create[repository.Participant](store.FindAll()).
		WithInitialRequest(2).
		ExpectNext(
			repository.Participant{ID: "p1", Name: "n1"},
			repository.Participant{ID: "p2", Name: "n2"},
		).
		ThenCancel().
		Verify(t)

	// the cancelled subscription must have released the only connection
	all, err := store.FindAll().ToSlice(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, len(all), 5)
	tu.AssertEqual(t, all[4].ID, "p5")
}

func TestSaveRejectsInvalid(t *testing.T) {
	store, _ := newStore(t)

	_, _, err := store.Save(repository.Participant{Name: "anonymous"}).Block(context.Background())
	tu.AssertEqual(t, gferrors.IsValidationError(err), true)

	n, err := store.FindAll().Count(context.Background())
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, n, int64(0))
}

func TestQueryErrors(t *testing.T) {
	store, db := newStore(t)
	_, err := db.Exec(`DROP TABLE participants`)
	tu.AssertNoError(t, err)

	_, _, err = store.FindByID("p1").Block(context.Background())
	var opErr *gferrors.OperationError
	tu.AssertEqual(t, errors.As(err, &opErr), true)
	tu.AssertEqual(t, opErr.Operation, "findById")

	_, err = store.FindAll().ToSlice(context.Background())
	tu.AssertEqual(t, errors.As(err, &opErr), true)
	tu.AssertEqual(t, opErr.Operation, "findAll")
}
