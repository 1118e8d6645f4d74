package repository_test

import (
	"context"
	"testing"

	tu "github.com/vnykmshr/goflux/internal/testutil"
	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/repository"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive/rxtest"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		p    repository.Participant
		ok   bool
	}{
		{"complete", repository.Participant{ID: "p1", Name: "Ada"}, true},
		{"missing id", repository.Participant{Name: "Ada"}, false},
		{"missing name", repository.Participant{ID: "p1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repository.Validate(tt.p)
			tu.AssertEqual(t, err == nil, tt.ok)
			if !tt.ok {
				tu.AssertEqual(t, gferrors.IsValidationError(err), true)
			}
		})
	}
}

func TestMemoryFind(t *testing.T) {
	repo := repository.NewMemory(
		repository.Participant{ID: "b", Name: "Grace"},
		repository.Participant{ID: "a", Name: "Ada"},
	)

	rxtest.Create[repository.Participant](repo.FindByID("a")).
		ExpectNext(repository.Participant{ID: "a", Name: "Ada"}).
		ExpectComplete().
		Verify(t)

	rxtest.Create[repository.Participant](repo.FindByID("zz")).
		ExpectComplete().
		Verify(t)

	names := reactive.Map(repo.FindAll(), func(p repository.Participant) string { return p.Name })
	rxtest.Create[string](names).
		ExpectNext("Ada", "Grace").
		ExpectComplete().
		Verify(t)
}

func TestMemorySnapshotPerSubscription(t *testing.T) {
	repo := repository.NewMemory()
	all := repo.FindAll()
	ctx := context.Background()

	n, err := all.Count(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, n, int64(0))

	save := repo.Save(repository.Participant{ID: "a", Name: "Ada"})
	n, err = all.Count(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, n, int64(0))

	_, ok, err := save.Block(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, ok, true)

	n, err = all.Count(ctx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, n, int64(1))
}

func TestMemorySaveInvalid(t *testing.T) {
	repo := repository.NewMemory()

	rxtest.Create[repository.Participant](repo.Save(repository.Participant{ID: "a"})).
		ExpectErrorMatches(gferrors.IsValidationError).
		Verify(t)
}
