package team

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestService_SaveNormalizesNumber(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	p, err := svc.Save(context.Background(), SaveRequest{Name: " Dana ", Number: "(301) 555-0001", Enabled: true})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.Number != "+13015550001" || p.Name != "Dana" || p.ID == "" {
		t.Fatalf("unexpected phone %+v", p)
	}
}

func TestService_SaveRejectsBadInput(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.Save(context.Background(), SaveRequest{Name: "", Number: "3015550001"}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if _, err := svc.Save(context.Background(), SaveRequest{Name: "Dana", Number: "555"}); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestService_DuplicateNumberRejected(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	if _, err := svc.Save(ctx, SaveRequest{Name: "Dana", Number: "3015550001"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := svc.Save(ctx, SaveRequest{Name: "Lee", Number: "+1 301 555 0001"}); !errors.Is(err, ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestMemoryRepo_ListEnabledOrdersByRingOrder(t *testing.T) {
	repo := NewMemoryRepo(
		Phone{ID: "1", Name: "B", Number: "+13015550002", Enabled: true, RingOrder: 2},
		Phone{ID: "2", Name: "A", Number: "+13015550001", Enabled: true, RingOrder: 1},
		Phone{ID: "3", Name: "C", Number: "+13015550003", Enabled: false, RingOrder: 0},
	)
	got, err := repo.ListEnabled(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "B" {
		t.Fatalf("unexpected order %+v", got)
	}

	svc := NewService(repo)
	p, err := svc.FindByNumber(context.Background(), "13015550002")
	if err != nil || p.Name != "B" {
		t.Fatalf("expected B, got %+v %v", p, err)
	}
	if _, err := svc.FindByNumber(context.Background(), "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresRepo_FindByNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM team_phones WHERE number_key = $1`)).
		WithArgs("3015550001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "number", "enabled", "ring_order", "created_at", "updated_at"}).
			AddRow("1", "Dana", "+13015550001", true, 1, now, now))

	p, err := NewPostgresRepo(db).FindByNumber(context.Background(), "3015550001")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.Name != "Dana" || !p.Enabled {
		t.Fatalf("unexpected phone %+v", p)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM team_phones WHERE number_key = $1`)).
		WithArgs("3015559999").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := NewPostgresRepo(db).FindByNumber(context.Background(), "3015559999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
