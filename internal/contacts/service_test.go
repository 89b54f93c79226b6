package contacts

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"wrapdesk/internal/phone"
	"wrapdesk/pkg/validate"
)

var (
	acme  = Customer{ID: "c-acme", Name: "Acme Fleet", Company: "Acme", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	bravo = Customer{ID: "c-bravo", Name: "Bravo Wraps", CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
)

func TestLink_ConflictLeavesOriginal(t *testing.T) {
	repo := NewMemoryRepo(acme, bravo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	if _, err := svc.Link(ctx, "+1 (240) 555-1234", acme.ID, "Front desk"); err != nil {
		t.Fatalf("link: %v", err)
	}
	_, err := svc.Link(ctx, "2405551234", bravo.ID, "")
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
	var conflict *LinkConflictError
	if !errors.As(err, &conflict) || conflict.ExistingCustomerID != acme.ID {
		t.Fatalf("expected conflict naming acme, got %v", err)
	}

	id, ok, err := svc.Lookup(ctx, "12405551234")
	if err != nil || !ok || id.CustomerID != acme.ID || id.DisplayName() != "Front desk" {
		t.Fatalf("original link changed: %+v ok=%v err=%v", id, ok, err)
	}
}

func TestLink_SameCustomerIsIdempotent(t *testing.T) {
	svc := NewService(NewMemoryRepo(acme), nil)
	ctx := context.Background()
	first, err := svc.Link(ctx, "2405551234", acme.ID, "")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	again, err := svc.Link(ctx, "+12405551234", acme.ID, "")
	if err != nil || again.ID != first.ID {
		t.Fatalf("expected existing link, got %+v (%v)", again, err)
	}
	if !first.IsPrimary {
		t.Fatalf("first link should be primary")
	}
}

func TestLink_Errors(t *testing.T) {
	svc := NewService(NewMemoryRepo(acme), nil)
	if _, err := svc.Link(context.Background(), "12", acme.ID, ""); !errors.Is(err, ErrUnmatchablePhone) {
		t.Fatalf("expected ErrUnmatchablePhone, got %v", err)
	}
	if _, err := svc.Link(context.Background(), "2405551234", "nope", ""); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestCreateAndLink(t *testing.T) {
	repo := NewMemoryRepo(acme)
	svc := NewService(repo, nil)
	ctx := context.Background()

	c, l, err := svc.CreateAndLink(ctx, "301.555.0100", NewCustomer{Name: " Dana Reyes ", Email: "dana@example.com"}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Name != "Dana Reyes" || l.CustomerID != c.ID || l.Phone != "3015550100" || !l.IsPrimary {
		t.Fatalf("unexpected %+v / %+v", c, l)
	}
	id, ok, err := svc.Lookup(ctx, "+1 301 555 0100")
	if err != nil || !ok || id.CustomerID != c.ID || id.Name != "Dana Reyes" || !id.Linked {
		t.Fatalf("new customer not resolvable: %+v ok=%v err=%v", id, ok, err)
	}

	_, _, err = svc.CreateAndLink(ctx, "3015550100", NewCustomer{Name: "Someone Else"}, "")
	var conflict *LinkConflictError
	if !errors.As(err, &conflict) || conflict.ExistingCustomerID != c.ID {
		t.Fatalf("expected conflict, got %v", err)
	}
	if n := len(repo.customers); n != 2 {
		t.Fatalf("conflict must not leave an orphan customer, have %d", n)
	}
}

func TestCreateAndLink_ValidatesEmail(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	_, _, err := svc.CreateAndLink(context.Background(), "3015550100", NewCustomer{Name: "Dana", Email: "not-an-email"}, "")
	if !errors.Is(err, validate.ErrInvalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLookup_FallsBackToLegacySuffix(t *testing.T) {
	legacy := Customer{ID: "c-old", Name: "Old Customer", Phone: "+1 240-555-9876", CreatedAt: time.Now()}
	svc := NewService(NewMemoryRepo(legacy), nil)
	id, ok, err := svc.Lookup(context.Background(), "2405559876")
	if err != nil || !ok || id.CustomerID != "c-old" || id.Linked {
		t.Fatalf("unexpected legacy lookup %+v ok=%v err=%v", id, ok, err)
	}
	if _, ok, _ := svc.Lookup(context.Background(), "garbage"); ok {
		t.Fatalf("garbage must be unknown")
	}
}

func TestPostgresRepo_InsertLinkMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO phone_links`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: phoneLinksPhoneKey})

	_, err = NewPostgresRepo(db).InsertLink(context.Background(), PhoneLink{ID: "l1", CustomerID: "c1", Phone: phone.Key("2405551234"), CreatedAt: time.Now()})
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
}

func TestPostgresRepo_CreateCustomerWithLinkRollsBackOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO customers`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "company", "phone", "created_at"}).
			AddRow("c1", "Dana", "", "", "+13015550100", now))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO phone_links`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: phoneLinksPhoneKey})
	mock.ExpectRollback()

	_, _, err = NewPostgresRepo(db).CreateCustomerWithLink(context.Background(),
		Customer{ID: "c1", Name: "Dana", Phone: "+13015550100", CreatedAt: now},
		PhoneLink{ID: "l1", Phone: phone.Key("3015550100"), CreatedAt: now},
	)
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestService_CreateAndLinkPostgresLinksNewCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO customers`)).
		WithArgs(sqlmock.AnyArg(), "Dana", "", "", "+13015550100", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "company", "phone", "created_at"}).
			AddRow("c-new", "Dana", "", "", "+13015550100", now))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO phone_links`)).
		WithArgs(sqlmock.AnyArg(), "c-new", "3015550100", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "phone", "contact_name", "is_primary", "created_at"}).
			AddRow("l-new", "c-new", "3015550100", "", true, now))
	mock.ExpectCommit()

	svc := NewService(NewPostgresRepo(db), nil)
	c, l, err := svc.CreateAndLink(context.Background(), "+1 301 555 0100", NewCustomer{Name: "Dana"}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID != "c-new" || l.CustomerID != "c-new" || !l.IsPrimary {
		t.Fatalf("unexpected %+v / %+v", c, l)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_NamesPrefersLinks(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM phone_links pl JOIN customers`).
		WithArgs("2405551234", "3015550100").
		WillReturnRows(sqlmock.NewRows([]string{"phone", "name"}).AddRow("2405551234", "Front desk"))
	mock.ExpectQuery(`SELECT DISTINCT ON`).
		WithArgs("3015550100").
		WillReturnRows(sqlmock.NewRows([]string{"k", "name"}).AddRow("3015550100", "Legacy"))

	names, err := NewPostgresRepo(db).Names(context.Background(), []phone.Key{"2405551234", "3015550100", phone.Unmatchable, "2405551234"})
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if names["2405551234"] != "Front desk" || names["3015550100"] != "Legacy" || len(names) != 2 {
		t.Fatalf("unexpected names %v", names)
	}
}
