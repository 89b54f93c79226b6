package contacts

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"wrapdesk/internal/phone"
	"wrapdesk/pkg/utils"
)

type Repository interface {
	GetCustomer(ctx context.Context, id string) (Customer, error)
	FindLink(ctx context.Context, key phone.Key) (PhoneLink, error)
	// FindLegacy matches the last ten digits of customers.phone.
	FindLegacy(ctx context.Context, key phone.Key) (Customer, error)
	Names(ctx context.Context, keys []phone.Key) (map[phone.Key]string, error)
	LinksForCustomer(ctx context.Context, customerID string) ([]PhoneLink, error)

	// InsertLink and CreateCustomerWithLink return ErrAlreadyLinked when the
	// phone is taken. CreateCustomerWithLink leaves no customer behind then.
	InsertLink(ctx context.Context, l PhoneLink) (PhoneLink, error)
	CreateCustomerWithLink(ctx context.Context, c Customer, l PhoneLink) (Customer, PhoneLink, error)
}

const phoneLinksPhoneKey = "phone_links_phone_key"

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const (
	customerColumns = `id, name, email, company, phone, created_at`
	linkColumns     = `id, customer_id, phone, contact_name, is_primary, created_at`
	// last ten digits of the legacy free-text column
	legacySuffix = `right(regexp_replace(phone, '\D', '', 'g'), 10)`
)

func (r *PostgresRepo) GetCustomer(ctx context.Context, id string) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

func (r *PostgresRepo) FindLink(ctx context.Context, key phone.Key) (PhoneLink, error) {
	l, err := scanLink(r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM phone_links WHERE phone = $1`, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneLink{}, ErrNotLinked
	}
	return l, err
}

func (r *PostgresRepo) FindLegacy(ctx context.Context, key phone.Key) (Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE ` + legacySuffix + ` = $1 ORDER BY created_at LIMIT 1`
	c, err := scanCustomer(r.db.QueryRowContext(ctx, q, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// Names resolves display names for many keys in two round trips: linked
// phones first, then the legacy suffix match for the rest.
func (r *PostgresRepo) Names(ctx context.Context, keys []phone.Key) (map[phone.Key]string, error) {
	out := make(map[phone.Key]string, len(keys))
	args := matchableArgs(keys)
	if len(args) == 0 {
		return out, nil
	}

	linked := `
SELECT pl.phone, COALESCE(NULLIF(pl.contact_name, ''), c.name)
FROM phone_links pl JOIN customers c ON c.id = pl.customer_id
WHERE pl.phone IN (` + utils.Placeholders(1, len(args)) + `)`
	if err := r.collectNames(ctx, out, linked, args); err != nil {
		return nil, err
	}

	var rest []any
	for _, a := range args {
		if _, ok := out[phone.Key(a.(string))]; !ok {
			rest = append(rest, a)
		}
	}
	if len(rest) == 0 {
		return out, nil
	}
	legacy := `
SELECT DISTINCT ON (` + legacySuffix + `) ` + legacySuffix + `, name
FROM customers
WHERE ` + legacySuffix + ` IN (` + utils.Placeholders(1, len(rest)) + `)
ORDER BY ` + legacySuffix + `, created_at`
	if err := r.collectNames(ctx, out, legacy, rest); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepo) collectNames(ctx context.Context, out map[phone.Key]string, q string, args []any) error {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, name string
		if err := rows.Scan(&key, &name); err != nil {
			return err
		}
		if _, ok := out[phone.Key(key)]; !ok {
			out[phone.Key(key)] = name
		}
	}
	return rows.Err()
}

func (r *PostgresRepo) LinksForCustomer(ctx context.Context, customerID string) ([]PhoneLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM phone_links WHERE customer_id = $1 ORDER BY is_primary DESC, created_at`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PhoneLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// The first link of a customer becomes primary.
const insertLinkSQL = `
INSERT INTO phone_links (id, customer_id, phone, contact_name, is_primary, created_at)
VALUES ($1, $2, $3, $4, NOT EXISTS (SELECT 1 FROM phone_links WHERE customer_id = $2), $5)
RETURNING ` + linkColumns

func (r *PostgresRepo) InsertLink(ctx context.Context, l PhoneLink) (PhoneLink, error) {
	return insertLink(ctx, r.db, l)
}

func insertLink(ctx context.Context, q utils.Querier, l PhoneLink) (PhoneLink, error) {
	out, err := scanLink(q.QueryRowContext(ctx, insertLinkSQL, l.ID, l.CustomerID, l.Phone.String(), l.ContactName, l.CreatedAt))
	if utils.IsUniqueViolation(err, phoneLinksPhoneKey) {
		return PhoneLink{}, ErrAlreadyLinked
	}
	return out, err
}

func (r *PostgresRepo) CreateCustomerWithLink(ctx context.Context, c Customer, l PhoneLink) (Customer, PhoneLink, error) {
	var (
		outC Customer
		outL PhoneLink
	)
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO customers (` + customerColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + customerColumns
		var err error
		outC, err = scanCustomer(tx.QueryRowContext(ctx, q, c.ID, c.Name, c.Email, c.Company, c.Phone, c.CreatedAt))
		if err != nil {
			return err
		}
		l.CustomerID = outC.ID
		outL, err = insertLink(ctx, tx, l)
		return err
	})
	if err != nil {
		return Customer{}, PhoneLink{}, err
	}
	return outC, outL, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(s scanner) (Customer, error) {
	var c Customer
	err := s.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &c.Phone, &c.CreatedAt)
	return c, err
}

func scanLink(s scanner) (PhoneLink, error) {
	var (
		l   PhoneLink
		key string
	)
	if err := s.Scan(&l.ID, &l.CustomerID, &key, &l.ContactName, &l.IsPrimary, &l.CreatedAt); err != nil {
		return PhoneLink{}, err
	}
	l.Phone = phone.Key(key)
	return l, nil
}

func matchableArgs(keys []phone.Key) []any {
	seen := make(map[phone.Key]struct{}, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if !k.Matchable() {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		args = append(args, k.String())
	}
	return args
}

// MemoryRepo enforces the one-customer-per-phone constraint under a mutex.
type MemoryRepo struct {
	mu        sync.Mutex
	customers map[string]Customer
	links     map[phone.Key]PhoneLink
}

func NewMemoryRepo(seed ...Customer) *MemoryRepo {
	r := &MemoryRepo{customers: map[string]Customer{}, links: map[phone.Key]PhoneLink{}}
	for _, c := range seed {
		r.customers[c.ID] = c
	}
	return r
}

func (r *MemoryRepo) GetCustomer(ctx context.Context, id string) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (r *MemoryRepo) FindLink(ctx context.Context, key phone.Key) (PhoneLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[key]
	if !ok {
		return PhoneLink{}, ErrNotLinked
	}
	return l, nil
}

func (r *MemoryRepo) FindLegacy(ctx context.Context, key phone.Key) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.legacyLocked(key)
}

func (r *MemoryRepo) legacyLocked(key phone.Key) (Customer, error) {
	var (
		best  Customer
		found bool
	)
	for _, c := range r.customers {
		d := phone.Digits(c.Phone)
		if len(d) < 10 || phone.Key(d[len(d)-10:]) != key {
			continue
		}
		if !found || c.CreatedAt.Before(best.CreatedAt) {
			best, found = c, true
		}
	}
	if !found {
		return Customer{}, ErrCustomerNotFound
	}
	return best, nil
}

func (r *MemoryRepo) Names(ctx context.Context, keys []phone.Key) (map[phone.Key]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[phone.Key]string, len(keys))
	for _, a := range matchableArgs(keys) {
		k := phone.Key(a.(string))
		if l, ok := r.links[k]; ok {
			name := l.ContactName
			if name == "" {
				name = r.customers[l.CustomerID].Name
			}
			out[k] = name
			continue
		}
		if c, err := r.legacyLocked(k); err == nil {
			out[k] = c.Name
		}
	}
	return out, nil
}

func (r *MemoryRepo) LinksForCustomer(ctx context.Context, customerID string) ([]PhoneLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PhoneLink
	for _, l := range r.links {
		if l.CustomerID == customerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *MemoryRepo) InsertLink(ctx context.Context, l PhoneLink) (PhoneLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLinkLocked(l)
}

func (r *MemoryRepo) insertLinkLocked(l PhoneLink) (PhoneLink, error) {
	if _, taken := r.links[l.Phone]; taken {
		return PhoneLink{}, ErrAlreadyLinked
	}
	l.IsPrimary = true
	for _, existing := range r.links {
		if existing.CustomerID == l.CustomerID {
			l.IsPrimary = false
			break
		}
	}
	r.links[l.Phone] = l
	return l, nil
}

func (r *MemoryRepo) CreateCustomerWithLink(ctx context.Context, c Customer, l PhoneLink) (Customer, PhoneLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.links[l.Phone]; taken {
		return Customer{}, PhoneLink{}, ErrAlreadyLinked
	}
	r.customers[c.ID] = c
	l.CustomerID = c.ID
	out, err := r.insertLinkLocked(l)
	return c, out, err
}
