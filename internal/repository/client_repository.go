package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/busbooking/internal/model"
)

// ClientRepo persists client identities. Methods with a Tx suffix run inside
// the caller's transaction so that a client write and the reservation that
// triggered it commit together.
type ClientRepo struct {
	db *sql.DB
}

// NewClientRepo returns a ClientRepo bound to db.
func NewClientRepo(db *sql.DB) *ClientRepo { return &ClientRepo{db: db} }

const clientColumns = `id, pin, name, last_name1, last_name2, phone, email`

func scanClient(row interface{ Scan(...any) error }) (model.Client, error) {
	var c model.Client
	err := row.Scan(&c.ID, &c.PIN, &c.Name, &c.LastName1, &c.LastName2, &c.Phone, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r *ClientRepo) getBy(ctx context.Context, q queryer, where string, arg any) (model.Client, error) {
	return scanClient(q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM client WHERE `+where+` LIMIT 1`, arg))
}

// GetByPIN loads a client by its PIN.
func (r *ClientRepo) GetByPIN(ctx context.Context, pin string) (model.Client, error) {
	return r.getBy(ctx, r.db, "pin = ?", pin)
}

// GetByPINTx is GetByPIN inside tx.
func (r *ClientRepo) GetByPINTx(ctx context.Context, tx *sql.Tx, pin string) (model.Client, error) {
	return r.getBy(ctx, tx, "pin = ?", pin)
}

// GetByID loads a client by primary key.
func (r *ClientRepo) GetByID(ctx context.Context, id uint64) (model.Client, error) {
	return r.getBy(ctx, r.db, "id = ?", id)
}

// FindByPhoneTx returns the first client with the given phone.
func (r *ClientRepo) FindByPhoneTx(ctx context.Context, tx *sql.Tx, phone string) (model.Client, error) {
	return r.getBy(ctx, tx, "phone = ?", phone)
}

// FindByEmailTx returns the first client with the given email.
func (r *ClientRepo) FindByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.Client, error) {
	return r.getBy(ctx, tx, "email = ?", email)
}

// FindByPhoneAndEmail returns the client whose phone and email both match
// exactly.
func (r *ClientRepo) FindByPhoneAndEmail(ctx context.Context, phone, email string) (model.Client, error) {
	return scanClient(r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM client WHERE phone = ? AND email = ? LIMIT 1`, phone, email))
}

// PINExistsTx reports whether pin is already assigned.
func (r *ClientRepo) PINExistsTx(ctx context.Context, tx *sql.Tx, pin string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM client WHERE pin = ?`, pin).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateTx inserts c and sets its ID. A PIN collision with an existing row
// is reported as ErrDuplicate.
func (r *ClientRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.Client) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO client (pin, name, last_name1, last_name2, phone, email) VALUES (?, ?, ?, ?, ?, ?)`,
		c.PIN, c.Name, c.LastName1, c.LastName2, c.Phone, c.Email)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// UpdateContactTx overwrites the mutable contact fields of client id. The
// PIN is never touched.
func (r *ClientRepo) UpdateContactTx(ctx context.Context, tx *sql.Tx, id uint64, ct model.Contact) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE client SET name = ?, last_name1 = ?, last_name2 = ?, phone = ?, email = ? WHERE id = ?`,
		ct.Name, ct.LastName1, ct.LastName2, ct.Phone, ct.Email, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a client together with its reservations.
func (r *ClientRepo) Delete(ctx context.Context, id uint64) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reservation WHERE client_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM client WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// requireRow maps a statement that matched nothing onto ErrNotFound. The
// MySQL DSN sets clientFoundRows so unchanged rows still count.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of clients.
func (r *ClientRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM client`).Scan(&n)
	return n, err
}
