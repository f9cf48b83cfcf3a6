package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/busbooking/internal/model"
)

// CollaboratorRepo persists collaborators and the buses they own.
type CollaboratorRepo struct {
	db *sql.DB
}

// NewCollaboratorRepo returns a CollaboratorRepo bound to db.
func NewCollaboratorRepo(db *sql.DB) *CollaboratorRepo { return &CollaboratorRepo{db: db} }

const collaboratorColumns = `id, photo, name, last_name1, last_name2, phone_fixed, mobile, email, license_type, ownership`

func scanCollaborator(row interface{ Scan(...any) error }) (model.Collaborator, error) {
	var c model.Collaborator
	err := row.Scan(&c.ID, &c.Photo, &c.Name, &c.LastName1, &c.LastName2,
		&c.PhoneFixed, &c.Mobile, &c.Email, &c.LicenseType, &c.Ownership)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// Create inserts the collaborator and its buses in one transaction and
// populates every generated ID.
func (r *CollaboratorRepo) Create(ctx context.Context, c *model.Collaborator) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO collaborator (photo, name, last_name1, last_name2, phone_fixed, mobile, email, license_type, ownership)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Photo, c.Name, c.LastName1, c.LastName2, c.PhoneFixed, c.Mobile, c.Email, c.LicenseType, c.Ownership)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c.ID = uint64(id)
		return insertBusesTx(ctx, tx, c.ID, c.Buses)
	})
}

func insertBusesTx(ctx context.Context, tx *sql.Tx, collaboratorID uint64, buses []model.Bus) error {
	for i := range buses {
		b := &buses[i]
		b.CollaboratorID = collaboratorID
		res, err := tx.ExecContext(ctx,
			`INSERT INTO bus (collaborator_id, brand, plate, year, capacity, service_type) VALUES (?, ?, ?, ?, ?, ?)`,
			collaboratorID, b.Brand, b.Plate, b.Year, b.Capacity, b.ServiceType)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		b.ID = uint64(id)
	}
	return nil
}

// Get loads one collaborator with its buses.
func (r *CollaboratorRepo) Get(ctx context.Context, id uint64) (model.Collaborator, error) {
	c, err := scanCollaborator(r.db.QueryRowContext(ctx,
		`SELECT `+collaboratorColumns+` FROM collaborator WHERE id = ?`, id))
	if err != nil {
		return c, err
	}
	byOwner, err := r.busesByCollaborator(ctx, &id)
	if err != nil {
		return c, err
	}
	c.Buses = byOwner[id]
	if c.Buses == nil {
		c.Buses = []model.Bus{}
	}
	return c, nil
}

// List returns every collaborator with its buses, ordered by id.
func (r *CollaboratorRepo) List(ctx context.Context) ([]model.Collaborator, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+collaboratorColumns+` FROM collaborator ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]model.Collaborator, 0)
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	byOwner, err := r.busesByCollaborator(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Buses = byOwner[out[i].ID]
		if out[i].Buses == nil {
			out[i].Buses = []model.Bus{}
		}
	}
	return out, nil
}

func (r *CollaboratorRepo) busesByCollaborator(ctx context.Context, only *uint64) (map[uint64][]model.Bus, error) {
	q := `SELECT id, collaborator_id, brand, plate, year, capacity, service_type FROM bus`
	var args []any
	if only != nil {
		q += ` WHERE collaborator_id = ?`
		args = append(args, *only)
	}
	q += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64][]model.Bus)
	for rows.Next() {
		var b model.Bus
		if err := rows.Scan(&b.ID, &b.CollaboratorID, &b.Brand, &b.Plate, &b.Year, &b.Capacity, &b.ServiceType); err != nil {
			return nil, err
		}
		out[b.CollaboratorID] = append(out[b.CollaboratorID], b)
	}
	return out, rows.Err()
}

// Update overwrites the collaborator fields and replaces its fleet with
// c.Buses. An empty Photo keeps the stored one.
func (r *CollaboratorRepo) Update(ctx context.Context, c *model.Collaborator) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE collaborator SET photo = CASE WHEN ? = '' THEN photo ELSE ? END,
			 name = ?, last_name1 = ?, last_name2 = ?, phone_fixed = ?, mobile = ?, email = ?,
			 license_type = ?, ownership = ? WHERE id = ?`,
			c.Photo, c.Photo, c.Name, c.LastName1, c.LastName2, c.PhoneFixed, c.Mobile, c.Email,
			c.LicenseType, c.Ownership, c.ID)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bus WHERE collaborator_id = ?`, c.ID); err != nil {
			return err
		}
		return insertBusesTx(ctx, tx, c.ID, c.Buses)
	})
}

// Delete removes a collaborator and its buses.
func (r *CollaboratorRepo) Delete(ctx context.Context, id uint64) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bus WHERE collaborator_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM collaborator WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// OwnershipSummary aggregates bus count and seat capacity per collaborator.
// Collaborators without buses are included with zero totals.
func (r *CollaboratorRepo) OwnershipSummary(ctx context.Context) ([]model.OwnershipSummary, error) {
	const q = `SELECT c.id, c.name, c.last_name1, c.ownership, COUNT(b.id), COALESCE(SUM(b.capacity), 0)
		FROM collaborator c LEFT JOIN bus b ON b.collaborator_id = c.id
		GROUP BY c.id, c.name, c.last_name1, c.ownership
		ORDER BY c.id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.OwnershipSummary, 0)
	for rows.Next() {
		var (
			s         model.OwnershipSummary
			name, ln1 string
		)
		if err := rows.Scan(&s.CollaboratorID, &name, &ln1, &s.Ownership, &s.Buses, &s.TotalCapacity); err != nil {
			return nil, err
		}
		s.Name = model.Client{Name: name, LastName1: ln1}.FullName()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Counts returns the number of collaborators and buses.
func (r *CollaboratorRepo) Counts(ctx context.Context) (colabs, buses int, err error) {
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collaborator`).Scan(&colabs); err != nil {
		return 0, 0, err
	}
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bus`).Scan(&buses); err != nil {
		return 0, 0, err
	}
	return colabs, buses, nil
}
