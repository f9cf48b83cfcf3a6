package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/busbooking/internal/model"
)

// AboutRepo reads and writes the singleton company profile.
type AboutRepo struct {
	db *sql.DB
}

// NewAboutRepo returns an AboutRepo bound to db.
func NewAboutRepo(db *sql.DB) *AboutRepo { return &AboutRepo{db: db} }

// Get returns the company profile, or ErrNotFound when none has been saved.
func (r *AboutRepo) Get(ctx context.Context) (model.CompanyProfile, error) {
	return r.get(ctx, r.db)
}

func (r *AboutRepo) get(ctx context.Context, q queryer) (model.CompanyProfile, error) {
	var (
		p                            model.CompanyProfile
		mission, vision, description sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, logo, mission, vision, phone_admin, mobile_admin, mobile_service, email, description
		 FROM about_us ORDER BY id LIMIT 1`).
		Scan(&p.ID, &p.Logo, &mission, &vision, &p.PhoneAdmin, &p.MobileAdmin, &p.MobileService, &p.Email, &description)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Mission, p.Vision, p.Description = mission.String, vision.String, description.String
	return p, nil
}

// Upsert updates the existing profile or inserts the first one. An empty
// Logo keeps the stored logo. The saved profile is returned.
func (r *AboutRepo) Upsert(ctx context.Context, p model.CompanyProfile) (model.CompanyProfile, error) {
	var saved model.CompanyProfile
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := r.get(ctx, tx)
		switch {
		case errors.Is(err, ErrNotFound):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO about_us (logo, mission, vision, phone_admin, mobile_admin, mobile_service, email, description)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				p.Logo, p.Mission, p.Vision, p.PhoneAdmin, p.MobileAdmin, p.MobileService, p.Email, p.Description)
		case err == nil:
			if p.Logo == "" {
				p.Logo = cur.Logo
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE about_us SET logo = ?, mission = ?, vision = ?, phone_admin = ?, mobile_admin = ?,
				 mobile_service = ?, email = ?, description = ? WHERE id = ?`,
				p.Logo, p.Mission, p.Vision, p.PhoneAdmin, p.MobileAdmin, p.MobileService, p.Email, p.Description, cur.ID)
		}
		if err != nil {
			return err
		}
		saved, err = r.get(ctx, tx)
		return err
	})
	return saved, err
}
