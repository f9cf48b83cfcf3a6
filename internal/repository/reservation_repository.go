package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/busbooking/internal/model"
)

// ReservationRepo provides CRUD operations and guarded state transitions
// for reservations. The category-specific columns are written from the
// model.Details variant; columns of the other categories are always NULL.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// ReservationDetail is a reservation joined with the contact data of its
// client. It is returned by the dashboard listing and the text export.
type ReservationDetail struct {
	model.Reservation
	ClientPIN   string `json:"client_pin,omitempty"`
	ClientName  string `json:"client_name,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	ClientEmail string `json:"client_email,omitempty"`
}

// ReservationFilter narrows List. Zero values match everything.
type ReservationFilter struct {
	Status   model.Status
	Category model.Category
	ClientID uint64
}

const reservationColumns = `r.id, r.client_id, r.date, r.origin, r.origin_url, r.departure_time,
	r.needs_pickup, r.pickup_locations, r.destination, r.destination_url,
	r.service_category, r.capacity_needed, r.comments, r.status,
	r.institution_name, r.schedule_type, r.country, r.return_date, r.trip_duration,
	r.cancelled_at`

// detailColumns holds the nullable category columns for one variant.
type detailColumns struct {
	institution  sql.NullString
	schedule     sql.NullString
	country      sql.NullString
	returnDate   sql.NullString
	tripDuration sql.NullInt64
}

func columnsFor(d model.Details) detailColumns {
	var c detailColumns
	switch v := d.(type) {
	case model.StudentDetails:
		c.institution = sql.NullString{String: v.InstitutionName, Valid: true}
		c.schedule = sql.NullString{String: v.ScheduleType, Valid: true}
	case model.InternationalDetails:
		c.country = sql.NullString{String: v.Country, Valid: true}
		c.returnDate = sql.NullString{String: v.ReturnDate, Valid: true}
		c.tripDuration = sql.NullInt64{Int64: int64(v.TripDuration), Valid: true}
	}
	return c
}

func (c detailColumns) details(cat model.Category) model.Details {
	switch cat {
	case model.CategoryStudent:
		return model.StudentDetails{InstitutionName: c.institution.String, ScheduleType: c.schedule.String}
	case model.CategoryInternational:
		return model.InternationalDetails{
			Country:      c.country.String,
			ReturnDate:   c.returnDate.String,
			TripDuration: int(c.tripDuration.Int64),
		}
	}
	return model.SpecialDetails{}
}

func scanReservation(row interface{ Scan(...any) error }, extra ...any) (model.Reservation, error) {
	var (
		r                                             model.Reservation
		clientID                                      sql.NullInt64
		originURL, pickups, destURL, comments, cancel sql.NullString
		category, status                              string
		dc                                            detailColumns
	)
	dest := []any{
		&r.ID, &clientID, &r.Date, &r.Origin, &originURL, &r.DepartureTime,
		&r.NeedsPickup, &pickups, &r.Destination, &destURL,
		&category, &r.CapacityNeeded, &comments, &status,
		&dc.institution, &dc.schedule, &dc.country, &dc.returnDate, &dc.tripDuration,
		&cancel,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	if clientID.Valid {
		id := uint64(clientID.Int64)
		r.ClientID = &id
	}
	r.OriginURL = originURL.String
	r.PickupLocations = pickups.String
	r.DestinationURL = destURL.String
	r.Comments = comments.String
	if cat, err := model.ParseCategory(category); err == nil {
		r.Category = cat
	} else {
		r.Category = model.Category(category)
	}
	r.Status = model.Status(status)
	r.Details = dc.details(r.Category)
	if cancel.Valid {
		s := cancel.String
		r.CancelledAt = &s
	}
	return r, nil
}

func clientIDArg(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID. The status defaults to
// Pendiente when empty.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	if res.Status == "" {
		res.Status = model.StatusPending
	}
	dc := columnsFor(res.Details)
	const q = `INSERT INTO reservation (client_id, date, origin, origin_url, departure_time,
		needs_pickup, pickup_locations, destination, destination_url, service_category,
		capacity_needed, comments, status, institution_name, schedule_type, country,
		return_date, trip_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		clientIDArg(res.ClientID), res.Date, res.Origin, nullString(res.OriginURL), res.DepartureTime,
		res.NeedsPickup, nullString(res.PickupLocations), res.Destination, nullString(res.DestinationURL),
		string(res.Category), res.CapacityNeeded, nullString(res.Comments), string(res.Status),
		dc.institution, dc.schedule, dc.country, dc.returnDate, dc.tripDuration)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// GetByID loads one reservation.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx is GetByID inside tx.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	return r.get(ctx, tx, id)
}

func (r *ReservationRepo) get(ctx context.Context, q queryer, id uint64) (model.Reservation, error) {
	return scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservation r WHERE r.id = ?`, id))
}

// guardFailure explains why a conditional update matched no row: the
// reservation is missing (ErrNotFound) or in another state (ErrConflict).
func (r *ReservationRepo) guardFailure(ctx context.Context, tx *sql.Tx, id uint64) error {
	if _, err := r.get(ctx, tx, id); err != nil {
		return err
	}
	return ErrConflict
}

// UpdateFormTx rewrites the client-editable fields of a reservation while it
// is still pending. Category columns of the variants not carried by
// res.Details are reset to NULL.
func (r *ReservationRepo) UpdateFormTx(ctx context.Context, tx *sql.Tx, res model.Reservation) error {
	dc := columnsFor(res.Details)
	const q = `UPDATE reservation SET date = ?, origin = ?, origin_url = ?, departure_time = ?,
		needs_pickup = ?, pickup_locations = ?, destination = ?, destination_url = ?,
		service_category = ?, capacity_needed = ?, comments = ?,
		institution_name = ?, schedule_type = ?, country = ?, return_date = ?, trip_duration = ?
		WHERE id = ? AND status = ?`
	result, err := tx.ExecContext(ctx, q,
		res.Date, res.Origin, nullString(res.OriginURL), res.DepartureTime,
		res.NeedsPickup, nullString(res.PickupLocations), res.Destination, nullString(res.DestinationURL),
		string(res.Category), res.CapacityNeeded, nullString(res.Comments),
		dc.institution, dc.schedule, dc.country, dc.returnDate, dc.tripDuration,
		res.ID, string(model.StatusPending))
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return r.guardFailure(ctx, tx, res.ID)
	}
	return nil
}

// TransitionTx moves reservation id from one status to another. The update
// only applies while the row is still in from, so two racing transitions
// cannot both succeed. cancelledAt is written when non-nil.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.Status, cancelledAt *string) error {
	var (
		result sql.Result
		err    error
	)
	if cancelledAt != nil {
		result, err = tx.ExecContext(ctx,
			`UPDATE reservation SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?`,
			string(to), *cancelledAt, id, string(from))
	} else {
		result, err = tx.ExecContext(ctx,
			`UPDATE reservation SET status = ? WHERE id = ? AND status = ?`,
			string(to), id, string(from))
	}
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return r.guardFailure(ctx, tx, id)
	}
	return nil
}

// SetStatusTx overwrites the status unconditionally. cancelledAt replaces
// the stored cancellation time when non-nil.
func (r *ReservationRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.Status, cancelledAt *string) error {
	var (
		result sql.Result
		err    error
	)
	if cancelledAt != nil {
		result, err = tx.ExecContext(ctx,
			`UPDATE reservation SET status = ?, cancelled_at = ? WHERE id = ?`, string(status), *cancelledAt, id)
	} else {
		result, err = tx.ExecContext(ctx, `UPDATE reservation SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListByClient returns the reservations of one client, newest first.
func (r *ReservationRepo) ListByClient(ctx context.Context, clientID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservation r WHERE r.client_id = ? ORDER BY r.id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// List returns reservations joined with their client, newest first.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter) ([]ReservationDetail, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		where = append(where, "r.service_category = ?")
		args = append(args, string(f.Category))
	}
	if f.ClientID != 0 {
		where = append(where, "r.client_id = ?")
		args = append(args, f.ClientID)
	}
	q := `SELECT ` + reservationColumns + `, c.pin, c.name, c.last_name1, c.last_name2, c.phone, c.email
		FROM reservation r LEFT JOIN client c ON c.id = r.client_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY r.id DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ReservationDetail, 0)
	for rows.Next() {
		var pin, name, ln1, ln2, phone, email sql.NullString
		res, err := scanReservation(rows, &pin, &name, &ln1, &ln2, &phone, &email)
		if err != nil {
			return nil, err
		}
		c := model.Client{Name: name.String, LastName1: ln1.String, LastName2: ln2.String}
		out = append(out, ReservationDetail{
			Reservation: res,
			ClientPIN:   pin.String,
			ClientName:  c.FullName(),
			ClientPhone: phone.String,
			ClientEmail: email.String,
		})
	}
	return out, rows.Err()
}

// Delete removes a reservation.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservation WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Counts returns the total number of reservations and how many are pending.
func (r *ReservationRepo) Counts(ctx context.Context) (total, pending int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM reservation`,
		string(model.StatusPending)).Scan(&total, &pending)
	return total, pending, err
}
