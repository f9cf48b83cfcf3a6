package service

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/queue"
	"github.com/iliyamo/busbooking/internal/repository"
)

// CancelledAtLayout is the layout of Reservation.CancelledAt.
const CancelledAtLayout = "02-01-2006 15:04"

// ReservationService runs the reservation lifecycle. Clients act through
// their PIN; dashboard users act through a model.Session and must hold the
// admin role.
type ReservationService struct {
	db           *sql.DB
	clients      *repository.ClientRepo
	reservations *repository.ReservationRepo
	identity     *IdentityService
	events       EventPublisher
	logger       *zap.Logger
	now          func() time.Time
}

// NewReservationService wires the reservation engine.
func NewReservationService(db *sql.DB, clients *repository.ClientRepo, reservations *repository.ReservationRepo,
	identity *IdentityService, events EventPublisher, logger *zap.Logger) *ReservationService {
	return &ReservationService{
		db:           db,
		clients:      clients,
		reservations: reservations,
		identity:     identity,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

// SubmitInput is a booking as sent by a client. PIN is optional.
type SubmitInput struct {
	PIN     string
	Contact model.Contact
	Form    model.ReservationForm
}

// SubmitResult reports the stored reservation and the client it was
// attached to.
type SubmitResult struct {
	Reservation model.Reservation
	Client      model.Client
	IsNewClient bool
}

// ClientProfile is a client with its reservation history, newest first.
type ClientProfile struct {
	Client       model.Client        `json:"client"`
	Reservations []model.Reservation `json:"reservations"`
}

func requireAdmin(s model.Session) error {
	if !s.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// Submit stores a new pending reservation. The client is resolved by PIN or
// created in the same transaction, so a failed insert never leaves a new
// client behind and a returned PIN always resolves.
func (s *ReservationService) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	res, err := shapeReservation(in.Form)
	if err != nil {
		return SubmitResult{}, err
	}
	res.Status = model.StatusPending

	var out SubmitResult
	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		c, isNew, err := s.identity.ResolveOrCreateTx(ctx, tx, in.PIN, in.Contact)
		if err != nil {
			return err
		}
		res.ClientID = &c.ID
		if err := s.reservations.CreateTx(ctx, tx, &res); err != nil {
			return err
		}
		out = SubmitResult{Reservation: res, Client: c, IsNewClient: isNew}
		return nil
	})
	if err != nil {
		return SubmitResult{}, wrapStorage("submit reservation", err)
	}

	if out.IsNewClient {
		publish(ctx, s.events, s.logger, clientRegistered(out.Client))
	}
	publish(ctx, s.events, s.logger, reservationEvent(queue.TypeReservationSubmitted, out.Reservation))
	s.logger.Info("reservation submitted",
		zap.Uint64("reservation_id", out.Reservation.ID),
		zap.Uint64("client_id", out.Client.ID),
		zap.Bool("new_client", out.IsNewClient),
		zap.String("category", string(out.Reservation.Category)))
	return out, nil
}

// ownedTx loads reservation id and checks that it belongs to the client
// owning pin. A foreign reservation is reported as ErrNotFound.
func (s *ReservationService) ownedTx(ctx context.Context, tx *sql.Tx, id uint64, pin string) (model.Reservation, error) {
	pin = model.NormalizePIN(pin)
	if pin == "" {
		return model.Reservation{}, ErrNotFound
	}
	c, err := s.clients.GetByPINTx(ctx, tx, pin)
	if err != nil {
		return model.Reservation{}, err
	}
	r, err := s.reservations.GetByIDTx(ctx, tx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if r.ClientID == nil || *r.ClientID != c.ID {
		return model.Reservation{}, ErrNotFound
	}
	return r, nil
}

// Edit replaces the client-editable fields of a pending reservation. The
// shape is derived again from form, so switching category clears the
// fields of the previous one.
func (s *ReservationService) Edit(ctx context.Context, id uint64, pin string, form model.ReservationForm) (model.Reservation, error) {
	shaped, err := shapeReservation(form)
	if err != nil {
		return model.Reservation{}, err
	}
	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.ownedTx(ctx, tx, id, pin)
		if err != nil {
			return err
		}
		if !cur.IsPending() {
			return ErrInvalidState
		}
		shaped.ID = cur.ID
		shaped.ClientID = cur.ClientID
		shaped.Status = cur.Status
		return s.reservations.UpdateFormTx(ctx, tx, shaped)
	})
	if err != nil {
		return model.Reservation{}, wrapStorage("edit reservation", err)
	}
	publish(ctx, s.events, s.logger, reservationEvent(queue.TypeReservationUpdated, shaped))
	return shaped, nil
}

// Cancel moves a pending reservation of the client owning pin to Cancelada
// and stamps the cancellation time.
func (s *ReservationService) Cancel(ctx context.Context, id uint64, pin string) (model.Reservation, error) {
	stamp := s.now().Format(CancelledAtLayout)
	var out model.Reservation
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.ownedTx(ctx, tx, id, pin)
		if err != nil {
			return err
		}
		if !cur.IsPending() {
			return ErrInvalidState
		}
		if err := s.reservations.TransitionTx(ctx, tx, id, model.StatusPending, model.StatusCancelled, &stamp); err != nil {
			return err
		}
		cur.Status = model.StatusCancelled
		cur.CancelledAt = &stamp
		out = cur
		return nil
	})
	if err != nil {
		return model.Reservation{}, wrapStorage("cancel reservation", err)
	}
	publish(ctx, s.events, s.logger, reservationEvent(queue.TypeReservationCancelled, out))
	return out, nil
}

// MarkReviewed moves a pending reservation to Revisado. changed is false
// when the reservation had already left the pending state.
func (s *ReservationService) MarkReviewed(ctx context.Context, sess model.Session, id uint64) (bool, error) {
	if err := requireAdmin(sess); err != nil {
		return false, err
	}
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.reservations.TransitionTx(ctx, tx, id, model.StatusPending, model.StatusReviewed, nil)
	})
	if errors.Is(err, repository.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, wrapStorage("review reservation", err)
	}
	s.statusChanged(ctx, sess, id, model.StatusReviewed)
	return true, nil
}

// SetStatus overwrites the status with any enum label, including reopening
// a cancelled reservation. Setting Cancelada stamps the cancellation time.
func (s *ReservationService) SetStatus(ctx context.Context, sess model.Session, id uint64, label string) (model.Reservation, error) {
	if err := requireAdmin(sess); err != nil {
		return model.Reservation{}, err
	}
	status, err := model.ParseStatus(label)
	if err != nil {
		return model.Reservation{}, ErrInvalidStatus
	}
	var stamp *string
	if status == model.StatusCancelled {
		st := s.now().Format(CancelledAtLayout)
		stamp = &st
	}
	var out model.Reservation
	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.reservations.SetStatusTx(ctx, tx, id, status, stamp); err != nil {
			return err
		}
		out, err = s.reservations.GetByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Reservation{}, wrapStorage("set status", err)
	}
	s.statusChanged(ctx, sess, id, status)
	return out, nil
}

func (s *ReservationService) statusChanged(ctx context.Context, sess model.Session, id uint64, status model.Status) {
	ev := queue.NewEvent(queue.TypeReservationStatus)
	ev.ReservationID = id
	ev.Status = string(status)
	ev.ActorID = sess.UserID
	publish(ctx, s.events, s.logger, ev)
	s.logger.Info("reservation status changed",
		zap.Uint64("reservation_id", id),
		zap.String("status", string(status)),
		zap.Uint64("actor_id", sess.UserID))
}

// Get returns one reservation.
func (s *ReservationService) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	r, err := s.reservations.GetByID(ctx, id)
	return r, wrapStorage("get reservation", err)
}

// ListByClient returns the reservations of a client, newest first.
func (s *ReservationService) ListByClient(ctx context.Context, clientID uint64) ([]model.Reservation, error) {
	list, err := s.reservations.ListByClient(ctx, clientID)
	return list, wrapStorage("list reservations", err)
}

// ListAll returns the dashboard listing.
func (s *ReservationService) ListAll(ctx context.Context, sess model.Session, f repository.ReservationFilter) ([]repository.ReservationDetail, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	list, err := s.reservations.List(ctx, f)
	return list, wrapStorage("list reservations", err)
}

// Delete removes a reservation.
func (s *ReservationService) Delete(ctx context.Context, sess model.Session, id uint64) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	if err := s.reservations.Delete(ctx, id); err != nil {
		return wrapStorage("delete reservation", err)
	}
	s.logger.Info("reservation deleted", zap.Uint64("reservation_id", id), zap.Uint64("actor_id", sess.UserID))
	return nil
}

// Profile returns the client owning pin with its reservation history.
func (s *ReservationService) Profile(ctx context.Context, pin string) (ClientProfile, error) {
	c, err := s.identity.LookupByPIN(ctx, pin)
	if err != nil {
		return ClientProfile{}, err
	}
	list, err := s.ListByClient(ctx, c.ID)
	if err != nil {
		return ClientProfile{}, err
	}
	return ClientProfile{Client: c, Reservations: list}, nil
}

// ExportReport writes the plain text reservation report to w.
func (s *ReservationService) ExportReport(ctx context.Context, sess model.Session, w io.Writer) error {
	list, err := s.ListAll(ctx, sess, repository.ReservationFilter{})
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "REPORTE DE RESERVAS\n%s\n", strings.Repeat("=", 20))
	for i := len(list) - 1; i >= 0; i-- {
		r := list[i]
		fmt.Fprintf(bw, "ID: %d | Destino: %s | Fecha: %s | Estado: %s | Comentarios: %s\n",
			r.ID, r.Destination, r.Date, r.Status, r.Comments)
	}
	return bw.Flush()
}
