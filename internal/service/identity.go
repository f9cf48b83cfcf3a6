package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/repository"
)

// IdentityService issues and resolves client PINs.
type IdentityService struct {
	db      *sql.DB
	clients *repository.ClientRepo
	pins    *PINGenerator
	events  EventPublisher
	logger  *zap.Logger
}

// NewIdentityService wires the identity store.
func NewIdentityService(db *sql.DB, clients *repository.ClientRepo, pins *PINGenerator, events EventPublisher, logger *zap.Logger) *IdentityService {
	return &IdentityService{db: db, clients: clients, pins: pins, events: events, logger: logger}
}

// GeneratePIN draws a PIN that is not assigned to any client.
func (s *IdentityService) GeneratePIN(ctx context.Context) (string, error) {
	return s.pins.Generate(ctx, func(ctx context.Context, pin string) (bool, error) {
		_, err := s.clients.GetByPIN(ctx, pin)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repository.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	})
}

// ResolveOrCreate is ResolveOrCreateTx in its own transaction. A
// client.registered event is published once the new client is committed.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, pin string, ct model.Contact) (model.Client, bool, error) {
	var (
		c     model.Client
		isNew bool
	)
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		c, isNew, err = s.ResolveOrCreateTx(ctx, tx, pin, ct)
		return err
	})
	if err != nil {
		return model.Client{}, false, wrapStorage("resolve client", err)
	}
	if isNew {
		publish(ctx, s.events, s.logger, clientRegistered(c))
	}
	return c, isNew, nil
}

// ResolveOrCreateTx resolves pin to a client and overwrites its contact
// fields, or creates a new client with a fresh PIN when pin is empty or
// unknown. A new client is refused with *DuplicateContactError when its
// phone or email already belongs to someone else. The caller owns tx.
func (s *IdentityService) ResolveOrCreateTx(ctx context.Context, tx *sql.Tx, pin string, ct model.Contact) (model.Client, bool, error) {
	ct = ct.Normalized()
	if ct.Name == "" {
		return model.Client{}, false, invalid("name", "is required")
	}
	if ct.Phone == "" {
		return model.Client{}, false, invalid("phone", "is required")
	}

	if pin = model.NormalizePIN(pin); pin != "" {
		c, err := s.clients.GetByPINTx(ctx, tx, pin)
		switch {
		case err == nil:
			if err := s.clients.UpdateContactTx(ctx, tx, c.ID, ct); err != nil {
				return model.Client{}, false, err
			}
			c.Apply(ct)
			return c, false, nil
		case !errors.Is(err, repository.ErrNotFound):
			return model.Client{}, false, err
		}
	}

	if err := s.checkContactFreeTx(ctx, tx, ct); err != nil {
		return model.Client{}, false, err
	}

	c := model.Client{}
	c.Apply(ct)
	for attempt := 0; attempt < maxPINAttempts; attempt++ {
		fresh, err := s.pins.Generate(ctx, func(ctx context.Context, p string) (bool, error) {
			return s.clients.PINExistsTx(ctx, tx, p)
		})
		if err != nil {
			return model.Client{}, false, err
		}
		c.PIN = fresh
		err = s.clients.CreateTx(ctx, tx, &c)
		if err == nil {
			return c, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.Client{}, false, err
		}
		s.logger.Debug("pin collision on insert; redrawing")
	}
	return model.Client{}, false, ErrPINExhausted
}

func (s *IdentityService) checkContactFreeTx(ctx context.Context, tx *sql.Tx, ct model.Contact) error {
	if _, err := s.clients.FindByPhoneTx(ctx, tx, ct.Phone); err == nil {
		return &DuplicateContactError{Field: "phone"}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if ct.Email == "" {
		return nil
	}
	if _, err := s.clients.FindByEmailTx(ctx, tx, ct.Email); err == nil {
		return &DuplicateContactError{Field: "email"}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// RecoverPIN returns the PIN of the client matching both phone and email
// exactly. A partial match is reported as ErrNotFound.
func (s *IdentityService) RecoverPIN(ctx context.Context, phone, email string) (string, error) {
	phone = strings.TrimSpace(phone)
	email = strings.ToLower(strings.TrimSpace(email))
	if phone == "" || email == "" {
		return "", ErrNotFound
	}
	c, err := s.clients.FindByPhoneAndEmail(ctx, phone, email)
	if err != nil {
		return "", wrapStorage("recover pin", err)
	}
	return c.PIN, nil
}

// LookupByPIN returns the client owning pin.
func (s *IdentityService) LookupByPIN(ctx context.Context, pin string) (model.Client, error) {
	pin = model.NormalizePIN(pin)
	if pin == "" {
		return model.Client{}, ErrNotFound
	}
	c, err := s.clients.GetByPIN(ctx, pin)
	if err != nil {
		return model.Client{}, wrapStorage("lookup pin", err)
	}
	return c, nil
}

// wrapStorage maps repository errors onto service errors. Service errors
// pass through unchanged; anything unknown becomes ErrPersistence.
func wrapStorage(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrInvalidState
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState), errors.Is(err, ErrDuplicateContact),
		errors.Is(err, ErrValidation), errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrSelfAction), errors.Is(err, ErrPINExhausted), errors.Is(err, ErrPersistence),
		errors.Is(err, ErrInvalidCredentials):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return persistence(op, err)
	}
}
