package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/queue"
	"github.com/iliyamo/busbooking/internal/repository"
	"github.com/iliyamo/busbooking/internal/storage"
	"github.com/iliyamo/busbooking/internal/testutil"
)

var admin = model.Session{UserID: 1, Username: "root", Role: model.RoleAdmin}

type fixture struct {
	db           *sql.DB
	events       *queue.RecordingPublisher
	clients      *repository.ClientRepo
	identity     *IdentityService
	reservations *ReservationService
	directory    *DirectoryService
	accounts     *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop()
	events := &queue.RecordingPublisher{}
	clients := repository.NewClientRepo(db)
	resRepo := repository.NewReservationRepo(db)
	users := repository.NewUserRepo(db)
	identity := NewIdentityService(db, clients, NewPINGenerator(), events, log)
	reservations := NewReservationService(db, clients, resRepo, identity, events, log)
	reservations.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	return &fixture{
		db:           db,
		events:       events,
		clients:      clients,
		identity:     identity,
		reservations: reservations,
		directory: NewDirectoryService(repository.NewCollaboratorRepo(db), repository.NewAboutRepo(db),
			clients, resRepo, users, storage.NewLocalStore(t.TempDir(), "/static/uploads"), time.Minute, log),
		accounts: NewAccountService(users, repository.NewTokenRepo(db), 4, log),
	}
}

func (f *fixture) clientCount(t *testing.T) int {
	t.Helper()
	n, err := f.clients.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func specialForm() model.ReservationForm {
	return model.ReservationForm{
		ServiceCategory: "Special Services",
		Day:             "5",
		Month:           "3",
		Year:            "2024",
		Origin:          "San José",
		Destination:     "Limón",
		Capacity:        "30",
	}
}
