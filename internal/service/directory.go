package service

import (
	"context"
	"io"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/repository"
	"github.com/iliyamo/busbooking/internal/storage"
)

const statsCacheKey = "dashboard_stats"

// Upload is an optional file sent with a form.
type Upload struct {
	Filename string
	Body     io.Reader
}

// DirectoryService manages collaborators, their buses, the company profile
// and the dashboard counters.
type DirectoryService struct {
	collaborators *repository.CollaboratorRepo
	about         *repository.AboutRepo
	clients       *repository.ClientRepo
	reservations  *repository.ReservationRepo
	users         *repository.UserRepo
	blobs         storage.BlobStore
	cache         *gocache.Cache
	logger        *zap.Logger
}

// NewDirectoryService wires the directory. Dashboard stats are cached for
// statsTTL.
func NewDirectoryService(collaborators *repository.CollaboratorRepo, about *repository.AboutRepo,
	clients *repository.ClientRepo, reservations *repository.ReservationRepo, users *repository.UserRepo,
	blobs storage.BlobStore, statsTTL time.Duration, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{
		collaborators: collaborators,
		about:         about,
		clients:       clients,
		reservations:  reservations,
		users:         users,
		blobs:         blobs,
		cache:         gocache.New(statsTTL, 2*statsTTL),
		logger:        logger,
	}
}

func validateCollaborator(c *model.Collaborator) error {
	c.Name = strings.TrimSpace(c.Name)
	c.LastName1 = strings.TrimSpace(c.LastName1)
	c.LastName2 = strings.TrimSpace(c.LastName2)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Name == "" {
		return invalid("name", "is required")
	}
	for i := range c.Buses {
		b := &c.Buses[i]
		b.Plate = strings.ToUpper(strings.TrimSpace(b.Plate))
		if b.Plate == "" {
			return invalid("plate", "is required for every bus")
		}
		if b.Capacity < 0 || b.Year < 0 {
			return invalid("bus", "year and capacity must not be negative")
		}
	}
	return nil
}

func (s *DirectoryService) savePhoto(ctx context.Context, up *Upload) (string, error) {
	if up == nil || up.Body == nil || up.Filename == "" {
		return "", nil
	}
	url, err := s.blobs.Save(ctx, up.Filename, up.Body)
	if err != nil {
		return "", invalid("photo", err.Error())
	}
	return url, nil
}

// CreateCollaborator stores a collaborator with its buses in one
// transaction. photo is optional.
func (s *DirectoryService) CreateCollaborator(ctx context.Context, sess model.Session, c model.Collaborator, photo *Upload) (model.Collaborator, error) {
	if err := requireAdmin(sess); err != nil {
		return model.Collaborator{}, err
	}
	if err := validateCollaborator(&c); err != nil {
		return model.Collaborator{}, err
	}
	url, err := s.savePhoto(ctx, photo)
	if err != nil {
		return model.Collaborator{}, err
	}
	if url != "" {
		c.Photo = url
	}
	if err := s.collaborators.Create(ctx, &c); err != nil {
		_ = s.blobs.Delete(ctx, url)
		return model.Collaborator{}, wrapStorage("create collaborator", err)
	}
	s.cache.Delete(statsCacheKey)
	s.logger.Info("collaborator created", zap.Uint64("collaborator_id", c.ID), zap.Int("buses", len(c.Buses)))
	return c, nil
}

// ListCollaborators returns every collaborator with its buses.
func (s *DirectoryService) ListCollaborators(ctx context.Context, sess model.Session) ([]model.Collaborator, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	list, err := s.collaborators.List(ctx)
	return list, wrapStorage("list collaborators", err)
}

// GetCollaborator returns one collaborator with its buses.
func (s *DirectoryService) GetCollaborator(ctx context.Context, sess model.Session, id uint64) (model.Collaborator, error) {
	if err := requireAdmin(sess); err != nil {
		return model.Collaborator{}, err
	}
	c, err := s.collaborators.Get(ctx, id)
	return c, wrapStorage("get collaborator", err)
}

// UpdateCollaborator overwrites a collaborator and replaces its fleet. A new
// photo replaces and deletes the old one.
func (s *DirectoryService) UpdateCollaborator(ctx context.Context, sess model.Session, c model.Collaborator, photo *Upload) (model.Collaborator, error) {
	if err := requireAdmin(sess); err != nil {
		return model.Collaborator{}, err
	}
	if err := validateCollaborator(&c); err != nil {
		return model.Collaborator{}, err
	}
	old, err := s.collaborators.Get(ctx, c.ID)
	if err != nil {
		return model.Collaborator{}, wrapStorage("update collaborator", err)
	}
	url, err := s.savePhoto(ctx, photo)
	if err != nil {
		return model.Collaborator{}, err
	}
	c.Photo = url
	if err := s.collaborators.Update(ctx, &c); err != nil {
		_ = s.blobs.Delete(ctx, url)
		return model.Collaborator{}, wrapStorage("update collaborator", err)
	}
	if url != "" && old.Photo != "" {
		if err := s.blobs.Delete(ctx, old.Photo); err != nil {
			s.logger.Warn("old photo not removed", zap.String("photo", old.Photo), zap.Error(err))
		}
	}
	s.cache.Delete(statsCacheKey)
	return s.collaborators.Get(ctx, c.ID)
}

// DeleteCollaborator removes a collaborator, its buses and its photo.
func (s *DirectoryService) DeleteCollaborator(ctx context.Context, sess model.Session, id uint64) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	old, err := s.collaborators.Get(ctx, id)
	if err != nil {
		return wrapStorage("delete collaborator", err)
	}
	if err := s.collaborators.Delete(ctx, id); err != nil {
		return wrapStorage("delete collaborator", err)
	}
	if err := s.blobs.Delete(ctx, old.Photo); err != nil {
		s.logger.Warn("photo not removed", zap.String("photo", old.Photo), zap.Error(err))
	}
	s.cache.Delete(statsCacheKey)
	s.logger.Info("collaborator deleted", zap.Uint64("collaborator_id", id), zap.Uint64("actor_id", sess.UserID))
	return nil
}

// FleetTotals is the fleet grouped by ownership label.
type FleetTotals struct {
	Ownership     string `json:"ownership"`
	Collaborators int    `json:"collaborators"`
	Buses         int    `json:"buses"`
	TotalCapacity int    `json:"total_capacity"`
}

// Ownership returns the per collaborator fleet summary and the totals
// grouped by ownership label, in order of first appearance.
func (s *DirectoryService) Ownership(ctx context.Context, sess model.Session) ([]model.OwnershipSummary, []FleetTotals, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, nil, err
	}
	rows, err := s.collaborators.OwnershipSummary(ctx)
	if err != nil {
		return nil, nil, wrapStorage("ownership summary", err)
	}
	totals := make([]FleetTotals, 0)
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.Ownership]
		if !ok {
			i = len(totals)
			index[r.Ownership] = i
			totals = append(totals, FleetTotals{Ownership: r.Ownership})
		}
		totals[i].Collaborators++
		totals[i].Buses += r.Buses
		totals[i].TotalCapacity += r.TotalCapacity
	}
	return rows, totals, nil
}

// About returns the public company profile. A missing profile yields an
// empty one.
func (s *DirectoryService) About(ctx context.Context) (model.CompanyProfile, error) {
	p, err := s.about.Get(ctx)
	if err == nil {
		return p, nil
	}
	if err = wrapStorage("get about", err); err == ErrNotFound {
		return model.CompanyProfile{}, nil
	}
	return model.CompanyProfile{}, err
}

// UpsertAbout saves the company profile; logo is optional.
func (s *DirectoryService) UpsertAbout(ctx context.Context, sess model.Session, p model.CompanyProfile, logo *Upload) (model.CompanyProfile, error) {
	if err := requireAdmin(sess); err != nil {
		return model.CompanyProfile{}, err
	}
	url, err := s.savePhoto(ctx, logo)
	if err != nil {
		return model.CompanyProfile{}, err
	}
	p.Logo = url
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	saved, err := s.about.Upsert(ctx, p)
	if err != nil {
		_ = s.blobs.Delete(ctx, url)
		return model.CompanyProfile{}, wrapStorage("save about", err)
	}
	return saved, nil
}

// Stats returns the dashboard counters, cached for the configured TTL.
func (s *DirectoryService) Stats(ctx context.Context) (model.DashboardStats, error) {
	if v, ok := s.cache.Get(statsCacheKey); ok {
		return v.(model.DashboardStats), nil
	}
	var (
		st  model.DashboardStats
		err error
	)
	if st.Reservations, st.Pending, err = s.reservations.Counts(ctx); err != nil {
		return st, wrapStorage("stats", err)
	}
	if st.Clients, err = s.clients.Count(ctx); err != nil {
		return st, wrapStorage("stats", err)
	}
	if st.Users, err = s.users.Count(ctx); err != nil {
		return st, wrapStorage("stats", err)
	}
	if st.Colabs, st.Buses, err = s.collaborators.Counts(ctx); err != nil {
		return st, wrapStorage("stats", err)
	}
	s.cache.Set(statsCacheKey, st, gocache.DefaultExpiration)
	return st, nil
}

// InvalidateStats drops the cached counters.
func (s *DirectoryService) InvalidateStats() { s.cache.Delete(statsCacheKey) }
