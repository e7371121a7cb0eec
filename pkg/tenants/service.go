package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

var (
	// ErrTenantNotFound is returned when no tenant matches the lookup
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrSlugTaken is returned when another tenant already uses the slug
	ErrSlugTaken = errors.New("tenant slug already in use")

	// ErrInvalidName is returned for names that produce an empty slug
	ErrInvalidName = errors.New("tenant name must contain letters or digits")
)

// Service administers tenants. Tenants sit above the tenant boundary, so every
// read and write here goes through the unscoped accessor.
type Service struct {
	tenants *storage.Unscoped[Tenant, *Tenant]
	logger  *observability.Logger
	now     func() time.Time
}

// NewService creates a tenant service
func NewService(store *storage.Store, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		tenants: storage.NewUnscoped[Tenant](store),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new tenant
func (s *Service) Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error) {
	slug := req.Slug
	if slug == "" {
		slug = generateSlug(req.Name)
	}
	if strings.TrimSpace(req.Name) == "" || slug == "" {
		return nil, ErrInvalidName
	}

	settings := DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
		settings.Version = SettingsVersion
	}

	now := s.now()
	t := &Tenant{
		ID:        uuid.New(),
		Name:      req.Name,
		Slug:      slug,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tenants.Insert(ctx, t); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"tenant_id": t.ID,
		"slug":      t.Slug,
	}).Info("Tenant created")
	return t, nil
}

// GetByID returns a tenant by id
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.get(ctx, storage.Where(storage.Eq("id", id)))
}

// GetBySlug returns a tenant by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.get(ctx, storage.Where(storage.Eq("slug", slug)))
}

func (s *Service) get(ctx context.Context, f storage.Filter) (*Tenant, error) {
	t, err := s.tenants.Get(ctx, f)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// TenantExists reports whether a tenant with the id exists. It is the lookup
// the tenant resolver runs before any tenant context is established.
func (s *Service) TenantExists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.tenants.Count(ctx, storage.Where(storage.Eq("id", id)))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns every tenant ordered by slug
func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	list, err := s.tenants.Find(ctx, storage.Filter{}.Order("slug"))
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return list, nil
}

// UpdateSettings replaces a tenant's settings document
func (s *Service) UpdateSettings(ctx context.Context, id uuid.UUID, settings Settings) error {
	n, err := s.tenants.Update(ctx, storage.Where(storage.Eq("id", id)),
		storage.Assign("settings", settings),
		storage.Assign("updated_at", s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant settings: %w", err)
	}
	if n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// generateSlug generates a URL-friendly slug from a name
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}

// GenerateSlug exposes the slug rule shared by roles and teams
func GenerateSlug(name string) string {
	return generateSlug(name)
}
