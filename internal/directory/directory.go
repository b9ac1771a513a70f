// Package directory resolves display data for users and catalog
// entities. Lookups are best-effort: a miss or a failure yields no data
// rather than an error for the caller's operation.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/observability"
)

// Profile is the public identity of a user.
type Profile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// ProfileLookup returns profiles by id. Missing ids are absent from the
// result.
type ProfileLookup interface {
	Profiles(ctx context.Context, ids []string) (map[string]Profile, error)
}

// EntityLookup returns the display name of a catalog entity.
type EntityLookup interface {
	EntityName(ctx context.Context, ref domain.EntityRef) (string, bool, error)
}

// Directory combines both lookups.
type Directory interface {
	ProfileLookup
	EntityLookup
}

type postgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory reads profiles and entity names from the shared
// database.
func NewPostgresDirectory(pool *pgxpool.Pool) Directory {
	return &postgresDirectory{pool: pool}
}

func (d *postgresDirectory) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	defer observability.ObserveStore("directory", "profiles")()

	out := make(map[string]Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.pool.Query(ctx, `SELECT id, display_name, avatar_url FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

var entityTables = map[domain.EntityType]string{
	domain.EntityTypeGroup:   "groups",
	domain.EntityTypeService: "services",
	domain.EntityTypeEvent:   "events",
}

func (d *postgresDirectory) EntityName(ctx context.Context, ref domain.EntityRef) (string, bool, error) {
	defer observability.ObserveStore("directory", "entity_name")()

	table, ok := entityTables[ref.Type]
	if !ok {
		return "", false, nil
	}
	var name string
	err := d.pool.QueryRow(ctx, fmt.Sprintf(`SELECT name FROM %s WHERE id=$1`, table), ref.ID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// Static is an in-memory Directory, used when no database is configured
// and in tests.
type Static struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	entities map[domain.EntityRef]string
}

// NewStatic returns an empty Static directory.
func NewStatic() *Static {
	return &Static{
		profiles: make(map[string]Profile),
		entities: make(map[domain.EntityRef]string),
	}
}

// PutProfile stores p.
func (s *Static) PutProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// PutEntity stores the name for ref.
func (s *Static) PutEntity(ref domain.EntityRef, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[ref] = name
}

func (s *Static) Profiles(_ context.Context, ids []string) (map[string]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Static) EntityName(_ context.Context, ref domain.EntityRef) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.entities[ref]
	return name, ok, nil
}
