package apiaries

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrApiaryNotFound = errors.New("apiary not found")
var ErrHiveNotFound = errors.New("hive not found")

// ErrGroupRequired is returned when sharing is enabled without a group
// attached to receive the grant.
var ErrGroupRequired = errors.New("apiary has no group to share with")

// Service provides record-keeping operations over apiaries and the
// resources beneath them. Access control is the caller's concern; these
// methods assume the decision has already been made.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const apiaryColumns = `
	id, name, location, notes, latitude, longitude,
	owner_user_id, group_id, shared_with_group, created_at, updated_at
`

func scanApiary(row pgx.Row) (*Apiary, error) {
	var a Apiary
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Location,
		&a.Notes,
		&a.Latitude,
		&a.Longitude,
		&a.OwnerUserID,
		&a.GroupID,
		&a.SharedWithGroup,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApiaryNotFound
		}
		return nil, fmt.Errorf("failed to scan apiary: %w", err)
	}
	return &a, nil
}

type CreateApiaryParams struct {
	Name      string
	Location  string
	Notes     string
	Latitude  *float64
	Longitude *float64
	GroupID   uuid.NullUUID
}

// Create inserts a new apiary owned by ownerID. Attaching a group does not
// share the apiary; sharing is a separate, explicit step.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, params CreateApiaryParams) (*Apiary, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO apiaries (name, location, notes, latitude, longitude, owner_user_id, group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+apiaryColumns,
		params.Name, params.Location, params.Notes, params.Latitude, params.Longitude, ownerID, params.GroupID)
	return scanApiary(row)
}

// Get loads a single apiary by ID.
func (s *Service) Get(ctx context.Context, apiaryID uuid.UUID) (*Apiary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+apiaryColumns+`
		FROM apiaries
		WHERE id = $1
	`, apiaryID)
	return scanApiary(row)
}

// ListVisible returns every apiary the user can at least read: their own,
// plus those shared with a group they belong to.
func (s *Service) ListVisible(ctx context.Context, userID uuid.UUID) ([]Apiary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+apiaryColumns+`
		FROM apiaries a
		WHERE a.owner_user_id = $1
		   OR (
		     a.shared_with_group
		     AND a.group_id IS NOT NULL
		     AND EXISTS (
		       SELECT 1 FROM group_memberships m
		       WHERE m.group_id = a.group_id AND m.user_id = $1
		     )
		   )
		ORDER BY a.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list apiaries: %w", err)
	}
	defer rows.Close()

	var apiaries []Apiary
	for rows.Next() {
		a, err := scanApiary(rows)
		if err != nil {
			return nil, err
		}
		apiaries = append(apiaries, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating apiaries: %w", err)
	}

	return apiaries, nil
}

type UpdateApiaryParams struct {
	Name      string
	Location  string
	Notes     string
	Latitude  *float64
	Longitude *float64
}

// Update rewrites an apiary's descriptive fields.
func (s *Service) Update(ctx context.Context, apiaryID uuid.UUID, params UpdateApiaryParams) (*Apiary, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE apiaries
		SET name = $2, location = $3, notes = $4, latitude = $5, longitude = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+apiaryColumns,
		apiaryID, params.Name, params.Location, params.Notes, params.Latitude, params.Longitude)
	return scanApiary(row)
}

// SetSharing attaches the apiary to a group and turns the sharing grant on
// or off. Enabling sharing requires a group, either already attached or
// supplied here. Disabling keeps the group attachment but revokes the
// group's access.
func (s *Service) SetSharing(ctx context.Context, apiaryID uuid.UUID, groupID uuid.NullUUID, shared bool) (*Apiary, error) {
	current, err := s.Get(ctx, apiaryID)
	if err != nil {
		return nil, err
	}

	effectiveGroup := current.GroupID
	if groupID.Valid {
		effectiveGroup = groupID
	}
	if shared && !effectiveGroup.Valid {
		return nil, ErrGroupRequired
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE apiaries
		SET group_id = $2, shared_with_group = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+apiaryColumns,
		apiaryID, effectiveGroup, shared)
	return scanApiary(row)
}

// Delete removes an apiary and cascades to its hives and inspections.
func (s *Service) Delete(ctx context.Context, apiaryID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM apiaries WHERE id = $1`, apiaryID)
	if err != nil {
		return fmt.Errorf("failed to delete apiary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrApiaryNotFound
	}
	return nil
}

// CreateHive adds a hive to an apiary.
func (s *Service) CreateHive(ctx context.Context, apiaryID uuid.UUID, label string) (*Hive, error) {
	var h Hive
	err := s.pool.QueryRow(ctx, `
		INSERT INTO hives (apiary_id, label)
		VALUES ($1, $2)
		RETURNING id, apiary_id, label, created_at
	`, apiaryID, label).Scan(&h.ID, &h.ApiaryID, &h.Label, &h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create hive: %w", err)
	}
	return &h, nil
}

// ListHives returns an apiary's hives, oldest first.
func (s *Service) ListHives(ctx context.Context, apiaryID uuid.UUID) ([]Hive, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, apiary_id, label, created_at
		FROM hives
		WHERE apiary_id = $1
		ORDER BY created_at
	`, apiaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hives: %w", err)
	}
	defer rows.Close()

	var hives []Hive
	for rows.Next() {
		var h Hive
		if err := rows.Scan(&h.ID, &h.ApiaryID, &h.Label, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hive: %w", err)
		}
		hives = append(hives, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hives: %w", err)
	}

	return hives, nil
}

type CreateInspectionParams struct {
	InspectedOn string
	QueenSeen   bool
	Notes       string
}

// CreateInspection records an inspection against a hive.
func (s *Service) CreateInspection(ctx context.Context, hiveID, authorID uuid.UUID, params CreateInspectionParams) (*Inspection, error) {
	var insp Inspection
	err := s.pool.QueryRow(ctx, `
		INSERT INTO inspections (hive_id, inspected_on, queen_seen, notes, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, hive_id, inspected_on, queen_seen, notes, created_by_user_id, created_at
	`, hiveID, params.InspectedOn, params.QueenSeen, params.Notes, authorID).Scan(
		&insp.ID, &insp.HiveID, &insp.InspectedOn, &insp.QueenSeen, &insp.Notes, &insp.CreatedByUserID, &insp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inspection: %w", err)
	}
	return &insp, nil
}

// ListInspections returns a hive's inspections, newest first.
func (s *Service) ListInspections(ctx context.Context, hiveID uuid.UUID) ([]Inspection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hive_id, inspected_on, queen_seen, notes, created_by_user_id, created_at
		FROM inspections
		WHERE hive_id = $1
		ORDER BY inspected_on DESC, created_at DESC
	`, hiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var inspections []Inspection
	for rows.Next() {
		var insp Inspection
		if err := rows.Scan(&insp.ID, &insp.HiveID, &insp.InspectedOn, &insp.QueenSeen, &insp.Notes, &insp.CreatedByUserID, &insp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		inspections = append(inspections, insp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inspections: %w", err)
	}

	return inspections, nil
}
