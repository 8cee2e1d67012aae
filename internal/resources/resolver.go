package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/beehold/beehold/internal/db"
	"github.com/jackc/pgx/v5"
)

// Resolver produces the ownership facts for a resource reference.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (OwnershipContext, error)
}

// PGResolver resolves ownership contexts from the record tables. Root
// resources (apiary, flowering, payment, equipment) carry their owner,
// group, and sharing flag directly; dependent records reach them through
// their apiary. The schema is a two-level hierarchy, so at most one parent
// hop is ever needed (inspections go through their hive's apiary).
type PGResolver struct {
	q db.Querier
}

// NewPGResolver creates a resolver reading from the given querier
func NewPGResolver(q db.Querier) *PGResolver {
	return &PGResolver{q: q}
}

// ownershipQueries maps each kind to a query returning
// (owner_user_id, group_id, shared_with_group) for a resource ID.
var ownershipQueries = map[Kind]string{
	KindApiary: `
		SELECT owner_user_id, group_id, shared_with_group
		FROM apiaries WHERE id = $1`,
	KindHive: `
		SELECT a.owner_user_id, a.group_id, a.shared_with_group
		FROM hives h
		INNER JOIN apiaries a ON a.id = h.apiary_id
		WHERE h.id = $1`,
	KindInspection: `
		SELECT a.owner_user_id, a.group_id, a.shared_with_group
		FROM inspections i
		INNER JOIN hives h ON h.id = i.hive_id
		INNER JOIN apiaries a ON a.id = h.apiary_id
		WHERE i.id = $1`,
	KindTreatment: `
		SELECT a.owner_user_id, a.group_id, a.shared_with_group
		FROM treatments t
		INNER JOIN apiaries a ON a.id = t.apiary_id
		WHERE t.id = $1`,
	KindFlowering: `
		SELECT owner_user_id, group_id, shared_with_group
		FROM flowerings WHERE id = $1`,
	KindPayment: `
		SELECT owner_user_id, group_id, shared_with_group
		FROM payments WHERE id = $1`,
	KindEquipment: `
		SELECT owner_user_id, group_id, shared_with_group
		FROM equipment_items WHERE id = $1`,
}

// Resolve returns the ownership context for the referenced resource.
// A missing row or unknown kind resolves to the zero context rather than an
// error: "no owner" is a normal outcome that decides as a deny downstream.
func (r *PGResolver) Resolve(ctx context.Context, ref Ref) (OwnershipContext, error) {
	query, ok := ownershipQueries[ref.Kind]
	if !ok {
		return OwnershipContext{}, nil
	}

	var oc OwnershipContext
	err := r.q.QueryRow(ctx, query, ref.ID).Scan(&oc.OwnerID, &oc.GroupID, &oc.Shared)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OwnershipContext{}, nil
		}
		return OwnershipContext{}, fmt.Errorf("failed to resolve %s ownership: %w", ref.Kind, err)
	}

	return oc, nil
}
