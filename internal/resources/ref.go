package resources

import (
	"errors"

	"github.com/google/uuid"
)

// Kind identifies a domain resource type the resolver knows about.
type Kind string

const (
	KindApiary     Kind = "apiary"
	KindHive       Kind = "hive"
	KindInspection Kind = "inspection"
	KindTreatment  Kind = "treatment"
	KindFlowering  Kind = "flowering"
	KindPayment    Kind = "payment"
	KindEquipment  Kind = "equipment"
)

// ErrUnknownKind is returned when a Ref names a kind the resolver does not support
var ErrUnknownKind = errors.New("unknown resource kind")

// ParseKind validates a kind string from an external caller
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindApiary, KindHive, KindInspection, KindTreatment, KindFlowering, KindPayment, KindEquipment:
		return k, nil
	}
	return "", ErrUnknownKind
}

// Ref is a tagged reference to a domain resource: the descriptor callers
// hand to the authorization engine.
type Ref struct {
	Kind Kind
	ID   uuid.UUID
}

// OwnershipContext is the normalized result of walking a resource's
// ownership chain. A zero context means no owner could be resolved, which
// the authorization engine treats as an implicit deny.
type OwnershipContext struct {
	OwnerID uuid.NullUUID
	GroupID uuid.NullUUID
	Shared  bool
}

// IsZero returns true when no ownership facts were resolved
func (c OwnershipContext) IsZero() bool {
	return !c.OwnerID.Valid && !c.GroupID.Valid
}
