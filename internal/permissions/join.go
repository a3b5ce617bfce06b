package permissions

import (
	"fmt"

	"github.com/fuseproject/fuse/backend/internal/models"
)

// JoinResult is the outcome of asking whether a user may join a group.
type JoinResult int

const (
	JoinOK JoinResult = iota
	JoinHasInvite
	JoinNeedInvite
	JoinAlreadyJoined
	JoinNotAllowed
	JoinError
)

func (r JoinResult) String() string {
	switch r {
	case JoinOK:
		return "OK"
	case JoinHasInvite:
		return "HAS_INVITE"
	case JoinNeedInvite:
		return "NEED_INVITE"
	case JoinAlreadyJoined:
		return "ALREADY_JOINED"
	case JoinNotAllowed:
		return "NOT_ALLOWED"
	case JoinError:
		return "ERROR"
	default:
		return fmt.Sprintf("JoinResult(%d)", int(r))
	}
}

func (r JoinResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// JoinInput is everything DecideJoin looks at.
type JoinInput struct {
	AllowedToJoin bool
	Roles         models.RoleSet
	Restriction   models.Restriction
}

// DecideJoin applies the join rules in order; the first match wins.
func DecideJoin(in JoinInput) JoinResult {
	if !in.AllowedToJoin {
		return JoinNotAllowed
	}
	if in.Roles.IsMember() {
		return JoinAlreadyJoined
	}
	if in.Roles.Has(models.RoleInvitedToJoin) {
		return JoinHasInvite
	}
	switch in.Restriction {
	case models.RestrictionOpen:
		return JoinOK
	case models.RestrictionInviteOnly, models.RestrictionApplicationRequired:
		return JoinNeedInvite
	default:
		return JoinError
	}
}
