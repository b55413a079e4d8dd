package notification

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nkansahrexford/saferide-server/cmd/models"
	"gorm.io/gorm"
)

var (
	ErrMissingTarget   = errors.New("either userId or groupId must be provided")
	ErrAmbiguousTarget = errors.New("only one of userId or groupId may be provided")
)

// Resolver expands a dispatch target into concrete user IDs.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the recipient user IDs for a request. A user target
// resolves to itself without a directory lookup; a group target
// resolves to the group's admins. A group with no qualifying members
// resolves to an empty set, which is a successful no-op for the
// caller, not an error. Directory read failures propagate.
func (r *Resolver) Resolve(req models.DispatchRequest) ([]string, error) {
	switch {
	case req.UserID == "" && req.GroupID == "":
		return nil, ErrMissingTarget
	case req.UserID != "" && req.GroupID != "":
		return nil, ErrAmbiguousTarget
	case req.UserID != "":
		return []string{req.UserID}, nil
	}

	groupID, err := strconv.ParseUint(req.GroupID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid groupId %q", req.GroupID)
	}

	var admins []models.User
	if err := r.db.
		Where("group_id = ? AND role = ?", uint(groupID), models.RoleAdmin).
		Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("error resolving group admins: %w", err)
	}

	userIDs := make([]string, 0, len(admins))
	for _, admin := range admins {
		userIDs = append(userIDs, strconv.FormatUint(uint64(admin.ID), 10))
	}
	return userIDs, nil
}
