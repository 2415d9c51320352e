// Package access answers "who may touch what": role lookup per user and the
// ownership rule shared by checkpoints and endpoint deployments.
package access

import (
	"context"
	"strings"

	"github.com/sdstation/middleware/internal/db/repository"
)

type Service struct {
	users repository.IUserRepository
}

func NewService(users repository.IUserRepository) *Service {
	return &Service{users: users}
}

func (s *Service) GetRoles(ctx context.Context, username string) ([]string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.Roles, nil
}

// GetPermissions flattens the user's roles into category -> actions.
// Permission strings are "category:action"; malformed entries are skipped.
func (s *Service) GetPermissions(ctx context.Context, username string) (map[string][]string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	roles, err := s.users.ListRoles(ctx, user.Roles)
	if err != nil {
		return nil, err
	}

	permissions := make(map[string][]string)
	seen := make(map[string]bool)
	for _, role := range roles {
		for _, perm := range role.Permissions {
			category, action, ok := strings.Cut(perm, ":")
			if !ok || category == "" || action == "" || seen[perm] {
				continue
			}
			seen[perm] = true
			permissions[category] = append(permissions[category], action)
		}
	}
	return permissions, nil
}

// Allowed implements the ownership rule: an empty or wildcard owner list is
// open to everyone; otherwise the username or one of their roles must be
// listed.
func Allowed(owners, userRoles []string, username string) bool {
	if len(owners) == 0 {
		return true
	}
	for _, owner := range owners {
		if owner == "*" || owner == username {
			return true
		}
		for _, role := range userRoles {
			if owner == role {
				return true
			}
		}
	}
	return false
}
