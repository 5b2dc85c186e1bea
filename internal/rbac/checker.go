// Package rbac decides whether a user may perform an action on a subject.
//
// Permissions are named "<action>.<Subject>". A user holds the union of the
// permissions granted to their role and those granted to them directly.
// "*" or "manage.all" grant everything; "manage.<Subject>" grants every
// action on that subject. Inactive users are denied outright.
package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"snd-backend/internal/models"

	"gorm.io/gorm"
)

const (
	WildcardAll  = "*"
	ManageAll    = "manage.all"
	ActionManage = "manage"
)

func PermissionName(action, subject string) string {
	return action + "." + subject
}

// Granted reports whether perms allow action on subject.
func Granted(perms []string, action, subject string) bool {
	for _, p := range perms {
		if p == WildcardAll || p == ManageAll {
			return true
		}
		a, s, ok := strings.Cut(p, ".")
		if !ok || !strings.EqualFold(s, subject) {
			continue
		}
		if a == action || a == ActionManage {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the sorted, de-duplicated permission names of a user.
func EffectivePermissions(db *gorm.DB, userID uint) ([]string, error) {
	var user models.User
	err := db.Preload("Permissions").Preload("Role.Permissions").First(&user, userID).Error
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return collect(&user), nil
}

func collect(user *models.User) []string {
	seen := make(map[string]struct{})
	for _, p := range user.Permissions {
		seen[p.Name] = struct{}{}
	}
	if user.Role != nil {
		for _, p := range user.Role.Permissions {
			seen[p.Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Check loads the user with role and direct permissions and evaluates Granted.
// A missing user is a denial, not an error.
func Check(db *gorm.DB, userID uint, action, subject string) (bool, error) {
	var user models.User
	err := db.Preload("Permissions").Preload("Role.Permissions").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.IsActive {
		return false, nil
	}
	return Granted(collect(&user), action, subject), nil
}
