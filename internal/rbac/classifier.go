package rbac

import (
	"strings"

	"github.com/otp-manager/otp-manager/internal/shared"
)

// Classifier derives a role from the configured manager and admin uid lists.
type Classifier struct {
	managers map[string]struct{}
	admins   map[string]struct{}
}

// NewClassifier builds a Classifier. Blank entries are ignored.
func NewClassifier(managers, admins []string) *Classifier {
	return &Classifier{managers: toSet(managers), admins: toSet(admins)}
}

// Classify returns the role for uid. Admin wins over manager, manager over user.
func (c *Classifier) Classify(uid string) shared.Role {
	if c == nil {
		return shared.RoleUser
	}
	if _, ok := c.admins[uid]; ok {
		return shared.RoleAdmin
	}
	if _, ok := c.managers[uid]; ok {
		return shared.RoleManager
	}
	return shared.RoleUser
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
