package rbac

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"snd-backend/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed roles.yaml
var defaultMatrix []byte

type RoleSpec struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type Matrix struct {
	Actions  []string            `yaml:"actions"`
	Subjects []string            `yaml:"subjects"`
	Roles    map[string]RoleSpec `yaml:"roles"`
}

func ParseMatrix(data []byte) (*Matrix, error) {
	var m Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse role matrix: %w", err)
	}
	if len(m.Actions) == 0 || len(m.Subjects) == 0 || len(m.Roles) == 0 {
		return nil, fmt.Errorf("role matrix needs actions, subjects and roles")
	}
	return &m, nil
}

func DefaultMatrix() *Matrix {
	m, err := ParseMatrix(defaultMatrix)
	if err != nil {
		panic(err)
	}
	return m
}

// AllPermissions is every concrete permission name plus the wildcards.
func (m *Matrix) AllPermissions() []string {
	names := []string{WildcardAll, ManageAll}
	for _, s := range m.Subjects {
		for _, a := range m.Actions {
			names = append(names, PermissionName(a, s))
		}
	}
	return names
}

// Expand resolves "<action>.*" entries against the subject list.
func (m *Matrix) Expand(perms []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range perms {
		if action, ok := strings.CutSuffix(p, ".*"); ok {
			for _, s := range m.Subjects {
				add(PermissionName(action, s))
			}
			continue
		}
		add(p)
	}
	sort.Strings(out)
	return out
}

// Seed creates missing permissions and roles and resets each seeded role's
// permission set to the matrix. Safe to run repeatedly.
func Seed(db *gorm.DB, m *Matrix) error {
	return db.Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]models.Permission)
		for _, name := range m.AllPermissions() {
			p := models.Permission{Name: name}
			if err := tx.Where(models.Permission{Name: name}).FirstOrCreate(&p).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", name, err)
			}
			byName[name] = p
		}

		roleNames := make([]string, 0, len(m.Roles))
		for name := range m.Roles {
			roleNames = append(roleNames, name)
		}
		sort.Strings(roleNames)

		for _, name := range roleNames {
			def := m.Roles[name]
			role := models.Role{Name: models.RoleName(name)}
			if err := tx.Where(models.Role{Name: role.Name}).
				Attrs(models.Role{Description: def.Description}).
				FirstOrCreate(&role).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", name, err)
			}

			perms := make([]models.Permission, 0, len(def.Permissions))
			for _, pn := range m.Expand(def.Permissions) {
				p, ok := byName[pn]
				if !ok {
					return fmt.Errorf("role %s references unknown permission %s", name, pn)
				}
				perms = append(perms, p)
			}
			if err := tx.Model(&role).Association("Permissions").Replace(perms); err != nil {
				return fmt.Errorf("link permissions to %s: %w", name, err)
			}
		}

		zap.L().Info("rbac seeded", zap.Int("roles", len(roleNames)), zap.Int("permissions", len(byName)))
		return nil
	})
}

// FindRole loads a role by name, seeding the default matrix first when roles are missing.
func FindRole(db *gorm.DB, name models.RoleName) (*models.Role, error) {
	var role models.Role
	err := db.Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := Seed(db, DefaultMatrix()); err != nil {
			return nil, err
		}
		err = db.Where("name = ?", name).First(&role).Error
	}
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", name, err)
	}
	return &role, nil
}
