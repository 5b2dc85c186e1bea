package rbac_test

import (
	"testing"

	"snd-backend/internal/models"
	"snd-backend/internal/rbac"
	"snd-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGranted(t *testing.T) {
	cases := []struct {
		name    string
		perms   []string
		action  string
		subject string
		want    bool
	}{
		{"exact", []string{"read.Employee"}, "read", "Employee", true},
		{"subject case-insensitive", []string{"read.employee"}, "read", "Employee", true},
		{"other action", []string{"read.Employee"}, "delete", "Employee", false},
		{"manage implies all actions", []string{"manage.Rental"}, "approve", "Rental", true},
		{"manage of other subject", []string{"manage.Rental"}, "read", "Employee", false},
		{"star", []string{"*"}, "delete", "Company", true},
		{"manage.all", []string{"manage.all"}, "export", "Payroll", true},
		{"malformed entry", []string{"readEmployee"}, "read", "Employee", false},
		{"empty", nil, "read", "Employee", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rbac.Granted(tc.perms, tc.action, tc.subject))
		})
	}
}

func TestDefaultMatrixExpand(t *testing.T) {
	m := rbac.DefaultMatrix()

	admin := m.Expand(m.Roles["ADMIN"].Permissions)
	assert.Len(t, admin, len(m.Subjects))
	assert.Contains(t, admin, "manage.Employee")

	all := m.AllPermissions()
	assert.Len(t, all, len(m.Subjects)*len(m.Actions)+2)
}

func TestParseMatrixRejectsEmpty(t *testing.T) {
	_, err := rbac.ParseMatrix([]byte("actions: [read]\n"))
	assert.Error(t, err)

	_, err = rbac.ParseMatrix([]byte("::"))
	assert.Error(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	db := testutil.SetupDB(t)
	m := rbac.DefaultMatrix()

	var before int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&before).Error)

	require.NoError(t, rbac.Seed(db, m))

	var after, roles int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&after).Error)
	require.NoError(t, db.Model(&models.Role{}).Count(&roles).Error)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(len(m.Roles)), roles)

	var manager models.Role
	require.NoError(t, db.Preload("Permissions").Where("name = ?", models.RoleManager).First(&manager).Error)
	assert.Len(t, manager.Permissions, len(m.Expand(m.Roles["MANAGER"].Permissions)))
}

func TestSeedRejectsUnknownPermission(t *testing.T) {
	db := testutil.SetupDB(t)
	m, err := rbac.ParseMatrix([]byte(`
actions: [read]
subjects: [Employee]
roles:
  BROKEN:
    permissions: [fly.Employee]
`))
	require.NoError(t, err)
	assert.ErrorContains(t, rbac.Seed(db, m), "unknown permission")
}

func TestCheck(t *testing.T) {
	db := testutil.SetupDB(t)
	company := testutil.CreateCompany(t, db, "SND")
	operator := testutil.CreateUser(t, db, &company.ID, models.RoleOperator, "op@example.com")

	ok, err := rbac.Check(db, operator.ID, "read", "Equipment")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rbac.Check(db, operator.ID, "update", "Equipment")
	require.NoError(t, err)
	assert.False(t, ok)

	// Direct grant on top of the role.
	var perm models.Permission
	require.NoError(t, db.Where("name = ?", "update.Equipment").First(&perm).Error)
	require.NoError(t, db.Model(operator).Association("Permissions").Append(&perm))

	ok, err = rbac.Check(db, operator.ID, "update", "Equipment")
	require.NoError(t, err)
	assert.True(t, ok)

	perms, err := rbac.EffectivePermissions(db, operator.ID)
	require.NoError(t, err)
	assert.Contains(t, perms, "update.Equipment")
	assert.Contains(t, perms, "read.Rental")

	require.NoError(t, db.Model(operator).Update("is_active", false).Error)
	ok, err = rbac.Check(db, operator.ID, "read", "Equipment")
	require.NoError(t, err)
	assert.False(t, ok, "inactive users are denied")

	ok, err = rbac.Check(db, 9999, "read", "Equipment")
	require.NoError(t, err)
	assert.False(t, ok)
}
