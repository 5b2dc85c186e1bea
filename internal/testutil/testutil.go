// Package testutil wires an in-memory SQLite database and fiber app for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"snd-backend/internal/apperror"
	"snd-backend/internal/auth"
	"snd-backend/internal/config"
	"snd-backend/internal/database"
	"snd-backend/internal/models"
	"snd-backend/internal/rbac"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const Password = "password123"

func Config() *config.Config {
	return &config.Config{
		HTTPPort:       "0",
		JWTSecret:      "test-secret-test-secret-test-secret!",
		JWTTTL:         time.Hour,
		MaxUploadBytes: 10 << 20,
	}
}

// SetupDB opens a private in-memory database, migrates it, seeds the role
// matrix and installs it as database.DB for the duration of the test.
func SetupDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=0"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, rbac.Seed(db, rbac.DefaultMatrix()))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func NewApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: apperror.ErrorHandler})
}

// Protected returns a router group behind the JWT middleware.
func Protected(app *fiber.App, cfg *config.Config) fiber.Router {
	api := app.Group("/api")
	api.Use(auth.JWTMiddleware(cfg))
	return api
}

func CreateCompany(t testing.TB, db *gorm.DB, name string) *models.Company {
	t.Helper()
	company := models.Company{Name: name, Code: name, IsActive: true}
	require.NoError(t, db.Create(&company).Error)
	return &company
}

func CreateUser(t testing.TB, db *gorm.DB, companyID *uint, role models.RoleName, email string) *models.User {
	t.Helper()
	r, err := rbac.FindRole(db, role)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	user := models.User{
		CompanyID:    companyID,
		RoleID:       &r.ID,
		Name:         email,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	require.NoError(t, db.Create(&user).Error)
	user.Role = r
	return &user
}

func Token(t testing.TB, cfg *config.Config, user *models.User) string {
	t.Helper()
	token, err := auth.GenerateToken(cfg.JWTSecret, cfg.JWTTTL, user)
	require.NoError(t, err)
	return token
}

func CreateEmployee(t testing.TB, db *gorm.DB, companyID uint, fileNumber, firstName string) *models.Employee {
	t.Helper()
	emp := models.Employee{
		CompanyID:   companyID,
		FileNumber:  fileNumber,
		FirstName:   firstName,
		LastName:    "Test",
		Status:      models.EmployeeStatusActive,
		BasicSalary: 3000,
	}
	require.NoError(t, db.Create(&emp).Error)
	return &emp
}

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Do sends a request, JSON-encoding body unless it is nil.
func Do(t testing.TB, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func Decode(t testing.TB, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// RequireStatus fails with the response body when the status differs.
func RequireStatus(t testing.TB, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode != status {
		b, _ := io.ReadAll(resp.Body)
		require.Equalf(t, status, resp.StatusCode, "body: %s", b)
	}
}
