package handlers

import (
	"testing"

	"taskflow-progression/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newCatalogApp(t *testing.T) (*fiber.App, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	app := fiber.New()
	SetupCatalogRoutes(app, db, newTestService(storage.NewMemoryStore()))
	return app, mock
}

func TestCreateAchievementEndpoint(t *testing.T) {
	t.Run("DuplicateCodeConflicts", func(t *testing.T) {
		app, mock := newCatalogApp(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "achievements"`).
			WillReturnError(&pgconn.PgError{
				Code:    "23505",
				Message: "duplicate key value violates unique constraint",
			})
		mock.ExpectRollback()

		req := asAdmin(jsonRequest(fiber.MethodPost, "/s/admin/achievements", fiber.Map{
			"name":        "Task Warrior",
			"category":    "tasks",
			"requirement": 10,
		}))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidCategoryRejected", func(t *testing.T) {
		app, mock := newCatalogApp(t)

		req := asAdmin(jsonRequest(fiber.MethodPost, "/s/admin/achievements", fiber.Map{
			"name":        "Bogus",
			"category":    "bogus",
			"requirement": 1,
		}))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
