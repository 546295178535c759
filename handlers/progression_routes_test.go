package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskflow-progression/services"
	"taskflow-progression/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(store storage.Store) *services.ProgressionService {
	return services.NewProgressionService(store, services.ProgressionConfig{
		LockTimeout: time.Second,
		Logger:      quietLogger(),
	})
}

func jsonRequest(method, target string, payload fiber.Map) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asAdmin(req *http.Request) *http.Request {
	req.Header.Set("X-User-ID", "admin-1")
	req.Header.Set("X-User-Roles", "admin")
	return req
}

func TestAdjustPointsEndpoint(t *testing.T) {
	app := fiber.New()
	svc := newTestService(storage.NewMemoryStore())
	SetupProgressionRoutes(app, svc, nil)

	t.Run("MissingUserIDRejected", func(t *testing.T) {
		req := asAdmin(jsonRequest(fiber.MethodPost, "/s/admin/points/adjust", fiber.Map{
			"points": 100,
		}))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ZeroPointsRejected", func(t *testing.T) {
		req := asAdmin(jsonRequest(fiber.MethodPost, "/s/admin/points/adjust", fiber.Map{
			"user_id": "u1",
			"points":  0,
		}))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("NonAdminForbidden", func(t *testing.T) {
		req := jsonRequest(fiber.MethodPost, "/s/admin/points/adjust", fiber.Map{
			"user_id": "u1",
			"points":  100,
		})
		req.Header.Set("X-User-ID", "member-1")
		req.Header.Set("X-User-Roles", "member")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("ValidAdjustment", func(t *testing.T) {
		req := asAdmin(jsonRequest(fiber.MethodPost, "/s/admin/points/adjust", fiber.Map{
			"user_id":     "u1",
			"points":      100,
			"description": "support grant",
		}))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.EqualValues(t, 100, out["points_recorded"])
		assert.EqualValues(t, 100, out["new_total"])
	})
}
