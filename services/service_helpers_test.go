package services_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"word-battle-system/handlers"
	"word-battle-system/models"
	"word-battle-system/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	hostUser     = "11111111-1111-1111-1111-111111111111"
	opponentUser = "22222222-2222-2222-2222-222222222222"
	strangerUser = "33333333-3333-3333-3333-333333333333"
)

// newTestEnv wires the real routes against an in-memory DB. The gateway
// middleware is a main.go concern; user context comes straight from the
// X-User-ID header, same as behind the gateway.
func newTestEnv(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A shared in-memory SQLite needs a single connection.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Lobby{}, &models.ProfileMirror{}))

	app := fiber.New()
	handlers.SetupLobbyRoutes(app, services.NewLobbyService(db), services.NewScoreService(db))
	handlers.SetupMaintenanceRoutes(app, services.NewSweeperService(db))
	return app, db
}

// doJSON performs one request as userID and decodes the JSON response
// into out (when non-nil), returning the status code.
func doJSON(t *testing.T, app *fiber.App, method, path, userID string, body interface{}, out interface{}) int {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func validCreateRequest() services.CreateLobbyRequest {
	return services.CreateLobbyRequest{
		Category:      "animal",
		Subcategory:   0,
		NumQuestions:  5,
		TimerDuration: 10,
		GameMode:      models.ModeVocab,
	}
}

// createLobby makes a fresh waiting lobby owned by hostUser.
func createLobby(t *testing.T, app *fiber.App) models.Lobby {
	t.Helper()
	var lobby models.Lobby
	status := doJSON(t, app, "POST", "/lobbies", hostUser, validCreateRequest(), &lobby)
	require.Equal(t, http.StatusCreated, status)
	return lobby
}

// joinedLobby returns a lobby with opponentUser seated, approval pending.
func joinedLobby(t *testing.T, app *fiber.App) models.Lobby {
	t.Helper()
	lobby := createLobby(t, app)
	var joined models.Lobby
	status := doJSON(t, app, "POST", "/lobbies/code/"+lobby.GameCode+"/join", opponentUser, nil, &joined)
	require.Equal(t, http.StatusOK, status)
	return joined
}

// startedLobby runs the happy pre-game path through start.
func startedLobby(t *testing.T, app *fiber.App) models.Lobby {
	t.Helper()
	lobby := joinedLobby(t, app)
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/accept", hostUser, nil, nil))
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/ready", opponentUser, nil, nil))
	var started models.Lobby
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/start", hostUser, nil, &started))
	return started
}

// reload fetches the current row straight from the DB.
func reload(t *testing.T, db *gorm.DB, id string) models.Lobby {
	t.Helper()
	var lobby models.Lobby
	require.NoError(t, db.First(&lobby, "id = ?", id).Error)
	return lobby
}

// age rewrites a lobby's timestamps without triggering auto-update.
func age(t *testing.T, db *gorm.DB, id string, col string, ts time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", id).UpdateColumn(col, ts).Error)
}
