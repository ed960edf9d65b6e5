package services_test

import (
	"net/http"
	"testing"
	"time"

	"word-battle-system/models"
	"word-battle-system/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLobby(t *testing.T) {
	app, _ := newTestEnv(t)

	lobby := createLobby(t, app)

	assert.Len(t, lobby.GameCode, 6)
	assert.Equal(t, models.LobbyWaiting, lobby.Status)
	assert.Equal(t, models.ApprovalPending, lobby.Approval)
	assert.Equal(t, hostUser, lobby.HostID)
	assert.Nil(t, lobby.OpponentID)
	assert.False(t, lobby.OpponentReady)
	assert.WithinDuration(t, lobby.CreatedAt.Add(5*time.Minute), lobby.ExpiresAt, time.Second)
}

func TestCreateLobbyValidation(t *testing.T) {
	app, _ := newTestEnv(t)

	cases := map[string]func(*services.CreateLobbyRequest){
		"missing category":   func(r *services.CreateLobbyRequest) { r.Category = "" },
		"unknown mode":       func(r *services.CreateLobbyRequest) { r.GameMode = "karaoke" },
		"zero questions":     func(r *services.CreateLobbyRequest) { r.NumQuestions = 0 },
		"too many questions": func(r *services.CreateLobbyRequest) { r.NumQuestions = 51 },
		"timer too short":    func(r *services.CreateLobbyRequest) { r.TimerDuration = 2 },
		"timer too long":     func(r *services.CreateLobbyRequest) { r.TimerDuration = 600 },
		"negative subcat":    func(r *services.CreateLobbyRequest) { r.Subcategory = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validCreateRequest()
			mutate(&req)
			status := doJSON(t, app, "POST", "/lobbies", hostUser, req, nil)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestGameCodesUniqueAmongLiveLobbies(t *testing.T) {
	app, _ := newTestEnv(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		lobby := createLobby(t, app)
		assert.False(t, seen[lobby.GameCode], "duplicate live game code %s", lobby.GameCode)
		seen[lobby.GameCode] = true
	}
}

func TestJoinLobby(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := createLobby(t, app)

	var joined models.Lobby
	status := doJSON(t, app, "POST", "/lobbies/code/"+lobby.GameCode+"/join", opponentUser, nil, &joined)

	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, joined.OpponentID)
	assert.Equal(t, opponentUser, *joined.OpponentID)
	assert.Equal(t, models.LobbyOpponentJoined, joined.Status)
	assert.Equal(t, models.ApprovalPending, joined.Approval)
}

func TestJoinFailures(t *testing.T) {
	t.Run("unknown code", func(t *testing.T) {
		app, _ := newTestEnv(t)
		status := doJSON(t, app, "POST", "/lobbies/code/ZZZZZZ/join", opponentUser, nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("host cannot join own lobby", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := createLobby(t, app)
		status := doJSON(t, app, "POST", "/lobbies/code/"+lobby.GameCode+"/join", hostUser, nil, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("seat already taken", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := joinedLobby(t, app)
		status := doJSON(t, app, "POST", "/lobbies/code/"+lobby.GameCode+"/join", strangerUser, nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("expired code", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := createLobby(t, app)
		age(t, db, lobby.ID, "expires_at", time.Now().UTC().Add(-time.Minute))
		status := doJSON(t, app, "POST", "/lobbies/code/"+lobby.GameCode+"/join", opponentUser, nil, nil)
		assert.Equal(t, http.StatusGone, status)
	})

	t.Run("not waiting", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := startedLobby(t, app)
		// Detach the opponent column directly so only the status blocks the join.
		require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", lobby.ID).
			UpdateColumn("opponent_id", nil).Error)
		status := doJSON(t, app, "POST", "/lobbies/code/"+lobby.GameCode+"/join", strangerUser, nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})
}

func TestHostOnlyOperationsForbiddenForOthers(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := joinedLobby(t, app)

	for _, op := range []string{"accept", "reject", "kick", "start", "reset"} {
		t.Run(op, func(t *testing.T) {
			status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/"+op, opponentUser, nil, nil)
			assert.Equal(t, http.StatusForbidden, status)

			status = doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/"+op, strangerUser, nil, nil)
			assert.Equal(t, http.StatusForbidden, status)
		})
	}
}

func TestAcceptOpponent(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := joinedLobby(t, app)

	var accepted models.Lobby
	status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/accept", hostUser, nil, &accepted)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ApprovalAccepted, accepted.Approval)
	assert.Equal(t, models.LobbyOpponentJoined, accepted.Status, "accept must not advance status")

	// Second accept: approval is no longer pending, the guard misses.
	status = doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/accept", hostUser, nil, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestReadyRequiresApproval(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := joinedLobby(t, app)

	// Not yet accepted.
	status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/ready", opponentUser, nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/accept", hostUser, nil, nil))

	var ready models.Lobby
	status = doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/ready", opponentUser, nil, &ready)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, ready.OpponentReady)

	// Host cannot set readiness.
	status = doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/ready", hostUser, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestStartGating(t *testing.T) {
	t.Run("pending approval and not ready", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := joinedLobby(t, app)
		status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/start", hostUser, nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("accepted but not ready", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := joinedLobby(t, app)
		require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/accept", hostUser, nil, nil))
		status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/start", hostUser, nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("ready but approval not accepted", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := joinedLobby(t, app)
		// Force the inconsistent combination directly.
		require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", lobby.ID).
			UpdateColumn("opponent_ready", true).Error)
		status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/start", hostUser, nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("accepted and ready", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := startedLobby(t, app)
		assert.Equal(t, models.LobbyInProgress, lobby.Status)
		require.NotNil(t, lobby.StartedAt)
	})
}

func TestKickAndLeaveResetTheSeat(t *testing.T) {
	detachedAssertions := func(t *testing.T, lobby models.Lobby) {
		t.Helper()
		assert.Nil(t, lobby.OpponentID)
		assert.Equal(t, models.ApprovalPending, lobby.Approval)
		assert.False(t, lobby.OpponentReady)
		assert.Equal(t, models.LobbyWaiting, lobby.Status)
	}

	t.Run("kick while pending", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := joinedLobby(t, app)
		require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/kick", hostUser, nil, nil))
		detachedAssertions(t, reload(t, db, lobby.ID))
	})

	t.Run("kick while accepted and ready", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := joinedLobby(t, app)
		require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/accept", hostUser, nil, nil))
		require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/ready", opponentUser, nil, nil))
		require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/kick", hostUser, nil, nil))
		detachedAssertions(t, reload(t, db, lobby.ID))
	})

	t.Run("reject", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := joinedLobby(t, app)
		require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/reject", hostUser, nil, nil))
		detachedAssertions(t, reload(t, db, lobby.ID))
	})

	t.Run("opponent leaves", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := joinedLobby(t, app)
		require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/leave", opponentUser, nil, nil))
		detachedAssertions(t, reload(t, db, lobby.ID))
	})

	t.Run("kick once in progress", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := startedLobby(t, app)
		status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/kick", hostUser, nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})
}

func TestHostLeaveDeletesLobby(t *testing.T) {
	app, db := newTestEnv(t)
	lobby := startedLobby(t, app)

	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/leave", hostUser, nil, nil))

	var count int64
	require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", lobby.ID).Count(&count).Error)
	assert.Zero(t, count)

	status := doJSON(t, app, "GET", "/lobbies/"+lobby.ID, opponentUser, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLeaveForbiddenForStranger(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := joinedLobby(t, app)
	status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/leave", strangerUser, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestResetPreservesConfigAndCode(t *testing.T) {
	app, db := newTestEnv(t)
	lobby := startedLobby(t, app)

	// Scores on the board before the rematch.
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/score", hostUser,
		services.SubmitScoreRequest{Score: 420, Stats: models.PlayerStats{Questions: 5, Correct: 5}}, nil))

	var after models.Lobby
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/reset", hostUser, nil, &after))

	assert.Equal(t, lobby.GameCode, after.GameCode)
	assert.Equal(t, lobby.Category, after.Category)
	assert.Equal(t, lobby.NumQuestions, after.NumQuestions)
	assert.Equal(t, lobby.TimerDuration, after.TimerDuration)
	assert.Equal(t, lobby.GameMode, after.GameMode)
	assert.Equal(t, hostUser, after.HostID)
	require.NotNil(t, after.OpponentID)
	assert.Equal(t, opponentUser, *after.OpponentID)

	assert.Equal(t, models.LobbyOpponentJoined, after.Status)
	assert.Equal(t, models.ApprovalAccepted, after.Approval, "seated opponent keeps approval")
	assert.False(t, after.OpponentReady)
	assert.Nil(t, after.HostScore)
	assert.Nil(t, after.OpponentScore)
	assert.Nil(t, after.StartedAt)
	assert.Zero(t, after.HostStats)
	assert.Zero(t, after.OpponentStats)

	_ = reload(t, db, lobby.ID) // row survives the reset
}

func TestResetWithoutOpponentReturnsToWaiting(t *testing.T) {
	app, db := newTestEnv(t)
	lobby := startedLobby(t, app)

	// Simulate the opponent being gone mid-game.
	require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", lobby.ID).
		UpdateColumn("opponent_id", nil).Error)

	var after models.Lobby
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/reset", hostUser, nil, &after))

	assert.Equal(t, models.LobbyWaiting, after.Status)
	assert.Equal(t, models.ApprovalPending, after.Approval)
	assert.Equal(t, lobby.GameCode, after.GameCode)
}

func TestResetOnlyInProgress(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := joinedLobby(t, app)
	status := doJSON(t, app, "POST", "/lobbies/"+lobby.ID+"/reset", hostUser, nil, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestUpdateConfigBeforeStartOnly(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := joinedLobby(t, app)

	req := validCreateRequest()
	req.NumQuestions = 10
	req.GameMode = models.ModeSentence

	var updated models.Lobby
	status := doJSON(t, app, "PATCH", "/lobbies/"+lobby.ID+"/config", hostUser, req, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 10, updated.NumQuestions)
	assert.Equal(t, models.ModeSentence, updated.GameMode)

	started := startedLobby(t, app)
	status = doJSON(t, app, "PATCH", "/lobbies/"+started.ID+"/config", hostUser, req, nil)
	assert.Equal(t, http.StatusConflict, status, "config freezes once in progress")
}

func TestPreviewLobby(t *testing.T) {
	t.Run("open lobby with mirrored host name", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := createLobby(t, app)
		require.NoError(t, db.Create(&models.ProfileMirror{
			ID:             "026e1f6e-6f0a-4d7e-a8b4-000000000001",
			ExternalUserID: hostUser,
			Username:       "wordsmith",
			DisplayName:    "The Wordsmith",
		}).Error)

		var preview services.LobbyPreview
		status := doJSON(t, app, "GET", "/lobbies/code/"+lobby.GameCode+"/preview", "", nil, &preview)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "The Wordsmith", preview.HostName)
		assert.Equal(t, lobby.GameCode, preview.GameCode)
		assert.Equal(t, "animal", preview.Category)
	})

	t.Run("unknown code", func(t *testing.T) {
		app, _ := newTestEnv(t)
		status := doJSON(t, app, "GET", "/lobbies/code/NOPE42/preview", "", nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("expired", func(t *testing.T) {
		app, db := newTestEnv(t)
		lobby := createLobby(t, app)
		age(t, db, lobby.ID, "expires_at", time.Now().UTC().Add(-time.Minute))
		status := doJSON(t, app, "GET", "/lobbies/code/"+lobby.GameCode+"/preview", "", nil, nil)
		assert.Equal(t, http.StatusGone, status)
	})

	t.Run("full", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := joinedLobby(t, app)
		status := doJSON(t, app, "GET", "/lobbies/code/"+lobby.GameCode+"/preview", "", nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("closed", func(t *testing.T) {
		app, _ := newTestEnv(t)
		lobby := startedLobby(t, app)
		status := doJSON(t, app, "GET", "/lobbies/code/"+lobby.GameCode+"/preview", "", nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})
}

func TestGetLobbyParticipantsOnly(t *testing.T) {
	app, _ := newTestEnv(t)
	lobby := joinedLobby(t, app)

	assert.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/lobbies/"+lobby.ID, hostUser, nil, nil))
	assert.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/lobbies/"+lobby.ID, opponentUser, nil, nil))
	assert.Equal(t, http.StatusForbidden, doJSON(t, app, "GET", "/lobbies/"+lobby.ID, strangerUser, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, app, "GET", "/lobbies/"+lobby.ID, "", nil, nil))
}

func TestGetMyLobby(t *testing.T) {
	app, _ := newTestEnv(t)

	status := doJSON(t, app, "GET", "/lobbies/mine", hostUser, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	lobby := joinedLobby(t, app)

	var mine models.Lobby
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/lobbies/mine", hostUser, nil, &mine))
	assert.Equal(t, lobby.ID, mine.ID)

	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/lobbies/mine", opponentUser, nil, &mine))
	assert.Equal(t, lobby.ID, mine.ID)

	status = doJSON(t, app, "GET", "/lobbies/mine", strangerUser, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

// A finished match lingering until the inactivity sweep is not a live
// lobby; only something newer and still playable counts.
func TestGetMyLobbySkipsFinished(t *testing.T) {
	app, db := newTestEnv(t)

	finished := startedLobby(t, app)
	require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", finished.ID).
		UpdateColumn("status", models.LobbyFinished).Error)

	status := doJSON(t, app, "GET", "/lobbies/mine", hostUser, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	fresh := createLobby(t, app)
	var mine models.Lobby
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/lobbies/mine", hostUser, nil, &mine))
	assert.Equal(t, fresh.ID, mine.ID)
}
