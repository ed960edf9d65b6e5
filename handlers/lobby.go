package handlers

import (
	"word-battle-system/middleware"
	"word-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLobbyRoutes(app *fiber.App, lobbyService *services.LobbyService, scoreService *services.ScoreService) {
	// Public route: anyone holding a code may look before joining
	app.Get("/lobbies/code/:code/preview", lobbyService.PreviewLobby)

	// Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Lobby lifecycle (host)
	secured.Post("/lobbies", lobbyService.CreateLobby)
	secured.Patch("/lobbies/:id/config", lobbyService.UpdateLobbyConfig)
	secured.Post("/lobbies/:id/accept", lobbyService.AcceptOpponent)
	secured.Post("/lobbies/:id/reject", lobbyService.RejectOpponent)
	secured.Post("/lobbies/:id/kick", lobbyService.KickOpponent)
	secured.Post("/lobbies/:id/start", lobbyService.StartMatch)
	secured.Post("/lobbies/:id/reset", lobbyService.ResetMatch)

	// Lobby lifecycle (joined participant)
	secured.Post("/lobbies/code/:code/join", lobbyService.JoinLobby)
	secured.Post("/lobbies/:id/ready", lobbyService.MarkReady)

	// Either role
	secured.Post("/lobbies/:id/leave", lobbyService.LeaveLobby)
	secured.Get("/lobbies/mine", lobbyService.GetMyLobby)
	secured.Get("/lobbies/:id", lobbyService.GetLobby)

	// Score aggregation and result resolution
	secured.Post("/lobbies/:id/score", scoreService.SubmitScore)
	secured.Get("/lobbies/:id/scores", scoreService.ReadScores)
	secured.Post("/lobbies/:id/resolve", scoreService.ResolveResult)
}

func SetupMaintenanceRoutes(app *fiber.App, sweeper *services.SweeperService) {
	// Gateway shared-secret auth is global; no user context required here.
	app.Post("/maintenance/sweeps/expired", sweeper.HandleSweepExpired)
	app.Post("/maintenance/sweeps/inactive", sweeper.HandleSweepInactive)
}
