package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Failure classes surfaced by the lobby and score services. Conflict is
// the expected outcome of losing a guarded-write race and is harmless
// under polling — the client just re-reads on its next tick.
var (
	ErrUnauthorized = errors.New("missing caller identity")
	ErrForbidden    = errors.New("caller lacks the required role")
	ErrNotFound     = errors.New("lobby not found")
	ErrConflict     = errors.New("lobby state changed, try again")
	ErrValidation   = errors.New("invalid request")
	ErrExpired      = errors.New("lobby code expired")
	ErrLobbyFull    = errors.New("lobby already has an opponent")
	ErrLobbyClosed  = errors.New("lobby is no longer joinable")
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrExpired):
		return fiber.StatusGone
	case errors.Is(err, ErrConflict), errors.Is(err, ErrLobbyFull), errors.Is(err, ErrLobbyClosed):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError renders a service error in the shared JSON shape.
func respondError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code == fiber.StatusInternalServerError {
		return c.Status(code).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
