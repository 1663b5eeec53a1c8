package server

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/chatstream/gateway/src/auth"
	"github.com/chatstream/gateway/src/chats"
	"github.com/chatstream/gateway/src/jobs"
	"github.com/chatstream/gateway/src/router"
)

type generateRequest struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
	Prompt string `json:"prompt"`
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	groups := 0
	if sp, ok := s.rt.(router.StatsProvider); ok {
		groups = len(sp.Groups())
	}
	return c.JSON(fiber.Map{
		"websocket":   true,
		"endpoint":    wsPathPrefix,
		"connections": s.gw.ActiveConnections(),
		"groups":      groups,
	})
}

// handleGenerate queues a generation job for the caller's own chat.
// Results arrive over the caller's WebSocket stream, not in this
// response.
func (s *Server) handleGenerate(c fiber.Ctx) error {
	identity, err := s.bearerIdentity(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or missing token"})
	}
	if s.queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "job queue not configured"})
	}

	var req generateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if req.UserID == "" || req.ChatID == "" || req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id, chat_id and prompt are required"})
	}
	if req.UserID != identity.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "user mismatch"})
	}

	if _, err := s.chats.Get(c.Context(), req.UserID, req.ChatID); err != nil {
		if errors.Is(err, chats.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
		}
		s.logger.Error().Err(err).Str("chat_id", req.ChatID).Msg("chat lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "chat lookup failed"})
	}

	job := jobs.Job{
		ID:     uuid.New().String(),
		UserID: req.UserID,
		ChatID: req.ChatID,
		Prompt: req.Prompt,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue unavailable"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID, "status": "queued"})
}

// handleStop flags a running job so the worker abandons it before the
// LLM call.
func (s *Server) handleStop(c fiber.Ctx) error {
	if _, err := s.bearerIdentity(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or missing token"})
	}
	if s.flags == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "stop flags not configured"})
	}

	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "job id required"})
	}
	if err := s.flags.Set(c.Context(), jobID); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("stop flag write failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stop request failed"})
	}
	return c.JSON(fiber.Map{"job_id": jobID, "status": "stop_requested"})
}

// bearerIdentity validates the Authorization header.
func (s *Server) bearerIdentity(c fiber.Ctx) (auth.Identity, error) {
	parts := strings.SplitN(c.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return s.auth.Validate(parts[1])
}
