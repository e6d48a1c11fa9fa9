package webui

import (
	"encoding/json"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/offlineai/localchat/core/types"
)

func (app *App) ListAgents() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(app.config.Agents.List())
	}
}

func (app *App) CreateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var agent types.Agent
		if err := json.Unmarshal(c.Body(), &agent); err != nil {
			return types.NewValidationError("Missing agent data")
		}

		created, err := app.config.Agents.Create(agent)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

func (app *App) UpdateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var patch types.AgentPatch
		if err := json.Unmarshal(c.Body(), &patch); err != nil {
			return types.NewValidationError("Invalid agent data")
		}

		updated, err := app.config.Agents.Update(c.Params("id"), patch)
		if err != nil {
			return err
		}
		return c.JSON(updated)
	}
}

func (app *App) DeleteAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := app.config.Agents.Delete(c.Params("id")); err != nil {
			return err
		}
		return statusJSONMessage(c, "deleted")
	}
}

func (app *App) ReorderAgents() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			Order []string `json:"order"`
		}
		if err := json.Unmarshal(c.Body(), &payload); err != nil || payload.Order == nil {
			return types.NewValidationError("Invalid order data")
		}

		if err := app.config.Agents.Reorder(payload.Order); err != nil {
			return err
		}
		return statusJSONMessage(c, "success")
	}
}
