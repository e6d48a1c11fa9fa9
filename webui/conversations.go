package webui

import (
	"encoding/json"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/offlineai/localchat/core/shell"
	"github.com/offlineai/localchat/core/types"
)

func (app *App) ListConversations() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(app.config.Conversations.All())
	}
}

func (app *App) SaveConversation() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var record types.ChatRecord
		if err := json.Unmarshal(c.Body(), &record); err != nil {
			return types.NewValidationError("Invalid chat session format")
		}

		agentID := c.Params("agentId")
		if _, err := app.config.Agents.Get(agentID); err != nil {
			return err
		}

		saved, err := app.config.Conversations.Save(agentID, record)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(saved)
	}
}

func (app *App) UpdateConversation() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			History []types.ChatMessage `json:"history"`
		}
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return types.NewValidationError("Invalid chat session format")
		}

		saved, err := app.config.Conversations.Update(c.Params("agentId"), c.Params("chatId"), payload.History)
		if err != nil {
			return err
		}
		return c.JSON(saved)
	}
}

func (app *App) DeleteConversation() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := app.config.Conversations.Delete(c.Params("agentId"), c.Params("chatId")); err != nil {
			return err
		}
		return statusJSONMessage(c, "deleted")
	}
}

// ExportConversation renders a saved chat as a standalone HTML page.
func (app *App) ExportConversation() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agentID, chatID := c.Params("agentId"), c.Params("chatId")

		agent, err := app.config.Agents.Get(agentID)
		if err != nil {
			return err
		}

		for _, record := range app.config.Conversations.All()[agentID] {
			if record.ID != chatID {
				continue
			}
			c.Set("Content-Type", "text/html; charset=utf-8")
			c.Set("Content-Disposition", `attachment; filename="`+chatID+`.html"`)
			return c.SendString(shell.Transcript(agent, record))
		}
		return types.NewNotFoundError("History not found")
	}
}
