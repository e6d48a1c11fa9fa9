package webui

import (
	"encoding/json"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/offlineai/localchat/core/types"
)

type modelList struct {
	Models       []string `json:"models"`
	CurrentModel string   `json:"current_model"`
}

func (app *App) ListModels() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(modelList{
			Models:       app.config.Models.Models(),
			CurrentModel: app.config.Models.Active(),
		})
	}
}

func (app *App) RefreshModels() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		models := app.config.Models.Refresh(c.UserContext())
		return c.JSON(modelList{
			Models:       models,
			CurrentModel: app.config.Models.Active(),
		})
	}
}

func (app *App) ChangeModel() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			Model string `json:"model"`
		}
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return types.NewValidationError("Invalid request")
		}

		if err := app.config.Models.SetActive(payload.Model); err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"status":        "success",
			"current_model": app.config.Models.Active(),
		})
	}
}
