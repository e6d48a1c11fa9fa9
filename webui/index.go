package webui

import (
	fiber "github.com/gofiber/fiber/v2"
)

// Index serves the UI shell. The page must never be cached or kept in the
// browser history.
func (app *App) Index() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0, private")
		c.Set("Pragma", "no-cache")
		c.Set("Expires", "0")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")

		return c.Render("views/index", fiber.Map{
			"Title":          app.config.Title,
			"Models":         app.config.Models.Models(),
			"CurrentModel":   app.config.Models.Active(),
			"HistoryEnabled": app.config.HistoryEnabled,
			"TypingPolicy":   string(app.config.TypingPolicy),
		})
	}
}
