package webui

import (
	"net/http"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
)

func (app *App) registerRoutes(webapp *fiber.App) {
	webapp.Use("/static", filesystem.New(filesystem.Config{
		Root:       http.FS(staticfs),
		PathPrefix: "static",
	}))

	webapp.Get("/", app.Index())
	webapp.Get("/events", app.config.Hub.Handle)

	webapp.Get("/agents", app.ListAgents())
	webapp.Post("/agents", app.CreateAgent())
	webapp.Post("/agents/reorder", app.ReorderAgents())
	webapp.Put("/agents/:id", app.UpdateAgent())
	webapp.Delete("/agents/:id", app.DeleteAgent())

	webapp.Get("/models", app.ListModels())
	webapp.Post("/models/refresh", app.RefreshModels())
	webapp.Post("/change_model", app.ChangeModel())

	webapp.Post("/upload_pdf", app.UploadPDF())
	webapp.Post("/stream_chat", app.StreamChat())
	webapp.Post("/convert_html", app.ConvertHTML())

	webapp.Get("/conversations", app.ListConversations())
	webapp.Post("/conversations/:agentId", app.SaveConversation())
	webapp.Put("/conversations/:agentId/:chatId", app.UpdateConversation())
	webapp.Delete("/conversations/:agentId/:chatId", app.DeleteConversation())
	webapp.Get("/conversations/:agentId/:chatId/export", app.ExportConversation())
}
