package webui

import (
	"embed"
	"errors"
	"net"
	"net/http"

	"github.com/Masterminds/sprig/v3"
	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
)

//go:embed views/*
var viewsfs embed.FS

//go:embed static/*
var staticfs embed.FS

type App struct {
	config *Config
	*fiber.App
}

func NewApp(opts ...Option) *App {
	config := NewConfig(opts...)

	engine := html.NewFileSystem(http.FS(viewsfs), ".html")
	engine.AddFuncMap(sprig.FuncMap())

	webapp := fiber.New(fiber.Config{
		Views:                 engine,
		BodyLimit:             config.BodyLimit,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	webapp.Use(recover.New())

	if config.OnReady != nil {
		webapp.Hooks().OnListen(func(ld fiber.ListenData) error {
			go config.OnReady("http://" + net.JoinHostPort(ld.Host, ld.Port))
			return nil
		})
	}

	a := &App{
		config: config,
		App:    webapp,
	}

	a.registerRoutes(webapp)

	return a
}

// errorHandler answers with {"error": message} and a status derived from
// the error kind.
func errorHandler(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &fe):
		status = fe.Code
	}

	if status >= http.StatusInternalServerError {
		xlog.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return errorJSONMessage(c, status, err.Error())
}

func errorJSONMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(struct {
		Error string `json:"error"`
	}{Error: message})
}

func statusJSONMessage(c *fiber.Ctx, message string) error {
	return c.JSON(struct {
		Status string `json:"status"`
	}{Status: message})
}
