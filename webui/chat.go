package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/offlineai/localchat/core/shell"
	"github.com/offlineai/localchat/core/sse"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
)

// StreamChat relays one chat turn as server-sent events. The request is
// validated before the stream starts, so malformed bodies still get a 400.
func (app *App) StreamChat() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var req types.ChatRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			if errors.Is(err, types.ErrValidation) {
				return err
			}
			return types.NewValidationError("Invalid request: %v", err)
		}
		if err := req.Validate(); err != nil {
			return err
		}

		sse.Stream(c, func(ctx context.Context, w *sse.Writer) {
			err := app.config.Relay.Stream(ctx, req, func(e types.StreamEvent) error {
				return w.Send(e)
			})
			if err != nil {
				xlog.Debug("Chat stream ended early", "error", err)
			}
		})
		return nil
	}
}

func (app *App) UploadPDF() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		file, err := c.FormFile("pdf_file")
		if err != nil {
			return types.NewValidationError("No PDF file part in the request")
		}
		if file.Filename == "" {
			return types.NewValidationError("No selected file")
		}
		if !strings.HasSuffix(strings.ToLower(file.Filename), ".pdf") {
			return types.NewValidationError("Invalid file type. Please upload a PDF file.")
		}

		f, err := file.Open()
		if err != nil {
			return fmt.Errorf("Failed to process PDF: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("Failed to process PDF: %w", err)
		}

		images, err := app.config.PDF.Convert(c.UserContext(), data)
		if err != nil {
			if errors.Is(err, types.ErrValidation) {
				return err
			}
			return fmt.Errorf("Failed to process PDF: %w", err)
		}

		xlog.Info("Processed PDF", "file", file.Filename, "pages", len(images))
		return c.JSON(fiber.Map{"images": images})
	}
}

// ConvertHTML turns pasted HTML into markdown for the composer.
func (app *App) ConvertHTML() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			HTML string `json:"html"`
		}
		if err := json.Unmarshal(c.Body(), &payload); err != nil || strings.TrimSpace(payload.HTML) == "" {
			return types.NewValidationError("Missing html")
		}

		md, err := shell.HTMLToMarkdown(payload.HTML)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"markdown": md})
	}
}
