package sse_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	"github.com/offlineai/localchat/core/sse"
	"github.com/offlineai/localchat/core/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Event", func() {
	It("renders named and unnamed frames", func() {
		Expect(sse.Event{Data: `{"a":1}`}.String()).To(Equal("data: {\"a\":1}\n\n"))
		Expect(sse.Event{Name: "models", Data: `[]`}.String()).To(Equal("event: models\ndata: []\n\n"))
	})

	It("marshals data", func() {
		e, err := sse.NewEvent("model", map[string]string{"active": "qwen3:4b"})
		Expect(err).ToNot(HaveOccurred())
		Expect(e.Data).To(Equal(`{"active":"qwen3:4b"}`))
	})
})

var _ = Describe("Writer", func() {
	It("frames stream events as data lines", func() {
		buf := &bytes.Buffer{}
		w := sse.NewWriter(bufio.NewWriter(buf))
		Expect(w.Send(types.ChunkEvent("Hel"))).To(Succeed())
		Expect(w.Send(types.WarningEvent("careful"))).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"chunk\":\"Hel\"}\n\ndata: {\"warning\":\"careful\"}\n\n"))
	})

	It("keeps markup in model output intact", func() {
		buf := &bytes.Buffer{}
		w := sse.NewWriter(bufio.NewWriter(buf))
		Expect(w.Send(types.ChunkEvent("<think>a & b</think>"))).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"chunk\":\"<think>a & b</think>\"}\n\n"))
	})
})

var _ = Describe("Stream", func() {
	It("streams the events written by the callback", func() {
		app := fiber.New()
		app.Get("/stream", func(c *fiber.Ctx) error {
			sse.Stream(c, func(ctx context.Context, w *sse.Writer) {
				_ = w.Send(types.ChunkEvent("a"))
				_ = w.Send(types.ChunkEvent("b"))
			})
			return nil
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/stream", nil), -1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))

		body, err := io.ReadAll(resp.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(body)).To(Equal("data: {\"chunk\":\"a\"}\n\ndata: {\"chunk\":\"b\"}\n\n"))
	})
})

var _ = Describe("Hub", func() {
	It("does not block without clients", func() {
		hub := sse.NewHub()
		hub.Send(sse.Event{Name: "models", Data: "[]"})
		hub.Send(sse.Event{Name: "models", Data: `["a"]`})
		Expect(hub.Clients()).To(BeEmpty())
	})
})
