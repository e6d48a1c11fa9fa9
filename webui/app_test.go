package webui_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/offlineai/localchat/core/agents"
	"github.com/offlineai/localchat/core/backend"
	"github.com/offlineai/localchat/core/conversations"
	"github.com/offlineai/localchat/core/models"
	"github.com/offlineai/localchat/core/relay"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/webui"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type staticLister []string

func (s staticLister) ListModels(context.Context) ([]string, error) { return s, nil }

func doJSON(app *webui.App, method, path string, body any) (*http.Response, []byte) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).ToNot(HaveOccurred())
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	Expect(err).ToNot(HaveOccurred())
	data, err := io.ReadAll(resp.Body)
	Expect(err).ToNot(HaveOccurred())
	return resp, data
}

func errorOf(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	Expect(json.Unmarshal(data, &payload)).To(Succeed())
	return payload.Error
}

func multipartPDF(filename string, content []byte) *http.Request {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("pdf_file", filename)
	Expect(err).ToNot(HaveOccurred())
	_, _ = part.Write(content)
	Expect(w.Close()).To(Succeed())

	req := httptest.NewRequest("POST", "/upload_pdf", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func makePDF(pages int) []byte {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Arial", "", 16)
	for i := 1; i <= pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, fmt.Sprintf("Page %d", i))
	}
	var buf bytes.Buffer
	Expect(doc.Output(&buf)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("App", func() {
	var (
		tmpDir  string
		app     *webui.App
		mock    *backend.MockBackend
		history bool
	)

	JustBeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "webui_test_*")
		Expect(err).ToNot(HaveOccurred())

		convs, err := conversations.New(filepath.Join(tmpDir, "conversations.json"), history)
		Expect(err).ToNot(HaveOccurred())
		agentStore, err := agents.NewStore(filepath.Join(tmpDir, "agents.json"), convs)
		Expect(err).ToNot(HaveOccurred())
		registry := models.New(context.Background(), filepath.Join(tmpDir, "last_model.txt"), []models.Source{
			{Name: "static", Lister: staticLister{"gemma3:4b", "qwen3:4b"}},
		})

		app = webui.NewApp(
			webui.WithAgents(agentStore),
			webui.WithModels(registry),
			webui.WithConversations(convs),
			webui.WithHistory(history),
			webui.WithRelay(relay.New(mock, registry, backend.DefaultOptions())),
		)
	})

	BeforeEach(func() {
		history = false
		mock = &backend.MockBackend{NameValue: "Ollama"}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("serves the UI without caching", func() {
		resp, body := doJSON(app, "GET", "/", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-store, no-cache, must-revalidate, max-age=0, private"))
		Expect(resp.Header.Get("Pragma")).To(Equal("no-cache"))
		Expect(resp.Header.Get("Expires")).To(Equal("0"))
		Expect(resp.Header.Get("X-Content-Type-Options")).To(Equal("nosniff"))
		Expect(resp.Header.Get("X-Frame-Options")).To(Equal("DENY"))
		Expect(string(body)).To(ContainSubstring(`<option value="gemma3:4b" selected>`))
		Expect(string(body)).To(ContainSubstring(`<option value="qwen3:4b">`))
	})

	It("serves the embedded scripts", func() {
		resp, body := doJSON(app, "GET", "/static/demux.js", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("class Demuxer"))
	})

	It("renders replies as markdown in the browser", func() {
		_, page := doJSON(app, "GET", "/", nil)
		Expect(string(page)).To(ContainSubstring(`<script src="/static/markdown.js"></script>`))

		resp, body := doJSON(app, "GET", "/static/markdown.js", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("global.renderMarkdown"))

		_, script := doJSON(app, "GET", "/static/app.js", nil)
		Expect(string(script)).To(ContainSubstring("renderMarkdown(text)"))
		Expect(string(script)).To(ContainSubstring(`"View reasoning"`))
		Expect(string(script)).To(ContainSubstring("if (thinking || live)"))
	})

	Describe("agents", func() {
		It("creates agents at the top of the list", func() {
			resp, body := doJSON(app, "POST", "/agents", map[string]string{
				"name":    "Summarizer",
				"title":   "Summarizes text",
				"persona": "Summarize.",
				"type":    "single-turn",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var created types.Agent
			Expect(json.Unmarshal(body, &created)).To(Succeed())
			Expect(created.ID).To(HavePrefix("summarizer-"))

			_, body = doJSON(app, "GET", "/agents", nil)
			var list []types.Agent
			Expect(json.Unmarshal(body, &list)).To(Succeed())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal(created.ID))
			Expect(list[1].IsDefault).To(BeTrue())
		})

		It("rejects incomplete agents", func() {
			resp, _ := doJSON(app, "POST", "/agents", map[string]string{"name": "x"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			resp, _ = doJSON(app, "POST", "/agents", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("maps store errors to status codes", func() {
			resp, body := doJSON(app, "PUT", "/agents/assistant", map[string]string{"title": "x"})
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(errorOf(body)).To(Equal("Default agent properties cannot be modified."))

			resp, _ = doJSON(app, "DELETE", "/agents/assistant", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

			resp, body = doJSON(app, "PUT", "/agents/ghost", map[string]string{"title": "x"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(errorOf(body)).To(Equal("Agent not found"))

			resp, _ = doJSON(app, "DELETE", "/agents/ghost", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("updates and deletes user agents", func() {
			_, body := doJSON(app, "POST", "/agents", map[string]string{
				"name": "Writer", "title": "t", "persona": "p", "type": "multi-turn",
			})
			var created types.Agent
			Expect(json.Unmarshal(body, &created)).To(Succeed())

			resp, body := doJSON(app, "PUT", "/agents/"+created.ID, map[string]string{"title": "New"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"title":"New"`))

			resp, _ = doJSON(app, "PUT", "/agents/"+created.ID, map[string]any{"isDefault": true})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			resp, body = doJSON(app, "DELETE", "/agents/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal(`{"status":"deleted"}`))
		})

		It("reorders agents", func() {
			_, body := doJSON(app, "POST", "/agents", map[string]string{
				"name": "Writer", "title": "t", "persona": "p", "type": "multi-turn",
			})
			var created types.Agent
			Expect(json.Unmarshal(body, &created)).To(Succeed())

			resp, body := doJSON(app, "POST", "/agents/reorder", map[string][]string{"order": {"assistant", created.ID}})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal(`{"status":"success"}`))

			resp, _ = doJSON(app, "POST", "/agents/reorder", map[string][]string{"order": {"assistant"}})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("models", func() {
		It("changes the active model", func() {
			resp, body := doJSON(app, "POST", "/change_model", map[string]string{"model": "qwen3:4b"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"status":"success","current_model":"qwen3:4b"}`))

			_, body = doJSON(app, "GET", "/models", nil)
			Expect(string(body)).To(MatchJSON(`{"models":["gemma3:4b","qwen3:4b"],"current_model":"qwen3:4b"}`))
		})

		It("refuses unknown models", func() {
			resp, body := doJSON(app, "POST", "/change_model", map[string]string{"model": "nope"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(body)).To(Equal("Model 'nope' not found in the available list."))
		})

		It("refreshes the list", func() {
			resp, body := doJSON(app, "POST", "/models/refresh", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"models":["gemma3:4b","qwen3:4b"],"current_model":"gemma3:4b"}`))
		})
	})

	Describe("stream_chat", func() {
		It("streams chunks as server-sent events", func() {
			var got backend.Request
			mock.ChatFunc = func(ctx context.Context, r backend.Request, fn func(string) error) (backend.Usage, error) {
				got = r
				return backend.Fragments(backend.Usage{PromptTokens: 14000, CompletionTokens: 400}, "<think>", "hmm", "</think>", "Hi")(ctx, r, fn)
			}

			resp, body := doJSON(app, "POST", "/stream_chat", map[string]any{
				"messages": []map[string]any{
					{"role": "system", "content": "be brief"},
					{"role": "user", "content": []map[string]any{
						{"type": "text", "text": "look"},
						{"type": "image_url", "image_url": map[string]string{"url": "data:image/jpeg;base64,QUJD"}},
					}},
				},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(string(body)).To(Equal(strings.Join([]string{
				`data: {"chunk":"<think>"}`, "",
				`data: {"chunk":"hmm"}`, "",
				`data: {"chunk":"</think>"}`, "",
				`data: {"chunk":"Hi"}`, "",
				`data: {"warning":"Chat history is now 14400 tokens. The maximum is 16000. The AI will lose track of the conversation. Please start a new chat."}`, "",
				"",
			}, "\n")))

			Expect(got.Model).To(Equal("gemma3:4b"))
			Expect(got.Messages).To(Equal([]backend.Message{
				{Role: "system", Content: "be brief"},
				{Role: "user", Images: []string{"QUJD"}, Content: "look"},
			}))
		})

		It("reports backend failures in band", func() {
			mock.ChatFunc = func(context.Context, backend.Request, func(string) error) (backend.Usage, error) {
				return backend.Usage{}, fmt.Errorf("model \"x\" not found")
			}
			resp, body := doJSON(app, "POST", "/stream_chat", map[string]any{
				"messages": []map[string]any{{"role": "user", "content": "hi"}},
				"model":    "x",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal("data: {\"error\":\"Ollama API Error: model \\\"x\\\" not found\"}\n\n"))
		})

		DescribeTable("rejects malformed requests before streaming",
			func(body string) {
				req := httptest.NewRequest("POST", "/stream_chat", strings.NewReader(body))
				req.Header.Set("Content-Type", "application/json")
				resp, err := app.Test(req, -1)
				Expect(err).ToNot(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			},
			Entry("not json", `{"messages":`),
			Entry("no messages", `{"messages":[]}`),
			Entry("unknown role", `{"messages":[{"role":"tool","content":"x"}]}`),
			Entry("unknown part", `{"messages":[{"role":"user","content":[{"type":"audio"}]}]}`),
			Entry("image without data uri", `{"messages":[{"role":"user","content":[{"type":"image_url","image_url":{"url":"abc"}}]}]}`),
		)
	})

	Describe("convert_html", func() {
		It("turns pasted html into markdown", func() {
			resp, body := doJSON(app, "POST", "/convert_html", map[string]string{"html": "<p>Use <code>go test</code> and <em>relax</em></p>"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var payload struct {
				Markdown string `json:"markdown"`
			}
			Expect(json.Unmarshal(body, &payload)).To(Succeed())
			Expect(payload.Markdown).To(ContainSubstring("`go test`"))
			Expect(payload.Markdown).To(ContainSubstring("*relax*"))
		})

		It("requires html", func() {
			resp, _ := doJSON(app, "POST", "/convert_html", map[string]string{"html": "  "})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("upload_pdf", func() {
		It("converts every page", func() {
			resp, err := app.Test(multipartPDF("doc.pdf", makePDF(2)), -1)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var payload struct {
				Images []string `json:"images"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
			Expect(payload.Images).To(HaveLen(2))
			Expect(payload.Images[0]).To(HavePrefix("data:image/jpeg;base64,"))
		})

		It("rejects other files", func() {
			resp, err := app.Test(multipartPDF("notes.txt", []byte("hello")), -1)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			resp, err = app.Test(multipartPDF("fake.pdf", []byte("hello")), -1)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects long documents", func() {
			resp, err := app.Test(multipartPDF("long.pdf", makePDF(16)), -1)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			body, _ := io.ReadAll(resp.Body)
			Expect(errorOf(body)).To(Equal("PDF has 16 pages. Maximum allowed is 15 pages."))
		})

		It("requires the file field", func() {
			resp, body := doJSON(app, "POST", "/upload_pdf", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(body)).To(Equal("No PDF file part in the request"))
		})
	})

	Describe("conversations", func() {
		chat := []map[string]any{
			{"role": "user", "parts": []map[string]any{{"text": "What is Go?"}}},
			{"role": "assistant", "parts": []map[string]any{{"text": "A **language**.", "thinking": "easy"}}},
		}

		It("keeps nothing when history is disabled", func() {
			resp, body := doJSON(app, "POST", "/conversations/assistant", map[string]any{"history": chat})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(string(body)).To(ContainSubstring(`"title":"What is Go?"`))

			_, body = doJSON(app, "GET", "/conversations", nil)
			Expect(string(body)).To(MatchJSON(`{}`))
			Expect(filepath.Join(tmpDir, "conversations.json")).ToNot(BeAnExistingFile())
		})

		Context("with history enabled", func() {
			BeforeEach(func() {
				history = true
			})

			It("saves, updates, exports and deletes chats", func() {
				resp, body := doJSON(app, "POST", "/conversations/assistant", map[string]any{"history": chat})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				var saved types.ChatRecord
				Expect(json.Unmarshal(body, &saved)).To(Succeed())
				Expect(saved.ID).To(HavePrefix("chat-"))

				_, body = doJSON(app, "GET", "/conversations", nil)
				var all map[string][]types.ChatRecord
				Expect(json.Unmarshal(body, &all)).To(Succeed())
				Expect(all["assistant"]).To(HaveLen(1))

				resp, _ = doJSON(app, "PUT", "/conversations/assistant/"+saved.ID, map[string]any{"history": chat[:1]})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				resp, body = doJSON(app, "GET", "/conversations/assistant/"+saved.ID+"/export", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/html"))
				Expect(string(body)).To(ContainSubstring("What is Go?"))

				resp, _ = doJSON(app, "DELETE", "/conversations/assistant/"+saved.ID, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp, _ = doJSON(app, "DELETE", "/conversations/assistant/"+saved.ID, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})

			It("refuses chats for unknown agents", func() {
				resp, _ := doJSON(app, "POST", "/conversations/ghost", map[string]any{"history": chat})
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	It("caps request bodies", func() {
		big := bytes.Repeat([]byte("a"), webui.DefaultBodyLimit+1)
		req := httptest.NewRequest("POST", "/agents", bytes.NewReader(big))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
	})
})

var _ = Describe("ready handler", func() {
	It("is called with the base URL once the server listens", func() {
		urls := make(chan string, 1)
		app := webui.NewApp(webui.WithReadyHandler(func(url string) { urls <- url }))

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		go app.Listener(ln)
		defer app.Shutdown()

		Eventually(urls).Should(Receive(Equal("http://" + ln.Addr().String())))
	})
})
