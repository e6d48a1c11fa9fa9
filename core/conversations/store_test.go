package conversations_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/offlineai/localchat/core/conversations"
	"github.com/offlineai/localchat/core/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func userMessage(text string) types.ChatMessage {
	return types.ChatMessage{Role: types.RoleUser, Parts: []types.Part{{Text: text}}}
}

var _ = Describe("JSONStore", func() {
	var (
		tmpDir string
		file   string
		store  *conversations.JSONStore
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "conversations_test_*")
		Expect(err).ToNot(HaveOccurred())
		file = filepath.Join(tmpDir, "conversations.json")

		store, err = conversations.NewJSONStore(file)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("starts empty", func() {
		Expect(store.All()).To(BeEmpty())
	})

	It("saves new chats first and survives a reload", func() {
		first, err := store.Save("assistant", types.ChatRecord{History: []types.ChatMessage{userMessage("first question")}})
		Expect(err).ToNot(HaveOccurred())
		Expect(first.ID).To(HavePrefix("chat-"))
		Expect(first.Title).To(Equal("first question"))
		Expect(first.Timestamp).ToNot(BeZero())

		second, err := store.Save("assistant", types.ChatRecord{ID: "chat-2", Title: "Second", History: []types.ChatMessage{userMessage("q")}})
		Expect(err).ToNot(HaveOccurred())

		reloaded, err := conversations.NewJSONStore(file)
		Expect(err).ToNot(HaveOccurred())
		records := reloaded.All()["assistant"]
		Expect(records).To(HaveLen(2))
		Expect(records[0].ID).To(Equal(second.ID))
		Expect(records[1].ID).To(Equal(first.ID))
	})

	It("moves updated chats to the front", func() {
		a, _ := store.Save("assistant", types.ChatRecord{ID: "a", History: []types.ChatMessage{userMessage("a")}})
		_, _ = store.Save("assistant", types.ChatRecord{ID: "b", History: []types.ChatMessage{userMessage("b")}})

		history := []types.ChatMessage{userMessage("a"), {Role: types.RoleAssistant, Parts: []types.Part{{Text: "answer"}}}}
		updated, err := store.Update("assistant", a.ID, history)
		Expect(err).ToNot(HaveOccurred())
		Expect(updated.History).To(Equal(history))

		records := store.All()["assistant"]
		Expect(records[0].ID).To(Equal("a"))
		Expect(records[1].ID).To(Equal("b"))
	})

	It("leaves memory unchanged when the file cannot be written", func() {
		_, err := store.Save("assistant", types.ChatRecord{ID: "a", History: []types.ChatMessage{userMessage("a")}})
		Expect(err).ToNot(HaveOccurred())
		before := store.All()

		Expect(os.Remove(file)).To(Succeed())
		Expect(os.Mkdir(file, 0755)).To(Succeed())

		_, err = store.Save("assistant", types.ChatRecord{ID: "b", History: []types.ChatMessage{userMessage("b")}})
		Expect(errors.Is(err, types.ErrStorage)).To(BeTrue())
		_, err = store.Save("writer", types.ChatRecord{ID: "c", History: []types.ChatMessage{userMessage("c")}})
		Expect(err).To(HaveOccurred())
		_, err = store.Update("assistant", "a", []types.ChatMessage{userMessage("changed")})
		Expect(err).To(HaveOccurred())
		Expect(store.Delete("assistant", "a")).ToNot(Succeed())
		Expect(store.DeleteAgent("assistant")).ToNot(Succeed())

		Expect(store.All()).To(Equal(before))
	})

	It("reports missing chats", func() {
		_, err := store.Update("assistant", "nope", []types.ChatMessage{userMessage("x")})
		Expect(errors.Is(err, types.ErrNotFound)).To(BeTrue())
		Expect(errors.Is(store.Delete("assistant", "nope"), types.ErrNotFound)).To(BeTrue())
	})

	It("rejects invalid histories", func() {
		_, err := store.Save("assistant", types.ChatRecord{})
		Expect(errors.Is(err, types.ErrValidation)).To(BeTrue())

		bad := types.ChatMessage{Role: types.RoleUser, Parts: []types.Part{{Text: "x", Thinking: "hmm"}}}
		_, err = store.Save("assistant", types.ChatRecord{History: []types.ChatMessage{bad}})
		Expect(errors.Is(err, types.ErrValidation)).To(BeTrue())
	})

	It("deletes single chats and whole agents", func() {
		_, _ = store.Save("writer", types.ChatRecord{ID: "a", History: []types.ChatMessage{userMessage("a")}})
		_, _ = store.Save("writer", types.ChatRecord{ID: "b", History: []types.ChatMessage{userMessage("b")}})

		Expect(store.Delete("writer", "a")).To(Succeed())
		Expect(store.All()["writer"]).To(HaveLen(1))

		Expect(store.DeleteAgent("writer")).To(Succeed())
		Expect(store.All()).ToNot(HaveKey("writer"))
	})

	It("recovers from a corrupt file", func() {
		Expect(os.WriteFile(file, []byte("[oops"), 0644)).To(Succeed())
		s, err := conversations.NewJSONStore(file)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.All()).To(BeEmpty())
	})
})

var _ = Describe("Disabled store", func() {
	It("accepts writes without keeping anything", func() {
		store, err := conversations.New("/nonexistent/conversations.json", false)
		Expect(err).ToNot(HaveOccurred())

		record, err := store.Save("assistant", types.ChatRecord{History: []types.ChatMessage{userMessage("hi")}})
		Expect(err).ToNot(HaveOccurred())
		Expect(record.ID).ToNot(BeEmpty())
		Expect(store.All()).To(BeEmpty())
		Expect(store.DeleteAgent("assistant")).To(Succeed())
		Expect("/nonexistent/conversations.json").ToNot(BeAnExistingFile())
	})
})

var _ = Describe("Title", func() {
	It("uses the first user message, shortened", func() {
		long := "this is a very long question that keeps going well past forty characters"
		Expect(conversations.Title([]types.ChatMessage{
			{Role: types.RoleSystem, Parts: []types.Part{{Text: "persona"}}},
			userMessage(long),
		})).To(Equal(long[:40] + "..."))
		Expect(conversations.Title(nil)).To(Equal("New chat"))
	})
})
