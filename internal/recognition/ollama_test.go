package recognition

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		backend   *Ollama
		fragments []Fragment
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		backend = NewOllama(server.URL(), "llava")
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		fragments, err = backend.Recognize(context.Background(), Image{Data: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png"})
	})

	When("the model returns a transcript", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(ConsistOf("iVBORw=="))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{
						Role:    "assistant",
						Content: `{"lines": [{"text": "WILD HORSE BREWING CO LTD", "confidence": 0.88}]}`,
					},
					Done: true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the transcribed fragments", func() {
			Expect(fragments).To(HaveLen(1))
			Expect(fragments[0].Text).To(Equal("WILD HORSE BREWING CO LTD"))
			Expect(fragments[0].Confidence).To(Equal(0.88))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should return an error with the status", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(fragments).To(BeNil())
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "Sorry, the image is blurry."},
				Done:    true,
			}))
		})

		It("should return a parse error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing ollama transcript")))
		})
	})
})
