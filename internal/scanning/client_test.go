package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/googleapi"
)

var _ = Describe("Client", func() {
	var (
		server   *ghttp.Server
		client   *Client
		req      RecognitionRequest
		raw      RawResponse
		err      error
		captured map[string]any
	)

	captureBody := func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		Expect(readErr).NotTo(HaveOccurred())
		captured = map[string]any{}
		Expect(json.Unmarshal(body, &captured)).To(Succeed())
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		client = NewClient(ClientConfig{
			Name:         "qwen",
			BaseURL:      server.URL() + "/compatible-mode/v1/chat/completions",
			APIKey:       "test-key",
			Model:        "qwen3-vl-plus",
			ImageTimeout: 2 * time.Second,
			TextTimeout:  2 * time.Second,
		})
		req = BuildRequest("aGVsbG8=", "image/png", "list the food")
		captured = nil
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		raw, err = client.Recognize(context.Background(), req)
	})

	When("the provider answers 200", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/compatible-mode/v1/chat/completions"),
				ghttp.VerifyHeader(http.Header{"Authorization": []string{"Bearer test-key"}}),
				ghttp.VerifyContentType("application/json"),
				captureBody,
				ghttp.RespondWith(http.StatusOK, `{"output":{"text":"bread"}}`),
			))
		})

		It("should return the raw body", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal(`{"output":{"text":"bread"}}`))
		})

		It("should send the model and image sampling controls", func() {
			Expect(captured["model"]).To(Equal("qwen3-vl-plus"))
			Expect(captured["temperature"]).To(BeNumerically("~", 0.1))
			Expect(captured["max_tokens"]).To(BeNumerically("==", 500))
			Expect(captured["result_format"]).To(Equal("text"))
		})

		It("should send an image_url part and a text part", func() {
			messages := captured["messages"].([]any)
			Expect(messages).To(HaveLen(1))
			content := messages[0].(map[string]any)["content"].([]any)
			Expect(content).To(HaveLen(2))

			imagePart := content[0].(map[string]any)
			Expect(imagePart["type"]).To(Equal("image_url"))
			Expect(imagePart["image_url"]).To(HaveKeyWithValue("url", "data:image/png;base64,aGVsbG8="))

			textPart := content[1].(map[string]any)
			Expect(textPart["type"]).To(Equal("text"))
			Expect(textPart["text"]).To(Equal("list the food"))
		})
	})

	When("the request is text-only", func() {
		BeforeEach(func() {
			req = TextRequest("how long does milk keep?")
			server.AppendHandlers(ghttp.CombineHandlers(
				captureBody,
				ghttp.RespondWith(http.StatusOK, `{"choices":[]}`),
			))
		})

		It("should use text sampling controls", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(captured["temperature"]).To(BeNumerically("~", 0.7))
			Expect(captured["max_tokens"]).To(BeNumerically("==", 200))
			Expect(captured).NotTo(HaveKey("result_format"))
		})
	})

	When("a text-only instruction mentions an image tag", func() {
		BeforeEach(func() {
			req = TextRequest("what does <image> mean in html?")
			server.AppendHandlers(ghttp.CombineHandlers(
				captureBody,
				ghttp.RespondWith(http.StatusOK, `{"choices":[]}`),
			))
		})

		It("should send only a text part with text sampling controls", func() {
			Expect(err).NotTo(HaveOccurred())
			messages := captured["messages"].([]any)
			content := messages[0].(map[string]any)["content"].([]any)
			Expect(content).To(HaveLen(1))
			Expect(content[0]).To(HaveKeyWithValue("type", "text"))
			Expect(captured["temperature"]).To(BeNumerically("~", 0.7))
			Expect(captured).NotTo(HaveKey("result_format"))
		})
	})

	When("the provider rejects the key", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":"invalid api key"}`))
		})

		It("should return a non-retryable HTTP status error", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.Kind).To(Equal(KindHTTPStatus))
			Expect(transportErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(transportErr.Body).To(ContainSubstring("invalid api key"))
			Expect(transportErr.Retryable()).To(BeFalse())
		})
	})

	When("the provider is overloaded", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, ""))
		})

		It("should return a retryable error", func() {
			Expect(IsRetryable(err)).To(BeTrue())
		})
	})

	When("the provider is slower than the timeout", func() {
		BeforeEach(func() {
			client = NewClient(ClientConfig{
				BaseURL:      server.URL() + "/v1/chat/completions",
				ImageTimeout: 50 * time.Millisecond,
			})
			server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
			})
		})

		It("should return a timeout error", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.Kind).To(Equal(KindTimeout))
		})
	})

	When("the provider is slower than text requests allow", func() {
		BeforeEach(func() {
			client = NewClient(ClientConfig{
				BaseURL:      server.URL() + "/v1/chat/completions",
				ImageTimeout: 2 * time.Second,
				TextTimeout:  50 * time.Millisecond,
			})
			slow := func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(250 * time.Millisecond)
				w.Write([]byte(`{"output":{"text":"bread"}}`))
			}
			server.AppendHandlers(slow, slow)
		})

		It("should still complete an image request", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring("bread"))
		})

		It("should time out a text-only request", func() {
			_, textErr := client.Recognize(context.Background(), TextRequest("how long does milk keep?"))
			var transportErr *TransportError
			Expect(errors.As(textErr, &transportErr)).To(BeTrue())
			Expect(transportErr.Kind).To(Equal(KindTimeout))
		})
	})

	When("the provider cannot be reached", func() {
		BeforeEach(func() {
			client = NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1/v1/chat/completions"})
		})

		It("should return a network error", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.Kind).To(Equal(KindNetwork))
		})
	})
})

var _ = Describe("truncate", func() {
	It("should leave short strings alone", func() {
		Expect(truncate("short", 10)).To(Equal("short"))
	})

	It("should not split a multi-byte rune", func() {
		out := truncate(strings.Repeat("é", 10), 8)
		Expect(utf8.ValidString(out)).To(BeTrue())
		Expect(out).To(Equal("éé..."))
	})
})

var _ = Describe("classifyGeminiError", func() {
	It("should treat a blocked response as non-retryable", func() {
		err := classifyGeminiError(context.Background(), fmt.Errorf("generating: %w", &genai.BlockedError{}))
		var transportErr *TransportError
		Expect(errors.As(err, &transportErr)).To(BeTrue())
		Expect(transportErr.Kind).To(Equal(KindBlocked))
		Expect(IsRetryable(err)).To(BeFalse())
	})

	It("should keep the status of API errors", func() {
		err := classifyGeminiError(context.Background(), &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"})
		var transportErr *TransportError
		Expect(errors.As(err, &transportErr)).To(BeTrue())
		Expect(transportErr.StatusCode).To(Equal(http.StatusTooManyRequests))
		Expect(IsRetryable(err)).To(BeTrue())
	})
})

var _ = Describe("NewClient", func() {
	It("should default the provider name", func() {
		Expect(NewClient(ClientConfig{}).Name()).To(Equal("openai-compatible"))
	})
})

var _ = Describe("Ollama", func() {
	var (
		server   *ghttp.Server
		ollama   *Ollama
		captured ollamaChatRequest
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ollama = NewOllama(server.URL(), "llava", time.Second)
	})

	AfterEach(func() {
		server.Close()
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(json.NewDecoder(r.Body).Decode(&captured)).To(Succeed())
				},
				ghttp.RespondWith(http.StatusOK, `{"message":{"role":"assistant","content":"[{\"name\":\"bread\",\"date\":\"3 days\"}]"}}`),
			))
		})

		It("should send the image and return a body Parse understands", func() {
			raw, err := ollama.Recognize(context.Background(), BuildRequest("aGVsbG8=", "image/jpeg", "list"))
			Expect(err).NotTo(HaveOccurred())
			Expect(captured.Model).To(Equal("llava"))
			Expect(captured.Stream).To(BeFalse())
			Expect(captured.Messages[1].Images).To(Equal([]string{"aGVsbG8="}))

			result := Parse(raw)
			Expect(result.Items).To(Equal([]Item{{Name: "bread", ShelfLife: Days(3)}}))
		})
	})

	When("the model is missing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model not found"}`))
		})

		It("should return an HTTP status error", func() {
			_, err := ollama.Recognize(context.Background(), BuildRequest("aGVsbG8=", "image/jpeg", "list"))
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
