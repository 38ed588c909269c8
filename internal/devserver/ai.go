package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

const (
	aiHistoryWindow = 20

	systemPrompt = "You are the RecoverEase recovery assistant. You help patients recovering " +
		"from surgery log symptoms and understand their recovery. Be brief and kind. " +
		"Never diagnose; tell the patient to contact their doctor or emergency services " +
		"when symptoms are severe."
)

// Responder 生成 AI 回复并转写语音
type Responder interface {
	Reply(ctx context.Context, history []models.ChatMessage, input string) (string, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
	Status() string
}

// CannedResponder 未配置 API Key 时的固定回复
type CannedResponder struct{}

func (CannedResponder) Reply(ctx context.Context, history []models.ChatMessage, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "I'm here whenever you want to share how you're feeling.", nil
	}
	return fmt.Sprintf("Thanks, I've noted \"%s\". Keep logging your symptoms, and contact your doctor if anything gets worse.", input), nil
}

func (CannedResponder) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	return "", nil
}

func (CannedResponder) Status() string { return "canned" }

// OpenAIResponder go-openai 实现，失败或熔断时退回固定回复
type OpenAIResponder struct {
	client      *openai.Client
	model       string
	temperature float32
	breaker     *Breaker
	fallback    CannedResponder
	logger      *logrus.Logger
}

// NewResponder returns an OpenAI-backed responder when an API key is
// configured, otherwise the canned one.
func NewResponder(cfg config.AIConfig, logger *logrus.Logger) Responder {
	if cfg.APIKey == "" {
		return CannedResponder{}
	}
	return NewOpenAIResponder(cfg, logger)
}

func NewOpenAIResponder(cfg config.AIConfig, logger *logrus.Logger) *OpenAIResponder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIResponder{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: cfg.Temperature,
		breaker:     NewBreaker(DefaultBreakerConfig()),
		logger:      logger,
	}
}

func (r *OpenAIResponder) Reply(ctx context.Context, history []models.ChatMessage, input string) (string, error) {
	if !r.breaker.Allow() {
		return r.fallback.Reply(ctx, history, input)
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    buildPrompt(history, input),
		Temperature: r.temperature,
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("empty completion")
	}
	if err != nil {
		r.breaker.OnFailure()
		r.logger.WithError(err).WithField("breaker", r.breaker.State().String()).Warn("AI completion failed, using fallback reply")
		return r.fallback.Reply(ctx, history, input)
	}
	r.breaker.OnSuccess()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (r *OpenAIResponder) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filename, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (r *OpenAIResponder) Status() string {
	return "openai (" + r.model + ", breaker " + r.breaker.State().String() + ")"
}

// buildPrompt keeps the most recent turns of the session.
func buildPrompt(history []models.ChatMessage, input string) []openai.ChatCompletionMessage {
	if len(history) > aiHistoryWindow {
		history = history[len(history)-aiHistoryWindow:]
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.IsAI {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: input})
	return msgs
}
