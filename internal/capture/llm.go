package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
)

// ErrFatalAPI marks LLM errors that will not go away on retry, such as bad
// credentials or exhausted quota.
var ErrFatalAPI = errors.New("fatal LLM API error")

var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}

// generator is the part of llms.Model the translator needs.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LLMTranslator translates lines with a chat model served by Ollama.
type LLMTranslator struct {
	llm    generator
	model  string
	target string
}

// NewLLMTranslator connects to the configured Ollama server.
func NewLLMTranslator(cfg config.OllamaConfig) (*LLMTranslator, error) {
	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.Host),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &LLMTranslator{llm: model, model: cfg.Model, target: cfg.TargetLanguage}, nil
}

// Model returns the LLM model name.
func (t *LLMTranslator) Model() string {
	return t.model
}

// Translate asks the model for a translation of text.
func (t *LLMTranslator) Translate(ctx context.Context, text string) (string, error) {
	systemPrompt := fmt.Sprintf(`You translate short lines of video game text into %s.
Reply with the translation only, on one line, without quotes or explanations.
Keep numbers and proper names unchanged.`, t.target)

	return t.generateWithSystem(ctx, systemPrompt, text)
}

func (t *LLMTranslator) generateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := t.llm.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		return "", wrapFatalError(fmt.Errorf("generate translation: %w", err))
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}

// LayeredTranslator consults the dictionary first and falls back to an LLM
// for unknown lines. LLM failures leave the line untranslated; a fatal API
// error disables the LLM for the rest of the session.
type LayeredTranslator struct {
	dict     *Dictionary
	llm      Translator
	logger   *slog.Logger
	disabled atomic.Bool
}

// NewLayeredTranslator combines dict with llm. A nil llm makes it behave
// like dict alone.
func NewLayeredTranslator(dict *Dictionary, llm Translator, logger *slog.Logger) *LayeredTranslator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LayeredTranslator{dict: dict, llm: llm, logger: logger}
}

// Translate implements Translator.
func (l *LayeredTranslator) Translate(ctx context.Context, text string) (string, error) {
	if v, ok := l.dict.Lookup(text); ok {
		return v, nil
	}
	if l.llm == nil || l.disabled.Load() {
		return text, nil
	}

	out, err := l.llm.Translate(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ErrFatalAPI) {
			l.disabled.Store(true)
			l.logger.Error("LLM translation disabled", "error", err)
		} else {
			l.logger.Warn("LLM translation failed", "text", text, "error", err)
		}
		return text, nil
	}
	if out == "" {
		return text, nil
	}
	return out, nil
}
