package setup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"

	"assistanthub/internal/config"
	"assistanthub/internal/service/agent"
	"assistanthub/internal/service/huggingface"
)

const (
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
)

// ModelStatus is one entry of GET /api/check-models.
type ModelStatus struct {
	Status string `json:"status"`
	Error  any    `json:"error"`
}

// ModelInfoClient is the part of the inference client the checker needs.
type ModelInfoClient interface {
	ModelInfo(ctx context.Context, model string) (json.RawMessage, error)
}

// ModelChecker probes the history models and the agent's chat model.
type ModelChecker struct {
	hf        ModelInfoClient
	models    map[string]string
	chatName  string
	chatProbe func(ctx context.Context) error
}

func NewModelChecker(cfg *config.Config, hf ModelInfoClient) *ModelChecker {
	name, provCfg, _ := cfg.AgentProviderConfig()
	return &ModelChecker{
		hf: hf,
		models: map[string]string{
			config.AssistantYouTube: cfg.ModelFor(config.AssistantYouTube),
			config.AssistantChrome:  cfg.ModelFor(config.AssistantChrome),
		},
		chatName: name,
		chatProbe: func(ctx context.Context) error {
			chatModel, err := agent.NewChatModel(ctx, name, provCfg)
			if err != nil {
				return err
			}
			_, err = chatModel.Generate(ctx, []*schema.Message{
				schema.SystemMessage("You are a helpful assistant."),
				schema.UserMessage("Hello"),
			})
			return err
		},
	}
}

// CheckModels returns one status per history model plus one for the chat provider.
func (m *ModelChecker) CheckModels(ctx context.Context) map[string]ModelStatus {
	out := make(map[string]ModelStatus, len(m.models)+1)
	for name, path := range m.models {
		out[name] = m.checkInference(ctx, path)
	}
	if err := m.chatProbe(ctx); err != nil {
		out[m.chatName] = ModelStatus{Status: StatusError, Error: err.Error()}
	} else {
		out[m.chatName] = ModelStatus{Status: StatusAvailable}
	}
	return out
}

func (m *ModelChecker) checkInference(ctx context.Context, path string) ModelStatus {
	if path == "" {
		return ModelStatus{Status: StatusError, Error: "model not configured"}
	}
	_, err := m.hf.ModelInfo(ctx, path)
	if err == nil {
		return ModelStatus{Status: StatusAvailable}
	}
	var se *huggingface.StatusError
	if errors.As(err, &se) {
		return ModelStatus{Status: StatusUnavailable, Error: ErrorDetail(se.Body)}
	}
	return ModelStatus{Status: StatusError, Error: fmt.Sprint(err)}
}

// ErrorDetail passes JSON bodies through as JSON and anything else as text.
func ErrorDetail(body string) any {
	if gjson.Valid(body) {
		return json.RawMessage(body)
	}
	return body
}
