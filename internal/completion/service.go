package completion

import (
	"context"
	"errors"

	"flyingpigai/internal/modelconfig"
	"flyingpigai/pkg/config"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownModel = errors.New("неизвестный идентификатор модели")
	ErrEmptyAnswer  = errors.New("нет ответа от модели")
)

// Service отправляет запросы на завершение через локальный
// OpenAI-совместимый эндпоинт прокси. Один запрос на вызов: без
// повторов, без стриминга, таймаут — транспортный по умолчанию.
type Service struct {
	client *openai.Client
}

func NewService(cfg *config.Config) *Service {
	clientConfig := openai.DefaultConfig(cfg.ProxyAPIKey)
	clientConfig.BaseURL = cfg.ProxyBaseURL
	return &Service{
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Complete выполняет один запрос к выбранной модели. Идентификатор
// провайдера разрешается в имя модели статическим справочником.
func (s *Service) Complete(ctx context.Context, text, identifier string, temperature float64) (string, error) {
	model, ok := modelconfig.ModelForIdentifier(identifier)
	if !ok {
		return "", ErrUnknownModel
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: float32(temperature),
	})
	if err != nil {
		logrus.Errorf("Ошибка при запросе к модели %s: %v", model, err)
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	return resp.Choices[0].Message.Content, nil
}
