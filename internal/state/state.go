package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAPI         = "zhipuai"
	DefaultTemperature = 1.0
)

// State — единственный явный объект состояния процесса: текущий
// пользователь, выбранная модель, температура и активная сессия.
// Обработчики запросов выполняются последовательно, один писатель,
// блокировки нет намеренно.
type State struct {
	LoggedInUser   string
	CurrentAPI     string
	Temperature    float64
	CurrentSession string

	path string
}

type loginStateDoc struct {
	LoggedInUser *string `json:"logged_in_user"`
}

// Load читает сохранённое состояние входа, чтобы клиент возобновил
// последнюю личность после перезапуска. Нечитаемый файл не фатален.
func Load(path string) *State {
	s := &State{
		CurrentAPI:  DefaultAPI,
		Temperature: DefaultTemperature,
		path:        path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Warnf("Не удалось прочитать файл состояния входа: %v", err)
		}
		return s
	}

	var doc loginStateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		logrus.Warnf("Не удалось разобрать файл состояния входа: %v", err)
		return s
	}
	if doc.LoggedInUser != nil {
		s.LoggedInUser = *doc.LoggedInUser
	}
	return s
}

// SetUser фиксирует вход пользователя и сохраняет его на диск.
func (s *State) SetUser(username string) error {
	s.LoggedInUser = username
	return s.save()
}

// ClearUser фиксирует выход.
func (s *State) ClearUser() error {
	s.LoggedInUser = ""
	return s.save()
}

func (s *State) save() error {
	doc := loginStateDoc{}
	if s.LoggedInUser != "" {
		doc.LoggedInUser = &s.LoggedInUser
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("не удалось сериализовать состояние входа: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("не удалось создать директорию состояния: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("не удалось записать файл состояния входа: %w", err)
	}
	return nil
}
