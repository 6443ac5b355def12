package history

import (
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("сессия не найдена")

const previewLength = 30

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Save сохраняет одну пару реплик. Ошибки записи журналируются в
// репозитории, вызывающий всегда продолжает работу.
func (s *Service) Save(sessionID, username, userMsg, aiMsg string) {
	logrus.Debugf("Сохранение реплики пользователя '%s' в сессии %s", username, sessionID)
	s.repo.Append(sessionID, username, userMsg, aiMsg)
}

// ListSessions строит список сессий пользователя из журнала: одна
// запись на session_id, побеждает запись с наибольшей отметкой
// времени (при равенстве — последняя прочитанная), сортировка по
// убыванию времени.
func (s *Service) ListSessions(username string) ([]Session, error) {
	records, err := s.repo.Scan()
	if err != nil {
		return nil, err
	}

	latest := make(map[string]Record)
	for _, rec := range records {
		if rec.Username != username {
			continue
		}
		if prev, ok := latest[rec.SessionID]; !ok || !rec.Timestamp.Before(prev.Timestamp) {
			latest[rec.SessionID] = rec
		}
	}

	sessions := make([]Session, 0, len(latest))
	for id, rec := range latest {
		sessions = append(sessions, Session{
			ID:       id,
			LastTime: rec.Timestamp,
			Preview:  makePreview(rec.UserMsg),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastTime.After(sessions[j].LastTime)
	})
	return sessions, nil
}

// LoadSession возвращает реплики сессии в порядке журнала. Записи с
// тем же session_id, но другим пользователем исключаются: сессия,
// существующая только у другого пользователя, для текущего не
// существует.
func (s *Service) LoadSession(sessionID, username string) ([]Message, error) {
	records, err := s.repo.Scan()
	if err != nil {
		return nil, err
	}

	var messages []Message
	found := false
	for _, rec := range records {
		if rec.SessionID != sessionID {
			continue
		}
		if rec.Username != username {
			logrus.Warnf("Сессия %s: запись пользователя '%s' исключена из выдачи для '%s'",
				sessionID, rec.Username, username)
			continue
		}
		found = true
		messages = append(messages,
			Message{Sender: "user", Text: rec.UserMsg},
			Message{Sender: "ai", Text: rec.AiMsg},
		)
	}

	if !found {
		return nil, ErrSessionNotFound
	}
	return messages, nil
}

func makePreview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
