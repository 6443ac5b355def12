package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"flyingpigai/internal/history"
	"flyingpigai/internal/modelconfig"
	"flyingpigai/internal/state"
	"flyingpigai/internal/users"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Completer — исходящий вызов завершения через прокси.
type Completer interface {
	Complete(ctx context.Context, text, identifier string, temperature float64) (string, error)
}

// Restarter — перезапуск прокси-процесса после смены конфигурации.
type Restarter interface {
	Restart() error
}

type Handler struct {
	userService    *users.Service
	historyService *history.Service
	reconciler     *modelconfig.Reconciler
	completer      Completer
	supervisor     Restarter
	state          *state.State
	settingsDir    string
}

func NewHandler(
	userService *users.Service,
	historyService *history.Service,
	reconciler *modelconfig.Reconciler,
	completer Completer,
	supervisor Restarter,
	appState *state.State,
	settingsDir string,
) *Handler {
	return &Handler{
		userService:    userService,
		historyService: historyService,
		reconciler:     reconciler,
		completer:      completer,
		supervisor:     supervisor,
		state:          appState,
		settingsDir:    settingsDir,
	}
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SendRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type TemperatureRequest struct {
	Temp float64 `json:"temp"`
}

type SaveKeyRequest struct {
	Username  string `json:"username"`
	ModelName string `json:"model_name"`
	APIKey    string `json:"api_key"`
}

type SelectModelRequest struct {
	Username  string `json:"username"`
	ModelName string `json:"model_name"`
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Имя пользователя и пароль обязательны")
		return
	}

	if err := h.userService.Register(req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidUsername), errors.Is(err, users.ErrInvalidPasswordHash):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, users.ErrUserAlreadyExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			logrus.Errorf("Ошибка регистрации пользователя '%s': %v", req.Username, err)
			writeError(w, http.StatusInternalServerError, "Ошибка при регистрации пользователя")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Имя пользователя и пароль обязательны")
		return
	}

	user, err := h.userService.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) || errors.Is(err, users.ErrWrongPassword) {
			writeError(w, http.StatusUnauthorized, "Неверное имя пользователя или пароль")
		} else {
			logrus.Errorf("Ошибка аутентификации пользователя '%s': %v", req.Username, err)
			writeError(w, http.StatusInternalServerError, "Ошибка аутентификации")
		}
		return
	}

	if err := h.state.SetUser(user.Username); err != nil {
		logrus.Errorf("Не удалось сохранить состояние входа: %v", err)
		writeError(w, http.StatusInternalServerError, "Не удалось сохранить состояние входа")
		return
	}

	// Вход меняет активную конфигурацию: в неё подставляются ключи
	// пользователя, затем прокси перезапускается.
	if err := h.reconciler.ApplyLogin(user.Username); err != nil {
		logrus.Errorf("Не удалось собрать конфигурацию для '%s': %v", user.Username, err)
	}
	if err := h.supervisor.Restart(); err != nil {
		logrus.Errorf("Не удалось перезапустить прокси: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": user.Username})
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.state.ClearUser(); err != nil {
		logrus.Errorf("Не удалось сохранить состояние выхода: %v", err)
		writeError(w, http.StatusInternalServerError, "Не удалось завершить сеанс")
		return
	}

	if err := h.reconciler.ApplyLogout(); err != nil {
		logrus.Errorf("Не удалось сбросить конфигурацию к шаблону: %v", err)
	}
	if err := h.supervisor.Restart(); err != nil {
		logrus.Errorf("Не удалось перезапустить прокси: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) CheckAuthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"isLoggedIn": h.state.LoggedInUser != ""}
	if h.state.LoggedInUser != "" {
		resp["username"] = h.state.LoggedInUser
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Сообщение не может быть пустым")
		return
	}
	if !h.authorized(req.Username) {
		writeError(w, http.StatusUnauthorized, "Требуется вход в систему")
		return
	}

	answer, err := h.completer.Complete(r.Context(), req.Message, h.state.CurrentAPI, h.state.Temperature)
	if err != nil {
		logrus.Errorf("Ошибка при обращении к модели '%s': %v", h.state.CurrentAPI, err)
		writeError(w, http.StatusInternalServerError, "Не удалось получить ответ модели")
		return
	}

	h.historyService.Save(h.state.CurrentSession, req.Username, req.Message, answer)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "response": answer})
}

func (h *Handler) TemperatureHandler(w http.ResponseWriter, r *http.Request) {
	var req TemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное значение температуры")
		return
	}
	if req.Temp < 0 || req.Temp > 2 {
		writeError(w, http.StatusBadRequest, "Температура должна быть в диапазоне от 0 до 2")
		return
	}

	h.state.Temperature = req.Temp
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) NewChatHandler(w http.ResponseWriter, r *http.Request) {
	h.state.CurrentSession = uuid.NewString()
	logrus.Infof("Создана новая сессия %s", h.state.CurrentSession)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": h.state.CurrentSession})
}

func (h *Handler) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("user")
	if username == "" {
		writeError(w, http.StatusBadRequest, "Не указан пользователь")
		return
	}
	if !h.authorized(username) {
		writeError(w, http.StatusUnauthorized, "Требуется вход в систему")
		return
	}

	sessions, err := h.historyService.ListSessions(username)
	if err != nil {
		logrus.Errorf("Ошибка при получении списка сессий пользователя '%s': %v", username, err)
		writeError(w, http.StatusInternalServerError, "Не удалось получить список сессий")
		return
	}

	// Фронтенд ждёт массив пар [session_id, {last_time, preview}].
	payload := make([][2]any, 0, len(sessions))
	for _, s := range sessions {
		payload = append(payload, [2]any{s.ID, map[string]string{
			"last_time": s.LastTime.Format(history.TimeLayout),
			"preview":   s.Preview,
		}})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) LoadSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	username := r.URL.Query().Get("user")
	if sessionID == "" || username == "" {
		writeError(w, http.StatusBadRequest, "Не указаны сессия или пользователь")
		return
	}
	if !h.authorized(username) {
		writeError(w, http.StatusUnauthorized, "Требуется вход в систему")
		return
	}

	messages, err := h.historyService.LoadSession(sessionID, username)
	if err != nil {
		if errors.Is(err, history.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Сессия не найдена")
		} else {
			logrus.Errorf("Ошибка при загрузке сессии %s: %v", sessionID, err)
			writeError(w, http.StatusInternalServerError, "Не удалось загрузить сессию")
		}
		return
	}

	// Загруженная сессия становится текущей, чтобы разговор можно
	// было продолжить.
	h.state.CurrentSession = sessionID

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
}

func (h *Handler) GetModelsHandler(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("user")
	if username == "" {
		writeError(w, http.StatusBadRequest, "Не указан пользователь")
		return
	}
	if !h.authorized(username) {
		writeError(w, http.StatusUnauthorized, "Требуется вход в систему")
		return
	}

	writeJSON(w, http.StatusOK, h.reconciler.ModelsForUser(username))
}

func (h *Handler) SaveAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req SaveKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.ModelName == "" {
		writeError(w, http.StatusBadRequest, "Не указана модель")
		return
	}
	if !h.authorized(req.Username) {
		writeError(w, http.StatusUnauthorized, "Требуется вход в систему")
		return
	}

	if err := h.reconciler.SaveKey(req.Username, req.ModelName, req.APIKey); err != nil {
		if errors.Is(err, modelconfig.ErrConfigInconsistency) {
			logrus.Errorf("Несогласованность конфигурации для модели '%s'", req.ModelName)
			writeError(w, http.StatusInternalServerError, "Модель отсутствует в конфигурации прокси")
		} else {
			logrus.Errorf("Не удалось сохранить ключ для модели '%s': %v", req.ModelName, err)
			writeError(w, http.StatusInternalServerError, "Не удалось сохранить ключ")
		}
		return
	}

	if err := h.supervisor.Restart(); err != nil {
		logrus.Errorf("Не удалось перезапустить прокси: %v", err)
	}

	// Непустой ключ сразу делает эту модель текущей.
	if req.APIKey != "" {
		if id, ok := modelconfig.IdentifierForModel(req.ModelName); ok {
			h.state.CurrentAPI = id
			logrus.Infof("Текущая модель переключена на '%s' (%s)", req.ModelName, id)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) SelectModelHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if !h.authorized(req.Username) {
		writeError(w, http.StatusUnauthorized, "Требуется вход в систему")
		return
	}

	id, ok := modelconfig.IdentifierForModel(req.ModelName)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Неизвестная модель '%s'", req.ModelName))
		return
	}

	h.state.CurrentAPI = id
	logrus.Infof("Текущая модель переключена на '%s' (%s)", req.ModelName, id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "selected_api": id})
}

func (h *Handler) SettingHandler(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "Не указана тема")
		return
	}

	// Имя темы не должно выходить за пределы директории настроек.
	path := filepath.Join(h.settingsDir, filepath.Base(topic)+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "Неизвестная тема настроек")
		} else {
			logrus.Errorf("Не удалось прочитать тему настроек '%s': %v", topic, err)
			writeError(w, http.StatusInternalServerError, "Не удалось загрузить содержимое")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": string(data)})
}

// authorized проверяет, что запрос выполняется от имени вошедшего
// пользователя: действие от чужого имени — ошибка авторизации.
func (h *Handler) authorized(username string) bool {
	return username != "" && h.state.LoggedInUser == username
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Ошибка при сериализации ответа: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
