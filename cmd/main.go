package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flyingpigai/internal/api"
	"flyingpigai/internal/completion"
	"flyingpigai/internal/history"
	"flyingpigai/internal/keys"
	"flyingpigai/internal/middleware"
	"flyingpigai/internal/modelconfig"
	"flyingpigai/internal/proxy"
	"flyingpigai/internal/state"
	"flyingpigai/internal/users"
	"flyingpigai/pkg/config"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	cfg := config.LoadConfig()

	catalog, err := modelconfig.LoadCatalog(cfg.ModelsFile)
	if err != nil {
		logrus.Fatalf("Ошибка при загрузке справочника моделей: %v", err)
	}

	userRepo := users.NewRepository(cfg.UsersFile)
	userService := users.NewService(userRepo)

	historyRepo := history.NewRepository(cfg.HistoryFile)
	historyService := history.NewService(historyRepo)

	keysRepo := keys.NewRepository(cfg.UserKeysFile)
	reconciler := modelconfig.NewReconciler(cfg.ConfigTemplate, cfg.ActiveConfigFile, keysRepo, catalog)

	supervisor := proxy.NewSupervisor(cfg.ProxyDir, cfg.ProxyExecutable, cfg.ProxyStopTimeout, reconciler.EnsureActiveConfig)

	appState := state.Load(cfg.LoginStateFile)
	appState.CurrentSession = uuid.NewString()

	// Возобновлённый пользователь получает конфигурацию со своими
	// ключами, иначе достаточно убедиться, что активный файл есть.
	if appState.LoggedInUser != "" {
		logrus.Infof("Возобновлён сеанс пользователя '%s'", appState.LoggedInUser)
		if err := reconciler.ApplyLogin(appState.LoggedInUser); err != nil {
			logrus.Errorf("Не удалось собрать конфигурацию для '%s': %v", appState.LoggedInUser, err)
		}
	} else {
		if err := reconciler.EnsureActiveConfig(); err != nil {
			logrus.Errorf("Не удалось восстановить активную конфигурацию: %v", err)
		}
	}

	if err := supervisor.Start(); err != nil {
		logrus.Errorf("Не удалось запустить прокси-процесс: %v", err)
	}

	completionService := completion.NewService(cfg)

	apiHandler := api.NewHandler(
		userService,
		historyService,
		reconciler,
		completionService,
		supervisor,
		appState,
		cfg.SettingsDir,
	)

	router := mux.NewRouter()
	router.HandleFunc("/api/register", apiHandler.RegisterHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/login", apiHandler.LoginHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/logout", apiHandler.LogoutHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/check_auth", apiHandler.CheckAuthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/send", apiHandler.SendHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/temperature", apiHandler.TemperatureHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/new_chat", apiHandler.NewChatHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/sessions", apiHandler.SessionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/load_session", apiHandler.LoadSessionHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/get_models", apiHandler.GetModelsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/save_api_key", apiHandler.SaveAPIKeyHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/select_model", apiHandler.SelectModelHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/setting", apiHandler.SettingHandler).Methods(http.MethodGet)

	// Статический фронтенд: корень отдаёт chat.html, остальное — файлы.
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, cfg.StaticDir+"/chat.html")
	}).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))

	server := &http.Server{
		Addr:    cfg.ServerHost + ":" + cfg.ServerPort,
		Handler: middleware.CORSMiddleware(router),
	}

	go func() {
		logrus.Infof("Сервер запущен на %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Ошибка при запуске сервера: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Завершение работы сервера...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Ошибка при остановке сервера: %v", err)
	}

	supervisor.Stop()

	logrus.Info("Сервер остановлен")
}
