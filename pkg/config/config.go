package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerHost       string
	ServerPort       string
	StaticDir        string
	SettingsDir      string
	DataDir          string
	ModelsFile       string
	ConfigTemplate   string
	ProxyDir         string
	ProxyExecutable  string
	ProxyBaseURL     string
	ProxyAPIKey      string
	ProxyStopTimeout time.Duration

	// Производные пути внутри DataDir.
	UsersFile        string
	HistoryFile      string
	UserKeysFile     string
	LoginStateFile   string
	ActiveConfigFile string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Не найден файл .env")
	}

	cfg := &Config{
		ServerHost:      getEnv("SERVER_HOST", "127.0.0.1"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		StaticDir:       getEnv("STATIC_DIR", "static"),
		SettingsDir:     getEnv("SETTINGS_DIR", "settings"),
		DataDir:         getEnv("DATA_DIR", "data"),
		ModelsFile:      getEnv("MODELS_FILE", "models.json"),
		ConfigTemplate:  getEnv("CONFIG_TEMPLATE", "config_template.json"),
		ProxyDir:        getEnv("PROXY_DIR", "simple-one-api"),
		ProxyExecutable: getEnv("PROXY_EXECUTABLE", "simple-one-api"),
		ProxyBaseURL:    getEnv("PROXY_BASE_URL", "http://localhost:9090/v1"),
		ProxyAPIKey:     getEnv("PROXY_API_KEY", "sk-123456"),
	}

	seconds, err := strconv.Atoi(getEnv("PROXY_STOP_TIMEOUT", "5"))
	if err != nil || seconds <= 0 {
		logrus.Warn("Некорректное значение PROXY_STOP_TIMEOUT, используется 5 секунд")
		seconds = 5
	}
	cfg.ProxyStopTimeout = time.Duration(seconds) * time.Second

	cfg.UsersFile = filepath.Join(cfg.DataDir, "users.csv")
	cfg.HistoryFile = filepath.Join(cfg.DataDir, "chat_history.csv")
	cfg.UserKeysFile = filepath.Join(cfg.DataDir, "user_keys.json")
	cfg.LoginStateFile = filepath.Join(cfg.DataDir, "login_state.json")
	// Прокси читает config.json из своей рабочей директории.
	cfg.ActiveConfigFile = filepath.Join(cfg.ProxyDir, "config.json")

	return cfg
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
