package modelconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"flyingpigai/internal/keys"

	"github.com/sirupsen/logrus"
)

// KeyPlaceholder — значение api_key, означающее «ключ не задан».
const KeyPlaceholder = "xxx"

var ErrConfigInconsistency = errors.New("модель отсутствует в активной конфигурации")

type Credentials struct {
	APIKey string `json:"api_key"`
}

type ServiceInstance struct {
	Models      []string    `json:"models"`
	Credentials Credentials `json:"credentials"`
}

// ProxyConfig — контракт с внешним прокси-процессом: что лежит в
// активном файле, то прокси и использует для маршрутизации.
type ProxyConfig struct {
	Services map[string][]ServiceInstance `json:"services"`
}

// Reconciler сводит шаблон конфигурации, справочник моделей и ключи
// пользователей в активный конфигурационный файл прокси. Активный файл
// принадлежит только Reconciler, никто другой его не читает для
// прикладной логики.
type Reconciler struct {
	templatePath string
	activePath   string
	keys         *keys.Repository
	catalog      *Catalog
}

func NewReconciler(templatePath, activePath string, keysRepo *keys.Repository, catalog *Catalog) *Reconciler {
	return &Reconciler{
		templatePath: templatePath,
		activePath:   activePath,
		keys:         keysRepo,
		catalog:      catalog,
	}
}

// ApplyLogin строит активную конфигурацию из шаблона, подставляя
// непустые ключи пользователя в credentials соответствующих сервисов.
func (r *Reconciler) ApplyLogin(username string) error {
	cfg, err := r.loadConfig(r.templatePath)
	if err != nil {
		return err
	}

	userKeys, err := r.keys.Get(username)
	if err != nil {
		return err
	}

	for _, category := range sortedCategories(cfg.Services) {
		instances := cfg.Services[category]
		for i := range instances {
			for _, model := range instances[i].Models {
				if key := userKeys[model]; key != "" {
					instances[i].Credentials.APIKey = key
				}
			}
		}
	}

	logrus.Infof("Активная конфигурация собрана для пользователя '%s'", username)
	return r.writeActive(cfg)
}

// ApplyLogout возвращает активную конфигурацию к шаблону. Копия
// побайтовая: шаблон никогда не содержит пользовательских секретов.
func (r *Reconciler) ApplyLogout() error {
	data, err := os.ReadFile(r.templatePath)
	if err != nil {
		return fmt.Errorf("не удалось прочитать шаблон конфигурации: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.activePath), 0o755); err != nil {
		return fmt.Errorf("не удалось создать директорию конфигурации: %w", err)
	}
	if err := os.WriteFile(r.activePath, data, 0o644); err != nil {
		return fmt.Errorf("не удалось записать активную конфигурацию: %w", err)
	}

	logrus.Info("Активная конфигурация сброшена к шаблону")
	return nil
}

// SaveKey сохраняет ключ пользователя (пустая строка — очистка) и
// инкрементально правит активную конфигурацию: первый сервис, в
// списке моделей которого есть model, получает новый api_key либо
// заглушку.
func (r *Reconciler) SaveKey(username, model, apiKey string) error {
	if err := r.keys.Set(username, model, apiKey); err != nil {
		return err
	}

	cfg, err := r.loadConfig(r.activePath)
	if err != nil {
		return err
	}

	instance := findInstance(cfg, model)
	if instance == nil {
		logrus.Errorf("Модель '%s' не найдена ни в одном сервисе активной конфигурации", model)
		return ErrConfigInconsistency
	}
	if apiKey != "" {
		instance.Credentials.APIKey = apiKey
	} else {
		instance.Credentials.APIKey = KeyPlaceholder
	}

	return r.writeActive(cfg)
}

// RequiresKey сообщает, обязан ли пользователь ввести ключ: true,
// только если ключа нет ни у пользователя, ни в шаблоне.
func (r *Reconciler) RequiresKey(model, username string) bool {
	userKeys, err := r.keys.Get(username)
	if err != nil {
		logrus.Errorf("Не удалось прочитать ключи пользователя '%s': %v", username, err)
		userKeys = map[string]string{}
	}
	if userKeys[model] != "" {
		return false
	}
	return !r.templateHasKey(model)
}

// ModelInfo и CompanyModels — справочник моделей, аннотированный
// признаком requires_key, в том виде, в котором его ждёт фронтенд.
type ModelInfo struct {
	Name        string `json:"name"`
	RequiresKey bool   `json:"requires_key"`
}

type CompanyModels struct {
	Company string      `json:"company"`
	Models  []ModelInfo `json:"models"`
}

func (r *Reconciler) ModelsForUser(username string) []CompanyModels {
	result := make([]CompanyModels, 0, len(r.catalog.Companies()))
	for _, company := range r.catalog.Companies() {
		entry := CompanyModels{Company: company, Models: []ModelInfo{}}
		for _, model := range r.catalog.Models(company) {
			entry.Models = append(entry.Models, ModelInfo{
				Name:        model,
				RequiresKey: r.RequiresKey(model, username),
			})
		}
		result = append(result, entry)
	}
	return result
}

// EnsureActiveConfig восстанавливает активную конфигурацию из шаблона,
// если файла нет. Существующий файл не трогается.
func (r *Reconciler) EnsureActiveConfig() error {
	if _, err := os.Stat(r.activePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("не удалось проверить активную конфигурацию: %w", err)
	}
	logrus.Warn("Активная конфигурация отсутствует, восстанавливается из шаблона")
	return r.ApplyLogout()
}

func (r *Reconciler) templateHasKey(model string) bool {
	cfg, err := r.loadConfig(r.templatePath)
	if err != nil {
		logrus.Errorf("Не удалось прочитать шаблон конфигурации: %v", err)
		return false
	}
	instance := findInstance(cfg, model)
	if instance == nil {
		return false
	}
	key := instance.Credentials.APIKey
	return key != "" && key != KeyPlaceholder
}

// findInstance возвращает первый сервис, содержащий модель. Категории
// перебираются по алфавиту: первый найденный побеждает.
func findInstance(cfg *ProxyConfig, model string) *ServiceInstance {
	for _, category := range sortedCategories(cfg.Services) {
		instances := cfg.Services[category]
		for i := range instances {
			for _, m := range instances[i].Models {
				if m == model {
					return &instances[i]
				}
			}
		}
	}
	return nil
}

func sortedCategories(services map[string][]ServiceInstance) []string {
	categories := make([]string, 0, len(services))
	for category := range services {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

func (r *Reconciler) loadConfig(path string) (*ProxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать конфигурацию '%s': %w", path, err)
	}
	cfg := &ProxyConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать конфигурацию '%s': %w", path, err)
	}
	if cfg.Services == nil {
		cfg.Services = map[string][]ServiceInstance{}
	}
	return cfg, nil
}

func (r *Reconciler) writeActive(cfg *ProxyConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("не удалось сериализовать активную конфигурацию: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.activePath), 0o755); err != nil {
		return fmt.Errorf("не удалось создать директорию конфигурации: %w", err)
	}
	if err := os.WriteFile(r.activePath, data, 0o644); err != nil {
		return fmt.Errorf("не удалось записать активную конфигурацию: %w", err)
	}
	return nil
}
