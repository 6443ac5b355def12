package modelconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"flyingpigai/internal/keys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templateFixture = `{
  "services": {
    "deepseek": [
      {"models": ["deepseek-chat"], "credentials": {"api_key": "xxx"}}
    ],
    "siliconcloud": [
      {"models": ["Qwen/Qwen2.5-7B-Instruct"], "credentials": {"api_key": "sk-default"}}
    ],
    "zhipu": [
      {"models": ["glm-4-flash"], "credentials": {"api_key": "xxx"}}
    ]
  }
}`

const catalogFixture = `{
  "DeepSeek": {"models": ["deepseek-chat"]},
  "智谱AI": {"models": ["glm-4-flash"]}
}`

type testEnv struct {
	reconciler *Reconciler
	keys       *keys.Repository
	activePath string
	template   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	templatePath := filepath.Join(dir, "config_template.json")
	require.NoError(t, os.WriteFile(templatePath, []byte(templateFixture), 0o644))

	catalogPath := filepath.Join(dir, "models.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogFixture), 0o644))
	catalog, err := LoadCatalog(catalogPath)
	require.NoError(t, err)

	keysRepo := keys.NewRepository(filepath.Join(dir, "user_keys.json"))
	activePath := filepath.Join(dir, "proxy", "config.json")

	return &testEnv{
		reconciler: NewReconciler(templatePath, activePath, keysRepo, catalog),
		keys:       keysRepo,
		activePath: activePath,
		template:   templatePath,
	}
}

func (e *testEnv) readActive(t *testing.T) *ProxyConfig {
	t.Helper()
	data, err := os.ReadFile(e.activePath)
	require.NoError(t, err)
	cfg := &ProxyConfig{}
	require.NoError(t, json.Unmarshal(data, cfg))
	return cfg
}

func TestApplyLoginMergesUserKeys(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.keys.Set("alice", "glm-4-flash", "sk-alice"))
	require.NoError(t, env.reconciler.ApplyLogin("alice"))

	cfg := env.readActive(t)
	assert.Equal(t, "sk-alice", cfg.Services["zhipu"][0].Credentials.APIKey)
	// Остальные сервисы остаются как в шаблоне.
	assert.Equal(t, "xxx", cfg.Services["deepseek"][0].Credentials.APIKey)
	assert.Equal(t, "sk-default", cfg.Services["siliconcloud"][0].Credentials.APIKey)
}

func TestApplyLoginWithoutKeysKeepsTemplate(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.reconciler.ApplyLogin("alice"))

	cfg := env.readActive(t)
	assert.Equal(t, "xxx", cfg.Services["zhipu"][0].Credentials.APIKey)
}

func TestApplyLogoutCopiesTemplateVerbatim(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.keys.Set("alice", "glm-4-flash", "sk-alice"))
	require.NoError(t, env.reconciler.ApplyLogin("alice"))
	require.NoError(t, env.reconciler.ApplyLogout())

	active, err := os.ReadFile(env.activePath)
	require.NoError(t, err)
	template, err := os.ReadFile(env.template)
	require.NoError(t, err)
	assert.Equal(t, template, active)
}

func TestSaveKeyUpdatesActiveConfig(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.reconciler.ApplyLogout())

	require.NoError(t, env.reconciler.SaveKey("alice", "glm-4-flash", "sk-new"))

	cfg := env.readActive(t)
	assert.Equal(t, "sk-new", cfg.Services["zhipu"][0].Credentials.APIKey)

	userKeys, err := env.keys.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "sk-new", userKeys["glm-4-flash"])
}

func TestSaveKeyEmptyWritesPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.reconciler.ApplyLogout())

	require.NoError(t, env.reconciler.SaveKey("alice", "glm-4-flash", "sk-new"))
	require.NoError(t, env.reconciler.SaveKey("alice", "glm-4-flash", ""))

	cfg := env.readActive(t)
	assert.Equal(t, KeyPlaceholder, cfg.Services["zhipu"][0].Credentials.APIKey)
}

func TestSaveKeyUnknownModel(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.reconciler.ApplyLogout())

	err := env.reconciler.SaveKey("alice", "нет-такой-модели", "sk-new")
	assert.ErrorIs(t, err, ErrConfigInconsistency)
}

func TestRequiresKeyTruthTable(t *testing.T) {
	env := newTestEnv(t)

	// Ни у пользователя, ни в шаблоне ключа нет.
	assert.True(t, env.reconciler.RequiresKey("glm-4-flash", "alice"))

	// Шаблон содержит ключ по умолчанию.
	assert.False(t, env.reconciler.RequiresKey("Qwen/Qwen2.5-7B-Instruct", "alice"))

	// Пользовательский ключ переключает результат.
	require.NoError(t, env.keys.Set("alice", "glm-4-flash", "sk-alice"))
	assert.False(t, env.reconciler.RequiresKey("glm-4-flash", "alice"))

	// Очистка ключа возвращает исходное состояние.
	require.NoError(t, env.keys.Set("alice", "glm-4-flash", ""))
	assert.True(t, env.reconciler.RequiresKey("glm-4-flash", "alice"))

	// Модель, которой нет в шаблоне, требует ключ.
	assert.True(t, env.reconciler.RequiresKey("неизвестная-модель", "alice"))
}

func TestModelsForUserAnnotation(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.keys.Set("alice", "deepseek-chat", "sk-deep"))

	result := env.reconciler.ModelsForUser("alice")
	require.Len(t, result, 2)

	// Компании перечисляются в отсортированном порядке.
	assert.Equal(t, "DeepSeek", result[0].Company)
	require.Len(t, result[0].Models, 1)
	assert.Equal(t, "deepseek-chat", result[0].Models[0].Name)
	assert.False(t, result[0].Models[0].RequiresKey)

	assert.Equal(t, "智谱AI", result[1].Company)
	assert.True(t, result[1].Models[0].RequiresKey)
}

func TestEnsureActiveConfig(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.reconciler.EnsureActiveConfig())
	cfg := env.readActive(t)
	assert.Equal(t, "xxx", cfg.Services["zhipu"][0].Credentials.APIKey)

	// Существующий файл не перезаписывается.
	require.NoError(t, env.reconciler.SaveKey("alice", "glm-4-flash", "sk-new"))
	require.NoError(t, env.reconciler.EnsureActiveConfig())
	cfg = env.readActive(t)
	assert.Equal(t, "sk-new", cfg.Services["zhipu"][0].Credentials.APIKey)
}

func TestModelMapping(t *testing.T) {
	model, ok := ModelForIdentifier("zhipuai")
	require.True(t, ok)
	assert.Equal(t, "glm-4-flash", model)

	id, ok := IdentifierForModel("deepseek-chat")
	require.True(t, ok)
	assert.Equal(t, "deepseek", id)

	_, ok = ModelForIdentifier("нет-такого")
	assert.False(t, ok)
}
