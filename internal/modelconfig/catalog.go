package modelconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// modelMapping связывает идентификатор провайдера с конкретной
// моделью, которую прокси маршрутизирует к этому провайдеру.
var modelMapping = map[string]string{
	"zhipuai":  "glm-4-flash",
	"aliyunai": "Qwen/Qwen2.5-7B-Instruct",
	"deepseek": "deepseek-chat",
}

// ModelForIdentifier возвращает имя модели по идентификатору провайдера.
func ModelForIdentifier(identifier string) (string, bool) {
	model, ok := modelMapping[identifier]
	return model, ok
}

// IdentifierForModel — обратный поиск: имя модели → идентификатор.
func IdentifierForModel(model string) (string, bool) {
	for id, m := range modelMapping {
		if m == model {
			return id, true
		}
	}
	return "", false
}

type catalogEntry struct {
	Models []string `json:"models"`
}

// Catalog — статический справочник «компания → список моделей»,
// читается один раз при старте и далее не меняется.
type Catalog struct {
	companies []string
	models    map[string][]string
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать справочник моделей: %w", err)
	}

	doc := map[string]catalogEntry{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("не удалось разобрать справочник моделей: %w", err)
	}

	c := &Catalog{models: map[string][]string{}}
	for company, entry := range doc {
		c.companies = append(c.companies, company)
		c.models[company] = entry.Models
	}
	// Порядок ключей JSON-объекта в Go не сохраняется, поэтому
	// компании всегда перечисляются по алфавиту.
	sort.Strings(c.companies)
	return c, nil
}

// Companies возвращает имена компаний в стабильном порядке.
func (c *Catalog) Companies() []string {
	return c.companies
}

// Models возвращает список моделей компании.
func (c *Catalog) Models(company string) []string {
	return c.models[company]
}
