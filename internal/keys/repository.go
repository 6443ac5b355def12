package keys

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Repository хранит ключи API всех пользователей в одном JSON-документе
// вида {username: {model_name: api_key}}. Пустая строка означает
// «ключ явно очищен».
type Repository struct {
	path string
}

func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Get возвращает ключи пользователя. Отсутствие файла или пользователя
// не является ошибкой — возвращается пустая карта.
func (r *Repository) Get(username string) (map[string]string, error) {
	doc, err := r.readAll()
	if err != nil {
		return nil, err
	}
	if userKeys, ok := doc[username]; ok {
		return userKeys, nil
	}
	return map[string]string{}, nil
}

// Set записывает ключ модели для пользователя, перезаписывая весь
// документ целиком.
func (r *Repository) Set(username, model, apiKey string) error {
	doc, err := r.readAll()
	if err != nil {
		return err
	}

	if doc[username] == nil {
		doc[username] = map[string]string{}
	}
	doc[username][model] = apiKey

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("не удалось сериализовать ключи пользователей: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("не удалось создать директорию для ключей: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("не удалось записать файл ключей: %w", err)
	}
	return nil
}

func (r *Repository) readAll() (map[string]map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]string{}, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл ключей: %w", err)
	}

	doc := map[string]map[string]string{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("не удалось разобрать файл ключей: %w", err)
	}
	return doc, nil
}
