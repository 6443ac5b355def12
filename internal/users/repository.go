package users

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var fileHeader = []string{"username", "password_hash"}

// Repository хранит пользователей в плоском CSV-файле. Файл только
// дополняется, записи никогда не изменяются и не удаляются.
type Repository struct {
	path string
}

func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Find ищет пользователя линейным сканированием, первая подходящая
// запись побеждает.
func (r *Repository) Find(username string) (*User, error) {
	rows, err := r.readAll()
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.Username == username {
			u := row
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

// Create добавляет пользователя. Уникальность имени проверяется только
// здесь, тем же линейным сканированием.
func (r *Repository) Create(username, passwordHash string) error {
	existing, err := r.Find(username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if existing != nil {
		return ErrUserAlreadyExists
	}

	if err := r.appendRow(username, passwordHash); err != nil {
		return fmt.Errorf("не удалось записать пользователя '%s': %w", username, err)
	}
	return nil
}

func (r *Repository) readAll() ([]User, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось открыть файл пользователей: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл пользователей: %w", err)
	}

	var result []User
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == fileHeader[0] {
			continue
		}
		if len(rec) != 2 {
			logrus.Warnf("Пропущена некорректная строка %d в файле пользователей", i+1)
			continue
		}
		result = append(result, User{Username: rec[0], PasswordHash: rec[1]})
	}
	return result, nil
}

func (r *Repository) appendRow(username, passwordHash string) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}

	writeHeader := false
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if writeHeader {
		if err := writer.Write(fileHeader); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{username, passwordHash}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
