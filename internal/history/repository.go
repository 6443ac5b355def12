package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

var fileHeader = []string{"session_id", "username", "user_msg", "ai_msg", "timestamp"}

// Repository хранит историю диалогов в плоском CSV-файле, журнал
// только дополняется — единственный владелец данных разговоров.
type Repository struct {
	path string
	now  func() time.Time
}

func NewRepository(path string) *Repository {
	return &Repository{path: path, now: time.Now}
}

// Append дописывает одну запись. Ошибка ввода-вывода только
// логируется: потеря записи считается менее тяжёлой, чем падение
// процесса.
func (r *Repository) Append(sessionID, username, userMsg, aiMsg string) {
	if err := r.appendRow(sessionID, username, userMsg, aiMsg); err != nil {
		logrus.Errorf("Не удалось сохранить запись истории для сессии %s: %v", sessionID, err)
	}
}

// Scan читает весь журнал. Строки с неверным числом полей и строки с
// нечитаемой отметкой времени пропускаются с предупреждением.
func (r *Repository) Scan() ([]Record, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось открыть файл истории: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл истории: %w", err)
	}

	var records []Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == fileHeader[0] {
			continue
		}
		if len(row) != 5 {
			logrus.Warnf("Пропущена некорректная строка %d в файле истории", i+1)
			continue
		}
		ts, err := time.Parse(TimeLayout, row[4])
		if err != nil {
			logrus.Warnf("Пропущена строка %d с нечитаемой отметкой времени '%s'", i+1, row[4])
			continue
		}
		records = append(records, Record{
			SessionID: row[0],
			Username:  row[1],
			UserMsg:   row[2],
			AiMsg:     row[3],
			Timestamp: ts,
		})
	}
	return records, nil
}

func (r *Repository) appendRow(sessionID, username, userMsg, aiMsg string) error {
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
	row := []string{sessionID, username, userMsg, aiMsg, r.now().Format(TimeLayout)}
	if err := writer.Write(row); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
