package history

import "time"

// TimeLayout — формат отметки времени в файле истории.
const TimeLayout = "2006-01-02 15:04:05"

// Record — одна строка журнала истории. После записи не изменяется.
type Record struct {
	SessionID string
	Username  string
	UserMsg   string
	AiMsg     string
	Timestamp time.Time
}

// Session — производное представление сессии, пересчитывается из
// журнала при каждом запросе списка.
type Session struct {
	ID       string
	LastTime time.Time
	Preview  string
}

// Message — одна реплика при загрузке сессии.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}
