package users

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	ErrUserNotFound        = errors.New("пользователь не найден")
	ErrUserAlreadyExists   = errors.New("пользователь с таким именем уже существует")
	ErrWrongPassword       = errors.New("неверный пароль")
	ErrInvalidUsername     = errors.New("имя пользователя должно содержать не менее 3 символов")
	ErrInvalidPasswordHash = errors.New("некорректный хеш пароля")
)

const passwordHashLength = 64

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Register регистрирует нового пользователя. Пароль уже захеширован на
// стороне клиента (SHA-256, hex), сервер хеширование не выполняет.
func (s *Service) Register(username, passwordHash string) error {
	if len([]rune(username)) < 3 {
		return ErrInvalidUsername
	}
	if !isHexDigest(passwordHash) {
		return ErrInvalidPasswordHash
	}

	if err := s.repo.Create(username, passwordHash); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return err
		}
		logrus.Errorf("Ошибка при регистрации пользователя '%s': %v", username, err)
		return err
	}

	logrus.Infof("Зарегистрирован пользователь '%s'", username)
	return nil
}

// Authenticate сравнивает предъявленный хеш с сохранённым. Прямое
// сравнение строк, без повторного хеширования.
func (s *Service) Authenticate(username, passwordHash string) (*User, error) {
	user, err := s.repo.Find(username)
	if err != nil {
		return nil, err
	}
	if user.PasswordHash != passwordHash {
		return nil, ErrWrongPassword
	}
	return user, nil
}

func isHexDigest(s string) bool {
	if len(s) != passwordHashLength {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
