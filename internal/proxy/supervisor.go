package proxy

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Supervisor управляет внешним прокси-процессом simple-one-api.
// Дескриптор дочернего процесса принадлежит только Supervisor; никто
// другой его не останавливает и не заменяет. Сигнала готовности у
// прокси нет: после перезапуска первые запросы могут не пройти, это
// принятое ограничение.
type Supervisor struct {
	exeDir       string
	exeName      string
	stopTimeout  time.Duration
	ensureConfig func() error

	cmd  *exec.Cmd
	done chan error
}

func NewSupervisor(exeDir, exeName string, stopTimeout time.Duration, ensureConfig func() error) *Supervisor {
	return &Supervisor{
		exeDir:       exeDir,
		exeName:      exeName,
		stopTimeout:  stopTimeout,
		ensureConfig: ensureConfig,
	}
}

// Running сообщает, жив ли дочерний процесс.
func (s *Supervisor) Running() bool {
	if s.cmd == nil {
		return false
	}
	select {
	case err := <-s.done:
		if err != nil {
			logrus.Warnf("Прокси-процесс завершился: %v", err)
		}
		s.cmd = nil
		return false
	default:
		return true
	}
}

// Start запускает прокси, если он не запущен. Отсутствие исполняемого
// файла — не ошибка, а предупреждение: клиент продолжает работать без
// прокси. Перед запуском активная конфигурация при необходимости
// восстанавливается из шаблона.
func (s *Supervisor) Start() error {
	if s.Running() {
		logrus.Warn("Прокси-процесс уже запущен")
		return nil
	}

	if err := s.ensureConfig(); err != nil {
		return err
	}

	exePath := filepath.Join(s.exeDir, s.exeName)
	if _, err := os.Stat(exePath); err != nil {
		if os.IsNotExist(err) {
			logrus.Warnf("Исполняемый файл прокси не найден: %s", exePath)
			return nil
		}
		return err
	}

	cmd := exec.Command(exePath)
	cmd.Dir = s.exeDir
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	s.cmd = cmd
	s.done = done
	logrus.Infof("Прокси-процесс запущен, pid %d", cmd.Process.Pid)
	return nil
}

// Restart останавливает процесс (с эскалацией до kill по таймауту) и
// запускает его заново. Запуск выполняется даже если остановка не
// подтвердилась.
func (s *Supervisor) Restart() error {
	s.Stop()
	return s.Start()
}

// Stop завершает процесс: сначала SIGTERM, после таймаута — kill.
func (s *Supervisor) Stop() {
	if !s.Running() {
		return
	}

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logrus.Warnf("Не удалось отправить SIGTERM прокси-процессу: %v", err)
	}

	select {
	case <-s.done:
		logrus.Info("Прокси-процесс завершился штатно")
	case <-time.After(s.stopTimeout):
		logrus.Warn("Прокси-процесс не завершился вовремя, принудительное завершение")
		if err := s.cmd.Process.Kill(); err != nil {
			logrus.Errorf("Не удалось принудительно завершить прокси-процесс: %v", err)
		}
		select {
		case <-s.done:
		case <-time.After(time.Second):
			logrus.Error("Завершение прокси-процесса не подтвердилось")
		}
	}

	s.cmd = nil
}
