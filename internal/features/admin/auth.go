// Package admin — auth.go проверяет пароль администратора (Argon2id)
// и ведёт сессии DM-панели: 3 неудачные попытки за час блокируют вход,
// успешный вход действует 24 часа.
package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"github.com/rgndice/dicebot/internal/common"
)

const (
	maxFailedAttempts = 3
	attemptWindow     = time.Hour
	sessionTTL        = 24 * time.Hour
)

// Параметры Argon2id для новых хешей.
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)

// Authenticator хранит попытки входа и сессии в памяти процесса.
type Authenticator struct {
	hash string
	now  func() time.Time

	mu       sync.Mutex
	failures map[int64][]time.Time
	sessions map[int64]time.Time
}

// NewAuthenticator создаёт аутентификатор для хеша из ADMIN_PASSWORD_HASH.
func NewAuthenticator(hash string) *Authenticator {
	return &Authenticator{
		hash:     hash,
		now:      time.Now,
		failures: make(map[int64][]time.Time),
		sessions: make(map[int64]time.Time),
	}
}

// Configured сообщает, задан ли пароль.
func (a *Authenticator) Configured() bool {
	return a.hash != ""
}

// Login проверяет пароль и открывает сессию на 24 часа.
func (a *Authenticator) Login(userID int64, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	recent := a.failures[userID][:0]
	for _, t := range a.failures[userID] {
		if now.Sub(t) < attemptWindow {
			recent = append(recent, t)
		}
	}
	a.failures[userID] = recent

	if len(recent) >= maxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	if !a.Check(password) {
		a.failures[userID] = append(recent, now)
		log.WithFields(log.Fields{
			"user_id":  userID,
			"attempts": len(a.failures[userID]),
		}).Warn("Неудачная попытка входа в админ-панель")
		return common.ErrWrongPassword
	}

	delete(a.failures, userID)
	a.sessions[userID] = now.Add(sessionTTL)
	log.WithField("user_id", userID).Info("Администратор вошёл в панель")
	return nil
}

// HasSession сообщает, есть ли у пользователя действующая сессия.
func (a *Authenticator) HasSession(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	exp, ok := a.sessions[userID]
	if !ok {
		return false
	}
	if !a.now().Before(exp) {
		delete(a.sessions, userID)
		return false
	}
	return true
}

// Logout закрывает сессию.
func (a *Authenticator) Logout(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, userID)
}

// Check сверяет пароль с хешем без учёта попыток (используется API).
func (a *Authenticator) Check(password string) bool {
	if a.hash == "" || password == "" {
		return false
	}
	return verifyArgon2id(password, a.hash)
}

// HashPassword возвращает Argon2id-хеш в формате
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// verifyArgon2id проверяет пароль по закодированному хешу.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
