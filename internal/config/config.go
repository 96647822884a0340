// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// godotenv подхватывает необязательный файл .env для локального запуска.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/rgndice/dicebot/internal/common"
)

// Драйверы хранилища
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS"`
	AdminIDs         []int64 `envconfig:"-"`
	// Список групп, где разрешена игра. Пусто — любая группа.
	AllowedChatIDsRaw string  `envconfig:"ALLOWED_CHAT_IDS"`
	AllowedChatIDs    []int64 `envconfig:"-"`

	// --- Storage ---
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"dicebot.db"`

	// --- Database ---
	// В Docker дефолт "postgres" (имя сервиса в docker-compose), для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"dicebot"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"dicebot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Yangon"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`
	// Бросать кубики через анимацию Telegram (иначе генератор случайных чисел)
	BotTelegramDice bool `envconfig:"BOT_TELEGRAM_DICE" default:"true"`

	// --- Game ---
	GameMinBet          int64           `envconfig:"GAME_MIN_BET" default:"100"`
	GameMaxBet          int64           `envconfig:"GAME_MAX_BET" default:"1000000"`
	GameMultiplierBig   decimal.Decimal `envconfig:"GAME_MULTIPLIER_BIG" default:"1.95"`
	GameMultiplierSmall decimal.Decimal `envconfig:"GAME_MULTIPLIER_SMALL" default:"1.95"`
	GameMultiplierLucky decimal.Decimal `envconfig:"GAME_MULTIPLIER_LUCKY" default:"4.5"`
	GameBetWindow       time.Duration   `envconfig:"GAME_BET_WINDOW" default:"60s"`
	GameRollDelay       time.Duration   `envconfig:"GAME_ROLL_DELAY" default:"5s"`
	GameIdleLimit       int             `envconfig:"GAME_IDLE_LIMIT" default:"3"`
	GameStopCooldown    time.Duration   `envconfig:"GAME_STOP_COOLDOWN" default:"10s"`
	GameHistoryLimit    int             `envconfig:"GAME_HISTORY_LIMIT" default:"50"`

	// --- Cashback ---
	// Процент от вчерашнего проигрыша, 0 выключает кэшбэк
	GameCashbackPercent decimal.Decimal `envconfig:"GAME_CASHBACK_PERCENT" default:"10"`
	GameCashbackMinLoss int64           `envconfig:"GAME_CASHBACK_MIN_LOSS" default:"1000"`
	GameCashbackMax     int64           `envconfig:"GAME_CASHBACK_MAX" default:"10000"`
	GameCashbackTime    string          `envconfig:"GAME_CASHBACK_TIME" default:"00:05"`

	// --- Bonuses ---
	ReferralBonus int64 `envconfig:"REFERRAL_BONUS" default:"500"`
	WelcomeBonus  int64 `envconfig:"WELCOME_BONUS" default:"500"`

	// --- Admin ---
	AdminWalletCeiling int64  `envconfig:"ADMIN_WALLET_CEILING" default:"10000000"`
	AdminRefillTime    string `envconfig:"ADMIN_REFILL_TIME" default:"06:00"`
	AdminPasswordHash  string `envconfig:"ADMIN_PASSWORD_HASH"`

	// --- Events ---
	NATSURL           string `envconfig:"NATS_URL"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"dicebot"`

	// --- Status API ---
	APIEnabled     bool   `envconfig:"API_ENABLED" default:"false"`
	APIAddr        string `envconfig:"API_ADDR" default:":8080"`
	APICORSOrigins string `envconfig:"API_CORS_ORIGINS" default:"*"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdmin сообщает, входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CORSOrigins возвращает список разрешённых origin для API.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.APICORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER должен быть postgres, sqlite или memory, получено %q", c.StorageDriver)
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.StorageDriver == StoragePostgres && (c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.GameMinBet <= 0 || c.GameMaxBet < c.GameMinBet {
		return fmt.Errorf("некорректные GAME_MIN_BET/GAME_MAX_BET: %d/%d", c.GameMinBet, c.GameMaxBet)
	}
	for name, m := range map[string]decimal.Decimal{
		"GAME_MULTIPLIER_BIG":   c.GameMultiplierBig,
		"GAME_MULTIPLIER_SMALL": c.GameMultiplierSmall,
		"GAME_MULTIPLIER_LUCKY": c.GameMultiplierLucky,
	} {
		if !m.IsPositive() {
			return fmt.Errorf("%s должен быть > 0", name)
		}
	}
	if c.GameBetWindow <= 0 || c.GameRollDelay < 0 {
		return fmt.Errorf("некорректные GAME_BET_WINDOW/GAME_ROLL_DELAY")
	}
	if c.GameHistoryLimit <= 0 {
		return fmt.Errorf("GAME_HISTORY_LIMIT должен быть > 0")
	}
	if c.GameCashbackPercent.IsNegative() || c.GameCashbackPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("GAME_CASHBACK_PERCENT должен быть от 0 до 100")
	}
	if c.GameCashbackMinLoss < 0 || c.GameCashbackMax < 0 {
		return fmt.Errorf("некорректные GAME_CASHBACK_MIN_LOSS/GAME_CASHBACK_MAX")
	}
	if _, _, err := common.ParseClock(c.GameCashbackTime); err != nil {
		return fmt.Errorf("GAME_CASHBACK_TIME: %w", err)
	}
	if c.ReferralBonus < 0 || c.WelcomeBonus < 0 {
		return fmt.Errorf("бонусы не могут быть отрицательными")
	}
	if c.AdminWalletCeiling <= 0 {
		return fmt.Errorf("ADMIN_WALLET_CEILING должен быть > 0")
	}
	if _, _, err := common.ParseClock(c.AdminRefillTime); err != nil {
		return fmt.Errorf("ADMIN_REFILL_TIME: %w", err)
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения, заполняет структуру Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	chats, err := parseInt64CSV(cfg.AllowedChatIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ALLOWED_CHAT_IDS parse: %w", err)
	}
	cfg.AllowedChatIDs = chats

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
