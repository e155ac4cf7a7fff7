package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/biblequest-duels/internal/obslog"
)

type AppConfig struct {
	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	QuestionsFile string
	MessagesDir   string

	DefaultTargetStreak int
	PollInterval        time.Duration
	LivenessTimeout     time.Duration
	SearchTimeout       time.Duration
	QuestionBatchSize   int
	MaxCASRetries       int

	TournamentTZ         string
	TournamentHour       int
	TournamentStartSizes []int

	XPWin    int
	XPLoss   int
	CoinsWin int

	AnswerRatePerSec float64
	AnswerBurst      int

	Log obslog.Options
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real env vars win over it.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		HTTPAddr:             ":8080",
		DefaultTargetStreak:  8,
		PollInterval:         2500 * time.Millisecond,
		LivenessTimeout:      60 * time.Second,
		SearchTimeout:        60 * time.Second,
		QuestionBatchSize:    20,
		MaxCASRetries:        5,
		TournamentTZ:         "America/Chicago",
		TournamentHour:       19,
		TournamentStartSizes: []int{4, 8, 16},
		XPWin:                50,
		XPLoss:               10,
		CoinsWin:             10,
		AnswerRatePerSec:     4,
		AnswerBurst:          4,
		Log: obslog.Options{
			Level:   "info",
			Format:  "legacy",
			Console: true,
		},
	}

	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.QuestionsFile = env("QUESTIONS_FILE")
	cfg.MessagesDir = env("MESSAGES_DIR")

	envPositiveInt("DUEL_TARGET_STREAK", &cfg.DefaultTargetStreak)
	envDuration("DUEL_POLL_INTERVAL", &cfg.PollInterval)
	envDuration("DUEL_LIVENESS_TIMEOUT", &cfg.LivenessTimeout)
	envDuration("DUEL_SEARCH_TIMEOUT", &cfg.SearchTimeout)
	envPositiveInt("QUESTION_BATCH_SIZE", &cfg.QuestionBatchSize)
	envPositiveInt("DUEL_MAX_CAS_RETRIES", &cfg.MaxCASRetries)

	if v := env("TOURNAMENT_TZ"); v != "" {
		cfg.TournamentTZ = v
	}
	if v := env("TOURNAMENT_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < 24 {
			cfg.TournamentHour = n
		}
	}
	if v := env("TOURNAMENT_START_SIZES"); v != "" {
		var sizes []int
		for _, p := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil && n >= 2 {
				sizes = append(sizes, n)
			}
		}
		if len(sizes) > 0 {
			cfg.TournamentStartSizes = sizes
		}
	}

	envPositiveInt("XP_WIN", &cfg.XPWin)
	envPositiveInt("XP_LOSS", &cfg.XPLoss)
	envPositiveInt("COINS_WIN", &cfg.CoinsWin)

	if v := env("ANSWER_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.AnswerRatePerSec = f
		}
	}
	envPositiveInt("ANSWER_BURST", &cfg.AnswerBurst)

	if v := env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	envBool("LOG_TO_CONSOLE", &cfg.Log.Console)
	envBool("LOG_TO_FILE", &cfg.Log.ToFile)
	envBool("LOG_CALLER", &cfg.Log.Caller)
	cfg.Log.File = env("LOG_FILE")

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if _, err := time.LoadLocation(cfg.TournamentTZ); err != nil {
		return nil, errors.New("TOURNAMENT_TZ is not a valid IANA zone")
	}
	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func envPositiveInt(k string, dst *int) {
	if v := env(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// envDuration accepts Go durations ("2500ms") or a bare number of seconds.
func envDuration(k string, dst *time.Duration) {
	v := env(k)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}

func envBool(k string, dst *bool) {
	if v := env(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
