package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// DefaultTrainerDirectories mirrors the two trainer collections of the legacy
// store, primary first.
const DefaultTrainerDirectories = "trainer:,trainers:"

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	GRPCPort       int    `env:"GRPC_PORT,default=9090"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`

	// Comma separated Badger key prefixes, in lookup order
	TrainerDirectories string `env:"TRAINER_DIRECTORIES"`
	RedisURL           string `env:"REDIS_URL"`
	// Comma separated Redis sets, looked up after the Badger prefixes
	RedisTrainerSets string `env:"REDIS_TRAINER_SETS"`
	PostgresURL      string `env:"POSTGRES_URL"`

	MaxTextLength            int           `env:"MAX_TEXT_LENGTH,default=4096"`
	MaxConflictRetries       int           `env:"MAX_CONFLICT_RETRIES,default=10"`
	ResubscribeDelay         time.Duration `env:"RESUBSCRIBE_DELAY,default=1s"`
	ProfileLookupConcurrency int           `env:"PROFILE_LOOKUP_CONCURRENCY,default=8"`
	ConnectionBufferSize     int           `env:"CONNECTION_BUFFER_SIZE,default=64"`

	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	RestartInterval     time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	GCInterval          time.Duration `env:"GC_INTERVAL,default=5m"`
	HealthProbeInterval time.Duration `env:"HEALTH_PROBE_INTERVAL,default=5s"`
}

// TrainerPrefixes returns the configured Badger trainer directories.
func (c Config) TrainerPrefixes() []string {
	if strings.TrimSpace(c.TrainerDirectories) == "" {
		return SplitList(DefaultTrainerDirectories)
	}
	return SplitList(c.TrainerDirectories)
}

func (c Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
