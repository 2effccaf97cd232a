package internal

import (
	"os"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/chat")
	t.Setenv("JWT_SECRET", "secret")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	req.Equal("INFO", config.LogLevel)
	req.Equal("0.0.0.0:8080", config.HTTPAddress())
	req.Equal("0.0.0.0:9090", config.GRPCAddress())
	req.Equal(4096, config.MaxTextLength)
	req.Equal(time.Second, config.ResubscribeDelay)
	req.Equal(200*time.Millisecond, config.RestartInterval)
	req.Equal([]string{"trainer:", "trainers:"}, config.TrainerPrefixes())
}

func TestConfig_Missing_Secret(t *testing.T) {
	t.Setenv("BADGER_FILEPATH", "/tmp/chat")
	// Setenv restores the variable once the test is done
	t.Setenv("JWT_SECRET", "unused")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	req := require.New(t)
	req.Equal([]string{"trainer:", "coaches"}, SplitList(" trainer: , ,coaches,"))
	req.Empty(SplitList(""))
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)
	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("##")
	req.Error(err)
}
