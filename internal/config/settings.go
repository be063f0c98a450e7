package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"clipcast/internal/platform"
)

// Settings are the daemon-level knobs, read from the environment (a .env file
// is loaded by cmd before this runs). The account document is deliberately
// separate: settings describe the process, the document describes the content.
type Settings struct {
	// ConfigPath is the account document location.
	ConfigPath string

	// DataDir holds the upload log database and pipeline workspaces.
	DataDir string

	HTTPAddr string

	LogLevel    string
	LogConsole  bool
	LogFile     bool
	LogFilePath string

	// TickPeriod is the scheduler poll interval.
	TickPeriod time.Duration

	// StopTimeout bounds the wait for a scheduler worker to exit.
	StopTimeout time.Duration

	// WorkspaceTTL is how long finished pipeline workspaces are kept before
	// the maintenance sweep removes them.
	WorkspaceTTL time.Duration

	// Telegram notification target. Empty token disables the notifier.
	TelegramToken  string
	TelegramChatID int64

	// UploaderBins maps platform names to the external uploader binary that
	// performs authentication and publishing for that platform. A platform
	// without a binary gets no adapter and cannot publish.
	UploaderBins map[string]string
}

// LoadSettings reads settings from the environment, applying defaults for
// everything unset. Invalid durations are an error rather than a silent
// default: a typo'd tick period should not quietly become 60s.
func LoadSettings() (Settings, error) {
	s := Settings{
		ConfigPath:  envOr("CLIPCAST_CONFIG", "./config/accounts.yaml"),
		DataDir:     envOr("CLIPCAST_DATA_DIR", "./data"),
		HTTPAddr:    envOr("CLIPCAST_HTTP_ADDR", "127.0.0.1:8080"),
		LogLevel:    envOr("CLIPCAST_LOG_LEVEL", "info"),
		LogConsole:  envBool("CLIPCAST_LOG_CONSOLE", true),
		LogFile:     envBool("CLIPCAST_LOG_FILE", false),
		LogFilePath: envOr("CLIPCAST_LOG_FILE_PATH", "./clipcast.log"),

		TelegramToken: strings.TrimSpace(os.Getenv("CLIPCAST_TELEGRAM_TOKEN")),

		UploaderBins: map[string]string{
			string(platform.YouTube):   envOr("CLIPCAST_UPLOADER_YOUTUBE", "youtube-uploader"),
			string(platform.TikTok):    envOr("CLIPCAST_UPLOADER_TIKTOK", "tiktok-uploader"),
			string(platform.Instagram): envOr("CLIPCAST_UPLOADER_INSTAGRAM", ""),
			string(platform.Twitter):   envOr("CLIPCAST_UPLOADER_TWITTER", ""),
		},
	}

	var err error
	if s.TickPeriod, err = envDuration("CLIPCAST_TICK_PERIOD", time.Minute); err != nil {
		return Settings{}, err
	}
	if s.StopTimeout, err = envDuration("CLIPCAST_STOP_TIMEOUT", 5*time.Second); err != nil {
		return Settings{}, err
	}
	if s.WorkspaceTTL, err = envDuration("CLIPCAST_WORKSPACE_TTL", 48*time.Hour); err != nil {
		return Settings{}, err
	}

	if raw := strings.TrimSpace(os.Getenv("CLIPCAST_TELEGRAM_CHAT_ID")); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return Settings{}, fmt.Errorf("CLIPCAST_TELEGRAM_CHAT_ID: invalid chat id %q", raw)
		}
		s.TelegramChatID = id
	}

	return s, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
