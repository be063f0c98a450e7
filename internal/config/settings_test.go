package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.HTTPAddr != "127.0.0.1:8080" {
		t.Fatalf("HTTPAddr = %q", s.HTTPAddr)
	}
	if s.TickPeriod != time.Minute || s.StopTimeout != 5*time.Second {
		t.Fatalf("timing defaults = %v / %v", s.TickPeriod, s.StopTimeout)
	}
	if s.WorkspaceTTL != 48*time.Hour {
		t.Fatalf("WorkspaceTTL = %v", s.WorkspaceTTL)
	}
	if s.UploaderBins["YouTube"] != "youtube-uploader" || s.UploaderBins["TikTok"] != "tiktok-uploader" {
		t.Fatalf("UploaderBins = %v", s.UploaderBins)
	}
	if s.UploaderBins["Instagram"] != "" || s.UploaderBins["Twitter"] != "" {
		t.Fatalf("platforms without uploaders got binaries: %v", s.UploaderBins)
	}
	if s.TelegramToken != "" || s.TelegramChatID != 0 {
		t.Fatal("telegram enabled by default")
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	t.Setenv("CLIPCAST_HTTP_ADDR", "0.0.0.0:9090")
	t.Setenv("CLIPCAST_TICK_PERIOD", "30s")
	t.Setenv("CLIPCAST_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("CLIPCAST_TELEGRAM_CHAT_ID", "-100200300")
	t.Setenv("CLIPCAST_UPLOADER_INSTAGRAM", "/opt/ig-up")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.HTTPAddr != "0.0.0.0:9090" || s.TickPeriod != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", s)
	}
	if s.TelegramToken != "123:abc" || s.TelegramChatID != -100200300 {
		t.Fatalf("telegram = %q / %d", s.TelegramToken, s.TelegramChatID)
	}
	if s.UploaderBins["Instagram"] != "/opt/ig-up" {
		t.Fatalf("UploaderBins = %v", s.UploaderBins)
	}
}

func TestLoadSettingsInvalidDuration(t *testing.T) {
	t.Setenv("CLIPCAST_TICK_PERIOD", "sixty seconds")

	_, err := LoadSettings()
	if err == nil {
		t.Fatal("LoadSettings accepted a bad duration")
	}
	if !strings.Contains(err.Error(), "CLIPCAST_TICK_PERIOD") {
		t.Fatalf("error does not name the variable: %v", err)
	}
}

func TestLoadSettingsInvalidChatID(t *testing.T) {
	t.Setenv("CLIPCAST_TELEGRAM_CHAT_ID", "not-a-number")

	if _, err := LoadSettings(); err == nil {
		t.Fatal("LoadSettings accepted a bad chat id")
	}
}
