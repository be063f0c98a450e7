package registry

import (
	"os"
	"path/filepath"
	"strings"

	"clipcast/internal/config"
)

// ClipStats summarizes an account's clip inventory against its schedule.
type ClipStats struct {
	AvailableClips int     `json:"available_clips"`
	ClipsPerWeek   int     `json:"clips_per_week"`
	WeeksOfContent float64 `json:"weeks_of_content"`
	Status         string  `json:"status"`
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".wmv": true, ".flv": true,
}

// CountClips counts video files directly under <clipDir>/clips.
func CountClips(clipDir string) int {
	if clipDir == "" {
		return 0
	}
	entries, err := os.ReadDir(filepath.Join(clipDir, "clips"))
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			n++
		}
	}
	return n
}

// Stats computes the inventory health for one account. Two weeks of buffered
// content is considered healthy; less than one week is critical.
func Stats(rec config.AccountRecord) ClipStats {
	available := CountClips(rec.ClipDir)
	perWeek := rec.Schedule.SlotsPerWeek()

	weeks := 0.0
	if perWeek > 0 {
		weeks = float64(available) / float64(perWeek)
	}

	status := "critical"
	switch {
	case weeks >= 2:
		status = "healthy"
	case weeks >= 1:
		status = "low"
	}

	return ClipStats{
		AvailableClips: available,
		ClipsPerWeek:   perWeek,
		WeeksOfContent: float64(int(weeks*10)) / 10,
		Status:         status,
	}
}
