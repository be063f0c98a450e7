package platform

import (
	"errors"
	"fmt"
	"strings"
)

// Platform is a publishing destination. Exactly one scheduler may run per
// platform at any time.
type Platform string

const (
	YouTube   Platform = "YouTube"
	TikTok    Platform = "TikTok"
	Instagram Platform = "Instagram"
	Twitter   Platform = "Twitter"
)

var ErrUnknown = errors.New("unknown platform")

// All returns every supported platform in a stable order.
func All() []Platform {
	return []Platform{YouTube, TikTok, Instagram, Twitter}
}

func (p Platform) String() string { return string(p) }

// Parse resolves a platform name case-insensitively.
func Parse(name string) (Platform, error) {
	for _, p := range All() {
		if strings.EqualFold(strings.TrimSpace(name), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, name)
}
