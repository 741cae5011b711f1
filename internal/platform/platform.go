// Package platform classifies video URLs by hosting platform. Detection is a
// pure pattern check; it never touches the network.
package platform

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

type Platform string

const (
	TikTok    Platform = "tiktok"
	Instagram Platform = "instagram"
	Sora      Platform = "sora"
)

var ErrUnsupportedURL = errors.New("platform: unsupported or malformed video URL")

var patterns = []struct {
	platform Platform
	re       *regexp.Regexp
}{
	{TikTok, regexp.MustCompile(`(?i)(?:^|\.)tiktok\.com/`)},
	{TikTok, regexp.MustCompile(`(?i)(?:vm|vt)\.tiktok\.com/`)},
	{Instagram, regexp.MustCompile(`(?i)(?:^|\.)instagram\.com/(?:p|reel|reels|tv)/`)},
	{Sora, regexp.MustCompile(`(?i)sora\.chatgpt\.com/p/s_`)},
	{Sora, regexp.MustCompile(`(?i)sora\.openai\.com/video/`)},
	{Sora, regexp.MustCompile(`(?i)openai\.com/sora/`)},
}

// Detect returns the platform hosting the given URL. The URL must be absolute
// http(s) and match one of the known shapes.
func Detect(raw string) (Platform, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrUnsupportedURL
	}
	target := u.Host + u.Path
	for _, p := range patterns {
		if p.re.MatchString(target) {
			return p.platform, nil
		}
	}
	return "", ErrUnsupportedURL
}

// Valid reports whether the URL belongs to a supported platform.
func Valid(raw string) bool {
	_, err := Detect(raw)
	return err == nil
}
