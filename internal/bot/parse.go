package bot

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"adzbot/internal/store"
)

// ParseTimeOfDay validates a 24h clock time and returns it zero-padded
// ("9:5" -> "09:05"), the form schedules are stored and matched in.
func ParseTimeOfDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return "", errors.New("expected HH:MM")
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || hour < 0 || hour > 23 {
		return "", errors.New("hour must be 0-23")
	}
	minute, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil || minute < 0 || minute > 59 {
		return "", errors.New("minute must be 0-59")
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// parseButtonRow turns one dialog message into a keyboard row. Each non-empty
// line is one button in "Label | URL" form.
func parseButtonRow(text string, maxPerRow int) ([]store.Button, error) {
	var row []store.Button
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, rawURL, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("%q: missing | separator", line)
		}
		label = strings.TrimSpace(label)
		rawURL = strings.TrimSpace(rawURL)
		if label == "" {
			return nil, fmt.Errorf("%q: empty label", line)
		}
		if err := validateButtonURL(rawURL); err != nil {
			return nil, fmt.Errorf("%q: %w", line, err)
		}
		row = append(row, store.Button{Label: label, URL: rawURL})
	}
	if len(row) == 0 {
		return nil, errors.New("no buttons in message")
	}
	if len(row) > maxPerRow {
		return nil, fmt.Errorf("too many buttons in one row (%d, max %d)", len(row), maxPerRow)
	}
	return row, nil
}

func validateButtonURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid URL")
	}
	switch u.Scheme {
	case "tg":
		return nil
	case "http", "https":
		if u.Host == "" {
			return errors.New("URL has no host")
		}
		return nil
	default:
		return errors.New("URL must be http(s):// or tg://")
	}
}

// parseChannelArg accepts "@handle" or a raw numeric chat id.
func parseChannelArg(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty channel")
	}
	if strings.HasPrefix(s, "@") {
		if len(s) < 2 {
			return "", errors.New("empty handle after @")
		}
		return s, nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, nil
	}
	return "", errors.New("expected @handle or a numeric chat id")
}
