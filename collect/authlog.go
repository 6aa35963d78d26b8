package collect

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"strings"

	"hostsentry/core"
)

var authFailurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)authentication failure`),
	regexp.MustCompile(`(?i)failed password`),
	regexp.MustCompile(`(?i)invalid user`),
	regexp.MustCompile(`(?i)failed login`),
}

func matchesAuthFailure(line string) bool {
	for _, re := range authFailurePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

var authUserRe = regexp.MustCompile(`(?i)(?:invalid user|for(?: invalid user)?)\s+(\S+)`)
var authIPRe = regexp.MustCompile(`from\s+(\d{1,3}(?:\.\d{1,3}){3})`)

// AuthLogCollector tails the system authentication log and emits a
// login_failed event for every new line matching a failure pattern.
// It tracks the read offset between cycles and handles log rotation by
// restarting from the top when the file shrinks.
type AuthLogCollector struct {
	path   string
	offset int64
}

func NewAuthLogCollector(path string) *AuthLogCollector {
	c := &AuthLogCollector{path: path}
	// Start at the current end of the log so historic failures from
	// before the process started do not flood the bus.
	if info, err := os.Stat(path); err == nil {
		c.offset = info.Size()
	}
	return c
}

func (c *AuthLogCollector) Name() string { return string(core.SourceAuthLogCollector) }

func (c *AuthLogCollector) Collect(ctx context.Context) ([]*core.Event, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < c.offset {
		c.offset = 0 // rotated
	}
	if _, err := f.Seek(c.offset, 0); err != nil {
		return nil, err
	}

	var events []*core.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !matchesAuthFailure(line) {
			continue
		}
		payload := map[string]interface{}{
			"failed": true,
			"line":   strings.TrimSpace(line),
		}
		if m := authUserRe.FindStringSubmatch(line); m != nil {
			payload["username"] = m[1]
		}
		if m := authIPRe.FindStringSubmatch(line); m != nil {
			payload["remote_ip"] = m[1]
		}
		events = append(events, core.NewEvent(core.SourceAuthLogCollector, core.EventLoginFailed, payload))
	}
	if err := scanner.Err(); err != nil {
		return events, err
	}

	pos, err := f.Seek(0, 1)
	if err == nil {
		c.offset = pos
	}
	return events, nil
}
