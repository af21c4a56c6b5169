package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// fileJar is a cookie jar for a single API origin that mirrors its
// cookies to a file, so the session survives between invocations.
type fileJar struct {
	mu     sync.Mutex
	jar    *cookiejar.Jar
	origin *url.URL
	path   string
	logger *slog.Logger
}

func openFileJar(path string, origin *url.URL, logger *slog.Logger) (*fileJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &fileJar{jar: jar, origin: origin, path: path, logger: logger}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode cookie file %s: %w", path, err)
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(origin, cookies)
	return j, nil
}

func (j *fileJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *fileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
	if err := j.save(); err != nil {
		j.logger.Warn("failed to persist cookies", "path", j.path, "error", err)
	}
}

func (j *fileJar) save() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	current := j.jar.Cookies(j.origin)
	stored := make([]storedCookie, 0, len(current))
	for _, c := range current {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(j.path, data, 0o600)
}

func defaultCookieFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "challengectl", "cookies.json")
}
