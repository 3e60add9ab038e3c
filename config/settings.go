package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Trakt      TraktSettings      `json:"trakt"`
	Letterboxd LetterboxdSettings `json:"letterboxd"`
	Sync       SyncSettings       `json:"sync"`
	Server     ServerSettings     `json:"server"`
	Log        LogConfig          `json:"log"`

	// Legacy fields - kept for migration from old flat configs.
	LegacyTraktClientID     string `json:"traktClientId,omitempty"`
	LegacyTraktClientSecret string `json:"traktClientSecret,omitempty"`
	LegacyLetterboxdUser    string `json:"letterboxdUsername,omitempty"`
	LegacyLetterboxdPass    string `json:"letterboxdPassword,omitempty"`
}

// TraktSettings defines Trakt API credentials and OAuth tokens.
type TraktSettings struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"` // Unix timestamp when access token expires
	Username     string `json:"username,omitempty"`  // populated after OAuth
}

// LetterboxdSettings defines the destination account and browser behavior.
type LetterboxdSettings struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Headless bool   `json:"headless"`
}

// SyncSettings controls the reconciliation run itself.
type SyncSettings struct {
	CSVDirectory              string `json:"csvDirectory"`
	RatingScaleMax            int    `json:"ratingScaleMax"`            // destination rating scale [0, N]
	CollapseSameDayDuplicates bool   `json:"collapseSameDayDuplicates"` // fold same-day rewatches into one event
	FetchRetryAttempts        int    `json:"fetchRetryAttempts"`
	IntervalHours             int    `json:"intervalHours"` // scheduled mode cadence
	SkipImport                bool   `json:"skipImport"`    // compute and export only, no browser upload
}

// ServerSettings defines the status API exposed in scheduled mode.
type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first run.
func DefaultSettings() Settings {
	return Settings{
		Letterboxd: LetterboxdSettings{
			Headless: true,
		},
		Sync: SyncSettings{
			CSVDirectory:              "csv",
			RatingScaleMax:            10,
			CollapseSameDayDuplicates: true,
			FetchRetryAttempts:        3,
			IntervalHours:             24,
		},
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 8585,
		},
		Log: LogConfig{
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
		},
	}
}

// Manager loads and persists settings.json.
type Manager struct {
	path string
}

// NewManager creates a settings manager for the given path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// EnsureDir creates the directory holding the settings file.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Migrate flat legacy keys into their sections.
	if s.Trakt.ClientID == "" && s.LegacyTraktClientID != "" {
		s.Trakt.ClientID = s.LegacyTraktClientID
	}
	if s.Trakt.ClientSecret == "" && s.LegacyTraktClientSecret != "" {
		s.Trakt.ClientSecret = s.LegacyTraktClientSecret
	}
	if s.Letterboxd.Username == "" && s.LegacyLetterboxdUser != "" {
		s.Letterboxd.Username = s.LegacyLetterboxdUser
	}
	if s.Letterboxd.Password == "" && s.LegacyLetterboxdPass != "" {
		s.Letterboxd.Password = s.LegacyLetterboxdPass
	}
	s.LegacyTraktClientID = ""
	s.LegacyTraktClientSecret = ""
	s.LegacyLetterboxdUser = ""
	s.LegacyLetterboxdPass = ""

	// Backfill defaults for fields older configs never had.
	defaults := DefaultSettings()
	if strings.TrimSpace(s.Sync.CSVDirectory) == "" {
		s.Sync.CSVDirectory = defaults.Sync.CSVDirectory
	}
	if s.Sync.RatingScaleMax <= 0 {
		s.Sync.RatingScaleMax = defaults.Sync.RatingScaleMax
	}
	if s.Sync.FetchRetryAttempts <= 0 {
		s.Sync.FetchRetryAttempts = defaults.Sync.FetchRetryAttempts
	}
	if s.Sync.IntervalHours <= 0 {
		s.Sync.IntervalHours = defaults.Sync.IntervalHours
	}
	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if s.Server.Host == "" {
		s.Server.Host = defaults.Server.Host
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
