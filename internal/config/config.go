package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database   DatabaseConfig
	Roster     RosterConfig
	Detector   DetectorConfig
	Match      MatchConfig
	Attendance AttendanceConfig
	Notify     NotifyConfig
	Media      MediaConfig
	Log        LogConfig
	Web        WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RosterConfig struct {
	DSN      string        // MariaDB DSN of the academics database (e.g., campus:campus@tcp(mariadb:3306)/campus)
	File     string        // YAML roster used when DSN is empty
	CacheTTL time.Duration // How long rosters are cached (default 5m, 0 disables)
}

type DetectorConfig struct {
	URL         string // Face detection service
	WholeImage  bool   // Without URL, treat each image as one face (testing only)
	MinFaceSize int    // Minimum face width/height in pixels (default 60)
}

type MatchConfig struct {
	Threshold  float64       // Minimum cosine similarity (default 0.92)
	Timeout    time.Duration // Bound on matching one image (default 20s)
	Assignment string        // greedy or independent
	Workers    int           // Parallel scorers, 0 uses GOMAXPROCS
}

type AttendanceConfig struct {
	Timezone string // IANA zone used to pick "today", Local by default
	Start    string // HH:MM
	End      string // HH:MM
}

// Location resolves Timezone, falling back to the local zone.
func (c *AttendanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

type NotifyConfig struct {
	Transport      string // log, shoutrrr, sendgrid or none
	URL            string // shoutrrr URL with a {recipient} placeholder
	SendGridAPIKey string
	From           string
	FromName       string
	Subject        string
	Signature      string
	ASCII          bool // Strip diacritics from names
	MaxAttempts    int
	Interval       time.Duration // Periodic outbox drain, 0 drains only after submissions
}

type MediaConfig struct {
	Root string // Directory for uploaded enrollment images, empty disables storage
}

type LogConfig struct {
	Level  string // debug, info, warn or error
	Format string // text or json
	File   string // Optional rotated log file
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
}

type defaults struct {
	Attendance struct {
		Start    string `yaml:"start"`
		End      string `yaml:"end"`
		Timezone string `yaml:"timezone"`
	} `yaml:"attendance"`
	Notify struct {
		Subject   string `yaml:"subject"`
		Signature string `yaml:"signature"`
	} `yaml:"notify"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration ("20s", "5m").
// Returns the default value if the env var is unset, empty, invalid, or negative.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Roster: RosterConfig{
			DSN:      os.Getenv("ROSTER_DSN"),
			File:     os.Getenv("ROSTER_FILE"),
			CacheTTL: envDuration("ROSTER_CACHE_TTL", 5*time.Minute),
		},
		Detector: DetectorConfig{
			URL:         os.Getenv("DETECTOR_URL"),
			WholeImage:  envBool("DETECTOR_WHOLE_IMAGE"),
			MinFaceSize: envInt("DETECTOR_MIN_FACE", 60),
		},
		Match: MatchConfig{
			Threshold:  envFloat("MATCH_THRESHOLD", 0.92),
			Timeout:    envDuration("MATCH_TIMEOUT", 20*time.Second),
			Assignment: envString("MATCH_ASSIGNMENT", "greedy"),
			Workers:    envInt("MATCH_WORKERS", 0),
		},
		Attendance: AttendanceConfig{
			Timezone: envString("ATTENDANCE_TIMEZONE", d.Attendance.Timezone),
			Start:    envString("ATTENDANCE_START", d.Attendance.Start),
			End:      envString("ATTENDANCE_END", d.Attendance.End),
		},
		Notify: NotifyConfig{
			Transport:      envString("NOTIFY_TRANSPORT", "log"),
			URL:            os.Getenv("NOTIFY_URL"),
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			From:           os.Getenv("NOTIFY_FROM"),
			FromName:       os.Getenv("NOTIFY_FROM_NAME"),
			Subject:        envString("NOTIFY_SUBJECT", d.Notify.Subject),
			Signature:      envString("NOTIFY_SIGNATURE", d.Notify.Signature),
			ASCII:          envBool("NOTIFY_ASCII"),
			MaxAttempts:    envInt("NOTIFY_MAX_ATTEMPTS", 3),
			Interval:       envDuration("NOTIFY_INTERVAL", time.Minute),
		},
		Media: MediaConfig{
			Root: os.Getenv("MEDIA_ROOT"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
