package dbconfig

import (
	"net"
	"net/url"
	"os"
	"strconv"
)

// Config holds Postgres connection settings shared by the state store, the
// NOTIFY transport and the song catalog.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	ApplicationName string

	// URL, when set, is used verbatim and the fields above only describe it
	// in logs.
	URL string
}

// NewConfigFromEnv reads the connection settings. DATABASE_URL wins when
// set; otherwise each ALTARPRO_DB_* variable overrides its DB_* fallback.
func NewConfigFromEnv() Config {
	port, err := strconv.Atoi(lookup("PORT", "5432"))
	if err != nil {
		port = 5432
	}

	cfg := Config{
		Host:            lookup("HOST", "localhost"),
		Port:            port,
		User:            lookup("USER", "postgres"),
		Password:        lookup("PASSWORD", "postgres"),
		Database:        lookup("NAME", "altarpro"),
		SSLMode:         lookup("SSLMODE", "disable"),
		ApplicationName: lookup("APPLICATION_NAME", "altarpro"),
		URL:             os.Getenv("DATABASE_URL"),
	}
	if cfg.URL != "" {
		cfg.describe(cfg.URL)
	}
	return cfg
}

// DSN returns the Postgres connection URL with credentials escaped.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return c.url(url.UserPassword(c.User, c.Password)).String()
}

// Redacted is DSN with the password masked, for logging.
func (c Config) Redacted() string {
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil {
			return u.Redacted()
		}
		return "postgres://<unparseable>"
	}
	return c.url(url.UserPassword(c.User, c.Password)).Redacted()
}

func (c Config) url(user *url.Userinfo) *url.URL {
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}
	return &url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
}

// describe fills the descriptive fields from a DATABASE_URL.
func (c *Config) describe(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	if h := u.Hostname(); h != "" {
		c.Host = h
	}
	if p, err := strconv.Atoi(u.Port()); err == nil {
		c.Port = p
	}
	if name := u.User.Username(); name != "" {
		c.User = name
	}
	if len(u.Path) > 1 {
		c.Database = u.Path[1:]
	}
}

func lookup(suffix, fallback string) string {
	if v := os.Getenv("ALTARPRO_DB_" + suffix); v != "" {
		return v
	}
	return getEnv("DB_"+suffix, fallback)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
