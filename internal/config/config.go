// Package config assembles the server configuration from defaults, an
// optional JSON or YAML file and the environment. Command-line flags are
// applied on top by the caller before Validate.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// DefaultAdminPassword is used when nothing else is configured. Startup
// logs a warning when it is in effect.
const DefaultAdminPassword = "admin123"

type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string `json:"addr" yaml:"addr"`
	// Root is the photo directory.
	Root string `json:"root" yaml:"root"`
	// DataDir holds the JSON record files and the thumbnail cache.
	DataDir string `json:"dataDir" yaml:"data_dir"`

	// AdminPassword is a bcrypt hash (see "photoframe passwd") or plaintext.
	AdminPassword string `json:"adminPassword" yaml:"admin_password"`
	// SessionSecret signs session cookies and keys the token redisplay
	// cipher. Changing it logs everybody out and makes stored upload links
	// unrecoverable for redisplay (they still validate).
	SessionSecret string `json:"sessionSecret" yaml:"session_secret"`

	DefaultFolders []string `json:"defaultFolders" yaml:"default_folders"`
	MaxFileSize    int64    `json:"maxFileSize" yaml:"max_file_size"`
	BcryptCost     int      `json:"bcryptCost" yaml:"bcrypt_cost"`

	RateLimit     RateLimit `json:"rateLimit" yaml:"rate_limit"`
	SessionMaxAge Duration  `json:"sessionMaxAge" yaml:"session_max_age"`

	// TrustProxy makes the client address come from X-Forwarded-For.
	TrustProxy bool `json:"trustProxy" yaml:"trust_proxy"`
	// SecureCookies sets the Secure flag on cookies; enable behind TLS.
	SecureCookies bool `json:"secureCookies" yaml:"secure_cookies"`

	Log Log `json:"log" yaml:"log"`

	// AdminPasswordDefaulted is set when DefaultAdminPassword was applied.
	AdminPasswordDefaulted bool `json:"-" yaml:"-"`
}

type RateLimit struct {
	MaxAttempts int      `json:"maxAttempts" yaml:"max_attempts"`
	Lockout     Duration `json:"lockout" yaml:"lockout"`
	Window      Duration `json:"window" yaml:"window"`
}

type Log struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
	File  string `json:"file" yaml:"file"`
}

// Duration accepts Go duration strings ("15m") in JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"15m\": %w", err)
	}
	return d.set(s)
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func Default() Config {
	return Config{
		Addr:           ":3000",
		Root:           "./photos",
		DataDir:        "./data",
		DefaultFolders: []string{"family", "vacation", "holidays", "misc"},
		MaxFileSize:    50 << 20,
		BcryptCost:     bcrypt.DefaultCost,
		RateLimit: RateLimit{
			MaxAttempts: 5,
			Lockout:     Duration(15 * time.Minute),
			Window:      Duration(5 * time.Minute),
		},
		SessionMaxAge: Duration(24 * time.Hour),
		Log:           Log{Level: "info"},
	}
}

// Load returns defaults overlaid with the file at path (if non-empty) and
// then the environment. It does not validate.
func Load(path string, getenv func(string) string) (Config, error) {
	c := Default()
	if path != "" {
		if err := LoadFile(path, &c); err != nil {
			return Config{}, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := ApplyEnv(&c, getenv); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile decodes a .json, .yaml or .yml file over c.
func LoadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, c)
	case ".json":
		err = json.Unmarshal(b, c)
	default:
		return fmt.Errorf("config %s: unknown extension (want .json, .yaml or .yml)", path)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables on c.
func ApplyEnv(c *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(int64)) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		set(n)
	}
	dur := func(key string, dst *Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		if err := dst.set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	flag := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	if p := strings.TrimSpace(getenv("PORT")); p != "" {
		c.Addr = ":" + p
	}
	str("ADDR", &c.Addr)
	str("UPLOAD_DIR", &c.Root)
	str("PHOTO_ROOT", &c.Root)
	str("DATA_DIR", &c.DataDir)
	str("ADMIN_PASSWORD", &c.AdminPassword)
	str("SESSION_SECRET", &c.SessionSecret)
	if v := strings.TrimSpace(getenv("DEFAULT_FOLDERS")); v != "" {
		c.DefaultFolders = splitList(v)
	}
	num("MAX_FILE_SIZE", func(n int64) { c.MaxFileSize = n })
	num("BCRYPT_COST", func(n int64) { c.BcryptCost = int(n) })
	num("RATE_LIMIT_MAX_ATTEMPTS", func(n int64) { c.RateLimit.MaxAttempts = int(n) })
	dur("RATE_LIMIT_LOCKOUT", &c.RateLimit.Lockout)
	dur("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
	dur("SESSION_MAX_AGE", &c.SessionMaxAge)
	flag("TRUST_PROXY", &c.TrustProxy)
	flag("SECURE_COOKIES", &c.SecureCookies)
	str("LOG_LEVEL", &c.Log.Level)
	flag("LOG_JSON", &c.Log.JSON)
	str("LOG_FILE", &c.Log.File)
	return errors.Join(errs...)
}

// Validate fills the admin password default and rejects unusable values.
func (c *Config) Validate() error {
	c.Root = strings.TrimSpace(c.Root)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if c.AdminPassword == "" {
		c.AdminPassword = DefaultAdminPassword
		c.AdminPasswordDefaulted = true
	}
	if c.Root == "" {
		return errors.New("photo root is required")
	}
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}
	if c.MaxFileSize <= 0 {
		return errors.New("max file size must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range [%d,%d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Lockout <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit values must be positive")
	}
	if c.SessionMaxAge <= 0 {
		return errors.New("session max age must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
