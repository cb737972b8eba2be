package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/itchan-dev/imagehost/internal/domain"
)

const (
	publicFile  = "public.yaml"
	privateFile = "private.yaml"

	EnvAddr        = "IMAGEHOST_ADDR"
	EnvStorageRoot = "IMAGEHOST_STORAGE_ROOT"
)

const (
	DriverFS    = "fs"
	DriverMinio = "minio"
	DriverRedis = "redis"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
	Upload    Upload    `yaml:"upload"`
	Sizes     []Size    `yaml:"sizes" validate:"min=1,dive"`
	Storage   Storage   `yaml:"storage"`
	Events    Events    `yaml:"events"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" validate:"required"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxRequestSize  int64         `yaml:"max_request_size" validate:"gt=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	HTTPS           bool          `yaml:"https"` // adds HSTS
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

type Upload struct {
	MaxFileSize       int64    `yaml:"max_file_size" validate:"gt=0"`
	AllowedExtensions []string `yaml:"allowed_extensions" validate:"min=1,dive,startswith=."`
	MaxDecodedBytes   int64    `yaml:"max_decoded_bytes" validate:"gt=0"`
	ResizeWorkers     int      `yaml:"resize_workers" validate:"gte=1"`
	BatchPolicy       string   `yaml:"batch_policy" validate:"oneof=keep rollback"`
}

type Size struct {
	Name  string `yaml:"name" validate:"required"`
	Width int    `yaml:"width" validate:"gt=0"`
}

type Storage struct {
	Driver        string        `yaml:"driver" validate:"oneof=fs minio redis"`
	Root          string        `yaml:"root"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gte=0"`
	TempMaxAge    time.Duration `yaml:"temp_max_age" validate:"gte=0"`
	Minio         Minio         `yaml:"minio"`
	Redis         Redis         `yaml:"redis"`
}

type Minio struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	UseSSL   bool   `yaml:"use_ssl"`
}

type Redis struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type Events struct {
	NatsURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type RateLimit struct {
	UploadPerSecond float64 `yaml:"upload_per_second" validate:"gte=0"`
	Burst           int     `yaml:"burst" validate:"gte=0"`
}

type Private struct {
	Minio MinioCredentials `yaml:"minio"`
}

type MinioCredentials struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Default returns the configuration used for every key the files leave out.
func Default() Config {
	sizes := make([]Size, len(domain.DefaultSizes))
	for i, s := range domain.DefaultSizes {
		sizes[i] = Size{Name: s.Name, Width: s.Width}
	}
	return Config{
		Public: Public{
			HTTP: HTTP{
				Addr:            ":8080",
				MaxRequestSize:  32 << 20,
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    60 * time.Second,
				ShutdownTimeout: 15 * time.Second,
			},
			Log: Log{Level: "info"},
			Upload: Upload{
				MaxFileSize:       2 << 20,
				AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".webp"},
				MaxDecodedBytes:   256 << 20,
				ResizeWorkers:     1,
				BatchPolicy:       "keep",
			},
			Sizes: sizes,
			Storage: Storage{
				Driver:        DriverFS,
				Root:          "uploads",
				SweepInterval: 10 * time.Minute,
				TempMaxAge:    time.Hour,
			},
			Events: Events{SubjectPrefix: "imagehost"},
		},
	}
}

// DomainSizes converts the configured size table.
func (p *Public) DomainSizes() domain.Sizes {
	sizes := make(domain.Sizes, len(p.Sizes))
	for i, s := range p.Sizes {
		sizes[i] = domain.Size{Name: s.Name, Width: s.Width}
	}
	return sizes
}

// Extensions returns the configured extensions lower-cased.
func (u *Upload) Extensions() []string {
	exts := make([]string, len(u.AllowedExtensions))
	for i, ext := range u.AllowedExtensions {
		exts[i] = strings.ToLower(ext)
	}
	return exts
}

func loadPath(configPath string, output interface{}, required bool) error {
	configFile, err := os.ReadFile(configPath)
	if os.IsNotExist(err) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", configPath, err)
	}
	if err := yaml.UnmarshalStrict(configFile, output); err != nil {
		return fmt.Errorf("unmarshal config file %s: %w", configPath, err)
	}
	return nil
}

// Load reads public.yaml (required) and private.yaml (optional) from
// configFolder over the defaults, applies environment overrides and
// validates the result.
func Load(configFolder string) (*Config, error) {
	cfg := Default()
	if err := loadPath(path.Join(configFolder, publicFile), &cfg.Public, true); err != nil {
		return nil, err
	}
	if err := loadPath(path.Join(configFolder, privateFile), &cfg.Private, false); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(configFolder string) *Config {
	cfg, err := Load(configFolder)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) applyEnv() {
	if addr := os.Getenv(EnvAddr); addr != "" {
		c.Public.HTTP.Addr = addr
	}
	if root := os.Getenv(EnvStorageRoot); root != "" {
		c.Public.Storage.Root = root
	}
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c.Public); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Public.DomainSizes().Validate(); err != nil {
		return fmt.Errorf("invalid config: sizes: %w", err)
	}

	storage := c.Public.Storage
	switch storage.Driver {
	case DriverFS:
		if storage.Root == "" {
			return fmt.Errorf("invalid config: storage.root is required for the fs driver")
		}
	case DriverMinio:
		if storage.Minio.Endpoint == "" || storage.Minio.Bucket == "" {
			return fmt.Errorf("invalid config: storage.minio.endpoint and storage.minio.bucket are required for the minio driver")
		}
		if c.Private.Minio.AccessKey == "" || c.Private.Minio.SecretKey == "" {
			return fmt.Errorf("invalid config: minio credentials missing from %s", privateFile)
		}
	}
	if c.Public.Upload.MaxFileSize > c.Public.HTTP.MaxRequestSize {
		return fmt.Errorf("invalid config: upload.max_file_size exceeds http.max_request_size")
	}
	return nil
}
