package utils

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config Service configuration, loaded from YAML and overridden by NEUROLABEL_* variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Detector  DetectorConfig  `yaml:"detector"`
	Cors      CorsConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 keeps slow inference requests open
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
}

// DatabaseConfig Driver is either "sqlite" or "mysql".
type DatabaseConfig struct {
	Driver string       `yaml:"driver"`
	Sqlite SqliteConfig `yaml:"sqlite"`
	Mysql  MysqlConfig  `yaml:"mysql"`
}

type SqliteConfig struct {
	Filename string `yaml:"filename"`
}

type MysqlConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

type DetectorConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Timeout    time.Duration `yaml:"timeout"`
	LabelsFile string        `yaml:"labels_file"`
}

type CorsConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ThumbnailConfig struct {
	DefaultSize     int           `yaml:"default_size"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig Configuration used for every key the YAML file leaves out
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxUploadSize:   32 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Sqlite: SqliteConfig{Filename: "neurolabel.db"},
			Mysql:  MysqlConfig{Host: "127.0.0.1", Port: 3306, Database: "neurolabel"},
		},
		Storage:  StorageConfig{UploadDir: "uploaded_images"},
		Detector: DetectorConfig{Endpoint: "http://localhost:5000"},
		Cors: CorsConfig{
			AllowOrigins: []string{"http://localhost:5173", "http://localhost:5174"},
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Thumbnail: ThumbnailConfig{
			DefaultSize:     256,
			TTL:             10 * time.Minute,
			CleanupInterval: time.Minute,
		},
	}
}

// NewConfig Create a new config from the YAML file at configPath
func NewConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("cannot decode %s: %w", configPath, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn(fmt.Sprintf("Cannot load .env file: %s", err.Error()))
	}
	config.applyEnv()

	return config, nil
}

// applyEnv Override selected keys from the environment
func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"NEUROLABEL_PORT":              &c.Server.Port,
		"NEUROLABEL_DATABASE_DRIVER":   &c.Database.Driver,
		"NEUROLABEL_SQLITE_FILENAME":   &c.Database.Sqlite.Filename,
		"NEUROLABEL_MYSQL_HOST":        &c.Database.Mysql.Host,
		"NEUROLABEL_MYSQL_USER":        &c.Database.Mysql.User,
		"NEUROLABEL_MYSQL_PASSWORD":    &c.Database.Mysql.Password,
		"NEUROLABEL_MYSQL_DATABASE":    &c.Database.Mysql.Database,
		"NEUROLABEL_UPLOAD_DIR":        &c.Storage.UploadDir,
		"NEUROLABEL_DETECTOR_ENDPOINT": &c.Detector.Endpoint,
		"NEUROLABEL_LOG_LEVEL":         &c.Log.Level,
	}
	for key, target := range overrides {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			*target = value
		}
	}
	if origins := os.Getenv("NEUROLABEL_CORS_ORIGINS"); origins != "" {
		c.Cors.AllowOrigins = strings.Split(origins, ",")
	}
}

// ValidateConfigPath Make sure that the path exists and is a regular file
func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a normal file", path)
	}
	return nil
}

// ParseFlags Parse the command line flags and return the config path and debug mode
func ParseFlags() (string, bool, error) {
	var configPath string
	var debugMode bool

	flag.StringVar(&configPath, "config", "./config.yml", "path to config file")
	flag.BoolVar(&debugMode, "debug", false, "enable gin debug mode")
	flag.Parse()

	if err := ValidateConfigPath(configPath); err != nil {
		return "", false, err
	}

	return configPath, debugMode, nil
}
