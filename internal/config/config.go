package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 RECOVEREASE_API_BASE_URL
const EnvPrefix = "RECOVEREASE"

type Config struct {
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Realtime   RealtimeConfig   `yaml:"realtime" mapstructure:"realtime"`
	Identity   IdentityConfig   `yaml:"identity" mapstructure:"identity"`
	Chat       ChatConfig       `yaml:"chat" mapstructure:"chat"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	DevServer  DevServerConfig  `yaml:"devserver" mapstructure:"devserver"`
}

type APIConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Token      string        `yaml:"token" mapstructure:"token"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

type RealtimeConfig struct {
	URL          string        `yaml:"url" mapstructure:"url"`
	MinBackoff   time.Duration `yaml:"min_backoff" mapstructure:"min_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	PingInterval time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	CloseTimeout time.Duration `yaml:"close_timeout" mapstructure:"close_timeout"`
	SendBuffer   int           `yaml:"send_buffer" mapstructure:"send_buffer"`
}

// IdentityConfig 当前登录用户（由 login 命令写入或手动配置）
type IdentityConfig struct {
	UserID string `yaml:"user_id" mapstructure:"user_id"`
	Name   string `yaml:"name" mapstructure:"name"`
	Role   string `yaml:"role" mapstructure:"role"` // PATIENT, DOCTOR
}

type ChatConfig struct {
	TypingExpiry   time.Duration `yaml:"typing_expiry" mapstructure:"typing_expiry"`
	TypingThrottle time.Duration `yaml:"typing_throttle" mapstructure:"typing_throttle"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // json, text
	Output     string `yaml:"output" mapstructure:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // MB
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // days
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

type MonitoringConfig struct {
	MetricsAddr string        `yaml:"metrics_addr" mapstructure:"metrics_addr"` // 客户端指标监听地址，空则不启用
	MetricsPath string        `yaml:"metrics_path" mapstructure:"metrics_path"`
	Tracing     TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`         // OTLP gRPC 端点，例如 http://otel-collector:4317
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`         // 是否使用明文（本地/开发）
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
}

// DevServerConfig 本地开发后端配置
type DevServerConfig struct {
	Host        string         `yaml:"host" mapstructure:"host"`
	Port        int            `yaml:"port" mapstructure:"port"`
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
	AI          AIConfig       `yaml:"ai" mapstructure:"ai"`
	UploadPath  string         `yaml:"upload_path" mapstructure:"upload_path"`
	MaxUpload   int64          `yaml:"max_upload" mapstructure:"max_upload"` // bytes
	Users       []DevUser      `yaml:"users" mapstructure:"users"`
	Links       []DevLink      `yaml:"links" mapstructure:"links"`
	CORSOrigins []string       `yaml:"cors_origins" mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Name            string        `yaml:"name" mapstructure:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

type AIConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Temperature float32       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type DevUser struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Name     string `yaml:"name" mapstructure:"name"`
	Email    string `yaml:"email" mapstructure:"email"`
	Password string `yaml:"password" mapstructure:"password"`
	Role     string `yaml:"role" mapstructure:"role"`
	Token    string `yaml:"token" mapstructure:"token"`
}

type DevLink struct {
	DoctorID  string `yaml:"doctor_id" mapstructure:"doctor_id"`
	PatientID string `yaml:"patient_id" mapstructure:"patient_id"`
	Specialty string `yaml:"specialty" mapstructure:"specialty"`
	IsActive  bool   `yaml:"is_active" mapstructure:"is_active"`
}

// InitViper 配置 viper 的查找路径、环境变量与默认值
func InitViper(v *viper.Viper, cfgFile string) error {
	_ = godotenv.Load(".env")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return err
	}
	return nil
}

// SetDefaults 将默认配置注册到 viper，保证环境变量覆盖与 Unmarshal 都能找到键
func SetDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.max_retries", d.API.MaxRetries)
	v.SetDefault("api.retry_delay", d.API.RetryDelay)

	v.SetDefault("realtime.url", d.Realtime.URL)
	v.SetDefault("realtime.min_backoff", d.Realtime.MinBackoff)
	v.SetDefault("realtime.max_backoff", d.Realtime.MaxBackoff)
	v.SetDefault("realtime.ping_interval", d.Realtime.PingInterval)
	v.SetDefault("realtime.write_timeout", d.Realtime.WriteTimeout)
	v.SetDefault("realtime.close_timeout", d.Realtime.CloseTimeout)
	v.SetDefault("realtime.send_buffer", d.Realtime.SendBuffer)

	v.SetDefault("identity.user_id", d.Identity.UserID)
	v.SetDefault("identity.name", d.Identity.Name)
	v.SetDefault("identity.role", d.Identity.Role)

	v.SetDefault("chat.typing_expiry", d.Chat.TypingExpiry)
	v.SetDefault("chat.typing_throttle", d.Chat.TypingThrottle)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("monitoring.metrics_addr", d.Monitoring.MetricsAddr)
	v.SetDefault("monitoring.metrics_path", d.Monitoring.MetricsPath)
	v.SetDefault("monitoring.tracing.enabled", d.Monitoring.Tracing.Enabled)
	v.SetDefault("monitoring.tracing.endpoint", d.Monitoring.Tracing.Endpoint)
	v.SetDefault("monitoring.tracing.insecure", d.Monitoring.Tracing.Insecure)
	v.SetDefault("monitoring.tracing.sample_ratio", d.Monitoring.Tracing.SampleRatio)
	v.SetDefault("monitoring.tracing.service_name", d.Monitoring.Tracing.ServiceName)

	v.SetDefault("devserver.host", d.DevServer.Host)
	v.SetDefault("devserver.port", d.DevServer.Port)
	v.SetDefault("devserver.upload_path", d.DevServer.UploadPath)
	v.SetDefault("devserver.max_upload", d.DevServer.MaxUpload)
	v.SetDefault("devserver.cors_origins", d.DevServer.CORSOrigins)
	v.SetDefault("devserver.database.enabled", d.DevServer.Database.Enabled)
	v.SetDefault("devserver.database.host", d.DevServer.Database.Host)
	v.SetDefault("devserver.database.port", d.DevServer.Database.Port)
	v.SetDefault("devserver.database.user", d.DevServer.Database.User)
	v.SetDefault("devserver.database.password", d.DevServer.Database.Password)
	v.SetDefault("devserver.database.name", d.DevServer.Database.Name)
	v.SetDefault("devserver.database.max_open_conns", d.DevServer.Database.MaxOpenConns)
	v.SetDefault("devserver.database.max_idle_conns", d.DevServer.Database.MaxIdleConns)
	v.SetDefault("devserver.database.conn_max_lifetime", d.DevServer.Database.ConnMaxLifetime)
	v.SetDefault("devserver.ai.api_key", d.DevServer.AI.APIKey)
	v.SetDefault("devserver.ai.base_url", d.DevServer.AI.BaseURL)
	v.SetDefault("devserver.ai.model", d.DevServer.AI.Model)
	v.SetDefault("devserver.ai.temperature", d.DevServer.AI.Temperature)
	v.SetDefault("devserver.ai.timeout", d.DevServer.AI.Timeout)
}

// Load 从全局 viper 读取配置
func Load() *Config {
	cfg, err := LoadFrom(viper.GetViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadFrom 从指定 viper 实例读取配置，未设置的列表字段回退到默认值
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if len(config.DevServer.Users) == 0 {
		d := GetDefaultConfig()
		config.DevServer.Users = d.DevServer.Users
		config.DevServer.Links = d.DevServer.Links
	}
	return &config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8080/api",
			Timeout:    15 * time.Second,
			MaxRetries: 2,
			RetryDelay: 500 * time.Millisecond,
		},
		Realtime: RealtimeConfig{
			URL:          "ws://localhost:8080/ws",
			MinBackoff:   500 * time.Millisecond,
			MaxBackoff:   15 * time.Second,
			PingInterval: 25 * time.Second,
			WriteTimeout: 10 * time.Second,
			CloseTimeout: 2 * time.Second,
			SendBuffer:   64,
		},
		Identity: IdentityConfig{
			Role: "PATIENT",
		},
		Chat: ChatConfig{
			TypingExpiry:   2500 * time.Millisecond,
			TypingThrottle: time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePath:   "./logs/recoverease.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "recoverease",
			},
		},
		DevServer: DevServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Database: DatabaseConfig{
				Enabled:         false,
				Host:            "localhost",
				Port:            5432,
				User:            "postgres",
				Password:        "password",
				Name:            "recoverease",
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
			AI: AIConfig{
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4o-mini",
				Temperature: 0.2,
				Timeout:     30 * time.Second,
			},
			UploadPath:  "./uploads",
			MaxUpload:   10 << 20,
			CORSOrigins: []string{"*"},
			Users: []DevUser{
				{ID: "patient-1", Name: "Priya Patel", Email: "patient@recoverease.dev", Password: "patient", Role: "PATIENT", Token: "dev-patient-token"},
				{ID: "doctor-1", Name: "Arjun Rao", Email: "doctor@recoverease.dev", Password: "doctor", Role: "DOCTOR", Token: "dev-doctor-token"},
				{ID: "doctor-2", Name: "Meera Shah", Email: "shah@recoverease.dev", Password: "doctor", Role: "DOCTOR", Token: "dev-doctor2-token"},
			},
			Links: []DevLink{
				{DoctorID: "doctor-1", PatientID: "patient-1", Specialty: "Orthopedics", IsActive: true},
				{DoctorID: "doctor-2", PatientID: "patient-1", Specialty: "Physiotherapy", IsActive: false},
			},
		},
	}
}
