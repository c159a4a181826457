package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Zitadel    ZitadelConfig
	Gateway    GatewayConfig
	Gemini     GeminiConfig
	OpenAI     OpenAIConfig
	Storyboard StoryboardConfig
	Veo        VeoConfig
	Storage    StorageConfig
	R2         R2Config
	MinIO      MinIOConfig
	Worker     WorkerConfig
	Merge      MergeConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	ApiDomain string
}

type LogConfig struct {
	Level    string
	Encoding string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	StoryboardPerMin  int
	RenderPerHour     int
	RegeneratePerHour int
	CredentialPerHour int
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

// GeminiConfig describes the Generative Language endpoint shared by the
// storyboard model and the Veo render models. APIKey is the server default
// credential used when a user selects a credential without supplying one.
type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	StoryboardModel string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// StoryboardConfig selects the storyboard backend: gemini, openai or mock.
type StoryboardConfig struct {
	Provider string
}

type VeoConfig struct {
	FastModel       string
	ProModel        string
	PollInterval    time.Duration
	MaxWait         time.Duration
	SubmitPerMinute int
	Mock            bool
}

// StorageConfig selects where rendered clips are materialised: memory, r2 or minio.
type StorageConfig struct {
	Backend       string
	PublicBaseURL string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

type WorkerConfig struct {
	Concurrency int
	TaskTimeout time.Duration
}

type MergeConfig struct {
	Delay time.Duration
}

func Load() (*Config, error) {
	// A missing .env is fine, the process environment wins either way.
	_ = godotenv.Load()

	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GEMINI_API_KEY")
	readSecret("OPENAI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("MINIO_ACCESS_KEY")
	readSecret("MINIO_SECRET_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.encoding", "LOG_ENCODING")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("ratelimit.storyboard_per_min", "RATELIMIT_STORYBOARD_PER_MIN")
	_ = v.BindEnv("ratelimit.render_per_hour", "RATELIMIT_RENDER_PER_HOUR")
	_ = v.BindEnv("ratelimit.regenerate_per_hour", "RATELIMIT_REGENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.credential_per_hour", "RATELIMIT_CREDENTIAL_PER_HOUR")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = v.BindEnv("gemini.storyboard_model", "GEMINI_STORYBOARD_MODEL")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("openai.model", "OPENAI_MODEL")
	_ = v.BindEnv("storyboard.provider", "STORYBOARD_PROVIDER")
	_ = v.BindEnv("veo.fast_model", "VEO_FAST_MODEL")
	_ = v.BindEnv("veo.pro_model", "VEO_PRO_MODEL")
	_ = v.BindEnv("veo.poll_interval", "VEO_POLL_INTERVAL")
	_ = v.BindEnv("veo.max_wait", "VEO_MAX_WAIT")
	_ = v.BindEnv("veo.submit_per_minute", "VEO_SUBMIT_PER_MINUTE")
	_ = v.BindEnv("veo.mock", "VEO_MOCK")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("storage.public_base_url", "STORAGE_PUBLIC_BASE_URL")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	_ = v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	_ = v.BindEnv("minio.bucket", "MINIO_BUCKET")
	_ = v.BindEnv("minio.use_ssl", "MINIO_USE_SSL")
	_ = v.BindEnv("minio.url_expiry", "MINIO_URL_EXPIRY")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.task_timeout", "WORKER_TASK_TIMEOUT")
	_ = v.BindEnv("merge.delay", "MERGE_DELAY")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.storyboard_per_min", 10)
	v.SetDefault("ratelimit.render_per_hour", 20)
	v.SetDefault("ratelimit.regenerate_per_hour", 60)
	v.SetDefault("ratelimit.credential_per_hour", 30)
	v.SetDefault("gateway.enabled", false)

	// Generative Language defaults
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.storyboard_model", "gemini-3-pro-preview")
	v.SetDefault("openai.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("openai.model", "llama-3.3-70b-versatile")
	v.SetDefault("storyboard.provider", "gemini")

	// Veo defaults
	v.SetDefault("veo.fast_model", "veo-3.1-fast-generate-preview")
	v.SetDefault("veo.pro_model", "veo-3.1-generate-preview")
	v.SetDefault("veo.poll_interval", 5*time.Second)
	v.SetDefault("veo.max_wait", 10*time.Minute)
	v.SetDefault("veo.submit_per_minute", 10)
	v.SetDefault("veo.mock", false)

	// Clip storage defaults
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.public_base_url", "http://localhost:8000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.url_expiry", 24*time.Hour)

	v.SetDefault("worker.concurrency", 4)
	// Floor only: a batch task is stretched to cover veo.max_wait per pending scene.
	v.SetDefault("worker.task_timeout", 2*time.Hour)
	v.SetDefault("merge.delay", 2*time.Second)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Encoding: v.GetString("log.encoding"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			StoryboardPerMin:  v.GetInt("ratelimit.storyboard_per_min"),
			RenderPerHour:     v.GetInt("ratelimit.render_per_hour"),
			RegeneratePerHour: v.GetInt("ratelimit.regenerate_per_hour"),
			CredentialPerHour: v.GetInt("ratelimit.credential_per_hour"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		Gemini: GeminiConfig{
			APIKey:          v.GetString("gemini.api_key"),
			BaseURL:         v.GetString("gemini.base_url"),
			StoryboardModel: v.GetString("gemini.storyboard_model"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai.api_key"),
			BaseURL: v.GetString("openai.base_url"),
			Model:   v.GetString("openai.model"),
		},
		Storyboard: StoryboardConfig{
			Provider: strings.ToLower(v.GetString("storyboard.provider")),
		},
		Veo: VeoConfig{
			FastModel:       v.GetString("veo.fast_model"),
			ProModel:        v.GetString("veo.pro_model"),
			PollInterval:    v.GetDuration("veo.poll_interval"),
			MaxWait:         v.GetDuration("veo.max_wait"),
			SubmitPerMinute: v.GetInt("veo.submit_per_minute"),
			Mock:            v.GetBool("veo.mock"),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(v.GetString("storage.backend")),
			PublicBaseURL: strings.TrimRight(v.GetString("storage.public_base_url"), "/"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			Bucket:    v.GetString("minio.bucket"),
			UseSSL:    v.GetBool("minio.use_ssl"),
			URLExpiry: v.GetDuration("minio.url_expiry"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			TaskTimeout: v.GetDuration("worker.task_timeout"),
		},
		Merge: MergeConfig{
			Delay: v.GetDuration("merge.delay"),
		},
	}

	return cfg, nil
}
