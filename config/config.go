package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BcryptCost is the work factor used for every stored password
const BcryptCost = 10

const localJWTSecret = "efir-local-development-secret"

// Config holds the project config values
type Config struct {
	Env          string
	Port         string
	BaseURL      string
	URL          string
	DatabaseName string

	JWTSecret string
	TokenTTL  time.Duration

	RedisAddr       string
	RedisPassword   string
	RateLimit       int
	RateLimitWindow time.Duration
	TrustedProxies  int

	UploadDir        string
	MaxEvidenceFiles int
	MaxUploadMB      int64
	CloudinaryURL    string

	SendGridAPIKey  string
	MailFromName    string
	MailFromAddress string

	CORSOrigins       []string
	StrictTransitions bool

	DigestSchedule string
	StaleAfter     time.Duration
}

// New sets up all config related services. A .env file is loaded when present,
// then values are read from the environment on top of the defaults below.
func New() *Config {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	conf := fromViper(v)

	//setup zap logger and replace default logger
	logger, err := setLogger(conf.Env)
	if err != nil {
		logger = zap.NewExample()
	}
	_ = zap.ReplaceGlobals(logger)

	if conf.JWTSecret == "" && !conf.Production() {
		zap.S().Warn("JWT_SECRET is not set, using the local development secret")
		conf.JWTSecret = localJWTSecret
	}

	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "local")
	v.SetDefault("PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("DB_URI", "mongodb://127.0.0.1:27017")
	v.SetDefault("DB_NAME", "efir")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("RATE_LIMIT", 20)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("TRUSTED_PROXIES", 0)
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("MAX_EVIDENCE_FILES", 5)
	v.SetDefault("MAX_UPLOAD_MB", 25)
	v.SetDefault("CLOUDINARY_URL", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "E-FIR Portal System")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@efir-system.gov")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("STRICT_STATUS_TRANSITIONS", false)
	v.SetDefault("DIGEST_SCHEDULE", "0 7 * * *")
	v.SetDefault("STALE_AFTER", "72h")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env:               v.GetString("ENV"),
		Port:              v.GetString("PORT"),
		BaseURL:           v.GetString("BASE_URL"),
		URL:               v.GetString("DB_URI"),
		DatabaseName:      v.GetString("DB_NAME"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		TokenTTL:          v.GetDuration("TOKEN_TTL"),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RateLimit:         v.GetInt("RATE_LIMIT"),
		TrustedProxies:    v.GetInt("TRUSTED_PROXIES"),
		RateLimitWindow:   v.GetDuration("RATE_LIMIT_WINDOW"),
		UploadDir:         v.GetString("UPLOAD_DIR"),
		MaxEvidenceFiles:  v.GetInt("MAX_EVIDENCE_FILES"),
		MaxUploadMB:       v.GetInt64("MAX_UPLOAD_MB"),
		CloudinaryURL:     v.GetString("CLOUDINARY_URL"),
		SendGridAPIKey:    v.GetString("SENDGRID_API_KEY"),
		MailFromName:      v.GetString("MAIL_FROM_NAME"),
		MailFromAddress:   v.GetString("MAIL_FROM_ADDRESS"),
		CORSOrigins:       splitList(v.GetString("CORS_ORIGINS")),
		StrictTransitions: v.GetBool("STRICT_STATUS_TRANSITIONS"),
		DigestSchedule:    v.GetString("DIGEST_SCHEDULE"),
		StaleAfter:        v.GetDuration("STALE_AFTER"),
	}
}

// Production reports whether the service runs with production settings
// (secure cookies, mandatory secrets)
func (c Config) Production() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
