package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database (submission audit)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Backend REST API
	BackendBaseURL string
	BackendTimeout time.Duration

	// Messaging webhook
	NotifierProvider       string // telegram, line
	TelegramBotToken       string
	TelegramChatID         string
	TelegramAPIBase        string
	LineChannelSecret      string
	LineChannelAccessToken string
	LineTargetID           string

	// Admin dashboard
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string
	JWTExpiresIn      time.Duration

	// AWS S3 (export archive)
	AWSRegion    string
	S3BucketName string

	// Server
	Port   string
	AppEnv string

	// Forms
	ReferralCodePattern string
	SessionIdleTimeout  time.Duration

	// Jobs
	AuditFlushSpec string
	DigestSpec     string
	SweepSpec      string

	// Logging
	LogLevel string
	LogFile  string

	// Feature Toggles
	UseRedisAudit bool
	SkipMigrate   bool
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	basePath := getEnv("SSM_BASE_PATH", "/lanos")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-south-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	cfg, err := build(getVal)
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg

	validateConfig(AppConfig, useSSM)
}

// build assembles a Config from a key lookup. Split out of LoadConfig so it
// can run against a plain map.
func build(getVal func(key, def string) string) (*Config, error) {
	jwtExpires, err := parseDuration(getVal("JWT_EXPIRES_IN", "12h"))
	if err != nil {
		return nil, configError("JWT_EXPIRES_IN", err)
	}
	backendTimeout, err := parseDuration(getVal("BACKEND_TIMEOUT", "15s"))
	if err != nil {
		return nil, configError("BACKEND_TIMEOUT", err)
	}
	idle, err := parseDuration(getVal("SESSION_IDLE_TIMEOUT", "2h"))
	if err != nil {
		return nil, configError("SESSION_IDLE_TIMEOUT", err)
	}

	return &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "lanos"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		BackendBaseURL: strings.TrimRight(getVal("BACKEND_BASE_URL", "http://localhost:8080/api"), "/"),
		BackendTimeout: backendTimeout,

		NotifierProvider:       strings.ToLower(getVal("NOTIFIER_PROVIDER", "telegram")),
		TelegramBotToken:       getVal("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:         getVal("TELEGRAM_CHAT_ID", ""),
		TelegramAPIBase:        getVal("TELEGRAM_API_BASE", "https://api.telegram.org"),
		LineChannelSecret:      getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelAccessToken: getVal("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineTargetID:           getVal("LINE_TARGET_ID", ""),

		AdminUsername:     getVal("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getVal("ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getVal("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn:      jwtExpires,

		AWSRegion:    getVal("AWS_REGION", "ap-south-1"),
		S3BucketName: getVal("S3_BUCKET_NAME", ""),

		Port:   getVal("PORT", "3000"),
		AppEnv: getVal("APP_ENV", "development"),

		ReferralCodePattern: getVal("REFERRAL_CODE_PATTERN", ""),
		SessionIdleTimeout:  idle,

		AuditFlushSpec: getVal("AUDIT_FLUSH_SPEC", "@every 30s"),
		DigestSpec:     getVal("DIGEST_SPEC", "0 20 * * *"),
		SweepSpec:      getVal("SWEEP_SPEC", "@every 10m"),

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		UseRedisAudit: strings.ToLower(getVal("USE_REDIS_AUDIT", "true")) == "true",
		SkipMigrate:   strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
	}, nil
}

// parseDuration accepts time.ParseDuration input plus day and week shorthands (7d, 2w).
func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(raw))
	if len(s) > 1 {
		unit := s[len(s)-1]
		if n, convErr := strconv.Atoi(s[:len(s)-1]); convErr == nil {
			switch unit {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

type invalidSetting struct {
	key string
	err error
}

func (e *invalidSetting) Error() string { return "invalid " + e.key + ": " + e.err.Error() }
func (e *invalidSetting) Unwrap() error { return e.err }

func configError(key string, err error) error {
	return &invalidSetting{key: key, err: err}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns a map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			key := name
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				key = name[idx+1:]
			}
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

// missingSecrets lists production secrets that are unset.
func missingSecrets(c *Config) []string {
	required := []struct {
		key, val string
	}{
		{"DB_PASSWORD", c.DBPassword},
		{"JWT_SECRET", c.JWTSecret},
		{"ADMIN_PASSWORD_HASH", c.AdminPasswordHash},
	}
	switch c.NotifierProvider {
	case "line":
		required = append(required,
			struct{ key, val string }{"LINE_CHANNEL_ACCESS_TOKEN", c.LineChannelAccessToken},
			struct{ key, val string }{"LINE_TARGET_ID", c.LineTargetID},
		)
	default:
		required = append(required,
			struct{ key, val string }{"TELEGRAM_BOT_TOKEN", c.TelegramBotToken},
			struct{ key, val string }{"TELEGRAM_CHAT_ID", c.TelegramChatID},
		)
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			missing = append(missing, r.key)
		}
	}
	return missing
}

func validateConfig(c *Config, usedSSM bool) {
	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	if missing := missingSecrets(c); len(missing) > 0 {
		log.Fatalf("Missing required secrets in production (SSM=%v): %s", usedSSM, strings.Join(missing, ", "))
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
