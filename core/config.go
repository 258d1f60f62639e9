package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server      ServerConfig
		Database    DatabaseConfig
		Supervision SupervisionConfig
		Search      SearchConfig
		Google      GoogleConfig
		Scholar     ScholarConfig
		Queue       QueueConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// SupervisionConfig holds the business limits of the supervision workflow.
	SupervisionConfig struct {
		MaxPendingRequests int
		RequestExpiry      time.Duration
		OfferExpiry        time.Duration
		UnbindCooldown     time.Duration
		MaxUnbindAttempts  int
		MaxCoSupervisors   int
	}

	SearchConfig struct {
		OpenAIKey      string
		OpenAIBaseURL  string
		EmbeddingModel string
		QdrantURL      string
		QdrantAPIKey   string
		VectorSize     int
		ChunkSize      int
		ChunkDelay     time.Duration
		ScoreThreshold float64
	}

	GoogleConfig struct {
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}

	ScholarConfig struct {
		ChunkSize    int
		RequestDelay time.Duration
	}

	QueueConfig struct {
		Workers      int
		DefaultDelay time.Duration
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// NewConfig reads the configuration of the current environment (ENV: DEV, TEST, QA, PROD).
// Values are looked up in env vars prefixed with the environment name, e.g. DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetDefault("testMode", env == "TEST")

	// app
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Nexscholar")
	v.SetDefault("secretKey", "n3x$cholar-dev-0nly-k3y(change)-me+7p2w!q9z")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Nexscholar <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	// server
	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)

	// database
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "nexscholar")
	v.SetDefault("database.user", "nexscholar")
	v.SetDefault("database.password", "nexscholar")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	// supervision
	v.SetDefault("supervision.maxPendingRequests", 5)
	v.SetDefault("supervision.requestExpiry", 30*24*time.Hour)
	v.SetDefault("supervision.offerExpiry", 14*24*time.Hour)
	v.SetDefault("supervision.unbindCooldown", 7*24*time.Hour)
	v.SetDefault("supervision.maxUnbindAttempts", 3)
	v.SetDefault("supervision.maxCoSupervisors", 2)

	// search
	v.SetDefault("search.openAIKey", "")
	v.SetDefault("search.openAIBaseURL", "")
	v.SetDefault("search.embeddingModel", "text-embedding-3-small")
	v.SetDefault("search.qdrantURL", "http://localhost:6333")
	v.SetDefault("search.qdrantAPIKey", "")
	v.SetDefault("search.vectorSize", 1536)
	v.SetDefault("search.chunkSize", 20)
	v.SetDefault("search.chunkDelay", 2*time.Second)
	v.SetDefault("search.scoreThreshold", 0.3)

	// google
	v.SetDefault("google.clientID", "")
	v.SetDefault("google.clientSecret", "")
	v.SetDefault("google.redirectURL", "http://localhost:8000/api/v1/calendar/google/callback")

	// scholar & queue
	v.SetDefault("scholar.chunkSize", 10)
	v.SetDefault("scholar.requestDelay", 30*time.Second)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.defaultDelay", 0)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: *fromEmail,
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Supervision: SupervisionConfig{
			MaxPendingRequests: v.GetInt("supervision.maxPendingRequests"),
			RequestExpiry:      v.GetDuration("supervision.requestExpiry"),
			OfferExpiry:        v.GetDuration("supervision.offerExpiry"),
			UnbindCooldown:     v.GetDuration("supervision.unbindCooldown"),
			MaxUnbindAttempts:  v.GetInt("supervision.maxUnbindAttempts"),
			MaxCoSupervisors:   v.GetInt("supervision.maxCoSupervisors"),
		},
		Search: SearchConfig{
			OpenAIKey:      v.GetString("search.openAIKey"),
			OpenAIBaseURL:  v.GetString("search.openAIBaseURL"),
			EmbeddingModel: v.GetString("search.embeddingModel"),
			QdrantURL:      strings.TrimRight(v.GetString("search.qdrantURL"), "/"),
			QdrantAPIKey:   v.GetString("search.qdrantAPIKey"),
			VectorSize:     v.GetInt("search.vectorSize"),
			ChunkSize:      v.GetInt("search.chunkSize"),
			ChunkDelay:     v.GetDuration("search.chunkDelay"),
			ScoreThreshold: v.GetFloat64("search.scoreThreshold"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("google.clientID"),
			ClientSecret: v.GetString("google.clientSecret"),
			RedirectURL:  v.GetString("google.redirectURL"),
		},
		Scholar: ScholarConfig{
			ChunkSize:    v.GetInt("scholar.chunkSize"),
			RequestDelay: v.GetDuration("scholar.requestDelay"),
		},
		Queue: QueueConfig{
			Workers:      v.GetInt("queue.workers"),
			DefaultDelay: v.GetDuration("queue.defaultDelay"),
		},
	}
}

// NewTestConfig returns the configuration used by tests; it never reads the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		Debug:            false,
		TestMode:         true,
		AppName:          "Nexscholar",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Nexscholar", Address: "noreply@localhost"},
		Server: ServerConfig{
			Host:                      ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		},
		Supervision: SupervisionConfig{
			MaxPendingRequests: 5,
			RequestExpiry:      30 * 24 * time.Hour,
			OfferExpiry:        14 * 24 * time.Hour,
			UnbindCooldown:     7 * 24 * time.Hour,
			MaxUnbindAttempts:  3,
			MaxCoSupervisors:   2,
		},
		Search: SearchConfig{
			VectorSize:     8,
			ChunkSize:      2,
			ScoreThreshold: 0.1,
		},
		Scholar: ScholarConfig{ChunkSize: 2},
		Queue:   QueueConfig{Workers: 1},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (env: %s, debug: %t)", c.AppName, c.Env, c.Debug)
}
