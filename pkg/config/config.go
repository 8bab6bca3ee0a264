package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "MANGEO"

	EnvDBDSN  = "MANGEO_DB_DSN"
	EnvDBHost = "MANGEO_DB_HOST"
	EnvDBUser = "MANGEO_DB_USER"
	EnvDBName = "MANGEO_DB_NAME"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Bus        BusConfig
	Dispatch   DispatchConfig
	Courier    CourierConfig
	Restaurant RestaurantConfig
	Seed       SeedConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MANGEO_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"MANGEO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MANGEO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN       string `envconfig:"MANGEO_DB_DSN"`
	UseSQLite bool   `envconfig:"MANGEO_USE_SQLITE" default:"false"`
	// SQLitePath is used only when UseSQLite is set.
	SQLitePath string `envconfig:"MANGEO_SQLITE_PATH" default:"mangeo.db"`

	LegacyHost     string `envconfig:"MANGEO_DB_HOST"`
	LegacyPort     int    `envconfig:"MANGEO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MANGEO_DB_USER"`
	LegacyPassword string `envconfig:"MANGEO_DB_PASSWORD"`
	LegacyName     string `envconfig:"MANGEO_DB_NAME"`
	LegacySSLMode  string `envconfig:"MANGEO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MANGEO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MANGEO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MANGEO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MANGEO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MANGEO_REDIS_URL" default:"redis://localhost:6379/0"`
	Address      string        `envconfig:"MANGEO_REDIS_ADDR"`
	Password     string        `envconfig:"MANGEO_REDIS_PASSWORD"`
	DB           int           `envconfig:"MANGEO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MANGEO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MANGEO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MANGEO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MANGEO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MANGEO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type BusConfig struct {
	// StreamMaxLen caps the per-topic replay stream (approximate trim).
	StreamMaxLen  int64         `envconfig:"MANGEO_BUS_STREAM_MAX_LEN" default:"1024"`
	ReadBlock     time.Duration `envconfig:"MANGEO_BUS_READ_BLOCK" default:"2s"`
	ChannelBuffer int           `envconfig:"MANGEO_BUS_CHANNEL_BUFFER" default:"64"`
}

type DispatchConfig struct {
	OfferDeadline    time.Duration `envconfig:"MANGEO_DISPATCH_OFFER_DEADLINE" default:"60s"`
	DeliveryReward   string        `envconfig:"MANGEO_DISPATCH_DELIVERY_REWARD" default:"8.00"`
	MaxWriteAttempts uint64        `envconfig:"MANGEO_DISPATCH_MAX_WRITE_ATTEMPTS" default:"4"`
	WriteBackoff     time.Duration `envconfig:"MANGEO_DISPATCH_WRITE_BACKOFF" default:"250ms"`
	AutoApprove      bool          `envconfig:"MANGEO_DISPATCH_AUTO_APPROVE" default:"false"`
	SweepInterval    string        `envconfig:"MANGEO_DISPATCH_SWEEP_SCHEDULE" default:"*/15 * * * * *"`
	SweepLockTTL     time.Duration `envconfig:"MANGEO_DISPATCH_SWEEP_LOCK_TTL" default:"10s"`
}

// Reward parses the configured flat delivery reward.
func (d DispatchConfig) Reward() (decimal.Decimal, error) {
	reward, err := decimal.NewFromString(strings.TrimSpace(d.DeliveryReward))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing delivery reward %q: %w", d.DeliveryReward, err)
	}
	if reward.IsNegative() {
		return decimal.Zero, fmt.Errorf("delivery reward must not be negative")
	}
	return reward, nil
}

type CourierConfig struct {
	ClaimTTL   time.Duration `envconfig:"MANGEO_COURIER_CLAIM_TTL" default:"60s"`
	PickupMin  time.Duration `envconfig:"MANGEO_COURIER_PICKUP_MIN" default:"3s"`
	PickupMax  time.Duration `envconfig:"MANGEO_COURIER_PICKUP_MAX" default:"6s"`
	TransitMin time.Duration `envconfig:"MANGEO_COURIER_TRANSIT_MIN" default:"8s"`
	TransitMax time.Duration `envconfig:"MANGEO_COURIER_TRANSIT_MAX" default:"15s"`
	AutoAccept bool          `envconfig:"MANGEO_COURIER_AUTO_ACCEPT" default:"true"`
}

type RestaurantConfig struct {
	PrepMin time.Duration `envconfig:"MANGEO_RESTAURANT_PREP_MIN" default:"5s"`
	PrepMax time.Duration `envconfig:"MANGEO_RESTAURANT_PREP_MAX" default:"12s"`
}

type SeedConfig struct {
	FixturesPath string `envconfig:"MANGEO_SEED_FIXTURES" default:"fixtures/seed.json"`
}

func (db *DBConfig) ensureDSN() error {
	if db.UseSQLite || db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
