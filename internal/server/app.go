package server

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rewardengine/internal/accrual"
	"rewardengine/internal/api"
	"rewardengine/internal/app"
	"rewardengine/internal/catalog"
	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
	"rewardengine/internal/metrics"
	"rewardengine/internal/portfolio"
	"rewardengine/internal/referral"
	"rewardengine/internal/scheduler"
	"rewardengine/internal/settlement"
	"rewardengine/internal/telegram"
)

const appConfigKey = "app_config"

// App holds the wired engine for one process.
type App struct {
	Rdb        *redis.Client
	Db         *gorm.DB
	Store      ledger.Store
	Catalog    ledger.Catalog
	Metrics    *metrics.Collector
	Referrals  *referral.Manager
	Attributor *referral.Attributor
	Portfolio  *portfolio.Service
	Settlement *settlement.Engine
	Accrual    *accrual.Engine
	Alerter    *telegram.Alerter
	Log        logging.Logger
	Now        func() time.Time // Clock for scheduled jobs
}

type AppConfig struct {
	Settings AppSettings `json:"settings"`
}

type AppSettings struct {
	Ref referral.Settings `json:"ref"`
}

// Init connects to postgres and redis and wires every service.
func Init(cfg Config, log logging.Logger) *App {
	loadEnv()
	rdb := setupRedis()
	db := setupDb()
	store := ledger.NewGormStore(db)
	if err := store.Migrate(); err != nil {
		panic("failed to run migrations: " + err.Error())
	}

	var cat ledger.Catalog = store
	if cfg.CatalogUrl != "" {
		cat = catalog.New(cfg.CatalogUrl, cfg.CatalogTimeout()).SetToken(os.Getenv("CATALOG_TOKEN"))
		log.Info("using remote catalog at %s", cfg.CatalogUrl)
	}

	a := Assemble(cfg, store, cat, setupAlerter(cfg, log), log)
	a.Rdb = rdb
	a.Db = db

	current, err := loadAppConfig(context.Background(), rdb, AppConfig{Settings: AppSettings{Ref: cfg.ReferralSettings()}})
	if err != nil {
		log.Warn("app_config unavailable, using file settings: %v", err)
	}
	a.Referrals.UpdateSettings(current.Settings.Ref)
	return a
}

// Assemble wires the services over store and cat. alerter may be nil.
func Assemble(cfg Config, store ledger.Store, cat ledger.Catalog, alerter *telegram.Alerter, log logging.Logger) *App {
	m := metrics.NewCollector("rewards")
	refs := referral.NewManager(store, cfg.ReferralSettings(), log,
		referral.WithRetry(cfg.RetryAttempts, cfg.RetryDelay()),
		referral.WithMetrics(m),
	)
	attr := referral.NewAttributor(store, log,
		referral.WithRetry(cfg.RetryAttempts, cfg.RetryDelay()),
		referral.WithMetrics(m),
	)
	engineOpts := []accrual.Option{
		accrual.WithWorkers(cfg.WorkerSpeed, cfg.WorkerQueue),
		accrual.WithRetry(cfg.RetryAttempts, cfg.RetryDelay()),
		accrual.WithMetrics(m),
	}
	if alerter != nil {
		engineOpts = append(engineOpts, accrual.WithObserver(alerter.ObserveTick))
	}
	return &App{
		Store:      store,
		Catalog:    cat,
		Metrics:    m,
		Referrals:  refs,
		Attributor: attr,
		Portfolio:  portfolio.New(store, cat, refs, log, portfolio.WithRetry(cfg.RetryAttempts, cfg.RetryDelay())),
		Settlement: settlement.New(store, log,
			settlement.WithPenaltyRate(cfg.EarlyExitPenalty),
			settlement.WithRetry(cfg.RetryAttempts, cfg.RetryDelay()),
			settlement.WithMetrics(m),
		),
		Accrual: accrual.New(store, cat, attr, log, engineOpts...),
		Alerter: alerter,
		Log:     log,
		Now:     time.Now,
	}
}

// API returns the handler dependencies.
func (a *App) API() *api.App {
	return &api.App{
		Store:      a.Store,
		Catalog:    a.Catalog,
		Referrals:  a.Referrals,
		Portfolio:  a.Portfolio,
		Settlement: a.Settlement,
		Log:        a.Log,
	}
}

// Entries are the recurring jobs: the accrual tick and the monthly
// referral rollover. A nil rdb leaves them without a cross-process lock.
func (a *App) Entries(cfg Config, rdb redis.UniversalClient) []scheduler.Entry {
	tick := scheduler.Entry{
		Name:   scheduler.TaskTick,
		Spec:   cfg.TickSpec,
		Unique: 50 * time.Second,
		Job: func(ctx context.Context) {
			a.Accrual.RunTick(ctx)
		},
	}
	rollover := scheduler.Entry{
		Name:   scheduler.TaskRollover,
		Spec:   cfg.RolloverSpec,
		Unique: time.Hour,
		Job: func(ctx context.Context) {
			period := referral.ClosingPeriod(a.Now())
			n, err := a.Referrals.RollMonthlyEarnings(ctx, period)
			if err != nil {
				a.Log.Error("rollover %s: %d rolled, %v", period, n, err)
				if a.Alerter != nil {
					_ = a.Alerter.Alert("Referral rollover " + period + " failed: " + err.Error())
				}
				return
			}
			a.Log.Info("rollover %s: %d referrals rolled", period, n)
		},
	}
	if rdb != nil {
		tick.Locker = scheduler.NewRedisLock(rdb, "lock:"+tick.Name, 10*time.Minute)
		rollover.Locker = scheduler.NewRedisLock(rdb, "lock:"+rollover.Name, time.Hour)
	}
	return []scheduler.Entry{tick, rollover}
}

// WatchAppConfig reloads the runtime referral settings every period
// until ctx is done.
func (a *App) WatchAppConfig(ctx context.Context, rdb kv, defaults AppConfig, every time.Duration) {
	if every <= 0 {
		return
	}
	app.DoEvery(ctx, every, func(time.Time) {
		current, err := loadAppConfig(ctx, rdb, defaults)
		if err != nil {
			a.Log.Warn("app_config refresh failed: %v", err)
			return
		}
		a.Referrals.UpdateSettings(current.Settings.Ref)
	})
}

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// loadAppConfig reads the runtime settings from redis, seeding them with
// defaults when absent. On error the defaults are returned with it.
func loadAppConfig(ctx context.Context, rdb kv, defaults AppConfig) (AppConfig, error) {
	raw, err := rdb.Get(ctx, appConfigKey).Result()
	if errors.Is(err, redis.Nil) {
		seed, err := json.Marshal(defaults)
		if err != nil {
			return defaults, err
		}
		return defaults, rdb.Set(ctx, appConfigKey, seed, 0).Err()
	}
	if err != nil {
		return defaults, err
	}
	var current AppConfig
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return defaults, err
	}
	return current, nil
}

func setupAlerter(cfg Config, log logging.Logger) *telegram.Alerter {
	token := os.Getenv("TELEGRAM_TOKEN")
	chatID := cfg.AlertChatId
	if env := os.Getenv("ALERT_CHAT_ID"); env != "" {
		if id, err := strconv.ParseInt(env, 10, 64); err == nil {
			chatID = id
		}
	}
	if token == "" || chatID == 0 {
		return nil
	}
	bot, err := telegram.NewBot(token)
	if err != nil {
		log.Error("telegram bot: %v", err)
		return nil
	}
	return telegram.NewAlerter(bot.Api, chatID, log)
}

func setupRedis() *redis.Client {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	return redisClient
}

func redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
}

func setupDb() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		panic("failed to connect to the db")
	}
	return db
}

func loadEnv() {
	env := os.Getenv("APP_ENV")
	if "" == env {
		env = "development"
	}

	godotenv.Load(".env." + env + ".local")

	if "test" != env {
		godotenv.Load(".env.local")
	}
	godotenv.Load(".env." + env)
	godotenv.Load()
}
