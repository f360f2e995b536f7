package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"rewardengine/internal/api"
	"rewardengine/internal/scheduler"
)

var Current *App

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(429, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

// Router builds the HTTP surface over a. limit may be nil.
func Router(a *App, limit gin.HandlerFunc) *gin.Engine {
	router := gin.Default()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://0.0.0.0:3000",
			"http://localhost:3000",
		},
		AllowHeaders:  []string{"Origin", "Access-Control-Allow-Origin", "Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		AllowMethods:  []string{"GET, POST, OPTIONS, PUT, DELETE"},
		MaxAge:        24 * time.Hour,
	}))
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))
	api.Register(router, a.API(), limit)
	return router
}

func ApiInit() { // Run Api Server
	Current = Init(GlobalConfig, Logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: redis.NewClient(&redis.Options{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       1,
		}),
		Rate:  time.Second,
		Limit: GlobalConfig.RateLimit,
	})
	mw := ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})
	go Current.WatchAppConfig(ctx, Current.Rdb, defaultAppConfig(), GlobalConfig.ConfigRefresh())

	router := Router(Current, mw)
	addr := ":" + GlobalConfig.Port
	fmt.Println("[ Reward engine API is up and listening to " + addr + " ]")
	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to run API on "+addr+": ", err)
	}
}

// TickerInit owns the schedule: it fires the accrual tick and the monthly
// rollover until the process is signalled.
func TickerInit() {
	Current = Init(GlobalConfig, Logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries := Current.Entries(GlobalConfig, Current.Rdb)
	var driver scheduler.Driver
	switch GlobalConfig.Scheduler {
	case "asynq":
		driver = scheduler.NewAsynq(redisOpt(), Logger, entries, scheduler.WithMetrics(Current.Metrics))
	default:
		d, err := scheduler.NewCron(Logger, entries, scheduler.WithMetrics(Current.Metrics))
		if err != nil {
			log.Fatal(err)
		}
		driver = d
	}
	go Current.WatchAppConfig(ctx, Current.Rdb, defaultAppConfig(), GlobalConfig.ConfigRefresh())
	if err := driver.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler: ", err)
	}
	Logger.Info("ticker started (%s, tick %q)", GlobalConfig.Scheduler, GlobalConfig.TickSpec)
	<-ctx.Done()
	driver.Stop()
	Logger.Info("ticker stopped")
}

// WorkerInit executes ticks queued by an asynq ticker without scheduling
// any itself.
func WorkerInit() {
	Current = Init(GlobalConfig, Logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := scheduler.NewAsynq(redisOpt(), Logger, Current.Entries(GlobalConfig, Current.Rdb), scheduler.WithMetrics(Current.Metrics))
	go Current.WatchAppConfig(ctx, Current.Rdb, defaultAppConfig(), GlobalConfig.ConfigRefresh())
	if err := worker.Serve(); err != nil {
		log.Fatal("Failed to start worker: ", err)
	}
	<-ctx.Done()
	worker.Stop()
}

func defaultAppConfig() AppConfig {
	return AppConfig{Settings: AppSettings{Ref: GlobalConfig.ReferralSettings()}}
}
