package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mymmrac/telego"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/bot"
	"reading-bet-bot/internal/config"
	"reading-bet-bot/internal/conversation"
	"reading-bet-bot/internal/database"
	"reading-bet-bot/internal/messages"
	"reading-bet-bot/internal/notify"
	"reading-bet-bot/internal/pairing"
	"reading-bet-bot/internal/scheduler"
	"reading-bet-bot/internal/storage"
	"reading-bet-bot/internal/storage/memory"
	"reading-bet-bot/internal/worker"
)

const (
	COMPONENT   = "component"
	SERVICENAME = "reading-bet-bot"
	TIMESTAMP   = "timestamp"
	SEVERITY    = "severity"
	MESSAGE     = "message"
)

func setupLogging(cfg *config.Config) *logrus.Entry {
	if cfg.LogFormat == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  TIMESTAMP,
				logrus.FieldKeyLevel: SEVERITY,
				logrus.FieldKeyMsg:   MESSAGE,
			},
		})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	return logrus.WithField(COMPONENT, SERVICENAME)
}

func main() {
	// Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Could not load configuration")
	}
	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var store storage.Store
	if cfg.DBDriver == config.DriverMemory {
		logger.Warn("Using in-memory storage, nothing survives a restart")
		store = memory.New()
	} else {
		db, err := database.Connect(cfg, logger.WithField(COMPONENT, "database"))
		if err != nil {
			logger.WithError(err).Fatal("Could not connect to database")
		}
		store = database.NewStore(db)
	}

	// Redis is optional; without it locks and fire dedupe stay in-process
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = database.ConnectRedis(ctx, cfg, logger.WithField(COMPONENT, "redis"))
		if err != nil {
			logger.WithError(err).Fatal("Could not connect to redis")
		}
		defer rdb.Close()
	}

	tgBot, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create bot")
	}
	me, err := tgBot.GetMe(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to get bot info")
	}

	texts := messages.MustLoad()
	notifier := notify.NewTelegram(tgBot)

	timer := scheduler.NewCronTimer(logger.WithField(COMPONENT, "cron"))
	schedOpts := []scheduler.Option{scheduler.WithTimeout(cfg.OperationTimeout)}
	var locker pairing.Locker = pairing.NewLocalLocker()
	if rdb != nil {
		schedOpts = append(schedOpts, scheduler.WithGuard(scheduler.NewRedisGuard(rdb, cfg.ReminderGuardTTL)))
		locker = pairing.NewRedisLocker(rdb, cfg.PairLockTTL)
	}
	sched := scheduler.New(store, timer, notifier, texts, logger.WithField(COMPONENT, "scheduler"), schedOpts...)
	wagers := pairing.New(store, locker, notifier, texts, logger.WithField(COMPONENT, "pairing"))
	engine := conversation.New(store, sched, wagers, texts, logger.WithField(COMPONENT, "conversation"),
		conversation.WithReferralLink(bot.ReferralLink(me.Username)),
		conversation.WithTimeout(cfg.OperationTimeout),
	)

	rehydrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	if _, err := sched.Rehydrate(rehydrateCtx); err != nil {
		logger.WithError(err).Error("Failed to rehydrate reminders")
	}
	cancel()
	timer.Start()

	if cfg.ReconcileInterval > 0 {
		checker := worker.NewChecker(sched, cfg.ReconcileInterval, cfg.OperationTimeout, logger.WithField(COMPONENT, "worker"))
		go checker.Start(ctx)
	}

	b := bot.NewBot(tgBot, engine, logger.WithField(COMPONENT, "bot"), cfg.OperationTimeout)

	logger.WithField("bot", me.Username).Info("Service started successfully")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Bot stopped with error")
	}

	<-timer.Stop()
	logger.Info("Service stopped")
}
