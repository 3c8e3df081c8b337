package main

import (
	"context"
	"errors"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/bot"
	"github.com/edgard/dogbot/internal/bot/handlers"
	"github.com/edgard/dogbot/internal/bot/jobs"
	"github.com/edgard/dogbot/internal/bot/tasks"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/engine"
	"github.com/edgard/dogbot/internal/llm"
	"github.com/edgard/dogbot/internal/logger"
	"github.com/edgard/dogbot/internal/telegram"
)

// serve initializes all components (config, logger, db, llm client, engine,
// job workers, bot, scheduler) and runs them until ctx is cancelled.
func serve(ctx context.Context, configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	invoker, err := llm.NewGeminiInvoker(ctx, cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("failed to initialize llm client: %w", err)
	}
	prompts, err := llm.LoadPrompts(cfg.LLM.PromptsDir)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	// The default handler needs the job dispatcher, which needs the bot to
	// send with, so it is bound after the bot exists and before it starts.
	var defaultHandler tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			defaultHandler(ctx, b, update)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		return err
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	me := cfg.Telegram.BotInfo
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)
	if err := store.SetBotIdentity(ctx, me.FirstName, me.Username); err != nil {
		return fmt.Errorf("failed to record bot identity: %w", err)
	}

	eng := engine.New(store, invoker, prompts, cfg.Engine, log,
		engine.WithTranslateModel(cfg.LLM.TranslateModel),
		engine.WithBotIdentity(me.FirstName, me.Username),
	)
	runner := jobs.NewRunner(eng, store, tg, cfg.Messages, log)

	var (
		dispatcher jobs.Dispatcher
		worker     bot.Worker
	)
	if cfg.Jobs.RedisURL != "" {
		d, err := jobs.NewAsynqDispatcher(ctx, cfg.Jobs.RedisURL, cfg.Jobs.Queue, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := d.Close(); err != nil {
				log.Error("Failed to close job dispatcher", "error", err)
			}
		}()
		w, err := jobs.NewAsynqWorker(cfg.Jobs.RedisURL, cfg.Jobs.Queue, cfg.Jobs.Workers, runner, log)
		if err != nil {
			return err
		}
		dispatcher, worker = d, w
		log.Info("Using redis job queue", "queue", cfg.Jobs.Queue, "workers", cfg.Jobs.Workers)
	} else {
		pool := jobs.NewPool(runner, cfg.Jobs.Workers, cfg.Jobs.QueueSize, log)
		dispatcher, worker = pool, pool
		log.Info("Using in-process job pool", "workers", cfg.Jobs.Workers, "queue_size", cfg.Jobs.QueueSize)
	}

	hDeps := handlers.HandlerDeps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Summarizer: eng,
		Jobs:       dispatcher,
	}
	defaultHandler = handlers.NewMessageHandler(hDeps)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		return fmt.Errorf("failed to register telegram handlers: %w", err)
	}
	if err := telegram.SetCommands(ctx, tg, telegram.CommandMenu(cmdHandlers)); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}))
	if err != nil {
		return err
	}

	log.Info("Starting bot...")
	runErr := bot.NewBot(log, tg, worker, sched).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("bot stopped: %w", runErr)
	}

	log.Info("Bot stopped gracefully.")
	return nil
}
