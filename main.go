package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"expensebot/api"
	"expensebot/approval"
	"expensebot/bot"
	"expensebot/config"
	"expensebot/database"
	"expensebot/extraction"
	"expensebot/logger"
	"expensebot/middleware"
	"expensebot/models"
	"expensebot/pending"
	"expensebot/router"
	"expensebot/secret"
	"expensebot/service"
	"expensebot/stats"
	"expensebot/voice"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// @title 记账机器人 API
// @version 1.0
// @description Telegram 记账机器人：文字与语音消费识别、确认入账、类别管理、统计与导出
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const version = "1.0.0"

var (
	configFile  string
	port        string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "外部配置文件路径（可选）")
	flag.StringVar(&configFile, "c", "", "外部配置文件路径（简写）")
	flag.StringVar(&port, "port", "", "监听端口，如: 8080 或 :8080")
	flag.StringVar(&port, "p", "", "监听端口（简写）")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.BoolVar(&showVersion, "v", false, "显示版本信息（简写）")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println("expensebot v" + version)
		return
	}

	// 加载配置（内置配置 + 可选的外部配置覆盖）
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if port != "" {
		cfg.Server.Port = port
	}

	log := logger.New(cfg.Server.Mode)
	zlog.Logger = log
	config.PrintConfig()

	// 配置问题不阻止启动，webhook 会返回 503
	var telegramErr error
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("配置校验未通过")
	}
	cfg.Telegram.HandlerTimeout = cfg.HandlerBudget()
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken == "" {
		telegramErr = errors.New("telegram.bot_token 未配置")
	}

	if cfg.Security.EncryptionKey != "" {
		box, err := secret.NewBoxFromBase64(cfg.Security.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("加载加密密钥失败")
		}
		models.SetMetadataSealer(box)
	}

	if err := database.Init(cfg); err != nil {
		log.Fatal().Err(err).Msg("数据库初始化失败")
	}
	middleware.InitJWT(cfg)

	ctx := context.Background()
	repo := database.NewRepository(database.GetDB())
	tg := service.NewTelegramClient(cfg.Telegram)

	var alertSender service.MessageSender
	if cfg.Telegram.BotToken != "" {
		alertSender = tg
	}
	alerter := service.NewAlerter(cfg.Alert, alertSender, log.With().Str("component", "alert").Logger())

	completer, err := service.NewCompleter(ctx, cfg.LLM)
	if err != nil {
		log.Error().Err(err).Msg("语言模型初始化失败，仅使用规则解析")
		completer = nil
	}
	engine := extraction.NewEngine(completer, cfg.Expense.HomeCurrency, cfg.LLM.Temperature, log.With().Str("component", "extraction").Logger())

	var voiceProcessor bot.VoiceProcessor
	if cfg.Speech.APIKey != "" {
		var corrector service.Completer
		if cfg.Speech.CorrectionEnabled {
			corrector = completer
		}
		stt := service.NewWhisperClient(cfg.Speech, cfg.LLM.MaxAttempts)
		voiceProcessor = voice.NewAdapter(stt, corrector, cfg.LLM.CorrectionModel, log.With().Str("component", "voice").Logger())
	}

	machine := approval.New(pending.NewMemoryStore(cfg.Expense.PendingTTL), repo, approval.Options{
		HomeCurrency: cfg.Expense.HomeCurrency,
		Confidence:   cfg.Expense.ManualConfidence,
		IsNotFound:   func(err error) bool { return errors.Is(err, database.ErrCategoryNotFound) },
	}, log.With().Str("component", "approval").Logger())
	statsService := stats.NewService(repo)

	dispatcher := bot.NewDispatcher(bot.Deps{
		Messenger: tg,
		Extractor: engine,
		Voice:     voiceProcessor,
		Machine:   machine,
		Store:     repo,
		Stats:     statsService,
		Alerter:   alerter,
	}, bot.Options{
		AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
		HomeCurrency:   cfg.Expense.HomeCurrency,
	}, log.With().Str("component", "bot").Logger())

	owner := cfg.Expense.DefaultOwner
	r := router.SetupRouter(cfg, router.Handlers{
		Webhook:    api.NewWebhookHandler(cfg.Telegram, telegramErr, dispatcher),
		Manual:     api.NewManualHandler(engine, machine, repo, alerter, owner),
		Expense:    api.NewExpenseHandler(repo, owner),
		Export:     api.NewExportHandler(repo, owner),
		Category:   api.NewCategoryHandler(repo),
		Statistics: api.NewStatisticsHandler(statsService, owner),
	}, log)

	if !strings.HasPrefix(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Bool("telegram", cfg.Telegram.Enabled).
			Bool("llm", completer != nil).
			Bool("voice", voiceProcessor != nil).
			Msg("记账机器人已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdown(srv, cfg.Server, log)
}

func shutdown(srv *http.Server, cfg config.ServerConfig, log zerolog.Logger) {
	log.Info().Msg("正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("服务器关闭失败")
	}
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	log.Info().Msg("服务器已退出")
}
