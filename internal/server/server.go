package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/archive"
	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/chat"
	"example.com/kapitallo/backend/internal/commit"
	"example.com/kapitallo/backend/internal/config"
	"example.com/kapitallo/backend/internal/handlers"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
	"example.com/kapitallo/backend/internal/telegram"
	"example.com/kapitallo/backend/internal/voice"
)

// App объединяет Echo и ресурсы, которые нужно закрыть при остановке.
type App struct {
	Echo    *echo.Echo
	archive archive.Archive
}

// Close освобождает клиентов внешних хранилищ.
func (a *App) Close() error {
	if a.archive == nil {
		return nil
	}
	return a.archive.Close()
}

// New собирает HTTP-сервер Echo с роутами и зависимостями.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, db *pgxpool.Pool) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	llm, speech, err := newAIClients(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := newArchive(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	aiRepo := repository.NewAIRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	notificationHub := notifications.NewHub()
	relay := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.BaseURL, cfg.Telegram.Timeout)

	pipeline := voice.NewPipeline(speech, llm, store, logger)
	committer := commit.NewCommitter(transactionRepo, cfg.App.Location)
	assistant := chat.NewAssistant(llm, statsRepo, logger)

	h := routeHandlers{
		auth:          handlers.NewAuthHandler(userRepo, tokenRepo, tokenManager, cfg.Subscription.TrialDays),
		categories:    handlers.NewCategoryHandler(categoryRepo, notificationHub),
		transactions:  handlers.NewTransactionHandler(transactionRepo, profileRepo, notificationHub),
		exports:       handlers.NewExportHandler(transactionRepo, categoryRepo),
		profile:       handlers.NewProfileHandler(profileRepo),
		stats:         handlers.NewStatsHandler(statsRepo),
		voice:         handlers.NewVoiceHandler(pipeline, committer, categoryRepo, profileRepo, aiRepo, notificationHub, cfg.AI.Provider, cfg.AI.Model),
		chat:          handlers.NewChatHandler(assistant, profileRepo, aiRepo, cfg.AI.Provider, cfg.AI.Model, cfg.AI.StreamTimeout),
		subscription:  handlers.NewSubscriptionHandler(subscriptionRepo, notificationHub, relay, cfg.Subscription.WebhookSecret),
		feedback:      handlers.NewFeedbackHandler(feedbackRepo, relay),
		notifications: handlers.NewNotificationHandler(notificationHub),
		admin:         handlers.NewAdminHandler(adminRepo, subscriptionRepo, notificationHub),
	}

	h.voice.WriteTimeout = cfg.Speech.Timeout + cfg.AI.Timeout + 5*time.Second

	registerRoutes(e, h, routeMiddleware{
		auth:         auth.JWTMiddleware(tokenManager),
		stream:       auth.StreamJWTMiddleware(tokenManager),
		admin:        handlers.AdminMiddleware(userRepo, cfg.Admin.Emails),
		subscription: handlers.RequireActiveSubscription(subscriptionRepo),
		authLimit:    authRateLimiter(cfg.Auth),
		aiLimit:      aiRateLimiter(cfg.AI),
		voiceBody:    middleware.BodyLimit(voiceBodyLimit(cfg.App.MaxAudioBytes)),
	}, db)

	logger.Info("server configured",
		slog.String("ai_provider", cfg.AI.Provider),
		slog.String("speech_provider", cfg.Speech.Provider),
		slog.Bool("archive", cfg.Storage.Bucket != ""),
		slog.Bool("telegram", relay.Enabled()),
	)

	return &App{Echo: e, archive: store}, nil
}

// newAIClients выбирает модель для извлечения и чата и сервис распознавания речи.
func newAIClients(ctx context.Context, cfg config.Config) (llmClient, ai.Transcriber, error) {
	var llm llmClient

	switch cfg.AI.Provider {
	case "gemini":
		client, err := ai.NewGeminiClient(ctx, cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout, cfg.AI.StreamTimeout, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		llm = client
	default:
		llm = ai.NewOpenAIClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout, cfg.AI.StreamTimeout, cfg.AI.MaxOutputTokens)
	}

	if cfg.Speech.Provider == "gemini" {
		// Отдельный клиент: у распознавания свои ключ, модель и таймаут.
		speech, err := ai.NewGeminiClient(ctx, cfg.Speech.APIKey, cfg.Speech.BaseURL, cfg.Speech.Model, cfg.Speech.Timeout, cfg.Speech.Timeout, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini speech client: %w", err)
		}
		return llm, speech, nil
	}

	return llm, ai.NewWhisperClient(cfg.Speech.APIKey, cfg.Speech.BaseURL, cfg.Speech.Model, cfg.Speech.Language, cfg.Speech.Timeout), nil
}

type llmClient interface {
	ai.Client
	ai.Streamer
}

func newArchive(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (archive.Archive, error) {
	if cfg.Bucket == "" {
		return archive.NopArchive{}, nil
	}

	store, err := archive.NewGCSArchive(ctx, cfg.Bucket, cfg.Prefix, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("audio archive: %w", err)
	}
	logger.Info("audio archive enabled", slog.String("bucket", cfg.Bucket))
	return store, nil
}

// voiceBodyLimit учитывает рост base64 на треть и запас под JSON-обертку.
func voiceBodyLimit(maxAudioBytes int) string {
	limit := maxAudioBytes*4/3 + 64<<10
	return fmt.Sprintf("%dK", limit/1024+1)
}

// NewHTTPServer создает net/http сервер с заданными таймаутами.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

func authRateLimiter(cfg config.AuthConfig) echo.MiddlewareFunc {
	return newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst, nil)
}

// aiRateLimiter ограничивает голос и чат по пользователю, а не по IP.
func aiRateLimiter(cfg config.AIConfig) echo.MiddlewareFunc {
	return newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst, func(c echo.Context) (string, error) {
		if userID, ok := auth.UserIDFromContext(c); ok {
			return userID.String(), nil
		}
		return c.RealIP(), nil
	})
}

func newRateLimiter(perMinute, burst int, identify middleware.Extractor) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60.0),
		Burst:     burst,
		ExpiresIn: time.Minute,
	})

	if identify == nil {
		return middleware.RateLimiter(store)
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store:               store,
		IdentifierExtractor: identify,
	})
}
