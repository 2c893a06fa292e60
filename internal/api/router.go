package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lucidchat/ctxengine/internal/api/handlers"
	"github.com/lucidchat/ctxengine/internal/api/middleware"
	"github.com/lucidchat/ctxengine/internal/assembler"
	"github.com/lucidchat/ctxengine/internal/assembly"
	"github.com/lucidchat/ctxengine/internal/audit"
	"github.com/lucidchat/ctxengine/internal/auth"
	"github.com/lucidchat/ctxengine/internal/cache"
	"github.com/lucidchat/ctxengine/internal/config"
	"github.com/lucidchat/ctxengine/internal/document"
	"github.com/lucidchat/ctxengine/internal/embedding"
	"github.com/lucidchat/ctxengine/internal/llm"
	"github.com/lucidchat/ctxengine/internal/memorypressure"
	"github.com/lucidchat/ctxengine/internal/multicache"
	"github.com/lucidchat/ctxengine/internal/relevance"
	"github.com/lucidchat/ctxengine/internal/repo"
	"github.com/lucidchat/ctxengine/internal/search"
	"github.com/lucidchat/ctxengine/internal/storage"
	"github.com/lucidchat/ctxengine/internal/tenant"
	"github.com/lucidchat/ctxengine/internal/tokenbudget"
	"github.com/lucidchat/ctxengine/internal/webhook"
	"github.com/lucidchat/ctxengine/pkg/tokenizer"
)

type Router struct {
	mux        *chi.Mux
	db         *pgxpool.Pool
	redis      *redis.Client
	cfg        *config.Config
	ts         *tenant.Service
	jwt        *auth.JWTMiddleware
	apikey     *auth.APIKeyMiddleware
	rbac       *auth.RBAC
	llmGW      llm.Gateway
	ctxCache   *multicache.Cache
	memMonitor *memorypressure.Monitor
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	ts := tenant.NewService(db)

	memMonitor := memorypressure.New(memorypressure.Config{
		PollInterval: cfg.Memory.PollInterval,
		MaxRSS:       cfg.Memory.LimitBytes,
	})

	ctxCache := multicache.New(multicache.Config{
		L1Capacity:    cfg.Cache.L1Capacity,
		L2Capacity:    cfg.Cache.L2Capacity,
		L3Capacity:    cfg.Cache.L3Capacity,
		DefaultTTL:    cfg.Cache.L2TTL,
		OptimizeEvery: cfg.Cache.OptimizeEvery,
	}, nil)
	ctxCache.OnPressure(func() string { return string(memMonitor.Pressure(nil).Level) })
	memMonitor.RegisterCleanup(ctxCache.Clear)
	go memMonitor.Run()

	return &Router{
		mux:        chi.NewRouter(),
		db:         db,
		redis:      rdb,
		cfg:        cfg,
		ts:         ts,
		jwt:        auth.NewJWTMiddleware(cfg.Auth.JWTSecret, ts),
		apikey:     auth.NewAPIKeyMiddleware(db, cfg.Auth.APIKeyHeader, ts, cache.NewCache(rdb)),
		rbac:       auth.NewRBAC(db),
		llmGW:      llm.NewGateway(cfg.LLM),
		ctxCache:   ctxCache,
		memMonitor: memMonitor,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	store := storage.NewSupabaseStorage(rt.cfg.Storage.SupabaseURL, rt.cfg.Storage.SupabaseKey)
	docSvc := document.NewService(rt.db, store, rt.cfg.Storage.Bucket)
	auditSvc := audit.NewService(rt.db)
	dispatcher := webhook.NewDispatcher(rt.db)
	webhookSvc := webhook.NewService(rt.db, dispatcher)

	embedSvc := embedding.NewService(rt.llmGW, "")

	// Context engine services (C1-C11)
	convRepo := repo.NewPostgresConversationRepo(rt.db)
	msgRepo := repo.NewPostgresMessageRepo(rt.db)
	summaryRepo := repo.NewPostgresSummaryRepo(rt.db)
	embedProvider := repo.NewPgEmbeddingProvider(rt.db, embedSvc)
	tokenCounter := tokenizer.NewCounter(rt.cfg.Tokens.DefaultModel)
	optimizer, err := tokenbudget.New(tokenbudget.Config{
		SafetyMargin:     rt.cfg.Tokens.SafetyMargin,
		MinTokensPerItem: rt.cfg.Tokens.MinTokensPerItem,
		MaxTokensPerItem: rt.cfg.Tokens.MaxTokensPerItem,
	}, tokenCounter)
	if err != nil {
		optimizer, _ = tokenbudget.New(tokenbudget.DefaultConfig(), tokenCounter)
	}

	ctxAssembler := assembler.New(assembler.Config{
		Conversations: convRepo,
		Messages:      msgRepo,
		Summaries:     summaryRepo,
		Embeddings:    embedProvider,
		Embedder:      embedSvc,
		Cache:         rt.ctxCache,
		Counter:       tokenCounter,
		Scorer:        relevance.New(relevance.DefaultConfig()),
		Dispatcher:    assembly.NewDispatcher(),
		Optimizer:     optimizer,
		CacheTTL:      rt.cfg.Assembly.CacheTTL,
	})
	searchEngine := search.New(msgRepo, embedProvider, rt.ctxCache)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth: try API key first, then JWT
		r.Use(rt.apikey.Authenticate)
		r.Use(rt.jwt.Authenticate)

		// LLM routes
		llmH := handlers.NewLLMHandler(rt.llmGW)
		r.Route("/llm", func(r chi.Router) {
			r.Post("/chat", llmH.Chat)
			r.Post("/chat/stream", llmH.ChatStream)
			r.Post("/embed", llmH.Embed)
			r.Get("/models", llmH.Models)
		})

		// Document routes
		docH := handlers.NewDocumentHandler(docSvc)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Delete("/{id}", docH.Delete)
			r.Get("/{id}/status", docH.Status)
		})

		// Webhook routes
		webhookH := handlers.NewWebhookHandler(webhookSvc)
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhookH.Create)
			r.Get("/", webhookH.List)
			r.Delete("/{id}", webhookH.Delete)
		})

		// Admin routes
		adminH := handlers.NewAdminHandler(auditSvc)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/usage", adminH.Usage)
			r.Get("/audit", adminH.AuditLogs)
		})

		// Context assembly and hybrid search routes
		ctxH := handlers.NewContextHandler(ctxAssembler, searchEngine, webhookSvc, auditSvc)
		r.Route("/context", func(r chi.Router) {
			r.Post("/assemble", ctxH.Assemble)
			r.Post("/search", ctxH.Search)
		})

		// Cache admin routes
		cacheH := handlers.NewCacheHandler(rt.ctxCache)
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", cacheH.Stats)
			r.Post("/clear", cacheH.Clear)
			r.Post("/optimize", cacheH.Optimize)
			r.Post("/warm", cacheH.Warm)
		})
	})

	return r
}
