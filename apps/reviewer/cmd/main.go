package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/antinvestor/reviewer/apps/reviewer/config"
	"github.com/antinvestor/reviewer/apps/reviewer/service/queue"
	"github.com/antinvestor/reviewer/internal/githost"
	"github.com/antinvestor/reviewer/internal/llm"
	"github.com/antinvestor/reviewer/internal/run"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.ReviewerConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "review_worker"
	}

	// Create service with Frame - minimal dependencies
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// ==========================================================================
	// Setup Review Pipeline
	// ==========================================================================

	tokens, err := tokenSource(&cfg)
	if err != nil {
		log.WithError(err).Fatal("could not set up GitHub credentials")
	}

	host, err := githost.NewGitHubHost(tokens, cfg.GitHubBaseURL)
	if err != nil {
		log.WithError(err).Fatal("could not create GitHub client")
	}

	llmCfg := llm.DefaultClientConfig()
	llmCfg.AnthropicAPIKey = cfg.AnthropicAPIKey
	llmCfg.OpenAIAPIKey = cfg.OpenAIAPIKey
	llmCfg.GoogleAPIKey = cfg.GoogleAPIKey
	llmCfg.DefaultModel = llm.Model(cfg.ReviewModel)
	llmCfg.MaxOutputTokens = cfg.ReviewMaxTokens
	llmCfg.Temperature = cfg.ReviewTemperature

	completions, err := llm.NewMultiProviderClient(llmCfg)
	if err != nil {
		log.WithError(err).Fatal("could not create completion client")
	}

	dedup, err := dedupStore(&cfg)
	if err != nil {
		log.WithError(err).Fatal("could not create dedup store")
	}

	orchestrator, err := run.NewOrchestrator(orchestratorConfig(&cfg), host, completions, tokens, dedup)
	if err != nil {
		log.WithError(err).Fatal("could not create orchestrator")
	}
	defer orchestrator.Wait()

	// ==========================================================================
	// Register Subscribers
	// ==========================================================================

	reviewRequestSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueReviewRequestName,
		cfg.QueueReviewRequestURI,
		queue.NewReviewRequestHandler(orchestrator),
	)

	// ==========================================================================
	// Setup Health Endpoint
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"reviewer"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"reviewer"}`))
	})

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		reviewRequestSubscriber,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting reviewer service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}

func tokenSource(cfg *appconfig.ReviewerConfig) (githost.TokenSource, error) {
	if cfg.GitHubAppID != 0 && cfg.GitHubAppPrivateKey != "" {
		return githost.NewAppTokenSource(
			cfg.GitHubAppID,
			cfg.GitHubAppInstallationID,
			[]byte(cfg.GitHubAppPrivateKey),
			cfg.GitHubBaseURL,
		)
	}
	return githost.StaticToken(cfg.GitHubToken), nil
}

func dedupStore(cfg *appconfig.ReviewerConfig) (run.DedupStore, error) {
	if cfg.DedupRedisURI == "" {
		return run.NewInMemoryDedupStore(), nil
	}

	opts, err := redis.ParseURL(cfg.DedupRedisURI)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.DedupTTLSeconds) * time.Second
	return run.NewRedisDedupStore(redis.NewClient(opts), ttl), nil
}

func orchestratorConfig(cfg *appconfig.ReviewerConfig) run.Config {
	return run.Config{
		MaxFilesPerRun:    cfg.MaxFilesPerRun,
		MaxLinesPerFile:   cfg.MaxLinesPerFile,
		MaxTotalLines:     cfg.MaxTotalLines,
		BestEffortPartial: cfg.BestEffortPartial,
		SkipPathGlobs:     appconfig.SplitList(cfg.SkipPathGlobs),
		SkipExtensions:    appconfig.SplitList(cfg.SkipExtensions),
		CommentableRadius: cfg.CommentableRadius,
		FallbackWindow:    cfg.FallbackWindow,
		FallbackCrossHunk: cfg.FallbackCrossHunk,
		Retry: run.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
			MaxDelay:    time.Duration(cfg.RetryMaxDelaySeconds) * time.Second,
		},
		HostAPIRequestsPerHour:      cfg.HostAPIRequestsPerHour,
		CompletionRequestsPerMinute: cfg.CompletionRequestsPerMinute,
		RunDeadline:                 time.Duration(cfg.RunDeadlineSeconds) * time.Second,
		MaxConcurrentRuns:           cfg.MaxConcurrentRuns,
		CancelSupersededRuns:        cfg.CancelSupersededRuns,
		Model:                       llm.Model(cfg.ReviewModel),
		MaxTokens:                   cfg.ReviewMaxTokens,
		Temperature:                 cfg.ReviewTemperature,
		MaxPromptChars:              cfg.ReviewMaxPromptChars,
	}
}
