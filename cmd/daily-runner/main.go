// Package main is the entrypoint for the daily risk runner Lambda function.
//
// The runner is triggered once per day by an EventBridge schedule. It fans the
// risk pipeline out across the active patient cohort, then publishes run
// metrics to CloudWatch so a missed or degraded run trips an alarm.
//
// This file handles dependency wiring (cold start) and delegates the batch
// logic to internal/risk.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cardiometrix/internal/config"
	"cardiometrix/internal/db"
	"cardiometrix/internal/features"
	"cardiometrix/internal/queue"
	"cardiometrix/internal/risk"
	"cardiometrix/internal/scoring"
)

// cloudwatchAPI is the subset of the CloudWatch SDK client used by the runner.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// liveMetricPublisher publishes run metrics to CloudWatch under the configured
// namespace.
type liveMetricPublisher struct {
	client    cloudwatchAPI
	namespace string
}

// PublishRunSummary emits the run outcome. DailyRunCompleted=1 is the
// heartbeat for the missed-run alarm; UsersProcessed/UsersFailed feed the
// degraded-run alarm.
func (p *liveMetricPublisher) PublishRunSummary(ctx context.Context, s risk.RunSummary) error {
	dims := []cwTypes.Dimension{
		{Name: aws.String("RunDate"), Value: aws.String(s.RunDate)},
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwTypes.MetricDatum{
			{
				MetricName: aws.String("DailyRunCompleted"),
				Value:      aws.Float64(1),
				Unit:       cwTypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("UsersProcessed"),
				Value:      aws.Float64(float64(s.Succeeded)),
				Unit:       cwTypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String("UsersFailed"),
				Value:      aws.Float64(float64(s.Failed)),
				Unit:       cwTypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String("RunDuration"),
				Value:      aws.Float64(float64(s.Elapsed.Milliseconds())),
				Unit:       cwTypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish run metrics: %w", err)
	}
	return nil
}

// handler holds the wired dependencies for a runner invocation.
type handler struct {
	runner  *risk.Runner
	metrics *liveMetricPublisher
	logger  *slog.Logger
}

// Handle runs the daily batch and publishes metrics. Metric publication
// failures are logged but do not fail the invocation; the run itself already
// committed.
func (h *handler) Handle(ctx context.Context) (risk.RunSummary, error) {
	summary, err := h.runner.RunDaily(ctx)
	if err != nil {
		return risk.RunSummary{}, err
	}
	if err := h.metrics.PublishRunSummary(ctx, summary); err != nil {
		h.logger.Warn("metric publication failed", "error", err)
	}
	return summary, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("daily runner initializing (cold start)")

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	measurements := db.NewMeasurementRepository(pool)
	snapshots := db.NewRiskRepository(pool)
	nudges := db.NewNudgeRepository(pool)
	users := db.NewUserRepository(pool)
	legacy := db.NewLegacyRepository(pool)

	scorer := scoring.NewClient(scoring.Config{
		BaseURL: cfg.Scorer.BaseURL,
		APIKey:  cfg.Scorer.APIKey,
		Timeout: cfg.Scorer.Timeout,
		Retry: scoring.RetryPolicy{
			MaxAttempts: cfg.Scorer.MaxAttempts,
			BaseDelay:   cfg.Scorer.RetryBaseDelay,
		},
	})

	var hook risk.PostCommitHook
	if cfg.AWS.PushQueueURL != "" {
		hook = queue.NewPushTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS.PushQueueURL, logger)
	}

	orch, err := risk.NewOrchestrator(risk.OrchestratorConfig{
		Measurements: measurements,
		NudgeHistory: nudges,
		Scorer:       scorer,
		Snapshots:    snapshots,
		Nudges:       nudges,
		Legacy:       legacy,
		Hook:         hook,
		Windows: features.Windows{
			RecentDays:   cfg.Windows.RecentDays,
			TrendDays:    cfg.Windows.TrendDays,
			BaselineDays: cfg.Windows.BaselineDays,
			VarDays:      cfg.Windows.VarDays,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	h := &handler{
		runner: risk.NewRunner(orch, users, cfg.Jobs.Concurrency, logger),
		metrics: &liveMetricPublisher{
			client:    cloudwatch.NewFromConfig(awsCfg),
			namespace: cfg.AWS.MetricNamespace,
		},
		logger: logger,
	}

	logger.Info("daily runner initialized",
		"concurrency", cfg.Jobs.Concurrency,
		"metric_namespace", cfg.AWS.MetricNamespace,
	)

	// Local mode: run once and print the summary instead of starting the
	// Lambda runtime. Usage: APP_ENV=development go run ./cmd/daily-runner
	if cfg.App.Env != "production" && os.Getenv("AWS_LAMBDA_RUNTIME_API") == "" {
		summary, err := h.Handle(ctx)
		pool.Close()
		if err != nil {
			logger.Error("daily run failed", "error", err)
			os.Exit(1)
		}
		_ = json.NewEncoder(os.Stdout).Encode(summary)
		return
	}

	lambda.Start(h.Handle)
}
