package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/lead-nurture/internal/config"
	"github.com/ignite/lead-nurture/internal/leadstore"
	"github.com/ignite/lead-nurture/internal/orchestrator"
	"github.com/ignite/lead-nurture/internal/performance"
	"github.com/ignite/lead-nurture/internal/policy"
	"github.com/ignite/lead-nurture/internal/queue"
	"github.com/ignite/lead-nurture/internal/repository/postgres"
	"github.com/ignite/lead-nurture/internal/scoring"
	"github.com/ignite/lead-nurture/internal/snapshot"
	"github.com/ignite/lead-nurture/internal/template"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// openLeadStore connects to the leads database. A connection failure is not
// fatal: the pipeline degrades to synthesized leads rather than refusing to
// start.
func openLeadStore(ctx context.Context, cfg config.LeadStoreConfig) (leadstore.Store, *sql.DB) {
	var inner leadstore.Store

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to leads database (host %s)...", extractHost(cfg.DatabaseURL))
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to open leads database: %v", err)
			db = nil
		} else {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(3)
			db.SetConnMaxLifetime(5 * time.Minute)

			pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
			err = db.PingContext(pingCtx)
			cancel()
			if err != nil {
				log.Printf("Warning: leads database ping failed: %v", err)
				db.Close()
				db = nil
			} else {
				inner = postgres.NewLeadRepo(db)
				log.Println("Leads database connected")
			}
		}
	}

	if inner == nil && !cfg.Synthesize {
		log.Fatal("No leads database available and lead synthesis is disabled; refusing to start")
	}
	if cfg.Synthesize {
		if inner == nil {
			log.Println("Lead synthesis active: every lookup returns a placeholder record")
		}
		return leadstore.Synthesizing{Inner: inner}, db
	}
	return inner, db
}

// openPerformanceSignal connects to the Redis hash the messaging bot
// publishes arm stats into. Absence of the signal only disables the
// performance boosts.
func openPerformanceSignal(ctx context.Context, cfg config.RedisConfig) (performance.Source, *redis.Client) {
	if cfg.URL == "" {
		log.Println("Performance signal not configured (redis url unset) — boosts disabled")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("Warning: invalid redis url %q: %v — boosts disabled", cfg.URL, err)
		return nil, nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err = client.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		log.Printf("Warning: redis connection failed: %v — boosts disabled", err)
		client.Close()
		return nil, nil
	}

	log.Printf("Performance signal connected (key %s)", cfg.PerformanceKey)
	return performance.NewRedisSource(client, cfg.PerformanceKey), client
}

// openSnapshotStore builds the durable snapshot backend. S3 failures fall
// back to local files so a bad AWS setup never blocks startup.
func openSnapshotStore(ctx context.Context, cfg config.SnapshotConfig) snapshot.Store {
	if cfg.Type == "aws" && cfg.S3Bucket != "" {
		store, err := snapshot.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion, cfg.GetAWSProfile())
		if err == nil {
			log.Printf("Snapshot store: s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
			return store
		}
		log.Printf("Warning: S3 snapshot store init failed: %v — falling back to local files", err)
	}

	store, err := snapshot.NewLocalStore(cfg.LocalPath)
	if err != nil {
		log.Printf("Warning: local snapshot store init failed: %v — running without persistence", err)
		return nil
	}
	log.Printf("Snapshot store: %s", cfg.LocalPath)
	return store
}

func main() {
	log.Println("Lead Nurture decision core starting...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leads, db := openLeadStore(ctx, cfg.LeadStore)
	if db != nil {
		defer db.Close()
	}

	perf, redisClient := openPerformanceSignal(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	snaps := openSnapshotStore(ctx, cfg.Snapshot)

	engine := scoring.NewEngine(leads, perf, snaps)
	botPolicy := policy.New(cfg.Policy, engine, leads, template.NewRenderer(), snaps)
	workQueue := queue.New(cfg.Queue, engine, perf, snaps)
	pipeline := orchestrator.New(engine, botPolicy, workQueue)

	log.Printf("Pipeline ready (model version %s)", engine.ModelVersion())

	// Periodic retraining recomputes weights from the conversion history.
	go func() {
		ticker := time.NewTicker(cfg.Scoring.RetrainInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res := engine.Retrain()
				log.Printf("Retrain complete: model %s over %d conversions", res.ModelVersion, res.Conversions)
			}
		}
	}()

	// Heartbeat keeps system health visible in the logs between requests.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := pipeline.SystemMetrics()
				log.Printf("Health: overall %d, queue %d waiting / %d assigned, processed %d",
					m.Health.Overall, m.Queue.QueueLength, m.Queue.Assigned, m.Processed)
				if len(m.Health.Bottlenecks) > 0 {
					log.Printf("Health: bottlenecks detected: %v", m.Health.Bottlenecks)
				}
			}
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	log.Println("All components initialized — decision core is ready")
	<-done

	log.Println("Shutting down...")
	cancel()
	log.Println("Decision core stopped")
}
