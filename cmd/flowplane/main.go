package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.temporal.io/sdk/client"
	"goa.design/clue/health"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/actionsvc"
	"github.com/flowplane/flowplane/agent"
	"github.com/flowplane/flowplane/auth"
	"github.com/flowplane/flowplane/catalog"
	temporalengine "github.com/flowplane/flowplane/engine/temporal"
	"github.com/flowplane/flowplane/executor"
	"github.com/flowplane/flowplane/httpapi"
	"github.com/flowplane/flowplane/llm/openai"
	"github.com/flowplane/flowplane/runs"
	storemongo "github.com/flowplane/flowplane/store/mongo"
	"github.com/flowplane/flowplane/telemetry"
)

// defaultSecretKey mirrors the development default shipped in deployment
// templates. Production deployments must set SECRET_KEY.
const defaultSecretKey = "your-secret-key-change-in-production-min-32-chars-long"

type config struct {
	databaseURL      string
	databaseName     string
	runtimeHost      string
	runtimeNamespace string
	taskQueue        string
	actionServiceURL string
	actionUser       string
	actionPassword   string
	externalCatalog  string
	secretKey        string
	tokenTTL         time.Duration
	llm              openai.Config
	corsOrigins      []string
}

func loadConfig() config {
	return config{
		databaseURL:      envOr("DATABASE_URL", "mongodb://localhost:27017"),
		databaseName:     envOr("DATABASE_NAME", "workflow_builder"),
		runtimeHost:      envOr("RUNTIME_HOST", "localhost:7233"),
		runtimeNamespace: envOr("RUNTIME_NAMESPACE", "default"),
		taskQueue:        envOr("RUNTIME_TASK_QUEUE", executor.DefaultTaskQueue),
		actionServiceURL: envOr("ACTION_SERVICE_URL", "http://localhost:8081"),
		actionUser:       os.Getenv("ACTION_SERVICE_AUTH_USER"),
		actionPassword:   os.Getenv("ACTION_SERVICE_AUTH_PASSWORD"),
		externalCatalog:  os.Getenv("EXTERNAL_ACTION_SERVICE_URL"),
		secretKey:        envOr("SECRET_KEY", defaultSecretKey),
		tokenTTL:         time.Duration(envIntOr("ACCESS_TOKEN_EXPIRE_HOURS", 24)) * time.Hour,
		llm: openai.Config{
			APIKey:     os.Getenv("LLM_API_KEY"),
			Endpoint:   os.Getenv("LLM_ENDPOINT"),
			Deployment: os.Getenv("LLM_DEPLOYMENT"),
			APIVersion: envOr("LLM_API_VERSION", "2024-12-01-preview"),
		},
		corsOrigins: splitList(envOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:8000")),
	}
}

func main() {
	var (
		httpPortF = flag.String("http-port", "8000", "HTTP listen port")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg := loadConfig()
	log.Print(ctx,
		log.KV{K: "http-port", V: *httpPortF},
		log.KV{K: "runtime-host", V: cfg.runtimeHost},
		log.KV{K: "task-queue", V: cfg.taskQueue})
	if cfg.secretKey == defaultSecretKey {
		log.Warnf(ctx, "SECRET_KEY is not set, tokens are signed with the insecure development default")
	}

	// Connect the store and seed the action catalog.
	var (
		mongoCli *mongodriver.Client
		store    storemongo.Client
	)
	{
		copts := options.Client().
			ApplyURI(cfg.databaseURL).
			SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
		var err error
		mongoCli, err = mongodriver.Connect(ctx, copts)
		if err != nil {
			log.Fatalf(ctx, err, "connect to MongoDB at %s", cfg.databaseURL)
		}
		store, err = storemongo.New(storemongo.Options{Client: mongoCli, Database: cfg.databaseName})
		if err != nil {
			log.Fatalf(ctx, err, "initialize store")
		}
		if _, err := catalog.Seed(ctx, store); err != nil {
			log.Fatalf(ctx, err, "seed action catalog")
		}
	}

	// Wire the durable runtime. The API process registers the executor so
	// starts resolve, but never polls the task queue; workers do that.
	var launcher *runs.Service
	var eng *temporalengine.Engine
	{
		var err error
		eng, err = temporalengine.New(temporalengine.Options{
			ClientOptions: &client.Options{
				HostPort:  cfg.runtimeHost,
				Namespace: cfg.runtimeNamespace,
			},
			WorkerOptions:          temporalengine.WorkerOptions{TaskQueue: cfg.taskQueue},
			DisableWorkerAutoStart: true,
			Logger:                 telemetry.NewLogger(ctx),
		})
		if err != nil {
			log.Fatalf(ctx, err, "configure runtime engine")
		}
		invoker := actionsvc.New(cfg.actionServiceURL, actionsvc.WithBasicAuth(cfg.actionUser, cfg.actionPassword))
		if err := executor.Register(ctx, eng, executor.NewActivities(invoker, store)); err != nil {
			log.Fatalf(ctx, err, "register workflow executor")
		}
		launcher, err = runs.NewService(store, store, eng, runs.Options{
			WorkflowName: executor.WorkflowName,
			TaskQueue:    cfg.taskQueue,
		})
		if err != nil {
			log.Fatalf(ctx, err, "configure run service")
		}
	}

	// Conversational assistant and token authority.
	var (
		assistant *agent.Agent
		tokens    *auth.Authenticator
		directory httpapi.CatalogDirectory
	)
	{
		model, err := openai.NewFromConfig(cfg.llm)
		if err != nil {
			log.Fatalf(ctx, err, "configure LLM client")
		}
		assistant, err = agent.New(model)
		if err != nil {
			log.Fatalf(ctx, err, "configure assistant")
		}
		tokens, err = auth.New(cfg.secretKey, cfg.tokenTTL)
		if err != nil {
			log.Fatalf(ctx, err, "configure authenticator")
		}
		if cfg.externalCatalog != "" {
			directory = actionsvc.NewCatalog(cfg.externalCatalog,
				actionsvc.WithCatalogBasicAuth(cfg.actionUser, cfg.actionPassword))
		}
	}

	srv, err := httpapi.New(httpapi.Options{
		Workflows:   store,
		Executions:  store,
		Sessions:    store,
		Actions:     store,
		Runs:        launcher,
		Assistant:   assistant,
		Catalog:     directory,
		Auth:        tokens,
		Pingers:     []health.Pinger{store},
		CORSOrigins: cfg.corsOrigins,
		Debug:       *dbgF,
	})
	if err != nil {
		log.Fatalf(ctx, err, "configure HTTP API")
	}
	httpsvr := &http.Server{
		Addr:              ":" + *httpPortF,
		Handler:           srv.Handler(ctx),
		ReadHeaderTimeout: time.Second * 60,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			log.Printf(ctx, "HTTP server listening on %q", httpsvr.Addr)
			errc <- httpsvr.ListenAndServe()
		}()

		<-ctx.Done()
		log.Printf(ctx, "shutting down HTTP server at %q", httpsvr.Addr)

		sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer scancel()
		if err := httpsvr.Shutdown(sctx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
	wg.Wait()

	if err := eng.Close(); err != nil {
		log.Errorf(ctx, err, "closing runtime client")
	}
	if err := mongoCli.Disconnect(context.Background()); err != nil {
		log.Errorf(ctx, err, "disconnecting from MongoDB")
	}
	log.Printf(ctx, "exited")
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envIntOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
