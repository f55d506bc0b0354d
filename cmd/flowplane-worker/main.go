package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.temporal.io/sdk/client"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/actionsvc"
	temporalengine "github.com/flowplane/flowplane/engine/temporal"
	"github.com/flowplane/flowplane/executor"
	storemongo "github.com/flowplane/flowplane/store/mongo"
	"github.com/flowplane/flowplane/telemetry"
)

type config struct {
	databaseURL      string
	databaseName     string
	runtimeHost      string
	runtimeNamespace string
	taskQueue        string
	actionServiceURL string
	actionUser       string
	actionPassword   string
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
	}
}

func main() {
	dbgF := flag.Bool("debug", false, "Enable debug logs")
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
		log.KV{K: "runtime-host", V: cfg.runtimeHost},
		log.KV{K: "task-queue", V: cfg.taskQueue})

	copts := options.Client().
		ApplyURI(cfg.databaseURL).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	mongoCli, err := mongodriver.Connect(ctx, copts)
	if err != nil {
		log.Fatalf(ctx, err, "connect to MongoDB at %s", cfg.databaseURL)
	}
	store, err := storemongo.New(storemongo.Options{Client: mongoCli, Database: cfg.databaseName})
	if err != nil {
		log.Fatalf(ctx, err, "initialize store")
	}

	eng, err := temporalengine.New(temporalengine.Options{
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

	worker := eng.Worker()
	if err := worker.Start(); err != nil {
		log.Fatalf(ctx, err, "start worker")
	}
	log.Printf(ctx, "worker polling task queue %q", cfg.taskQueue)

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	worker.Stop()
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
