package main

import (
	"fmt"
	"io"
	"os"

	"task-agent/internal/classifier"
	"task-agent/internal/config"
	"task-agent/internal/logger"
	"task-agent/internal/policy"
	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
	"task-agent/internal/tools/dispatcher"
	"task-agent/internal/tools/handlers"
)

// app 是一次进程运行所需的全部组件，启动时构造一次。
type app struct {
	cfg        config.Config
	root       sandbox.Root
	models     classifier.Models
	registry   *tools.Registry
	classifier *classifier.Classifier
	dispatcher *dispatcher.Dispatcher

	closers []io.Closer
}

func loadConfig(args *rootArgs) (config.Config, error) {
	cfg, err := config.Load(args.cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg, err = config.ApplyKVOverrides(cfg, args.overrides)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(args *rootArgs) (*app, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	a.setupLogs()

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("create data root: %w", err)
	}
	root, err := sandbox.NewRoot(cfg.DataRoot)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.root = root

	models, err := classifier.NewModels(cfg.Model)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.models = models

	guard := policy.NewNetGuard()
	a.registry = tools.NewRegistry(handlers.Default(handlers.Deps{
		Runner:                sandbox.NewRunner(root, cfg.CommandTimeout()),
		HTTPClient:            guard.HTTPClient(cfg.FetchTimeout()),
		Embedder:              models.Embedder,
		Vision:                models.Vision,
		Transcriber:           models.Transcriber,
		UserEmail:             cfg.Handlers.UserEmail,
		MaxFetchBytes:         cfg.Handlers.MaxFetchBytes,
		SimilarityParallelism: cfg.Handlers.SimilarityParallelism,
		ModelTimeout:          cfg.RequestTimeout(),
	})...)
	a.classifier = classifier.New(models.Selector, a.registry, classifier.Options{
		Provider: models.Provider,
		Model:    cfg.Model.Model,
		Timeout:  cfg.RequestTimeout(),
	})
	a.dispatcher = dispatcher.New(a.classifier, a.registry, root, guard)
	return a, nil
}

// setupLogs 日志文件打不开时只告警，继续输出到 stderr。
func (a *app) setupLogs() {
	logger.Configure(a.cfg.Log.Level)
	if f, _, err := logger.SetupFile(a.cfg.Log.Path); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		a.closers = append(a.closers, f)
	}
	if c, _, err := tools.SetupToolsLog(a.cfg.Log.ToolsPath); err != nil {
		log.Warnf("failed to initialize tools log (%s): %v", a.cfg.Log.ToolsPath, err)
	} else if c != nil {
		a.closers = append(a.closers, c)
	}
	if c, _, err := logger.SetupLLMLog(a.cfg.Log.LLMPath); err != nil {
		log.Warnf("failed to initialize llm log (%s): %v", a.cfg.Log.LLMPath, err)
	} else if c != nil {
		a.closers = append(a.closers, c)
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}
