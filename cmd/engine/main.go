package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"optimus/internal/config"
	"optimus/internal/container"
	"optimus/internal/engine"
	"optimus/internal/job"
	"optimus/internal/langconfig"
	"optimus/internal/obslog"
	"optimus/internal/store"
)

// main pins this process to a single language's queue, per the
// single-language-per-process model, and drives jobs through the state
// machine until ctx is cancelled. Boot sequence grounded on the original
// worker's main.rs (language validation, store connect, select against
// ctrl_c) translated into Go's signal.NotifyContext idiom.
func main() {
	zlog, _ := zap.NewProduction()
	defer zlog.Sync()

	cfg := config.Load()
	lang := job.Language(cfg.WorkerLanguage)

	stream := obslog.New(cfg.Environment, cfg.LogUploadURL, cfg.LogUploadToken, "engine-"+cfg.WorkerLanguage+".log", zlog)

	policies, err := langconfig.Load(cfg.LangConfigPath)
	if err != nil {
		stream.Log(zapcore.WarnLevel, "", "engine", "falling back to built-in language policies", map[string]any{"path": cfg.LangConfigPath, "error": err.Error()})
		policies = langconfig.LoadDefault()
	}
	if _, ok := policies.Get(lang); !ok {
		zlog.Fatal("WORKER_LANGUAGE is not a configured language", zap.String("language", string(lang)))
	}

	st, err := store.New(store.DefaultConfig(cfg.StoreURL))
	if err != nil {
		zlog.Fatal("failed to connect to result store", zap.String("url", cfg.StoreURL), zap.Error(err))
	}
	defer st.Close()

	execLog := logrus.New()
	execLog.SetFormatter(&logrus.JSONFormatter{})

	driver, err := container.New(execLog)
	if err != nil {
		zlog.Fatal("failed to initialize container driver", zap.Error(err))
	}

	if policy, _ := policies.Get(lang); policy.Image != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := driver.EnsureImage(ctx, policy.Image); err != nil {
			zlog.Fatal("worker runner image not available", zap.String("image", policy.Image), zap.Error(err))
		}
		cancel()
	}

	compileOnce := &engine.CompileOnceOrchestrator{
		Driver:       driver,
		Cancel:       st,
		Logger:       execLog,
		CompileMS:    cfg.CompileTimeoutMS,
		TruncCapByte: cfg.OutputTruncCapBytes,
	}
	legacy := &engine.LegacyOrchestrator{
		Driver:       driver,
		Cancel:       st,
		Logger:       execLog,
		TruncCapByte: cfg.OutputTruncCapBytes,
	}

	w := &engine.Worker{
		Language:       lang,
		Store:          st,
		Policies:       policies,
		CompileOnce:    compileOnce,
		Legacy:         legacy,
		UseCompileOnce: cfg.UseCompileOnce,
		Logger:         execLog,
		PopTimeout:     time.Duration(cfg.QueuePopTimeoutSec) * time.Second,
		ResultTTL:      time.Duration(cfg.ResultTTLSeconds) * time.Second,
		MaxParallel:    cfg.MaxWorkers,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream.Log(zapcore.InfoLevel, "", "engine", "engine worker starting", map[string]any{
		"language":         string(lang),
		"use_compile_once": cfg.UseCompileOnce,
		"max_parallel":     cfg.MaxWorkers,
	})
	w.Run(ctx)
	stream.Log(zapcore.InfoLevel, "", "engine", "engine worker stopped", map[string]any{"language": string(lang)})
}
