package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"optimus/internal/config"
	"optimus/internal/dispatcher"
	"optimus/internal/langconfig"
	"optimus/internal/obslog"
	"optimus/internal/sanitize"
	"optimus/internal/store"
)

func main() {
	zlog, _ := zap.NewProduction()
	defer zlog.Sync()

	cfg := config.Load()

	stream := obslog.New(cfg.Environment, cfg.LogUploadURL, cfg.LogUploadToken, "dispatcher.log", zlog)

	policies, err := langconfig.Load(cfg.LangConfigPath)
	if err != nil {
		stream.Log(zapcore.WarnLevel, "", "dispatcher", "falling back to built-in language policies", map[string]any{"path": cfg.LangConfigPath, "error": err.Error()})
		policies = langconfig.LoadDefault()
	}

	st, err := store.New(store.DefaultConfig(cfg.StoreURL))
	if err != nil {
		zlog.Fatal("failed to connect to result store", zap.String("url", cfg.StoreURL), zap.Error(err))
	}
	defer st.Close()

	reqLog := logrus.New()
	reqLog.SetFormatter(&logrus.JSONFormatter{})

	d := &dispatcher.Dispatcher{
		Store:            st,
		Policies:         policies,
		Logger:           reqLog,
		ResultTTL:        time.Duration(cfg.ResultTTLSeconds) * time.Second,
		TimeoutMSDefault: cfg.JobTimeoutMSDefault,
		TimeoutMSMax:     cfg.JobTimeoutMSMax,
		SourceSizeCap:    cfg.SourceSizeCapBytes,
		Ratelimit:        cfg.Ratelimit,
		RatelimitBurst:   cfg.RatelimitBurst,
		LLMCheck:         sanitize.NewLLMChecker(cfg.LLMSanityCheckURL, os.Getenv("TOGETHER_API_KEY")),
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      d.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		stream.Log(zapcore.InfoLevel, "", "dispatcher", "dispatcher listening", map[string]any{"port": cfg.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("dispatcher server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stream.Log(zapcore.InfoLevel, "", "dispatcher", "shutting down dispatcher", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		stream.Log(zapcore.ErrorLevel, "", "dispatcher", "graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}
