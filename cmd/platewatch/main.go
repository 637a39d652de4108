package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PlateWatch/PlateWatch/internal/api"
	"github.com/PlateWatch/PlateWatch/internal/cleanup"
	"github.com/PlateWatch/PlateWatch/internal/common/config"
	"github.com/PlateWatch/PlateWatch/internal/common/db"
	"github.com/PlateWatch/PlateWatch/internal/common/logger"
	"github.com/PlateWatch/PlateWatch/internal/common/tracing"
	"github.com/PlateWatch/PlateWatch/internal/upload"
	"github.com/PlateWatch/PlateWatch/internal/violation"
)

var (
	configPath = flag.String("config", "configs/platewatch.json", "配置文件路径")
	consulHost = flag.String("consul-host", "", "从Consul KV加载配置时的Consul地址")
	consulPort = flag.Int("consul-port", 8500, "Consul端口")
	consulKey  = flag.String("consul-kv", "", "Consul KV中的配置key，非空时优先于配置文件")
)

func main() {
	flag.Parse()

	// 加载配置
	var (
		cfg *config.Config
		err error
	)
	if *consulKey != "" {
		host := *consulHost
		if host == "" {
			host = "localhost"
		}
		cfg, err = config.LoadConfigFromConsulKV(host, *consulPort, *consulKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
		tracer = nil
	} else {
		defer closer.Close()
	}

	// 初始化数据库
	gormDB, err := db.NewMySQL(cfg.Database)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(&violation.Vehicle{}, &violation.ViolationRecord{}); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 图片落盘
	saver, err := upload.NewSaver(cfg.Upload, log)
	if err != nil {
		log.Fatalf("failed to init upload dir: %v", err)
	}

	repo := violation.NewRepo(gormDB)
	svc := violation.NewService(repo, saver, log)

	// 预览残留后台清理
	var sweeper *cleanup.Sweeper
	if cfg.Cleanup.Enabled {
		sweeper = cleanup.NewSweeper(
			cfg.Upload.Dir,
			time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
			time.Duration(cfg.Cleanup.TTLHours)*time.Hour,
			repo,
			log,
		)
		sweeper.Start(context.Background())
		defer sweeper.Stop()
	}

	handler := api.NewHandler(svc, saver, cfg.Upload, log)
	router := api.NewRouter(cfg, handler, tracer, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infof("%s listening on %s", cfg.Server.Name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server exited with error: %v", err)
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http server shutdown: %v", err)
	}
}
