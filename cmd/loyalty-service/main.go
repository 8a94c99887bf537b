// cmd/loyalty-service/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"restrohub/internal/pkg/bootstrap"
	"restrohub/internal/pkg/logger"
	"restrohub/internal/pkg/mq"
	"restrohub/internal/pkg/redis"
	"restrohub/internal/service/loyalty/application"
	"restrohub/internal/service/loyalty/infrastructure"
	"restrohub/internal/service/loyalty/infrastructure/adapter"
	"restrohub/internal/service/loyalty/infrastructure/rule"
	"restrohub/internal/service/loyalty/interfaces"
	"restrohub/internal/zookeeper"
)

const serviceName = "loyalty-service"

// main 是应用的组装根：创建并组装所有依赖项，然后启动服务。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.NewDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	redisClient, err := redis.NewClient(context.Background(), cfg.Infra.Redis.Addr)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to connect zookeeper: %v", err)
	}

	tracer := otel.Tracer(serviceName)

	kafkaWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NotificationsTopic)
	notifier := adapter.NewNotificationKafkaAdapter(kafkaWriter)

	cooldown := time.Duration(cfg.App.SpinCooldownSeconds) * time.Second
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	spinGuard, err := adapter.NewSpinGuardRedisAdapter(redisClient, cooldown)
	if err != nil {
		log.Fatalf("failed to init spin guard: %v", err)
	}

	ruleEngine, err := rule.NewCelRuleEngine()
	if err != nil {
		log.Fatalf("failed to init claim rule engine: %v", err)
	}

	service := application.NewLoyaltyApplicationService(
		infrastructure.NewGormAccountRepository(db),
		infrastructure.NewGormCouponRepository(db),
		infrastructure.NewGormSettingsRepository(db),
		infrastructure.NewGormAuditLogRepository(db),
		tracer,
		notifier,
		spinGuard,
		ruleEngine,
		adapter.NewZkLockFactory(zkConn),
		cfg.App.FrontendBaseURL,
	)
	handler := interfaces.NewLoyaltyHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			if err := notifier.Close(); err != nil {
				log.Printf("Error closing kafka writer: %v", err)
			}
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
			zkConn.Close()
		},
	})
}
