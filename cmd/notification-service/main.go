// cmd/notification-service/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"restrohub/internal/pkg/bootstrap"
	"restrohub/internal/pkg/httpclient"
	"restrohub/internal/pkg/logger"
	"restrohub/internal/pkg/mq"
	"restrohub/internal/service/messaging"
)

const (
	serviceName     = "notification-service"
	consumerGroupID = "notification-group"
)

// main 组装通知投递链路：kafka 消费 -> Odoo WhatsApp -> Twilio 短信回退。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)
	httpClient := httpclient.NewClient(tracer)

	odoo := messaging.NewOdooClient(messaging.OdooConfig{
		BaseURL:  cfg.Messaging.Odoo.BaseURL,
		Database: cfg.Messaging.Odoo.Database,
		Username: cfg.Messaging.Odoo.Username,
		Password: cfg.Messaging.Odoo.Password,
	}, httpClient)
	twilio := messaging.NewTwilioClient(messaging.TwilioConfig{
		AccountSID: cfg.Messaging.Twilio.AccountSID,
		AuthToken:  cfg.Messaging.Twilio.AuthToken,
		FromNumber: cfg.Messaging.Twilio.FromNumber,
	}, httpClient)

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, consumerGroupID, cfg.Infra.Kafka.NotificationsTopic)
	consumer := messaging.NewConsumer(reader, messaging.NewDispatcher(odoo, twilio, tracer), tracer)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Run(consumerCtx); err != nil && err != context.Canceled {
			log.Printf("ERROR: consumer stopped: %v", err)
		}
	}()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8083,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
			if err := consumer.Close(); err != nil {
				log.Printf("Error closing kafka reader: %v", err)
			}
		},
	})
}
