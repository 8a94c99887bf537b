// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 聚合了所有服务共享的配置。来源优先级：环境变量 > yaml 文件 > 默认值。
type Config struct {
	App struct {
		FrontendBaseURL     string `yaml:"frontendBaseUrl"`
		SpinCooldownSeconds int    `yaml:"spinCooldownSeconds"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers            []string `yaml:"brokers"`
			NotificationsTopic string   `yaml:"notificationsTopic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`

	Messaging struct {
		Odoo struct {
			BaseURL  string `yaml:"baseUrl"`
			Database string `yaml:"database"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"odoo"`
		Twilio struct {
			AccountSID string `yaml:"accountSid"`
			AuthToken  string `yaml:"authToken"`
			FromNumber string `yaml:"fromNumber"`
		} `yaml:"twilio"`
	} `yaml:"messaging"`
}

var (
	currentConfig Config
	initOnce      sync.Once
)

// Init 加载配置，所有 main 在做任何事之前先调用它。
// 配置文件路径取自 CONFIG_PATH，文件缺失不是错误（纯环境变量部署）。
func Init() {
	initOnce.Do(func() {
		currentConfig = defaultConfig()

		path := getEnv("CONFIG_PATH", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &currentConfig); err != nil {
				log.Fatalf("FATAL: invalid config file %s: %v", path, err)
			}
			log.Printf("Loaded config from %s", path)
		}

		applyEnvOverrides(&currentConfig)
	})
}

// GetCurrentConfig 返回进程级配置。必须在 Init 之后调用。
func GetCurrentConfig() Config {
	return currentConfig
}

func defaultConfig() Config {
	var c Config
	c.App.FrontendBaseURL = "https://app.restrohub.local"
	c.App.SpinCooldownSeconds = 3600
	c.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/restrohub?charset=utf8mb4&parseTime=True&loc=UTC"
	c.Infra.Redis.Addr = "localhost:6379"
	c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	c.Infra.Kafka.NotificationsTopic = "notifications"
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	return c
}

func applyEnvOverrides(c *Config) {
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		c.Infra.Mysql.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		c.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		c.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		c.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("FRONTEND_BASE_URL"); ok {
		c.App.FrontendBaseURL = v
	}
	if v, ok := os.LookupEnv("ODOO_BASE_URL"); ok {
		c.Messaging.Odoo.BaseURL = v
	}
	if v, ok := os.LookupEnv("ODOO_DB"); ok {
		c.Messaging.Odoo.Database = v
	}
	if v, ok := os.LookupEnv("ODOO_USERNAME"); ok {
		c.Messaging.Odoo.Username = v
	}
	if v, ok := os.LookupEnv("ODOO_PASSWORD"); ok {
		c.Messaging.Odoo.Password = v
	}
	if v, ok := os.LookupEnv("TWILIO_ACCOUNT_SID"); ok {
		c.Messaging.Twilio.AccountSID = v
	}
	if v, ok := os.LookupEnv("TWILIO_AUTH_TOKEN"); ok {
		c.Messaging.Twilio.AuthToken = v
	}
	if v, ok := os.LookupEnv("TWILIO_PHONE_NUMBER"); ok {
		c.Messaging.Twilio.FromNumber = v
	}
}
