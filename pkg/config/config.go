package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Mail      MailConfig      `mapstructure:"mail"`
	SMS       SMSConfig       `mapstructure:"sms"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// ChainConfig 多签合约所在链的接入参数
type ChainConfig struct {
	Driver          string        `mapstructure:"driver"` // "memory" or "eth"
	RpcUrl          string        `mapstructure:"rpc_url"`
	ChainID         int64         `mapstructure:"chain_id"`
	ContractAddress string        `mapstructure:"contract_address"`
	RelayerKey      string        `mapstructure:"relayer_key"` // hex 私钥，通常通过环境变量 CHAIN_RELAYER_KEY 传入
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
}

type WalletConfig struct {
	TxExpire               time.Duration `mapstructure:"tx_expire"`
	BridgeAccount          string        `mapstructure:"bridge_account"`
	DefaultSubaccountLimit string        `mapstructure:"default_subaccount_limit"`
	PendingKeyTTL          time.Duration `mapstructure:"pending_key_ttl"`
}

// AuthConfig 验证码与登录保护
type AuthConfig struct {
	CodeLifetime       time.Duration `mapstructure:"code_lifetime"`
	CodeResendInterval time.Duration `mapstructure:"code_resend_interval"`
	FixedCode          string        `mapstructure:"fixed_code"` // 非空时所有验证码固定为该值，仅用于测试环境
	LoginRetryLimit    int           `mapstructure:"login_retry_limit"`
	LockoutWindow      time.Duration `mapstructure:"lockout_window"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type ReconcileConfig struct {
	Interval    string `mapstructure:"interval"` // cron spec, e.g. "@every 3s"
	MaxAttempts int    `mapstructure:"max_attempts"`
	BatchSize   int    `mapstructure:"batch_size"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.grpc_port", "50051")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "wallet_user")
	viper.SetDefault("db.password", "wallet_password")
	viper.SetDefault("db.name", "chainless_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("chain.driver", "memory")
	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("chain.call_timeout", 10*time.Second)

	viper.SetDefault("wallet.tx_expire", 24*time.Hour)
	viper.SetDefault("wallet.bridge_account", "")
	viper.SetDefault("wallet.default_subaccount_limit", "0")
	viper.SetDefault("wallet.pending_key_ttl", 30*time.Minute)

	viper.SetDefault("auth.code_lifetime", 10*time.Minute)
	viper.SetDefault("auth.code_resend_interval", time.Minute)
	viper.SetDefault("auth.login_retry_limit", 5)
	viper.SetDefault("auth.lockout_window", 30*time.Minute)
	viper.SetDefault("auth.token_ttl", 7*24*time.Hour)

	viper.SetDefault("worker.concurrency", 10)

	viper.SetDefault("reconcile.interval", "@every 3s")
	viper.SetDefault("reconcile.max_attempts", 20)
	viper.SetDefault("reconcile.batch_size", 50)

	viper.SetDefault("mail.port", 587)
}
