package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Payment  PaymentConfig  `mapstructure:"payment"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 运行模式：debug / release
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification string `mapstructure:"notification"`
}

type BusinessConfig struct {
	ListingFee              int64   `mapstructure:"listing_fee"`               // 发布一次拍卖扣多少点
	BidIncrements           []int64 `mapstructure:"bid_increments"`            // 固定加价档位，如 100/500/1000
	ExpiryIntervalSeconds   int     `mapstructure:"expiry_interval_seconds"`   // 到期扫描周期
	SnapshotIntervalMinutes int     `mapstructure:"snapshot_interval_minutes"` // 快照周期
	SnapshotKey             string  `mapstructure:"snapshot_key"`              // 快照在 Redis 中的 key
	EligibleSetKey          string  `mapstructure:"eligible_set_key"`          // 频道成员缓存集合的 key
	MaxRetryCount           int     `mapstructure:"max_retry_count"`           // 发件箱最大重试次数
}

// PaymentConfig 支付网关侧配置
type PaymentConfig struct {
	Secret string       `mapstructure:"secret"` // 回调鉴权共享密钥
	Tiers  []CreditTier `mapstructure:"tiers"`  // 金额 -> 点数 档位表
}

// CreditTier 充值档位
// 网关可能先扣手续费再回调，因此到账金额允许落在 [amount-tolerance, amount+tolerance]
type CreditTier struct {
	Amount    int64 `mapstructure:"amount"`
	Tolerance int64 `mapstructure:"tolerance"`
	Credits   int64 `mapstructure:"credits"`
}

// ExpiryInterval 到期扫描周期
func (c *BusinessConfig) ExpiryInterval() time.Duration {
	if c.ExpiryIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ExpiryIntervalSeconds) * time.Second
}

// SnapshotInterval 快照周期
func (c *BusinessConfig) SnapshotInterval() time.Duration {
	if c.SnapshotIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SnapshotIntervalMinutes) * time.Minute
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
