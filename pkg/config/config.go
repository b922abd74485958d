package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig       `mapstructure:"app"`
	DB       DBConfig        `mapstructure:"db"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Kafka    KafkaConfig     `mapstructure:"kafka"`
	Auth     AuthConfig      `mapstructure:"auth"`
	Session  SessionConfig   `mapstructure:"session"`
	Wallet   WalletConfig    `mapstructure:"wallet"`
	Networks []NetworkConfig `mapstructure:"networks"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error; 为空时按 env 决定
}

type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"` // 关闭时不记录登录历史，事件直接投递 MQ
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Debug    bool   `mapstructure:"debug"`
}

// DSN gorm 使用的连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// URL golang-migrate 使用的连接串
func (c DBConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis", "kafka" 或 "none"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// AuthConfig 签名登录后端
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	NonceTTL   time.Duration `mapstructure:"nonce_ttl"`
	NonceStore string        `mapstructure:"nonce_store"` // "memory" 或 "redis"
	RateLimit  float64       `mapstructure:"rate_limit"`  // 每个 IP 每秒请求数，0 关闭
	RateBurst  int           `mapstructure:"rate_burst"`
}

// SessionConfig 钱包会话 (客户端)
type SessionConfig struct {
	BackendURL     string        `mapstructure:"backend_url"`
	BackendTimeout time.Duration `mapstructure:"backend_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	TargetChain    string        `mapstructure:"target_chain"`
}

type WalletConfig struct {
	Provider    string `mapstructure:"provider"` // "rpc", "keystore" 或 "mnemonic"
	RpcUrl      string `mapstructure:"rpc_url"`  // provider=rpc 时的钱包地址
	KeystoreDir string `mapstructure:"keystore_dir"`
	Password    string `mapstructure:"password"` // Keystore 密码 (通常通过环境变量 WALLET_PASSWORD 传入)
	Mnemonic    string `mapstructure:"mnemonic"`
	VaultFile   string `mapstructure:"vault_file"`   // 加密保存的助记词文件，wallet.mnemonic 为空时使用
	Accounts    int    `mapstructure:"accounts"`     // 助记词派生的账户数
	UpstreamRPC string `mapstructure:"upstream_rpc"` // 本地钱包转发读请求的节点
	ChainID     string `mapstructure:"chain_id"`     // 本地钱包的初始网络
}

// NetworkConfig wallet_addEthereumChain 使用的网络描述
type NetworkConfig struct {
	ChainID      string         `mapstructure:"chain_id"`
	Name         string         `mapstructure:"name"`
	Currency     CurrencyConfig `mapstructure:"currency"`
	RPCURLs      []string       `mapstructure:"rpc_urls"`
	ExplorerURLs []string       `mapstructure:"explorer_urls"`
}

type CurrencyConfig struct {
	Name     string `mapstructure:"name"`
	Symbol   string `mapstructure:"symbol"`
	Decimals int    `mapstructure:"decimals"`
}

var Global Config

func Init() {
	cfg, err := Load("")
	if err != nil {
		log.Fatalf("Fatal error config file: %s \n", err)
	}
	Global = *cfg

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 读取配置。path 为空时在 . 与 ./config 下查找 config.yaml，找不到则只用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // name of config file (without extension)
		v.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
		v.AddConfigPath(".")      // optionally look for config in the working directory
		v.AddConfigPath("./config")
	}

	// 环境变量设置: AUTH_JWT_SECRET 覆盖 auth.jwt_secret
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("Warning: Config file not found, using defaults and environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if len(cfg.Networks) == 0 {
		cfg.Networks = DefaultNetworks()
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8000")
	v.SetDefault("app.log_level", "")

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "wallet_user")
	v.SetDefault("db.password", "wallet_password")
	v.SetDefault("db.name", "wallet_db")
	v.SetDefault("db.debug", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mq_type", "none")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("auth.jwt_secret", "your-secret-key-here")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.nonce_ttl", 5*time.Minute)
	v.SetDefault("auth.nonce_store", "memory")
	v.SetDefault("auth.rate_limit", 5.0)
	v.SetDefault("auth.rate_burst", 10)

	v.SetDefault("session.backend_url", "http://localhost:8000")
	v.SetDefault("session.backend_timeout", 10*time.Second)
	v.SetDefault("session.poll_interval", 3*time.Second)
	v.SetDefault("session.poll_timeout", 2*time.Minute)
	v.SetDefault("session.target_chain", "0x7a69")

	v.SetDefault("wallet.provider", "mnemonic")
	v.SetDefault("wallet.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("wallet.keystore_dir", "keystore")
	// 敏感项没有默认值，只为让 AutomaticEnv 能识别 WALLET_MNEMONIC / WALLET_PASSWORD
	v.SetDefault("wallet.mnemonic", "")
	v.SetDefault("wallet.password", "")
	v.SetDefault("wallet.vault_file", "wallet.json")
	v.SetDefault("wallet.accounts", 1)
	v.SetDefault("wallet.upstream_rpc", "http://127.0.0.1:8545")
	v.SetDefault("wallet.chain_id", "0x1")
}

// DefaultNetworks Hardhat 本地链与前端预置的公链
func DefaultNetworks() []NetworkConfig {
	eth := CurrencyConfig{Name: "Ethereum", Symbol: "ETH", Decimals: 18}
	matic := CurrencyConfig{Name: "MATIC", Symbol: "MATIC", Decimals: 18}
	return []NetworkConfig{
		{ChainID: "0x7A69", Name: "Hardhat Local", Currency: eth, RPCURLs: []string{"http://127.0.0.1:8545"}},
		{ChainID: "0x1", Name: "Ethereum Mainnet", Currency: eth,
			RPCURLs: []string{"https://cloudflare-eth.com"}, ExplorerURLs: []string{"https://etherscan.io"}},
		{ChainID: "0x5", Name: "Goerli Testnet", Currency: eth,
			RPCURLs: []string{"https://rpc.ankr.com/eth_goerli"}, ExplorerURLs: []string{"https://goerli.etherscan.io"}},
		{ChainID: "0x89", Name: "Polygon Mainnet", Currency: matic,
			RPCURLs: []string{"https://polygon-rpc.com"}, ExplorerURLs: []string{"https://polygonscan.com"}},
		{ChainID: "0x13881", Name: "Polygon Mumbai", Currency: matic,
			RPCURLs: []string{"https://rpc-mumbai.maticvigil.com"}, ExplorerURLs: []string{"https://mumbai.polygonscan.com"}},
	}
}
