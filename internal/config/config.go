// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек приложения.
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitConnection        `yaml:"rabbit_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Billing                 `yaml:"billing"`
	MCControl               `yaml:"mc_control"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitConnection структура для настройки подключения к RabbitMQ.
type RabbitConnection struct {
	AddressRabbit string        `yaml:"addressrabbit"`
	RetriesRabbit int           `yaml:"retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Billing структура для настройки клиента платёжного провайдера.
//
// Prices описывает таблицу тарифов: для фиксированных комбинаций задан
// price_id, для тарифа с произвольной суммой — product_id и минимальная сумма.
type Billing struct {
	APIURLBilling    string      `yaml:"api_url"`
	SecretKeyBilling string      `yaml:"secret_key"`
	WebhookSecret    string      `yaml:"webhook_secret"`
	Prices           []TierPrice `yaml:"prices"`
}

// TierPrice одна строка таблицы тарифов.
// Суммы задаются в минимальных единицах валюты за месяц.
type TierPrice struct {
	Tier      string `yaml:"tier"`
	Amount    int    `yaml:"amount"`
	PriceID   string `yaml:"price_id"`
	Variable  bool   `yaml:"variable"`
	MinAmount int    `yaml:"min_amount"`
	ProductID string `yaml:"product_id"`
}

// MCControl структура для настройки клиента шлюза MC Control.
type MCControl struct {
	BaseURLControl string        `yaml:"base_url"`
	SecretControl  string        `yaml:"secret"`
	TimeoutControl time.Duration `yaml:"timeout"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH, при ошибке завершает процесс.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
