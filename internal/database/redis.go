package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// InitRedis connects the cache that backs OTP codes, token blacklisting, QR
// share codes and the trending-skills cache. Redis is optional: when it is
// unreachable the server starts anyway and every consumer degrades (no
// logout blacklist, share codes report unavailable, trending is uncached).
func InitRedis() *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	addr := viper.GetString("redis.host") + ":" + viper.GetString("redis.port")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] Connection to %s failed, continuing without Redis: %v", addr, err)
		return nil
	}

	log.Printf("[REDIS] Connection established at %s", addr)
	return rdb
}
