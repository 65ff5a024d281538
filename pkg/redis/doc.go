// Package redis connects the billing engine to Redis with go-redis.
//
// Redis is optional. When REDIS_URL is set, the entitlement gate caches tenant
// snapshots there and the scheduler takes its cross-process sweep lock there;
// otherwise both fall back to in-process implementations.
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	if cfg.Enabled() {
//		client, err := redis.Connect(ctx, cfg)
//		if err != nil {
//			return err
//		}
//		defer client.Close()
//	}
//
// Errors are sentinels joined with the go-redis cause, so errors.Is works on both.
package redis
