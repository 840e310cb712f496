package session

import (
	"golang.org/x/time/rate"
)

// limiters 每个连接一组令牌桶，超出的包直接丢弃
type limiters struct {
	control *rate.Limiter
	fire    *rate.Limiter
	resync  *rate.Limiter
}

func newLimiters(cfg Config) limiters {
	return limiters{
		control: rate.NewLimiter(rate.Limit(cfg.ControlRate), cfg.ControlBurst),
		fire:    rate.NewLimiter(rate.Limit(cfg.FireRate), cfg.FireBurst),
		resync:  rate.NewLimiter(rate.Every(ResyncHintInterval), 1),
	}
}
