package session

import (
	"math"

	"arenanet/pkg/protocol"
)

// EffectiveDelay 由抖动推导输入延迟：ceil((2·jitter + safety) / tickMs)，
// 上限不超过冗余包能覆盖的条数
func EffectiveDelay(jitterMs, safetyMs, tickMs float64, minTicks, maxTicks int) int {
	hi := min(maxTicks, protocol.MaxBundleCommands)
	lo := min(minTicks, hi)
	if tickMs <= 0 {
		return lo
	}
	d := int(math.Ceil((jitterMs*2 + safetyMs) / tickMs))
	return clampInt(d, lo, hi)
}

// delayController 决定什么时候把新的延迟推给客户端
type delayController struct {
	current  int
	lastPush uint32
}

func newDelayController(initial int, tick uint32) delayController {
	return delayController{current: initial, lastPush: tick}
}

// Update 目标与上次推送不同且冷却已过时返回 (新值, true)
func (d *delayController) Update(target int, tick uint32) (int, bool) {
	if target == d.current {
		return d.current, false
	}
	if tick-d.lastPush < DelayUpdateCooldown {
		return d.current, false
	}
	d.current = target
	d.lastPush = tick
	return target, true
}

// Current 最近推送的延迟
func (d *delayController) Current() int { return d.current }
