package protocol

import "fmt"

// ========== 辅助构造方法 ==========

// NewControl 包装控制载荷
func NewControl(body ControlBody) *Control {
	return &Control{Body: body}
}

// NewHelloPacket 构造握手请求
func NewHelloPacket(name string, epoch uint16, token string) *Control {
	return NewControl(&Hello{Version: Version, Epoch: epoch, Name: name, Token: token})
}

// NewPingPacket 构造 Ping
func NewPingPacket(id uint32, sentUs uint64, tick uint32) *Control {
	return NewControl(&Ping{ID: id, SentUs: sentUs, Tick: tick})
}

// NewPongPacket 根据 Ping 构造应答
func NewPongPacket(ping *Ping, tick uint32) *Control {
	return NewControl(&Pong{ID: ping.ID, EchoUs: ping.SentUs, Tick: tick})
}

// NewRejectPacket 构造拒绝包
func NewRejectPacket(reason uint8) *Control {
	return NewControl(&Reject{Reason: reason, ServerVersion: Version})
}

// ========== 解析 ==========

// Decode 根据首字节分发解码，返回具体类型的指针：
// *InputBundle, *Snapshot, *Control, *Fire, *FireResult, *FireVisual
func Decode(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	var (
		p   Packet
		err error
	)
	// 逐个分支赋值，避免把带类型的 nil 指针装进接口
	switch data[0] {
	case TagInputBundle:
		var v *InputBundle
		if v, err = DecodeInputBundle(data); err == nil {
			p = v
		}
	case TagSnapshot:
		var v *Snapshot
		if v, err = DecodeSnapshot(data); err == nil {
			p = v
		}
	case TagControl:
		var v *Control
		if v, err = DecodeControl(data); err == nil {
			p = v
		}
	case TagFire:
		var v *Fire
		if v, err = DecodeFire(data); err == nil {
			p = v
		}
	case TagFireResult:
		var v *FireResult
		if v, err = DecodeFireResult(data); err == nil {
			p = v
		}
	case TagFireVisual:
		var v *FireVisual
		if v, err = DecodeFireVisual(data); err == nil {
			p = v
		}
	default:
		err = fmt.Errorf("tag %d: %w", data[0], ErrBadTag)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PacketName 日志用的包名
func PacketName(p Packet) string {
	switch v := p.(type) {
	case *InputBundle:
		return "input_bundle"
	case *Snapshot:
		return "snapshot"
	case *Control:
		if v.Body == nil {
			return "control"
		}
		return "control/" + v.Body.Type().String()
	case *Fire:
		return "fire"
	case *FireResult:
		return "fire_result"
	case *FireVisual:
		return "fire_visual"
	default:
		return "unknown"
	}
}
