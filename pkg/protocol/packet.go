// Package protocol 定义所有线上数据包的定长二进制布局。
//
// 每个包以 1 字节类型标签开头，之后是固定偏移的字段，小端序，浮点数按 IEEE-754 原始位写入。
// 数组一律写成“计数字节 + 固定数量的定长槽位”，未使用的槽位补零。
// 解码先校验最小长度与标签，失败时返回错误而不是部分结果。
package protocol

import "errors"

// 包类型标签
const (
	TagInputBundle byte = 1
	TagSnapshot    byte = 2
	TagControl     byte = 3
	TagFire        byte = 4
	TagFireResult  byte = 5
	TagFireVisual  byte = 6
)

// Version 协议版本，握手时校验
const Version uint16 = 3

// 数组容量
const (
	MaxBundleCommands  = 8  // 冗余输入包最多携带的指令数
	MaxSnapshotEntries = 16 // 快照最多携带的实体数
)

var (
	ErrTruncated         = errors.New("protocol: packet truncated")
	ErrBadTag            = errors.New("protocol: unexpected packet tag")
	ErrBadCount          = errors.New("protocol: array count exceeds slots")
	ErrBadSubtype        = errors.New("protocol: unknown control subtype")
	ErrShortBuffer       = errors.New("protocol: destination buffer too small")
	ErrTooMany           = errors.New("protocol: too many array elements")
	ErrTokenTooLong      = errors.New("protocol: token exceeds slot")
	ErrInputOnReliable   = errors.New("protocol: gameplay traffic must not use the reliable channel")
	ErrControlUnreliable = errors.New("protocol: control traffic must use the reliable channel")
)

// Channel 逻辑通道
type Channel uint8

const (
	ChannelGameplay Channel = 0 // 输入、快照、开火（不可靠）
	ChannelControl  Channel = 1 // 握手与控制（可靠）
)

func (c Channel) String() string {
	switch c {
	case ChannelGameplay:
		return "gameplay"
	case ChannelControl:
		return "control"
	default:
		return "unknown"
	}
}

// Reliability 发送可靠性
type Reliability uint8

const (
	Unreliable Reliability = iota
	Reliable
)

// Packet 所有可编码的包
type Packet interface {
	// Tag 返回首字节标签
	Tag() byte
	// Size 返回编码后的固定长度
	Size() int
	// Encode 写入 dst，返回写入字节数
	Encode(dst []byte) (int, error)
}

// RouteFor 返回包类型对应的通道与可靠性
func RouteFor(tag byte) (Channel, Reliability) {
	if tag == TagControl {
		return ChannelControl, Reliable
	}
	return ChannelGameplay, Unreliable
}

// CheckRoute 校验包类型与可靠性匹配。
// 输入等玩法流量绝不允许走可靠通道，这是调用方的编程约束
func CheckRoute(tag byte, rel Reliability) error {
	switch {
	case tag == TagControl && rel != Reliable:
		return ErrControlUnreliable
	case tag != TagControl && rel == Reliable:
		return ErrInputOnReliable
	}
	return nil
}

// EncodeFor 校验路由后编码成新的字节切片
func EncodeFor(rel Reliability, p Packet) ([]byte, error) {
	if err := CheckRoute(p.Tag(), rel); err != nil {
		return nil, err
	}
	buf := make([]byte, p.Size())
	if _, err := p.Encode(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Marshal 按默认路由编码
func Marshal(p Packet) ([]byte, error) {
	_, rel := RouteFor(p.Tag())
	return EncodeFor(rel, p)
}
