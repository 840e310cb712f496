package netsim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

// 记录字段号
const (
	fieldTime    protowire.Number = 1 // 投递时间（Unix 微秒）
	fieldPeer    protowire.Number = 2
	fieldChannel protowire.Number = 3
	fieldPayload protowire.Number = 4
)

// Record 一条抓包记录
type Record struct {
	Time    time.Time
	Peer    core.PeerID
	Channel protocol.Channel
	Payload []byte
}

// Recorder 把投递的包写成长度前缀的 protobuf 记录，便于离线回放
type Recorder struct {
	mu  sync.Mutex
	w   io.Writer
	n   int
	err error
}

// NewRecorder 创建记录器
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Record 追加一条记录，写失败后不再写入
func (r *Recorder) Record(at time.Time, peer core.PeerID, ch protocol.Channel, payload []byte) {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldTime, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(at.UnixMicro()))
	msg = protowire.AppendTag(msg, fieldPeer, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(peer))
	msg = protowire.AppendTag(msg, fieldChannel, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(ch))
	msg = protowire.AppendTag(msg, fieldPayload, protowire.BytesType)
	msg = protowire.AppendBytes(msg, payload)

	frame := protowire.AppendBytes(nil, msg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if _, err := r.w.Write(frame); err != nil {
		r.err = err
		return
	}
	r.n++
}

// Count 已写入的记录数
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Err 第一次写入错误
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

var ErrCorruptRecord = errors.New("netsim: corrupt record")

// ReadRecords 读出全部记录
func ReadRecords(rd io.Reader) ([]Record, error) {
	br := bufio.NewReader(rd)
	var out []Record
	for {
		size, err := readUvarint(br)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(br, buf); err != nil {
			return out, fmt.Errorf("record %d: %w", len(out), ErrCorruptRecord)
		}
		rec, err := parseRecord(buf)
		if err != nil {
			return out, fmt.Errorf("record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

// readUvarint 逐字节读取 varint，开头就是 EOF 时原样返回 io.EOF
func readUvarint(br *bufio.Reader) (uint64, error) {
	var buf []byte
	for i := 0; i < 10; i++ {
		b, err := br.ReadByte()
		if err != nil {
			if i == 0 {
				return 0, err
			}
			return 0, ErrCorruptRecord
		}
		buf = append(buf, b)
		if b < 0x80 {
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return 0, ErrCorruptRecord
			}
			return v, nil
		}
	}
	return 0, ErrCorruptRecord
}

func parseRecord(b []byte) (Record, error) {
	var rec Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return rec, ErrCorruptRecord
		}
		b = b[n:]
		switch {
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return rec, ErrCorruptRecord
			}
			rec.Payload = append([]byte(nil), v...)
			b = b[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return rec, ErrCorruptRecord
			}
			switch num {
			case fieldTime:
				rec.Time = time.UnixMicro(int64(v))
			case fieldPeer:
				rec.Peer = core.PeerID(v)
			case fieldChannel:
				rec.Channel = protocol.Channel(v)
			}
			b = b[n:]
		default:
			// 未知字段跳过，保持向前兼容
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return rec, ErrCorruptRecord
			}
			b = b[n:]
		}
	}
	return rec, nil
}
