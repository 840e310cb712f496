package core

import "sort"

// World 以 PeerID 为键的实体表，由会话独占
type World struct {
	Players map[PeerID]*Player
}

// NewWorld 创建空世界
func NewWorld() *World {
	return &World{Players: make(map[PeerID]*Player)}
}

// AddPlayer 添加玩家，已存在则返回原玩家
func (w *World) AddPlayer(id PeerID, spawn Vec3) *Player {
	if p, ok := w.Players[id]; ok {
		return p
	}
	p := NewPlayer(id, spawn)
	w.Players[id] = p
	return p
}

// RemovePlayer 移除玩家
func (w *World) RemovePlayer(id PeerID) {
	delete(w.Players, id)
}

// Player 获取玩家
func (w *World) Player(id PeerID) *Player {
	return w.Players[id]
}

// IDs 返回升序的玩家 ID，保证遍历顺序确定
func (w *World) IDs() []PeerID {
	ids := make([]PeerID, 0, len(w.Players))
	for id := range w.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clear 清空所有实体
func (w *World) Clear() {
	w.Players = make(map[PeerID]*Player)
}

// SpawnPoint 根据玩家 ID 分配出生点
func SpawnPoint(id PeerID) Vec3 {
	spawns := []Vec3{
		{X: -8, Z: -8},
		{X: 8, Z: -8},
		{X: -8, Z: 8},
		{X: 8, Z: 8},
	}
	// 取模，支持任意数量的玩家
	return spawns[int(id-1)%len(spawns)]
}
