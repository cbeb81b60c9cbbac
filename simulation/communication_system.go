package simulation

import (
	"log"
	"sync"
)

// CommunicationSystem 是无人机之间的广播信道。
// 每架无人机只保留最近一次广播的出价，所有无人机都能收到全部消息。
type CommunicationSystem struct {
	nTargets int

	mu      sync.RWMutex
	latest  []BidMessage
	dropped uint64 // 发送方或长度非法而被丢弃的消息
	total   uint64 // 成功广播的消息
}

// CommStats 是信道的原始统计。
type CommStats struct {
	TotalBroadcasts uint64
	TotalDropped    uint64
}

// NewCommunicationSystem 是 CommunicationSystem 的构造函数。
func NewCommunicationSystem(nDrones, nTargets int) *CommunicationSystem {
	cs := &CommunicationSystem{nTargets: nTargets}
	cs.resetLocked(nDrones)
	return cs
}

// Reset 清空所有消息，出价回到全零。
func (cs *CommunicationSystem) Reset(nDrones int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.resetLocked(nDrones)
}

func (cs *CommunicationSystem) resetLocked(nDrones int) {
	cs.latest = make([]BidMessage, nDrones)
	for i := range cs.latest {
		cs.latest[i] = NewBidMessage(i, 0, make([]float64, cs.nTargets))
	}
	cs.total, cs.dropped = 0, 0
}

// Broadcast 覆盖发送方最近一次的消息。出价长度不足时补零，多余部分截断。
func (cs *CommunicationSystem) Broadcast(msg BidMessage) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if msg.Sender < 0 || msg.Sender >= len(cs.latest) {
		cs.dropped++
		log.Printf("⚠️  [无人机 %d] 发送方不存在，消息 %s 被丢弃", msg.Sender, msg.MessageID)
		return
	}
	bids := make([]float64, cs.nTargets)
	copy(bids, msg.Bids)
	msg.Bids = bids
	cs.latest[msg.Sender] = msg
	cs.total++
}

// Latest 返回无人机 sender 最近一次广播的消息。
func (cs *CommunicationSystem) Latest(sender int) BidMessage {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	m := cs.latest[sender]
	m.Bids = append([]float64(nil), m.Bids...)
	return m
}

// Messages 按发送方下标返回所有最近出价的副本，可直接构成出价矩阵。
func (cs *CommunicationSystem) Messages() [][]float64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([][]float64, len(cs.latest))
	for i, m := range cs.latest {
		out[i] = append([]float64(nil), m.Bids...)
	}
	return out
}

// GetRawStats 返回广播统计。
func (cs *CommunicationSystem) GetRawStats() CommStats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return CommStats{TotalBroadcasts: cs.total, TotalDropped: cs.dropped}
}
