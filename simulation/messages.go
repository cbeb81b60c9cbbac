package simulation

import "fmt"

// MessageType 定义了广播消息的类型，便于识别
type MessageType string

const (
	MsgTypeBid MessageType = "BID" // 对每个伤员的出价
)

// BaseMessage 包含了所有广播消息的通用头部信息
type BaseMessage struct {
	Sender    int         `json:"sender"`    // 发送方无人机下标
	MessageID string      `json:"messageID"` // 唯一的消息ID
	Step      int         `json:"step"`      // 发送时的逻辑步
	Type      MessageType `json:"type"`      // 消息的具体类型
}

// BidMessage 是无人机在每个逻辑步广播的出价向量，长度为 n_targets。
type BidMessage struct {
	BaseMessage
	Bids []float64 `json:"bids"`
}

// NewBidMessage 是 BidMessage 的构造函数，出价会被复制一份。
func NewBidMessage(sender, step int, bids []float64) BidMessage {
	return BidMessage{
		BaseMessage: BaseMessage{
			Sender:    sender,
			MessageID: fmt.Sprintf("BID-%d-%d", step, sender),
			Step:      step,
			Type:      MsgTypeBid,
		},
		Bids: append([]float64(nil), bids...),
	}
}
