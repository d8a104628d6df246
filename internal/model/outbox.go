package model

import (
	"encoding/json"

	"gorm.io/gorm"
)

// 事件主题
const (
	TopicTransferEvents = "chainless_events_transfer"
	TopicManageEvents   = "chainless_events_manage"
)

// TransferEvent 转账阶段变化事件
type TransferEvent struct {
	OrderID     string      `json:"order_id"`
	Sender      string      `json:"sender"`
	Receiver    string      `json:"receiver"`
	CoinType    CoinType    `json:"coin_type"`
	Amount      string      `json:"amount"`
	TxType      TxType      `json:"tx_type"`
	Stage       TxStage     `json:"stage"`
	ChainStatus ChainStatus `json:"chain_status"`
}

// ManageEvent 钱包管理记录状态变化事件
type ManageEvent struct {
	RecordID      string        `json:"record_id"`
	AccountID     string        `json:"account_id"`
	OperationType OperationType `json:"operation_type"`
	Status        ChainStatus   `json:"status"`
	TxIDs         []string      `json:"tx_ids"`
}

// NewTransferEvent 由转账当前状态生成事件
func NewTransferEvent(tx *CoinTransaction) TransferEvent {
	return TransferEvent{
		OrderID:     tx.OrderID,
		Sender:      tx.Sender,
		Receiver:    tx.Receiver,
		CoinType:    tx.CoinType,
		Amount:      tx.Amount.String(),
		TxType:      tx.TxType,
		Stage:       tx.Stage,
		ChainStatus: tx.ChainStatus,
	}
}

// CreateOutboxMessage 在同一个事务中创建业务数据和 Outbox 消息
// key 作为 MQ 分区键，同一账户的事件保持有序
func CreateOutboxMessage(tx *gorm.DB, topic, key string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := OutboxMessage{
		Topic:   topic,
		Key:     key,
		Payload: payloadBytes,
		Status:  "PENDING",
	}

	return tx.Create(&msg).Error
}
