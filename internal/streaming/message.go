package streaming

import (
	"encoding/json"
	"errors"
)

type MessageType string

const (
	MessageTypeTransaction MessageType = "transaction"
	MessageTypeRunSummary  MessageType = "run_summary"
)

type Message struct {
	Type             MessageType `json:"type"`
	Target           string      `json:"target"`
	TraceID          string      `json:"trace_id,omitempty"`
	StartBlock       uint64      `json:"start_block"`
	EndBlock         uint64      `json:"end_block"`
	Hash             string      `json:"hash,omitempty"`
	From             string      `json:"from,omitempty"`
	To               string      `json:"to,omitempty"`
	Value            string      `json:"value,omitempty"`
	Data             string      `json:"data,omitempty"`
	BlockNumber      string      `json:"block_number,omitempty"`
	TransactionIndex string      `json:"transaction_index,omitempty"`
	GasPrice         string      `json:"gas_price,omitempty"`
	BlocksSucceeded  int         `json:"blocks_succeeded,omitempty"`
	BlocksFailed     int         `json:"blocks_failed,omitempty"`
	FailedBlocks     []uint64    `json:"failed_blocks,omitempty"`
	Transactions     int         `json:"transactions,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.Target == "" {
		return nil, errors.New("target is required")
	}
	if msg.Type == MessageTypeTransaction && msg.Hash == "" {
		return nil, errors.New("transaction hash is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.Target == "" {
		return Message{}, errors.New("target is missing")
	}
	return msg, nil
}
