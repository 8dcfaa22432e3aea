package store

// sqlite models

const (
	ExecutionStatusConfirmed   = "confirmed"
	// broadcast, but the receipt was not seen before the wait timed out
	ExecutionStatusUnconfirmed = "unconfirmed"
)

type Execution struct {
	Id              uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalId      uint64 `gorm:"index" json:"proposal_id"`
	TxHash          string `json:"tx_hash"`
	Status          string `json:"status"`
	CreateTimestamp int64  `json:"create_timestamp"`
}

const (
	RelayStatusRelayed = "relayed"
	RelayStatusFailed  = "failed"
)

type RelayRecord struct {
	Id              uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Forwarder       string `json:"forwarder"`
	FromAddress     string `gorm:"index" json:"from_address"`
	ToAddress       string `json:"to_address"`
	Nonce           string `json:"nonce"`
	TxHash          string `json:"tx_hash"`
	Status          string `json:"status"`
	Error           string `json:"error"`
	CreateTimestamp int64  `json:"create_timestamp"`
}
