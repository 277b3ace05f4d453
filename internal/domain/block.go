package domain

// Block is a block as returned by the remote source. Number is the canonical
// block number; RawNumber keeps the wire encoding for normalization.
type Block struct {
	Number        uint64
	RawNumber     string
	BaseFeePerGas string
	Transactions  []RawTransaction
}

// RawTransaction is a transaction inside a fetched block. A nil To marks a
// contract creation.
type RawTransaction struct {
	Hash             string
	From             string
	To               *string
	Value            string
	Input            string
	TransactionIndex string
	GasPrice         string
}
