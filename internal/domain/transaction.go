package domain

// FilteredTransaction is a transaction addressed to the target contract.
// BlockNumber and TransactionIndex are decimal strings.
type FilteredTransaction struct {
	Hash             string `json:"hash"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Data             string `json:"data"`
	BlockNumber      string `json:"block_number"`
	TransactionIndex string `json:"transaction_index"`
	GasPrice         string `json:"gas_price"`
}

// FetchOutcome is the result of fetching and filtering a single block.
type FetchOutcome struct {
	BlockNumber  uint64
	Transactions []FilteredTransaction
	Err          error
}
