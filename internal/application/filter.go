package application

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"txcorpus/internal/domain"
)

// NormalizationError reports a numeric field that is neither 0x-prefixed hex
// nor a plain decimal integer.
type NormalizationError struct {
	Field string
	Value string
	Err   error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

var errNoDigits = errors.New("no hex digits")

// FilterTransactions returns the transactions of block sent to target, in
// ascending transaction index order. Addresses compare case-insensitively and
// contract creations never match.
func FilterTransactions(block domain.Block, target string) ([]domain.FilteredTransaction, error) {
	target = strings.ToLower(strings.TrimSpace(target))

	type match struct {
		index uint64
		tx    domain.FilteredTransaction
	}
	var (
		matches     []match
		blockNumber string
	)
	for _, tx := range block.Transactions {
		if tx.To == nil || *tx.To == "" || strings.ToLower(*tx.To) != target {
			continue
		}
		if blockNumber == "" {
			decoded, err := normalizeQuantity("block number", blockNumberWire(block))
			if err != nil {
				return nil, err
			}
			blockNumber = strconv.FormatUint(decoded, 10)
		}
		index, err := normalizeQuantity("transaction index", tx.TransactionIndex)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match{
			index: index,
			tx: domain.FilteredTransaction{
				Hash:             tx.Hash,
				From:             tx.From,
				To:               *tx.To,
				Value:            tx.Value,
				Data:             tx.Input,
				BlockNumber:      blockNumber,
				TransactionIndex: strconv.FormatUint(index, 10),
				GasPrice:         tx.GasPrice,
			},
		})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].index < matches[b].index
	})
	filtered := make([]domain.FilteredTransaction, 0, len(matches))
	for _, m := range matches {
		filtered = append(filtered, m.tx)
	}
	return filtered, nil
}

func blockNumberWire(block domain.Block) string {
	if block.RawNumber != "" {
		return block.RawNumber
	}
	return strconv.FormatUint(block.Number, 10)
}

// normalizeQuantity decodes a wire quantity that is either 0x-prefixed hex or
// decimal.
func normalizeQuantity(field, value string) (uint64, error) {
	var (
		decoded uint64
		err     error
	)
	switch {
	case strings.HasPrefix(value, "0x"), strings.HasPrefix(value, "0X"):
		digits := value[2:]
		if digits == "" {
			return 0, &NormalizationError{Field: field, Value: value, Err: errNoDigits}
		}
		decoded, err = strconv.ParseUint(digits, 16, 64)
	default:
		decoded, err = strconv.ParseUint(value, 10, 64)
	}
	if err != nil {
		return 0, &NormalizationError{Field: field, Value: value, Err: err}
	}
	return decoded, nil
}
