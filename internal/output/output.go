// Package output renders filtered transactions for replay harnesses.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"txcorpus/internal/domain"
)

type Format string

const (
	FormatSimple Format = "simple"
	FormatJSON   Format = "json"
)

const (
	sentinelPrefix = "TRANSACTION_DATA:"
	sentinelStart  = sentinelPrefix + "START"
	sentinelEnd    = sentinelPrefix + "END"
	fieldSeparator = "|"
)

// ParseFormat maps a selector to a Format. Unknown selectors fall back to
// FormatSimple and report ok=false.
func ParseFormat(raw string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatSimple:
		return FormatSimple, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return FormatSimple, false
	}
}

func Encode(txs []domain.FilteredTransaction, format Format) string {
	switch format {
	case FormatJSON:
		return EncodeJSON(txs)
	default:
		return EncodeSimple(txs)
	}
}

// EncodeSimple renders
//
//	<count>|hash|from|to|value|data|blockNumber|txIndex|gasPrice|...
//
// with "0" for an empty list.
func EncodeSimple(txs []domain.FilteredTransaction) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(txs)))
	for _, tx := range txs {
		for _, field := range [...]string{
			tx.Hash,
			tx.From,
			tx.To,
			tx.Value,
			tx.Data,
			tx.BlockNumber,
			tx.TransactionIndex,
			tx.GasPrice,
		} {
			b.WriteString(fieldSeparator)
			b.WriteString(field)
		}
	}
	return b.String()
}

func EncodeJSON(txs []domain.FilteredTransaction) string {
	if txs == nil {
		txs = []domain.FilteredTransaction{}
	}
	payload, err := json.Marshal(txs)
	if err != nil {
		return "[]"
	}
	return string(payload)
}

// WriteFramed writes the payload between the start and end sentinel lines.
func WriteFramed(w io.Writer, payload string) error {
	_, err := fmt.Fprintf(w, "%s\n%s%s\n%s\n", sentinelStart, sentinelPrefix, payload, sentinelEnd)
	return err
}
