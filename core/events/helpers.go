package events

import (
	"strings"

	"github.com/holiman/uint256"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func amountString(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
