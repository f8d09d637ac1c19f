// Package earn describes the earn contract a bid is placed against.
package earn

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ErrInvalidContractID is returned when a routed contract identifier cannot be
// turned into an on-chain uint256 id.
var ErrInvalidContractID = errors.New("invalid earn contract id")

// CloseDateLayout renders close dates as MM-DD-YYYY.
const CloseDateLayout = "01-02-2006"

const idPrefix = "0x"

// AltaTicker is the reward token shown next to the ALTA redemption value.
const AltaTicker = "ALTA"

// Contract is a read-only snapshot of an earn contract supplied by the host.
type Contract struct {
	TokenAddress   common.Address  `json:"token"`
	TokenTicker    string          `json:"token_ticker"`
	StartTime      int64           `json:"start_time"`
	ContractLength int64           `json:"contract_length"`
	BaseRedemption decimal.Decimal `json:"base_redemption"`
	AltaRedemption decimal.Decimal `json:"alta_redemption"`
}

// CloseTime is the moment the contract stops accepting bids.
func (c Contract) CloseTime() time.Time {
	return time.Unix(c.StartTime+c.ContractLength, 0).UTC()
}

// Summary is the contract detail block shown alongside the bid form.
type Summary struct {
	CloseDate      string `json:"close_date"`
	Network        string `json:"network"`
	TokenTicker    string `json:"token_ticker"`
	BaseRedemption string `json:"base_redemption"`
	AltaTicker     string `json:"alta_ticker"`
	AltaRedemption string `json:"alta_redemption"`
}

// Summarize builds the detail block for the given network name.
func (c Contract) Summarize(network string) Summary {
	return Summary{
		CloseDate:      c.CloseTime().Format(CloseDateLayout),
		Network:        upperFirst(network),
		TokenTicker:    c.TokenTicker,
		BaseRedemption: wholeWithCommas(c.BaseRedemption),
		AltaTicker:     AltaTicker,
		AltaRedemption: wholeWithCommas(c.AltaRedemption),
	}
}

// ParseContractID converts the routed identifier ("0x" followed by a base-10
// integer) into the id passed to makeOffer.
func ParseContractID(raw string) (*big.Int, error) {
	if len(raw) < len(idPrefix) || !strings.EqualFold(raw[:len(idPrefix)], idPrefix) {
		return nil, fmt.Errorf("%w: %q missing %s prefix", ErrInvalidContractID, raw, idPrefix)
	}
	digits := raw[len(idPrefix):]
	if digits == "" {
		return nil, fmt.Errorf("%w: %q has no digits", ErrInvalidContractID, raw)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidContractID, raw)
		}
	}

	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	id, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidContractID, raw, err)
	}
	return id.ToBig(), nil
}

func wholeWithCommas(d decimal.Decimal) string {
	return humanize.BigComma(d.Round(0).BigInt())
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
