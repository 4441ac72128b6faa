package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Violation struct {
	Code string
	Msg  string
}

func (v Violation) Error() string { return v.Code + ": " + v.Msg }

// Check reports whether a buy of capital can be funded from balance.
// The threshold strategy alone can never trip this; balance nudges can.
func Check(balance, capital decimal.Decimal) *Violation {
	if !capital.IsPositive() {
		return &Violation{Code: "NO_CAPITAL", Msg: "capital must be positive"}
	}
	if balance.LessThan(capital) {
		return &Violation{
			Code: "INSUFFICIENT_BALANCE",
			Msg:  fmt.Sprintf("balance %s below slot capital %s", balance.StringFixed(2), capital.StringFixed(2)),
		}
	}
	return nil
}
