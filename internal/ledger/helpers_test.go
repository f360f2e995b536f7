package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func decimalInt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
