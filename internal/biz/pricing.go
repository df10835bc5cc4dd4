package biz

import "github.com/shopspring/decimal"

// 金额统一为 4 位小数、四舍五入（half-up）。
// 单价按千单位计：charge = pricePerUnit * quantity / 1000。

var perThousand = decimal.NewFromInt(1000)

// MoneyScale 金额小数位数
const MoneyScale = 4

// ChargeFor 计算 quantity 个单位的金额
func ChargeFor(pricePerUnit decimal.Decimal, quantity int) decimal.Decimal {
	return pricePerUnit.
		Mul(decimal.NewFromInt(int64(quantity))).
		Div(perThousand).
		Round(MoneyScale)
}

// MoneyEqual 按金额精度比较
func MoneyEqual(a, b decimal.Decimal) bool {
	return a.Round(MoneyScale).Equal(b.Round(MoneyScale))
}
