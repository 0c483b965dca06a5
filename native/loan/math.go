package loan

import "math/big"

var basisPoints = big.NewInt(10_000)

// RepaymentDue computes principal plus simple, non-compounding interest.
// The division truncates, so rounding always lands in the borrower's favour:
// 1000 at 500 bps owes 1050, while 1 at 500 bps owes exactly 1.
func RepaymentDue(principal *big.Int, rateBps uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	interest = interest.Quo(interest, basisPoints)
	return new(big.Int).Add(principal, interest)
}
