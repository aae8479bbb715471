// Package cost estimates what a query will cost before anything is
// dispatched and decides whether the budget allows it.
//
// Input tokens are estimated at four characters per token. Output per model
// comes from the pricing table's output profile. Checks run in order:
// per-query ceiling, remaining monthly budget, then the tier's share of the
// monthly budget; the first failure supplies the reason.
package cost
