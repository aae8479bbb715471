// Package gatekeeper decides whether the highest-cost model may run for a
// query.
//
// A query is first matched against category keyword tables. Mandatory
// categories (strategy, architecture, client communication, executive) are
// checked before skip categories (code implementation, simple debugging,
// syntax errors). The decision then follows a fixed precedence:
//
//  1. mandatory and remaining budget >= floor: INVOKE
//  2. mandatory otherwise: BUDGET_BLOCK
//  3. skip: SKIP, whatever the budget
//  4. monthly spend above the budget gate: BUDGET_BLOCK
//  5. highest tier and remaining budget >= floor: INVOKE
//  6. highest tier otherwise: BUDGET_BLOCK
//  7. SKIP
//
// When the answer is not INVOKE, RecommendDegradation names a cheaper model
// to take the final step instead.
package gatekeeper
