// Package classify maps a query to a cost/latency tier.
//
// Classification is a pure function of the query text, its token count and
// optional metadata. Rules are evaluated top to bottom and the first match
// wins; a query that matches nothing lands in the simple tier.
//
// The default order is:
//
//  1. explicit tags (@council_v2, @council_lite, @research)
//  2. simple implementation keywords ("fix this", "implement a")
//  3. external documentation keywords ("pricing", "changelog")
//  4. architecture and comparison keywords ("refactor", " vs ")
//  5. tier_1
//
// Simple implementation keywords sit above architecture keywords so that
// ambiguous queries fall to the cheap tier.
package classify
