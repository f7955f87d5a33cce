// Package costs records AI spend entries and aggregates them into daily
// rollups.
//
// Amounts are stored as integer micro-units so that a rollup total is always
// exactly the sum of its category subtotals.
package costs
