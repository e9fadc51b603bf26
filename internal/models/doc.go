// Package models defines the core domain records of the shared-expense ledger.
//
// # Records
//
//   - User: a person that can belong to groups. Referenced by ID everywhere else.
//   - Group: an ordered member list plus an owner (the creator).
//   - Expense: one payment by a member, divided among participants by a SplitType.
//   - Settlement: a direct payment from one member to another.
//   - Balance: a derived "from owes to" amount, produced by the settlement
//     simplifier and never persisted.
//
// # Design Principles
//
//  1. Amounts are money.Amount (whole cents), never floats.
//  2. Relationships are ID strings, not pointers.
//  3. Expenses and settlements are append-only; an edit is delete + re-add, a
//     correction is an opposite settlement.
package models
