// Package uabean converts bank, brokerage and crypto-exchange statement
// exports into double-entry ledger directives.
//
// Each importer is an independent, stateless batch transform from one raw
// statement file to a list of directives. The package holds the pieces the
// importers share:
//
//   - The directive model: Transaction, Posting, BalanceAssertion, Open.
//   - Merger, which collapses multiple raw statement rows that describe one
//     real-world payment (same-document legs, currency conversion pairs).
//   - DetectTransfers, a batch-wide pass that merges the two sides of an
//     inter-account transfer reported independently by each bank.
//   - Holdings, a per-(date, symbol) lot inventory assigning cost bases to
//     brokerage trades, seeded from existing ledger state so that re-imports
//     are idempotent.
//
// Provider-specific importers live under importers/, statement downloaders
// under downloaders/, and the account predictor under predict/.
package uabean
