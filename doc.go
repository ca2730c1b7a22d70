// Package portfolio is a ledger-based portfolio accounting engine. It
// ingests trades and cash movements, derives per-asset cost-basis positions
// and produces point-in-time valuations and PnL summaries that stay
// consistent while the ledger is being appended to.
//
// The core functionalities include:
//   - Ledger: trades, cash transactions and splits are appended to a
//     versioned, append-only Store. Every record carries the portfolio
//     version that created it, so any past state can be read again.
//   - Cost basis: the position in an asset is a pure fold over its ordered
//     timeline, under the average cost or the FIFO method chosen for the
//     portfolio (see Replay).
//   - Valuation: holdings are joined with external prices and exchange
//     rates. A missing price degrades the position to null derived fields
//     rather than failing.
//   - Snapshots: PnL summaries and dashboard stats pin one ledger version and
//     read everything they need at that version, in parallel.
//
// All amounts are exact decimals and are only rounded to the currency minor
// unit when reported.
//
// This package serves as the foundational logic for the `pcs` command-line
// tool and its HTTP server.
package portfolio
