// Package batch is a bounded fan-out/fan-in helper for processing many
// independent items.
//
// One item's failure is recorded and never aborts the batch or affects
// other items. A per-item completion callback, when supplied, runs after
// every item; a panic or error inside the callback is swallowed and
// logged so observer bugs cannot corrupt batch results.
package batch
