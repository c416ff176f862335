// Package regular implements the recurring-message engine: parsing of
// human-entered recurrence periods, next-fire-time resolution, the durable
// entry store and the rate-limited delivery loop.
//
// The user-facing grammar is Russian ("д" daily, "2ч15м" every 2h15m,
// weekday and month names, "N недель") and is kept verbatim for
// compatibility with existing user habits.
package regular
