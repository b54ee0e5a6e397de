// Package report renders run output for human consumption: a markdown run
// report with national estimates and week-over-week movement, a monitoring
// view that joins the latest forecasts to their feature snapshots with a
// qualitative risk label, and an Excel workbook export of the state rows.
package report
