package engine

import (
	"fmt"
	"io"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// WriteReport renders the end-of-run summary as plain text.
func WriteReport(w io.Writer, r domain.RunReport) error {
	_, err := fmt.Fprintf(w,
		"\n=== %s RESULTS (%s) ===\n"+
			"Updates Processed: %d\n"+
			"Malformed Skipped: %d\n"+
			"Trades Executed:   %d\n"+
			"Risk Rejections:   %d\n"+
			"Starting Equity:   $%.2f\n"+
			"Final Equity:      $%.2f\n"+
			"Net PnL:           $%.2f\n"+
			"========================\n",
		modeTitle(r.Mode), r.Symbol,
		r.Processed, r.Malformed, r.Trades, r.Rejected,
		r.StartingEquity, r.FinalEquity, r.NetPnL,
	)
	return err
}

func modeTitle(mode string) string {
	switch mode {
	case "replay":
		return "BACKTEST"
	case "live":
		return "LIVE"
	default:
		return "RUN"
	}
}
