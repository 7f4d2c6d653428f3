package view

import (
	"context"
	"fmt"
	"time"
)

const dbTimeout = 5 * time.Second

// FormatAmount formats an amount stored in paise into rupees.
func FormatAmount(paise int64) string {
	return fmt.Sprintf("%.2f", float64(paise)/100.0)
}

// FormatDate formats a time.Time into YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}
