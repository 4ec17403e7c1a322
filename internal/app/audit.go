package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"satsguard/internal/audit"
)

// AuditOptions configure the audit trail listing.
type AuditOptions struct {
	Kind  string
	Limit int
}

// Audit prints recent audit trail events, newest first.
func (a *App) Audit(ctx context.Context, opts AuditOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	_, _, auditStore := a.stores(store)

	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	events, err := auditStore.ListRecentEvents(ctx, audit.Kind(opts.Kind), opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no audit events recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tACTION\tDESTINATION\tAMOUNT\tALLOWED\tREASON")
	for _, event := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
			event.CreatedAt.Format(time.RFC3339),
			event.Kind,
			event.Action,
			event.Destination,
			event.AmountSats,
			event.Allowed,
			event.Reason,
		)
	}
	return w.Flush()
}
