package main

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// listRules prints every registered rule with its state.
func listRules(w io.Writer, app *application) {
	disabled := app.engine.Disabled()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFAMILY\tSTATE\tPREDICATE")
	for _, rule := range app.registry.All() {
		state := "active"
		if err, off := disabled[rule.ID]; off {
			state = "disabled: " + err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rule.ID, rule.Family, state, rule.Predicate)
	}
	_ = tw.Flush()
}
