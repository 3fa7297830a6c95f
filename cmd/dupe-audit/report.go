package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/audit"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
)

type auditOptions struct {
	Sport      string
	Market     string
	CrossCheck bool
	Limit      int64
	JSON       bool
}

// auditDeps are the stores the audit reads. Ranked is only needed for
// the cross-check.
type auditDeps struct {
	Identities contracts.IdentityStore
	Ranked     contracts.RankIndex
}

type auditOutput struct {
	Sport      string            `json:"sport"`
	Market     string            `json:"market,omitempty"`
	Report     audit.Report      `json:"report"`
	Collisions []audit.Collision `json:"collisions,omitempty"`
	Ranked     int               `json:"ranked_checked,omitempty"`
}

func runAudit(ctx context.Context, opts auditOptions, deps auditDeps, out io.Writer) error {
	records, err := deps.Identities.ListIdentities(ctx, opts.Sport, opts.Market)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}

	result := auditOutput{
		Sport:  opts.Sport,
		Market: opts.Market,
		Report: audit.Audit(records),
	}

	if opts.CrossCheck {
		if deps.Ranked == nil {
			return fmt.Errorf("cross-check requested without a ranked index")
		}
		ranked, err := deps.Ranked.Ranked(ctx, opts.Sport, opts.Limit)
		if err != nil {
			return fmt.Errorf("read ranked index: %w", err)
		}
		result.Ranked = len(ranked)
		result.Collisions = audit.CrossCheck(result.Report, ranked)
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printReport(out, result, opts.CrossCheck)
}

func printReport(out io.Writer, result auditOutput, crossChecked bool) error {
	scope := result.Sport
	if result.Market != "" {
		scope += " / " + result.Market
	}
	fmt.Fprintf(out, "Duplicate audit: %s\n\n", scope)

	r := result.Report
	if r.HasDuplicates() {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LOGICAL ID\tCOUNT\tSTORAGE IDS")
		for _, g := range r.Groups {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", g.LogicalID, len(g.IDs), strings.Join(g.IDs, ", "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, "No duplicate identities found.")
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Logical rows:      %d\n", r.TotalLogicalRows)
	fmt.Fprintf(out, "Storage ids:       %d\n", r.TotalIdentifiers)
	fmt.Fprintf(out, "Wasted ids:        %d\n", r.Wasted)
	fmt.Fprintf(out, "Duplicate groups:  %d\n", len(r.Groups))
	fmt.Fprintf(out, "Efficiency:        %.1f%%\n", r.Percent())

	if !crossChecked {
		return nil
	}

	fmt.Fprintf(out, "\nRanked entries checked: %d\n", result.Ranked)
	if len(result.Collisions) == 0 {
		fmt.Fprintln(out, "No duplicate is visible more than once in the ranking.")
		return nil
	}
	fmt.Fprintf(out, "Visible duplicates: %d\n", len(result.Collisions))
	for _, c := range result.Collisions {
		pos := make([]string, len(c.Positions))
		for i, p := range c.Positions {
			pos[i] = fmt.Sprintf("#%d", p+1)
		}
		fmt.Fprintf(out, "  %s  ids=%s  ranks=%s\n", c.LogicalID, strings.Join(c.IDs, ","), strings.Join(pos, ","))
	}
	return nil
}
