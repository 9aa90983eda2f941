package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/smartcart/internal/app"
	"github.com/matheus3301/smartcart/internal/price"
)

func cmdSuggest(ctx context.Context, a app.App, out *output, args []string) error {
	fs := newFlags("suggest")
	retailer := fs.String("retailer", "", "")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return usage("suggest")
	}
	name := strings.Join(fs.Args(), " ")
	s, err := a.Prices.Suggest(ctx, name, *retailer)
	if err != nil {
		return err
	}
	out.emit(s, func() {
		if !s.Estimated.Valid {
			fmt.Printf("No price history for %q.\n", name)
			return
		}
		fmt.Printf("%s: about %s (%s confidence)\n", name, money(s.Estimated), s.Confidence)
		if s.LastPaid.Valid && s.LastPaidDate != nil {
			where := ""
			if s.RetailerName != "" {
				where = " at " + s.RetailerName
			}
			fmt.Printf("last paid %s%s on %s\n", money(s.LastPaid), where, day(*s.LastPaidDate))
		}
	})
	return nil
}

func cmdPrices(ctx context.Context, a app.App, out *output, args []string) error {
	sub, rest := subcommand(args, "popular")
	switch sub {
	case "history":
		fs := newFlags("prices history")
		limit := fs.Int("limit", 0, "")
		if err := fs.Parse(rest); err != nil || fs.NArg() == 0 {
			return usage("prices")
		}
		list, err := a.Prices.History(ctx, strings.Join(fs.Args(), " "), *limit)
		if err != nil {
			return err
		}
		out.emit(list, func() {
			if len(list) == 0 {
				fmt.Println("No price history.")
				return
			}
			w := table("DATE", "PRICE", "RETAILER")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", day(p.Date), p.Price.StringFixed(2), p.RetailerName)
			}
			_ = w.Flush()
		})
		return nil
	case "trends":
		if len(rest) == 0 {
			return usage("prices")
		}
		tr, err := a.Prices.Trends(ctx, strings.Join(rest, " "))
		if err != nil {
			return err
		}
		out.emit(tr, func() {
			w := table("WINDOW", "AVG", "MIN", "MAX", "COUNT")
			row := func(label string, s price.Stats) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", label,
					s.Avg.StringFixed(2), s.Min.StringFixed(2), s.Max.StringFixed(2), s.Count)
			}
			row("30 days", tr.Last30Days)
			row("90 days", tr.Last90Days)
			row("all time", tr.AllTime)
			_ = w.Flush()
		})
		return nil
	case "popular":
		fs := newFlags("prices popular")
		limit := fs.Int("limit", 0, "")
		if err := fs.Parse(rest); err != nil {
			return usage("prices")
		}
		list, err := a.Prices.PopularItems(ctx, *limit)
		if err != nil {
			return err
		}
		out.emit(list, func() {
			if len(list) == 0 {
				fmt.Println("No purchases in the last 90 days.")
				return
			}
			w := table("ITEM", "TIMES", "AVG PRICE")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\n", p.ItemName, p.Count, p.AvgPrice.StringFixed(2))
			}
			_ = w.Flush()
		})
		return nil
	}
	return usage("prices")
}
