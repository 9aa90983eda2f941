package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matheus3301/smartcart/internal/app"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/shopspring/decimal"
)

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func subcommand(args []string, def string) (string, []string) {
	if len(args) == 0 {
		return def, nil
	}
	return args[0], args[1:]
}

func cmdRetailers(ctx context.Context, a app.App, out *output, args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		list, err := a.Retailers.GetAll(ctx)
		if err != nil {
			return err
		}
		out.emit(list, func() {
			w := table("ID", "NAME", "LOCATION", "TRIPS")
			for _, r := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", pending(r.ID), r.Name, optional(r.Location), r.TripCount)
			}
			_ = w.Flush()
		})
		return nil
	case "add":
		fs := newFlags("retailers add")
		location := fs.String("location", "", "")
		if err := fs.Parse(rest); err != nil || fs.NArg() == 0 {
			return usage("retailers")
		}
		in := model.RetailerInput{Name: strings.Join(fs.Args(), " ")}
		if *location != "" {
			in.Location = location
		}
		r, err := a.Retailers.Create(ctx, in)
		if err = queued(err); err != nil {
			return err
		}
		out.emit(r, func() { fmt.Printf("Added %s (%s)\n", r.Name, pending(r.ID)) })
		return nil
	case "show":
		if len(rest) != 1 {
			return usage("retailers")
		}
		r, err := a.Retailers.GetByID(ctx, rest[0])
		if err != nil {
			return err
		}
		out.emit(r, func() {
			fmt.Printf("ID:       %s\n", pending(r.ID))
			fmt.Printf("Name:     %s\n", r.Name)
			fmt.Printf("Location: %s\n", optional(r.Location))
			fmt.Printf("Trips:    %d\n", r.TripCount)
		})
		return nil
	case "edit":
		fs := newFlags("retailers edit")
		name := fs.String("name", "", "")
		location := fs.String("location", "", "")
		if err := fs.Parse(rest); err != nil || fs.NArg() != 1 {
			return usage("retailers")
		}
		var p model.RetailerPatch
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "name":
				p.Name = name
			case "location":
				p.Location = location
			}
		})
		r, err := a.Retailers.Update(ctx, fs.Arg(0), p)
		if err = queued(err); err != nil {
			return err
		}
		out.emit(r, func() { fmt.Printf("Updated %s\n", r.Name) })
		return nil
	case "rm":
		if len(rest) != 1 {
			return usage("retailers")
		}
		if err := queued(a.Retailers.Delete(ctx, rest[0])); err != nil {
			return err
		}
		out.emit(map[string]string{"deleted": rest[0]}, func() { fmt.Println("Deleted") })
		return nil
	}
	return usage("retailers")
}

var statusVerbs = map[string]model.TripStatus{
	"start":    model.StatusActive,
	"complete": model.StatusCompleted,
	"plan":     model.StatusPlanned,
	"archive":  model.StatusArchived,
}

func cmdTrips(ctx context.Context, a app.App, out *output, args []string) error {
	sub, rest := subcommand(args, "list")
	if to, ok := statusVerbs[sub]; ok {
		if len(rest) != 1 {
			return usage("trips")
		}
		t, err := a.Trips.UpdateStatus(ctx, rest[0], to)
		if err = queued(err); err != nil {
			return err
		}
		out.emit(t, func() { fmt.Printf("%s is now %s\n", t.Name, t.Status) })
		return nil
	}

	switch sub {
	case "list":
		fs := newFlags("trips list")
		status := fs.String("status", "", "")
		retailer := fs.String("retailer", "", "")
		from := fs.String("from", "", "")
		to := fs.String("to", "", "")
		limit := fs.Int("limit", 0, "")
		if err := fs.Parse(rest); err != nil {
			return usage("trips")
		}
		f := model.TripFilter{
			Status:     model.TripStatus(*status),
			RetailerID: *retailer,
			Limit:      *limit,
		}
		var err error
		if f.DateFrom, err = parseDay(*from); err != nil {
			return err
		}
		if f.DateTo, err = parseDay(*to); err != nil {
			return err
		}
		list, err := a.Trips.GetAll(ctx, f)
		if err != nil {
			return err
		}
		out.emit(list, func() { printTrips(list) })
		return nil
	case "add":
		fs := newFlags("trips add")
		retailer := fs.String("retailer", "", "")
		date := fs.String("date", "", "")
		if err := fs.Parse(rest); err != nil || fs.NArg() == 0 || *retailer == "" {
			return usage("trips")
		}
		in := model.TripInput{Name: strings.Join(fs.Args(), " "), RetailerID: *retailer}
		d, err := parseDay(*date)
		if err != nil {
			return err
		}
		if d != nil {
			in.Date = *d
		}
		t, err := a.Trips.Create(ctx, in)
		if err = queued(err); err != nil {
			return err
		}
		out.emit(t, func() { fmt.Printf("Planned %s for %s (%s)\n", t.Name, day(t.Date), pending(t.ID)) })
		return nil
	case "show":
		if len(rest) != 1 {
			return usage("trips")
		}
		t, err := a.Trips.GetByID(ctx, rest[0])
		if err != nil {
			return err
		}
		out.emit(t, func() { printTrip(t) })
		return nil
	case "active":
		t, err := a.Trips.GetActive(ctx)
		if err != nil {
			return err
		}
		out.emit(t, func() {
			if t == nil {
				fmt.Println("No active trip.")
				return
			}
			printTrip(*t)
		})
		return nil
	case "rm":
		if len(rest) != 1 {
			return usage("trips")
		}
		if err := queued(a.Trips.Delete(ctx, rest[0])); err != nil {
			return err
		}
		out.emit(map[string]string{"deleted": rest[0]}, func() { fmt.Println("Deleted") })
		return nil
	}
	return usage("trips")
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: want YYYY-MM-DD", s)
	}
	return &d, nil
}

func printTrips(list []model.Trip) {
	if len(list) == 0 {
		fmt.Println("No trips found.")
		return
	}
	w := table("ID", "DATE", "NAME", "RETAILER", "STATUS", "ESTIMATED", "ACTUAL")
	for _, t := range list {
		retailer := t.RetailerID
		if t.Retailer != nil {
			retailer = t.Retailer.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", pending(t.ID), day(t.Date), t.Name, retailer,
			t.Status, t.EstimatedTotal.StringFixed(2), t.ActualTotal.StringFixed(2))
	}
	_ = w.Flush()
}

func printTrip(t model.Trip) {
	fmt.Printf("%s  %s  [%s]\n", t.Name, day(t.Date), t.Status)
	if t.Retailer != nil {
		fmt.Printf("at %s\n", t.Retailer.Name)
	}
	fmt.Printf("estimated %s, actual %s\n\n", t.EstimatedTotal.StringFixed(2), t.ActualTotal.StringFixed(2))
	printItems(t.Items)
}

func printItems(items []model.TripItem) {
	if len(items) == 0 {
		fmt.Println("No items.")
		return
	}
	w := table("", "ID", "ITEM", "QTY", "ESTIMATED", "ACTUAL")
	for _, it := range items {
		mark := "[ ]"
		if it.IsCompleted {
			mark = "[x]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\t%s\n", mark, pending(it.ID), it.ItemName, it.Quantity,
			money(it.EstimatedPrice), money(it.ActualPrice))
	}
	_ = w.Flush()
}

func cmdItems(ctx context.Context, a app.App, out *output, args []string) error {
	sub, rest := subcommand(args, "")
	switch sub {
	case "list":
		if len(rest) != 1 {
			return usage("items")
		}
		items, err := a.Items.GetByTripID(ctx, rest[0])
		if err != nil {
			return err
		}
		out.emit(items, func() { printItems(items) })
		return nil
	case "add":
		fs := newFlags("items add")
		qty := fs.Float64("qty", 1, "")
		price := fs.String("price", "", "")
		if err := fs.Parse(rest); err != nil || fs.NArg() < 2 {
			return usage("items")
		}
		in := model.ItemInput{ItemName: strings.Join(fs.Args()[1:], " "), Quantity: *qty}
		if *price != "" {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return fmt.Errorf("bad price %q", *price)
			}
			in.EstimatedPrice = &d
		}
		it, err := a.Items.Create(ctx, fs.Arg(0), in)
		if err = queued(err); err != nil {
			return err
		}
		out.emit(it, func() { fmt.Printf("Added %g x %s (%s)\n", it.Quantity, it.ItemName, pending(it.ID)) })
		return nil
	case "price":
		if len(rest) != 2 {
			return usage("items")
		}
		d, err := decimal.NewFromString(rest[1])
		if err != nil {
			return fmt.Errorf("bad price %q", rest[1])
		}
		it, err := a.Items.UpdatePrice(ctx, rest[0], d)
		if err = queued(err); err != nil {
			return err
		}
		out.emit(it, func() { fmt.Printf("%s paid %s\n", it.ItemName, money(it.ActualPrice)) })
		return nil
	case "check":
		if len(rest) != 1 {
			return usage("items")
		}
		it, err := a.Items.ToggleCompleted(ctx, rest[0])
		if err = queued(err); err != nil {
			return err
		}
		out.emit(it, func() {
			state := "not done"
			if it.IsCompleted {
				state = "done"
			}
			fmt.Printf("%s marked %s\n", it.ItemName, state)
		})
		return nil
	case "rm":
		if len(rest) != 1 {
			return usage("items")
		}
		if err := queued(a.Items.Delete(ctx, rest[0])); err != nil {
			return err
		}
		out.emit(map[string]string{"deleted": rest[0]}, func() { fmt.Println("Deleted") })
		return nil
	}
	return usage("items")
}
