package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"misgastos/internal/amqp"
	"misgastos/internal/cli"
	"misgastos/internal/core"
	"misgastos/internal/services"
	"misgastos/internal/worker"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

type env struct {
	app *cli.App
	out io.Writer
	now func() time.Time
}

var commands []command

func init() {
	commands = []command{
		{"init", "create the database and default categories", cmdInit},
		{"opening-balance", "show or set (-set AMOUNT) the opening balance", cmdOpeningBalance},
		{"balance", "show the current balance", cmdBalance},
		{"stats", "show totals and movement count", cmdStats},
		{"categories", "list categories [-kind income|expense]", cmdCategories},
		{"add-category", "add a category -name N -kind K", cmdAddCategory},
		{"delete-category", "delete an unused category -id ID", cmdDeleteCategory},
		{"add", "add a movement -category ID -amount A -kind K [-date D] [-description S]", cmdAdd},
		{"edit", "edit a movement -id ID [-category] [-amount] [-kind] [-date] [-description]", cmdEdit},
		{"delete", "delete a movement -id ID", cmdDelete},
		{"list", "list movements [-limit N]", cmdList},
		{"show", "show one movement -id ID", cmdShow},
		{"range", "expense total between -from and -to (YYYY-MM-DD)", cmdRange},
		{"monthly", "monthly expense trend [-n N]", cmdMonthly},
		{"weekly", "weekly expense trend [-n N]", cmdWeekly},
		{"breakdown", "expenses per category [-month YYYY-MM]", cmdBreakdown},
		{"export", "export reports [-month YYYY-MM] [-n N] [-limit N]", cmdExport},
		{"events", "print ledger change events as they arrive", cmdEvents},
		{"sync", "keep exported reports current as change events arrive [-n N]", cmdSync},
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: misgastos <command> [flags]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
}

func run(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	e := &env{app: app, out: out, now: time.Now}
	return e.dispatch(ctx, args)
}

func (e *env) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage(e.out)
		return flag.ErrHelp
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		usage(e.out)
		return flag.ErrHelp
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, e, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func (e *env) ledger() *services.LedgerService { return e.app.Ledger }

func cmdInit(ctx context.Context, e *env, args []string) error {
	// InitApp already initialized the store; report what is there.
	cats := e.ledger().ListCategories(ctx, nil)
	fmt.Fprintf(e.out, "ledger ready at %s (%d categories)\n", e.app.Config.DBPath, len(cats))
	return nil
}

func cmdOpeningBalance(ctx context.Context, e *env, args []string) error {
	fs := newFlags("opening-balance", e.out)
	set := fs.String("set", "", "opening balance to record (once)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *set != "" {
		amount, err := core.ParseBalance(*set)
		if err != nil {
			return core.NewDomainError("set opening balance", err)
		}
		if err := e.ledger().SetOpeningBalance(ctx, amount); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "opening balance set to %s\n", core.FormatAmount(amount))
		return nil
	}
	amount, ok := e.ledger().CheckOpeningBalance(ctx)
	if !ok {
		fmt.Fprintln(e.out, "opening balance not set")
		return nil
	}
	fmt.Fprintf(e.out, "opening balance: %s\n", core.FormatAmount(amount))
	return nil
}

func cmdBalance(ctx context.Context, e *env, args []string) error {
	fmt.Fprintf(e.out, "balance: %s\n", core.FormatAmount(e.ledger().CurrentBalance(ctx)))
	return nil
}

func cmdStats(ctx context.Context, e *env, args []string) error {
	s := e.ledger().Statistics(ctx)
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "opening balance\t%s\n", core.FormatAmount(s.OpeningBalance))
	fmt.Fprintf(tw, "income\t%s\n", core.FormatAmount(s.TotalIncome))
	fmt.Fprintf(tw, "expenses\t%s\n", core.FormatAmount(s.TotalExpense))
	fmt.Fprintf(tw, "balance\t%s\n", core.FormatAmount(s.CurrentBalance))
	fmt.Fprintf(tw, "movements\t%d\n", s.MovementCount)
	return tw.Flush()
}

func cmdCategories(ctx context.Context, e *env, args []string) error {
	fs := newFlags("categories", e.out)
	kindFlag := fs.String("kind", "", "income or expense")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var kind *core.Kind
	if *kindFlag != "" {
		k, err := core.ParseKind(*kindFlag)
		if err != nil {
			return core.NewDomainError("list categories", err)
		}
		kind = &k
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND")
	for _, c := range e.ledger().ListCategories(ctx, kind) {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Name, c.Kind)
	}
	return tw.Flush()
}

func cmdAddCategory(ctx context.Context, e *env, args []string) error {
	fs := newFlags("add-category", e.out)
	name := fs.String("name", "", "category name")
	kindFlag := fs.String("kind", "", "income or expense")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return core.NewDomainError("add category", err)
	}
	id, err := e.ledger().AddCategory(ctx, *name, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "category %d created\n", id)
	return nil
}

func cmdDeleteCategory(ctx context.Context, e *env, args []string) error {
	fs := newFlags("delete-category", e.out)
	id := fs.Int64("id", 0, "category id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := e.ledger().DeleteCategory(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "category %d deleted\n", *id)
	return nil
}

// movementFlags registers the editable movement fields on fs.
type movementFlags struct {
	category    *int64
	amount      *string
	kind        *string
	date        *string
	description *string
}

func registerMovementFlags(fs *flag.FlagSet) movementFlags {
	return movementFlags{
		category:    fs.Int64("category", 0, "category id"),
		amount:      fs.String("amount", "", "amount, e.g. 12.50 or 12,50"),
		kind:        fs.String("kind", "", "income or expense"),
		date:        fs.String("date", "", "YYYY-MM-DD or RFC 3339 timestamp (default now)"),
		description: fs.String("description", "", "optional description"),
	}
}

// apply overlays the flags that were set onto in.
func (m movementFlags) apply(fs *flag.FlagSet, in core.MovementInput) (core.MovementInput, error) {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "category":
			in.CategoryID = *m.category
		case "amount":
			in.Amount, err = core.ParseAmount(*m.amount)
		case "kind":
			in.Kind, err = core.ParseKind(*m.kind)
		case "date":
			in.Date, err = core.ParseTimestamp(*m.date)
		case "description":
			in.Description = *m.description
		}
	})
	return in, err
}

func cmdAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlags("add", e.out)
	mf := registerMovementFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := mf.apply(fs, core.MovementInput{Date: e.now().UTC()})
	if err != nil {
		return core.NewDomainError("add movement", err)
	}
	id, err := e.ledger().AddMovement(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "movement %d saved\n", id)
	return nil
}

func cmdEdit(ctx context.Context, e *env, args []string) error {
	fs := newFlags("edit", e.out)
	id := fs.Int64("id", 0, "movement id")
	mf := registerMovementFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	current := e.ledger().GetMovement(ctx, *id)
	if current == nil {
		return core.NewDomainError("edit movement", core.ErrNotFound)
	}
	in, err := mf.apply(fs, current.Input())
	if err != nil {
		return core.NewDomainError("edit movement", err)
	}
	if err := e.ledger().EditMovement(ctx, *id, in); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "movement %d updated\n", *id)
	return nil
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	fs := newFlags("delete", e.out)
	id := fs.Int64("id", 0, "movement id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := e.ledger().DeleteMovement(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "movement %d deleted\n", *id)
	return nil
}

func cmdList(ctx context.Context, e *env, args []string) error {
	fs := newFlags("list", e.out)
	limit := fs.Int("limit", 20, "maximum movements, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tKIND\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, m := range e.ledger().ListMovements(ctx, *limit) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.Date.Format(core.DateLayout), m.Kind, m.CategoryName, core.FormatAmount(m.Amount), m.Description)
	}
	return tw.Flush()
}

func cmdShow(ctx context.Context, e *env, args []string) error {
	fs := newFlags("show", e.out)
	id := fs.Int64("id", 0, "movement id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m := e.ledger().GetMovement(ctx, *id)
	if m == nil {
		return core.NewDomainError("show movement", core.ErrNotFound)
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", m.ID)
	fmt.Fprintf(tw, "date\t%s\n", core.FormatTimestamp(m.Date))
	fmt.Fprintf(tw, "kind\t%s\n", m.Kind)
	fmt.Fprintf(tw, "category\t%s (%d)\n", m.CategoryName, m.CategoryID)
	fmt.Fprintf(tw, "amount\t%s\n", core.FormatAmount(m.Amount))
	fmt.Fprintf(tw, "description\t%s\n", m.Description)
	return tw.Flush()
}

func cmdRange(ctx context.Context, e *env, args []string) error {
	fs := newFlags("range", e.out)
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	total, err := e.ledger().ExpenseTotalInRange(ctx, *from, *to)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "expenses %s..%s: %s\n", *from, *to, core.FormatAmount(total))
	return nil
}

func cmdMonthly(ctx context.Context, e *env, args []string) error {
	return trendCommand(ctx, e, "monthly", 6, args, e.ledger().MonthlyExpenseTrend)
}

func cmdWeekly(ctx context.Context, e *env, args []string) error {
	return trendCommand(ctx, e, "weekly", 8, args, e.ledger().WeeklyExpenseTrend)
}

func trendCommand(ctx context.Context, e *env, name string, def int, args []string,
	load func(context.Context, int) ([]core.PeriodTotal, error)) error {
	fs := newFlags(name, e.out)
	n := fs.Int("n", def, "number of periods, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	totals, err := load(ctx, *n)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tEXPENSES")
	for _, p := range totals {
		fmt.Fprintf(tw, "%s\t%s\n", p.Period, core.FormatAmount(p.Total))
	}
	return tw.Flush()
}

func cmdBreakdown(ctx context.Context, e *env, args []string) error {
	fs := newFlags("breakdown", e.out)
	month := fs.String("month", core.MonthKey(e.now().UTC()), "month, YYYY-MM")
	if err := fs.Parse(args); err != nil {
		return err
	}
	totals, err := e.ledger().CategoryBreakdown(ctx, *month)
	if err != nil {
		return err
	}
	sheet := services.BreakdownSheetOf(*month, totals)
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(sheet.Header, "\t")))
	for _, r := range sheet.Rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func cmdExport(ctx context.Context, e *env, args []string) error {
	fs := newFlags("export", e.out)
	month := fs.String("month", core.MonthKey(e.now().UTC()), "breakdown month, YYYY-MM")
	n := fs.Int("n", 12, "months in the trend sheet, 0 for all")
	limit := fs.Int("limit", 0, "movements in the list sheet, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	w, err := e.app.ReportWriter(ctx, e.out)
	if err != nil {
		return fmt.Errorf("report writer: %w", err)
	}
	summary, err := services.NewExportService(e.ledger(), w, e.app.Logger).
		Export(ctx, services.ExportRequest{Month: *month, Periods: *n, Limit: *limit})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "exported %d movements, %d months, %d categories\n",
		summary.Movements, summary.Months, summary.Breakdown)
	return nil
}

func cmdEvents(ctx context.Context, e *env, args []string) error {
	if e.app.Events == nil {
		return errors.New("change events are disabled: set AMQP_URL")
	}
	err := e.app.Events.ConsumeWithRetry(ctx, func(ev *amqp.LedgerEvent) error {
		_, err := fmt.Fprintf(e.out, "%s\t%s\tid=%d\n", ev.Timestamp.Format(time.RFC3339), ev.Type, ev.ID)
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func cmdSync(ctx context.Context, e *env, args []string) error {
	fs := newFlags("sync", e.out)
	n := fs.Int("n", 12, "months in the trend sheet, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if e.app.Events == nil {
		return errors.New("report sync needs change events: set AMQP_URL")
	}
	w, err := e.app.ReportWriter(ctx, e.out)
	if err != nil {
		return fmt.Errorf("report writer: %w", err)
	}
	exporter := services.NewExportService(e.ledger(), w, e.app.Logger)
	return worker.NewReportWorker(e.app.Events, exporter, *n, e.app.Logger).Run(ctx)
}
