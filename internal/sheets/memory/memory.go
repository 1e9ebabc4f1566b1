package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	ports "misgastos/internal/sheets"
)

// Writer keeps written sheets in memory and, when out is set, prints each
// one as an aligned table.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	order  []string
	sheets map[string]ports.Sheet
}

var _ ports.ReportWriter = (*Writer)(nil)

func New(out io.Writer) *Writer {
	return &Writer{out: out, sheets: map[string]ports.Sheet{}}
}

// WriteSheet replaces the sheet with the same name.
func (w *Writer) WriteSheet(_ context.Context, sheet ports.Sheet) error {
	if strings.TrimSpace(sheet.Name) == "" {
		return errors.New("sheet name is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sheets[sheet.Name]; !ok {
		w.order = append(w.order, sheet.Name)
	}
	w.sheets[sheet.Name] = copySheet(sheet)
	if w.out != nil {
		return render(w.out, sheet)
	}
	return nil
}

// Sheet returns a copy of the named sheet.
func (w *Writer) Sheet(name string) (ports.Sheet, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sheets[name]
	if !ok {
		return ports.Sheet{}, false
	}
	return copySheet(s), true
}

// Names lists sheets in first-written order.
func (w *Writer) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

func render(out io.Writer, sheet ports.Sheet) error {
	if _, err := fmt.Fprintf(out, "== %s ==\n", sheet.Name); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if len(sheet.Header) > 0 {
		fmt.Fprintln(tw, strings.Join(sheet.Header, "\t"))
	}
	for _, r := range sheet.Rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}

func copySheet(s ports.Sheet) ports.Sheet {
	out := ports.Sheet{Name: s.Name, Header: append([]string(nil), s.Header...)}
	out.Rows = make([][]string, len(s.Rows))
	for i, r := range s.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
