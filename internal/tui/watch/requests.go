package watch

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/gpgbridge/internal/events"
)

const maxRequests = 100

// RequestState is one row of the request table.
type RequestState struct {
	TxID     string
	Method   string
	Origin   string
	Done     bool
	Failed   bool
	ErrorStr string
	Started  time.Time
	Duration time.Duration
}

func (r *RequestState) outcome() string {
	switch {
	case !r.Done:
		return "pending"
	case r.Failed:
		return r.ErrorStr
	default:
		return "ok"
	}
}

// requestLog keeps requests newest first. Page txids are only unique per
// origin so rows are keyed on both.
type requestLog struct {
	order []*RequestState
	byKey map[string]*RequestState
}

func newRequestLog() *requestLog {
	return &requestLog{byKey: make(map[string]*RequestState)}
}

func requestKey(origin, txid string) string { return origin + "\x00" + txid }

func (l *requestLog) get(origin, txid string, at time.Time) *RequestState {
	key := requestKey(origin, txid)
	if r, ok := l.byKey[key]; ok {
		return r
	}
	r := &RequestState{TxID: txid, Origin: origin, Started: at}
	l.byKey[key] = r
	l.order = append([]*RequestState{r}, l.order...)
	if len(l.order) > maxRequests {
		for _, old := range l.order[maxRequests:] {
			delete(l.byKey, requestKey(old.Origin, old.TxID))
		}
		l.order = l.order[:maxRequests]
	}
	return r
}

// apply folds a request event into the log. It reports whether e was a
// request event.
func (l *requestLog) apply(e events.Event) bool {
	switch e.Type {
	case events.TypeRequestReceived:
		var d events.RequestReceived
		if json.Unmarshal(e.Data, &d) != nil {
			return false
		}
		r := l.get(d.Origin, d.TxID, e.At)
		r.Method = d.Method
		return true

	case events.TypeRequestCompleted:
		var d events.RequestCompleted
		if json.Unmarshal(e.Data, &d) != nil {
			return false
		}
		r := l.get(d.Origin, d.TxID, e.At)
		r.Method = d.Method
		r.Done = true
		r.Failed = d.IsError
		r.ErrorStr = d.ErrorStr
		r.Duration = time.Duration(d.DurationMS) * time.Millisecond
		return true
	}
	return false
}

func (l *requestLog) counts() (total, failed int) {
	for _, r := range l.order {
		total++
		if r.Done && r.Failed {
			failed++
		}
	}
	return total, failed
}

func newRequestTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "TxID", Width: 12},
			{Title: "Method", Width: 16},
			{Title: "Origin", Width: 28},
			{Title: "Outcome", Width: 28},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func (l *requestLog) rows(theme Theme) []table.Row {
	rows := make([]table.Row, 0, len(l.order))
	for _, r := range l.order {
		sym := theme.StatusPending.Render("◉")
		if r.Done {
			sym = theme.StatusOK.Render("●")
			if r.Failed {
				sym = theme.StatusFailed.Render("∅")
			}
		}

		duration := "-"
		if r.Done {
			duration = r.Duration.String()
		}
		txid := r.TxID
		if len(txid) > 12 {
			txid = txid[:12]
		}
		rows = append(rows, table.Row{sym, txid, r.Method, r.Origin, r.outcome(), duration})
	}
	return rows
}
