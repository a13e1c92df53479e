package devicesim

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/chasefleming/elem-go"
	"github.com/chasefleming/elem-go/attrs"
)

func renderPage(title string, content ...elem.Node) string {
	page := elem.Html(attrs.Props{},
		elem.Head(attrs.Props{},
			elem.Meta(attrs.Props{attrs.Charset: "utf-8"}),
			elem.Title(attrs.Props{}, elem.Text(title)),
		),
		elem.Body(attrs.Props{}, content...),
	)
	return page.Render()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	status := s.Status()

	batteries := make([]elem.Node, 0, len(status.Batteries))
	switches := make([]elem.Node, 0, len(status.Batteries))
	for _, b := range status.Batteries {
		batteries = append(batteries, elem.Li(attrs.Props{},
			elem.Text(fmt.Sprintf("Battery %d: Voltage = %.2fV, Current = %.2fA, Ah = %.3f ",
				b.Index, b.Voltage, b.Current, b.AmpereHour)),
			elem.Span(attrs.Props{attrs.Style: "color:" + b.LedStatus + ";"}, elem.Text("●")),
		))
		switches = append(switches, elem.Li(attrs.Props{},
			elem.Text(fmt.Sprintf("Battery %d: ", b.Index)),
			elem.A(attrs.Props{attrs.Href: fmt.Sprintf("/switch_on?battery=%d", b.Index)}, elem.Text("Switch On")),
			elem.Text(" | "),
			elem.A(attrs.Props{attrs.Href: fmt.Sprintf("/switch_off?battery=%d", b.Index)}, elem.Text("Switch Off")),
		))
	}

	html := renderPage("Battery Monitor",
		elem.H1(attrs.Props{}, elem.Text("Battery Monitor")),
		elem.H2(attrs.Props{}, elem.Text("Battery Status")),
		elem.Ul(attrs.Props{}, batteries...),
		elem.H2(attrs.Props{}, elem.Text("Control Switches")),
		elem.Ul(attrs.Props{}, switches...),
		elem.H2(attrs.Props{}, elem.Text("Log Data")),
		elem.A(attrs.Props{attrs.Href: "/log"}, elem.Text("View Log")),
	)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, html); err != nil {
		s.log.Warn().Err(err).Msg("write root page")
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	logRows := slices.Clone(s.logRows)
	s.mu.Unlock()

	rows := []elem.Node{
		elem.Tr(attrs.Props{},
			elem.Th(attrs.Props{}, elem.Text("Temps")),
			elem.Th(attrs.Props{}, elem.Text("Numéro de batterie")),
			elem.Th(attrs.Props{}, elem.Text("Tension")),
			elem.Th(attrs.Props{}, elem.Text("Courant")),
			elem.Th(attrs.Props{}, elem.Text("État du commutateur")),
			elem.Th(attrs.Props{}, elem.Text("Consommation en Ah")),
		),
	}
	for _, row := range logRows {
		cells := make([]elem.Node, len(row))
		for i, cell := range row {
			cells[i] = elem.Td(attrs.Props{}, elem.Text(cell))
		}
		rows = append(rows, elem.Tr(attrs.Props{}, cells...))
	}

	html := renderPage("Log Data",
		elem.H1(attrs.Props{}, elem.Text("Log Data")),
		elem.Table(attrs.Props{"border": "1"}, rows...),
	)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, html); err != nil {
		s.log.Warn().Err(err).Msg("write log page")
	}
}
