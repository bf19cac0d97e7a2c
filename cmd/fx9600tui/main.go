// Command fx9600tui is a terminal dashboard for the llrpclient
// library: a live, scrolling table of tag observations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fx9600/llrpclient"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

// tagMsg wraps a client Event as a bubbletea message.
type tagMsg llrpclient.Event

func listenForEvents(events <-chan llrpclient.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return tagMsg(ev)
	}
}

type model struct {
	client *llrpclient.Client
	tbl    table.Model
	status string
	rowIdx map[string]int
}

func newModel(client *llrpclient.Client) model {
	columns := []table.Column{
		{Title: "EPC", Width: 26},
		{Title: "Antenna", Width: 8},
		{Title: "RSSI", Width: 6},
		{Title: "Count", Width: 6},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(20))
	return model{client: client, tbl: t, status: "connecting", rowIdx: make(map[string]int)}
}

func (m model) Init() tea.Cmd {
	return listenForEvents(m.client.Events())
}

func optUint16(v *uint16) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(int(*v))
}

func optInt8(v *int8) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(int(*v))
}

func (m *model) upsert(obs *llrpclient.Observation) {
	row := table.Row{
		obs.EPC,
		optUint16(obs.Antenna),
		optInt8(obs.RSSI),
		optUint16(obs.SeenCount),
	}
	rows := m.tbl.Rows()
	if idx, ok := m.rowIdx[obs.EPC]; ok {
		rows[idx] = row
	} else {
		m.rowIdx[obs.EPC] = len(rows)
		rows = append(rows, row)
	}
	m.tbl.SetRows(rows)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tagMsg:
		ev := llrpclient.Event(msg)
		switch ev.Kind {
		case llrpclient.EventTag:
			m.upsert(ev.Tag)
		case llrpclient.EventConnected:
			m.status = "connected"
		case llrpclient.EventReady:
			m.status = "running"
		case llrpclient.EventDisconnected:
			m.status = "disconnected, reconnecting"
		case llrpclient.EventError:
			m.status = fmt.Sprintf("error: %v", ev.Err)
		}
		return m, listenForEvents(m.client.Events())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.client.Disconnect()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.tbl.SetWidth(msg.Width)
		m.tbl.SetHeight(msg.Height - 4)
	}

	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	style := statusStyle
	if strings.HasPrefix(m.status, "error") {
		style = errorStyle
	}
	b.WriteString(headerStyle.Render("fx9600 tag monitor") + "  " + style.Render(m.status) + "\n")
	b.WriteString(m.tbl.View() + "\n")
	b.WriteString("press q to quit\n")
	return b.String()
}

func parseAntennas(s string) ([]uint16, error) {
	var out []uint16
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid antenna port %q: %w", part, err)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}

func main() {
	address := flag.String("address", "", "reader address, host:port")
	antennaList := flag.String("antennas", "1", "comma-separated antenna port numbers")
	powerDBm := flag.Float64("power", 30.0, "requested transmit power in dBm")
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "-address is required")
		os.Exit(1)
	}
	antennas, err := parseAntennas(*antennaList)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	power := make(map[uint16]float32, len(antennas))
	for _, a := range antennas {
		power[a] = float32(*powerDBm)
	}

	config := llrpclient.DefaultSessionConfig()
	config.Address = *address
	config.Antennas = antennas
	config.PowerDBm = power

	client := llrpclient.NewClient(config)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Disconnect()

	if _, err := tea.NewProgram(newModel(client)).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
