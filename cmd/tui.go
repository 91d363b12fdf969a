// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/vpc3scope/pkg/capture"
	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

// headerLines is the height reserved above the event log
const headerLines = 16

// Event log entry
type logEntry struct {
	at      time.Duration // capture time
	message string
	isError bool // true for violations and dropped frames
}

// TUI model
type model struct {
	linkInfo      string
	settings      string
	showAll       bool
	started       time.Time
	stats         vpc3.Statistics
	link          capture.LinkStats
	eventLog      []logEntry
	maxLogEntries int
	log           viewport.Model
	width         int
	height        int
	quitting      bool
	closed        bool
	closedErr     error
	lastViolation *vpc3.Result
}

// Messages
type tickMsg time.Time

// frameMsg carries one session outcome with a statistics snapshot
type frameMsg struct {
	result *vpc3.Result
	err    error
	stats  vpc3.Statistics
	link   capture.LinkStats
}

type linkClosedMsg struct {
	err error
}

// formatElapsed formats a run time as a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	if len(parts) == 2 {
		return rest + " and " + last
	}
	return rest + ", and " + last
}

func initialModel(linkInfo, settings string, showAll bool) model {
	return model{
		linkInfo:      linkInfo,
		settings:      settings,
		showAll:       showAll,
		started:       time.Now(),
		stats:         *vpc3.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 500,
		log:           viewport.New(76, 8),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = max(msg.Width-4, 20)
		m.log.Height = max(msg.Height-headerLines, 5)
		m.refreshLog()

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case frameMsg:
		m.stats = msg.stats
		m.link = msg.link
		if msg.err != nil {
			m.addLogEntry(m.stats.CaptureSpan, "DROPPED: "+msg.err.Error(), true)
		}
		if r := msg.result; r != nil {
			if r.HasViolations() {
				m.lastViolation = r
				for _, v := range r.Violations {
					m.addLogEntry(r.CSAssert, fmt.Sprintf("%s: %s",
						vpc3.FormatCommand(r.Command, r.Opcode), vpc3.FormatViolation(v)), true)
				}
			} else if m.showAll {
				m.addLogEntry(r.CSAssert, describeResult(*r), false)
			}
		}

	case linkClosedMsg:
		m.closed = true
		m.closedErr = msg.err
		if msg.err != nil {
			m.addLogEntry(m.stats.CaptureSpan, "LINK ERROR: "+msg.err.Error(), true)
		} else {
			m.addLogEntry(m.stats.CaptureSpan, "Link closed", false)
		}
	}

	return m, nil
}

// describeResult is a one-line form of an emitted frame
func describeResult(r vpc3.Result) string {
	s := vpc3.FormatCommand(r.Command, r.Opcode)
	if r.HasAddress {
		s += " addr " + vpc3.FormatAddress(r.Address)
	}
	if r.HasData && r.Command.Known() && len(r.Data) <= 8 {
		s += " data " + vpc3.FormatData(r.Data)
	} else if r.HasData && r.Command.Known() {
		s += fmt.Sprintf(" data %d bytes", len(r.Data))
	}
	return s
}

func (m *model) addLogEntry(at time.Duration, message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{at: at, message: message, isError: isError})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
	m.refreshLog()
}

// refreshLog re-renders the event log, following the tail unless scrolled back
func (m *model) refreshLog() {
	follow := m.log.AtBottom()

	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	var b strings.Builder
	if len(m.eventLog) == 0 {
		b.WriteString(timeStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog {
		stamp := timeStyle.Render(vpc3.FormatTimestamp(entry.at))
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", stamp, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", stamp, infoStyle.Render("ℹ "+entry.message))
		}
	}
	m.log.SetContent(b.String())
	if follow {
		m.log.GotoBottom()
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("VPC3SCOPE - TIMING"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Running %s | Press 'q' to quit",
		m.linkInfo, formatElapsed(time.Since(m.started)))))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(m.settings))
	s.WriteString("\n\n")

	switch {
	case m.closed && m.closedErr != nil:
		s.WriteString(errorStyle.Render("✗ Link failed"))
	case m.closed:
		s.WriteString(warningStyle.Render("Link closed"))
	case m.stats.TotalCycles == 0:
		s.WriteString(warningStyle.Render("⏳ Waiting for chip-select cycles..."))
	default:
		s.WriteString(valueStyle.Render("✓ Receiving"))
	}
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	var violatingPercent float64
	if st.DecodedFrames > 0 {
		violatingPercent = float64(st.ViolatingFrames) * 100.0 / float64(st.DecodedFrames)
	}
	count := func(n uint64, style lipgloss.Style) string {
		if n == 0 {
			return valueStyle.Render("0")
		}
		return style.Render(fmt.Sprintf("%d", n))
	}

	var stats strings.Builder
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Cycles:"), valueStyle.Render(fmt.Sprintf("%d", st.TotalCycles)),
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", st.DecodedFrames)),
		labelStyle.Render("Violating:"), count(st.ViolatingFrames, errorStyle),
	)
	if st.ViolatingFrames > 0 {
		stats.WriteString(headerStyle.Render(fmt.Sprintf("  (%.1f%% of frames)", violatingPercent)))
		stats.WriteString("\n")
	}
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("tCSA_B:"), count(st.Violations[vpc3.ViolationCSToFirstByte], errorStyle),
		labelStyle.Render("tB_B:"), count(st.Violations[vpc3.ViolationByteToByte], errorStyle),
		labelStyle.Render("tB_CSIA:"), count(st.Violations[vpc3.ViolationLastByteToCS], errorStyle),
	)
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Malformed:"), count(st.MalformedFrames, errorStyle),
		labelStyle.Render("Incomplete:"), count(st.IncompleteFrames, warningStyle),
		labelStyle.Render("Stray:"), count(st.StrayEvents, warningStyle),
		labelStyle.Render("Link errors:"), count(m.link.FrameErrors+m.link.EventErrors, warningStyle),
	)
	violationRate := valueStyle.Render(fmt.Sprintf("%.1f viol/s", st.ViolationRate))
	if st.ViolationRate > 0 {
		violationRate = errorStyle.Render(fmt.Sprintf("%.1f viol/s", st.ViolationRate))
	}
	fmt.Fprintf(&stats, "%s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		labelStyle.Render("Violation Rate:"), violationRate,
	)

	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	if r := m.lastViolation; r != nil {
		s.WriteString(labelStyle.Render("Latest Violation: "))
		s.WriteString(valueStyle.Render(describeResult(*r)))
		s.WriteString(headerStyle.Render(" at " + strings.TrimSpace(vpc3.FormatTimestamp(r.CSAssert))))
		s.WriteString("\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.log.View()))

	return s.String()
}
