package main

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"rentl/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)

	statusStyles = map[string]lipgloss.Style{
		model.RunCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		model.RunFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		model.RunCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		model.RunRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		model.PhaseBlocked: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
)

func styledStatus(status string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return status
}

// printRunState prints the run header and the latest record of every
// phase series.
func printRunState(state *model.RunState) {
	fmt.Printf("%s %s  %s\n", headerStyle.Render("run"), state.RunID, styledStatus(state.Status))
	fmt.Println(dimStyle.Render(fmt.Sprintf("updated %s", state.UpdatedAt.Format("2006-01-02 15:04:05"))))

	latest := map[model.PhaseKey]*model.PhaseRunRecord{}
	var order []model.PhaseKey
	for i := range state.Records {
		rec := &state.Records[i]
		key := rec.Key()
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		if cur := latest[key]; cur == nil || rec.Revision >= cur.Revision {
			latest[key] = rec
		}
	}

	for _, key := range order {
		rec := latest[key]
		line := fmt.Sprintf("  %-24s rev %-3d %s", key.String(), rec.Revision, styledStatus(rec.Status))
		if rec.Error != nil {
			line += dimStyle.Render("  " + rec.Error.Message)
		}
		fmt.Println(line)
	}
}

// printRunHistory prints every record of the run, oldest first,
// including stale and superseded revisions.
func printRunHistory(state *model.RunState) {
	if len(state.Records) == 0 {
		return
	}
	fmt.Println(headerStyle.Render("history"))
	for _, rec := range state.Records {
		mark := ""
		if rec.Stale {
			mark = dimStyle.Render(" (stale)")
		}
		fmt.Printf("  %s  %-24s rev %-3d %s%s\n",
			rec.StartedAt.Format("15:04:05"), rec.Key().String(), rec.Revision, styledStatus(rec.Status), mark)
		if len(rec.Summary) > 0 {
			keys := make([]string, 0, len(rec.Summary))
			for k := range rec.Summary {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Println(dimStyle.Render(fmt.Sprintf("            %s=%v", k, rec.Summary[k])))
			}
		}
	}
}

func printRunList(summaries []model.RunSummary) {
	if len(summaries) == 0 {
		fmt.Println(dimStyle.Render("no runs recorded"))
		return
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-30s %-10s %-7s %-20s %s", "run", "status", "phases", "updated", "languages")))
	for _, s := range summaries {
		langs := ""
		for i, l := range s.Languages {
			if i > 0 {
				langs += ","
			}
			langs += l
		}
		fmt.Printf("%-30s %-10s %-7d %-20s %s\n",
			s.RunID, styledStatus(s.Status), s.Phases, s.UpdatedAt.Format("2006-01-02 15:04:05"), langs)
	}
}
