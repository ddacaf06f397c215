// Package assistant implements the reply pipeline behind the /ai endpoints:
// page-context assembly, the model call, the heuristic fallback, auditing,
// and the streaming variant.
package assistant

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TankContext is the selected-tank snapshot a caller attaches to a chat
// request. Two field-naming conventions are in the wild (snake_case liters
// vs. camelCase levels), so decoding coalesces both.
type TankContext struct {
	Name           string
	Capacity       *float64
	Current        *float64
	AvgConsumption *float64
	Status         string
}

// UnmarshalJSON accepts either naming convention, preferring the snake_case
// liter fields when both are present.
func (t *TankContext) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name           string   `json:"name"`
		CapacityLiters *float64 `json:"capacity_liters"`
		Capacity       *float64 `json:"capacity"`
		CurrentLiters  *float64 `json:"current_liters"`
		CurrentLevel   *float64 `json:"currentLevel"`
		AvgLPH         *float64 `json:"avg_consumption_lph"`
		AvgDaily       *float64 `json:"avgDailyConsumption"`
		Status         string   `json:"status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.Name = raw.Name
	t.Status = raw.Status
	t.Capacity = coalesce(raw.CapacityLiters, raw.Capacity)
	t.Current = coalesce(raw.CurrentLiters, raw.CurrentLevel)
	t.AvgConsumption = coalesce(raw.AvgLPH, raw.AvgDaily)
	return nil
}

func coalesce(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

// AlertContext is one recent alert the caller's page was showing.
type AlertContext struct {
	Title   string `json:"title"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// KPIContext carries the dashboard KPI block; only the fallback summary
// reads it.
type KPIContext struct {
	TotalWaterStored      float64 `json:"totalWaterStored"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
	CommunityTanks        int     `json:"communityTanks"`
}

// Context is the optional page context attached to a chat request.
type Context struct {
	ProjectSummary string         `json:"projectSummary"`
	SelectedTank   *TankContext   `json:"selectedTank"`
	RecentAlerts   []AlertContext `json:"recentAlerts"`
	KPIs           *KPIContext    `json:"kpis"`
	PageContent    string         `json:"pageContent"`
}

// fmtNum renders a float the way callers expect to read it back: integral
// values without a decimal point, everything else with minimal digits.
func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func numOr(v *float64, missing string) string {
	if v == nil {
		return missing
	}
	return fmtNum(*v)
}

func strOr(s, missing string) string {
	if strings.TrimSpace(s) == "" {
		return missing
	}
	return s
}

// Render assembles the bounded context block prefixed to the user turn.
// Sections appear in a fixed order and missing fields are omitted or shown
// as "unknown", never as a serialized nil. pageMax bounds the page-content
// excerpt; values <= 0 disable that section's clipping.
func (c *Context) Render(pageMax int) string {
	if c == nil {
		return ""
	}
	var b strings.Builder

	if c.ProjectSummary != "" {
		b.WriteString("Project summary:\n")
		b.WriteString(c.ProjectSummary)
		b.WriteString("\n\n")
	}
	if t := c.SelectedTank; t != nil {
		b.WriteString("Selected tank: ")
		b.WriteString(t.Name)
		b.WriteString(" — capacity ")
		b.WriteString(numOr(t.Capacity, "unknown"))
		b.WriteString(" L, current ")
		b.WriteString(numOr(t.Current, "unknown"))
		b.WriteString(" L, avg consumption ")
		b.WriteString(numOr(t.AvgConsumption, "unknown"))
		b.WriteString(", status ")
		b.WriteString(strOr(t.Status, "unknown"))
		b.WriteString(".\n\n")
	}
	if len(c.RecentAlerts) > 0 {
		b.WriteString("Recent alerts:\n")
		lines := make([]string, 0, len(c.RecentAlerts))
		for _, a := range c.RecentAlerts {
			label := a.Title
			if label == "" {
				label = a.Type
			}
			lines = append(lines, "- "+label+": "+a.Message)
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}
	if page := strings.TrimSpace(c.PageContent); page != "" {
		clipped := c.PageContent
		if pageMax > 0 && len(clipped) > pageMax {
			// Back off to a rune boundary so the clip never emits a split
			// multi-byte character.
			cut := pageMax
			for cut > 0 && !utf8.RuneStart(clipped[cut]) {
				cut--
			}
			clipped = clipped[:cut]
		}
		b.WriteString("Page content (clipped):\n")
		b.WriteString(clipped)
		b.WriteString("\n\n")
	}
	return b.String()
}

// FallbackSummary synthesizes the deterministic local reply used when the
// model is unreachable. It interpolates the same fields Render uses, plus
// the KPI block, and always ends with the service-unavailable notice.
func (c *Context) FallbackSummary() string {
	var parts []string
	if c != nil {
		if c.ProjectSummary != "" {
			parts = append(parts, "Project: "+c.ProjectSummary)
		}
		if t := c.SelectedTank; t != nil {
			parts = append(parts, "Tank "+t.Name+": "+numOr(t.Current, "?")+"/"+numOr(t.Capacity, "?")+" L")
		}
		if k := c.KPIs; k != nil {
			parts = append(parts,
				"KPIs — Stored: "+fmtNum(k.TotalWaterStored)+"L, Utilization: "+
					strconv.Itoa(int(math.Round(k.UtilizationPercentage)))+"%, Tanks: "+
					strconv.Itoa(k.CommunityTanks))
		}
	}
	const notice = "AI service is temporarily unavailable. This is a local summary based on current page data."
	if len(parts) == 0 {
		return notice
	}
	return strings.Join(parts, ". ") + ". " + notice
}
