// Package report renders reconciliation reports into a shareable HTML
// digest and exports them to S3 for downstream consumers.
package report

import (
	"fmt"
	"strconv"

	"github.com/ignite/session-reconciler/internal/attribution"
	"github.com/ignite/session-reconciler/internal/reconcile"
	"github.com/osteele/liquid"
)

// digestTemplate is the Liquid source for the HTML digest. It is compiled
// once at Renderer construction.
const digestTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Session Audit {{ period }}</title></head>
<body>
<h1>Session Audit</h1>
<p>Period: {{ period }}</p>
<p>Generated: {{ generated_at }}</p>

<h2>Totals</h2>
<table>
<tr><td>Analytics tool sessions</td><td>{{ tool_sessions | thousands }}</td></tr>
<tr><td>Recomputed sessions</td><td>{{ recomputed_sessions | thousands }}</td></tr>
<tr><td>Daily match rate</td><td>{{ match_rate | pct }}</td></tr>
<tr><td>Visitors</td><td>{{ visitors | thousands }}</td></tr>
<tr><td>Events</td><td>{{ events | thousands }}</td></tr>
</table>

<h2>Daily Breakdown</h2>
<table>
<tr><th>Date</th><th>Tool</th><th>Recomputed</th><th>Diff</th></tr>
{% for row in daily_rows %}<tr><td>{{ row.date }}</td><td>{{ row.tool_sessions }}</td><td>{{ row.recomputed_sessions }}</td><td>{{ row.difference }}</td></tr>
{% endfor %}</table>

<h2>Top Sources</h2>
<table>
<tr><th>Source</th><th>Sessions</th></tr>
{% for row in top_sources %}<tr><td>{{ row.label }}</td><td>{{ row.count }}</td></tr>
{% endfor %}</table>

<h2>Top Mediums</h2>
<table>
<tr><th>Medium</th><th>Sessions</th></tr>
{% for row in top_mediums %}<tr><td>{{ row.label }}</td><td>{{ row.count }}</td></tr>
{% endfor %}</table>

{% if discrepancy_count > 0 %}
<h2>Discrepancies ({{ discrepancy_count }})</h2>
<table>
<tr><th>Type</th><th>Scope</th><th>Tool</th><th>Recomputed</th></tr>
{% for d in discrepancies %}<tr><td>{{ d.type }}</td><td>{{ d.scope }}</td><td>{{ d.tool_value }}</td><td>{{ d.recomputed_value }}</td></tr>
{% endfor %}</table>
{% else %}
<p>No discrepancies. Both sides agree.</p>
{% endif %}
</body>
</html>
`

// Renderer turns reconciliation reports into HTML digests.
type Renderer struct {
	engine   *liquid.Engine
	template *liquid.Template
}

// NewRenderer compiles the digest template and registers filters.
func NewRenderer() (*Renderer, error) {
	engine := liquid.NewEngine()

	// {{ 1234567 | thousands }} -> 1,234,567
	engine.RegisterFilter("thousands", func(v interface{}) string {
		n, err := strconv.ParseInt(fmt.Sprintf("%v", v), 10, 64)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return groupThousands(n)
	})

	// {{ 85.714 | pct }} -> 85.7%
	engine.RegisterFilter("pct", func(v interface{}) string {
		f, err := strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return fmt.Sprintf("%.1f%%", f)
	})

	tpl, err := engine.ParseTemplate([]byte(digestTemplate))
	if err != nil {
		return nil, fmt.Errorf("parse digest template: %w", err)
	}
	return &Renderer{engine: engine, template: tpl}, nil
}

// Render produces the HTML digest for a report.
func (r *Renderer) Render(report *reconcile.Report) (string, error) {
	bindings := map[string]interface{}{
		"period":              report.Period,
		"generated_at":        report.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"),
		"tool_sessions":       report.ToolSessions,
		"recomputed_sessions": report.RecomputedSessions,
		"match_rate":          report.MatchRate,
		"visitors":            report.Visitors,
		"events":              report.Events,
		"daily_rows":          dailyBindings(report.DailyRows),
		"top_sources":         freqBindings(report.TopSources),
		"top_mediums":         freqBindings(report.TopMediums),
		"discrepancies":       discrepancyBindings(report.Discrepancies),
		"discrepancy_count":   len(report.Discrepancies),
	}

	out, err := r.template.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return string(out), nil
}

func dailyBindings(rows []reconcile.DailyRow) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]interface{}{
			"date":                row.Date,
			"tool_sessions":       row.ToolSessions,
			"recomputed_sessions": row.RecomputedSessions,
			"difference":          row.Difference,
		})
	}
	return out
}

func freqBindings(rows []attribution.FrequencyRow) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]interface{}{
			"label": row.Label,
			"count": row.Count,
		})
	}
	return out
}

func discrepancyBindings(ds []reconcile.Discrepancy) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(ds))
	for _, d := range ds {
		out = append(out, map[string]interface{}{
			"type":             d.Type,
			"scope":            d.Scope,
			"tool_value":       d.ToolValue,
			"recomputed_value": d.RecomputedValue,
		})
	}
	return out
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
