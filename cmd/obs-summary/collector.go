package main

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	requestEventName   = "storyboard.request"
	requestEventDomain = "storyboard.api"

	attrRoute       = "http.route"
	attrMethod      = "http.method"
	attrStatusCode  = "http.status_code"
	attrPrefix      = "storyboard.request."
	attrTotalMillis = attrPrefix + "total_ms"
	attrAuthMillis  = attrPrefix + "auth_ms"
	attrRemote      = attrPrefix + "remote_ms"
	attrItems       = attrPrefix + "items"
	attrErrorStage  = attrPrefix + "error_stage"
)

// logRecord is one observability entry written by the API's JSON logger.
type logRecord struct {
	EventName    string         `json:"event.name"`
	EventDomain  string         `json:"event.domain"`
	SeverityText string         `json:"severity_text"`
	Attributes   map[string]any `json:"attributes"`
}

type numericStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

func newNumericStats() *numericStats {
	return &numericStats{Min: math.MaxFloat64}
}

func (n *numericStats) add(v float64) {
	n.Count++
	n.Sum += v
	n.Min = math.Min(n.Min, v)
	n.Max = math.Max(n.Max, v)
}

type statsSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

func (n *numericStats) summary() statsSummary {
	if n == nil || n.Count == 0 {
		return statsSummary{}
	}
	return statsSummary{Count: n.Count, Min: n.Min, Max: n.Max, Avg: n.Sum / float64(n.Count)}
}

type routeStats struct {
	count       int
	statuses    map[int]int
	durations   map[string]*numericStats
	items       *numericStats
	errorStages map[string]int
}

type routeSummary struct {
	Count       int                     `json:"count"`
	Statuses    map[string]int          `json:"status_counts"`
	DurationMs  map[string]statsSummary `json:"duration_ms"`
	Items       *statsSummary           `json:"items,omitempty"`
	ErrorStages map[string]int          `json:"error_stages,omitempty"`
}

type summaryOutput struct {
	EventName      string                  `json:"event_name"`
	TotalEvents    int                     `json:"total_events"`
	SeverityCounts map[string]int          `json:"severity_counts"`
	Routes         map[string]routeSummary `json:"routes"`
	SkippedLines   int                     `json:"skipped_lines"`
}

// collector aggregates request events per route.
type collector struct {
	eventName   string
	eventDomain string
	total       int
	severities  map[string]int
	routes      map[string]*routeStats
	skipped     int
}

func newCollector(eventName, eventDomain string) *collector {
	return &collector{
		eventName:   eventName,
		eventDomain: eventDomain,
		severities:  make(map[string]int),
		routes:      make(map[string]*routeStats),
	}
}

func (c *collector) ingest(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	// docker compose prefixes lines with "service | ".
	if pipe := strings.Index(trimmed, "|"); pipe >= 0 && !strings.HasPrefix(trimmed, "{") {
		trimmed = strings.TrimSpace(trimmed[pipe+1:])
	}

	var rec logRecord
	if err := sonic.UnmarshalString(trimmed, &rec); err != nil {
		c.skipped++
		return
	}
	if rec.EventName != c.eventName {
		return
	}
	if c.eventDomain != "" && rec.EventDomain != c.eventDomain {
		return
	}
	c.add(rec)
}

func (c *collector) add(rec logRecord) {
	c.total++
	severity := strings.ToUpper(strings.TrimSpace(rec.SeverityText))
	if severity == "" {
		severity = "UNSPECIFIED"
	}
	c.severities[severity]++

	method, _ := rec.Attributes[attrMethod].(string)
	route, _ := rec.Attributes[attrRoute].(string)
	key := strings.TrimSpace(method + " " + route)
	rs, ok := c.routes[key]
	if !ok {
		rs = &routeStats{
			statuses:    make(map[int]int),
			durations:   make(map[string]*numericStats),
			errorStages: make(map[string]int),
		}
		c.routes[key] = rs
	}
	rs.count++

	if v, ok := asFloat(rec.Attributes[attrStatusCode]); ok {
		rs.statuses[int(v)]++
	}
	for name, attr := range map[string]string{"total": attrTotalMillis, "auth": attrAuthMillis, "remote": attrRemote} {
		if v, ok := asFloat(rec.Attributes[attr]); ok {
			if rs.durations[name] == nil {
				rs.durations[name] = newNumericStats()
			}
			rs.durations[name].add(v)
		}
	}
	if v, ok := asFloat(rec.Attributes[attrItems]); ok {
		if rs.items == nil {
			rs.items = newNumericStats()
		}
		rs.items.add(v)
	}
	if stage, ok := rec.Attributes[attrErrorStage].(string); ok && stage != "" {
		rs.errorStages[stage]++
	}
}

func (c *collector) summary() summaryOutput {
	out := summaryOutput{
		EventName:      c.eventName,
		TotalEvents:    c.total,
		SeverityCounts: c.severities,
		Routes:         make(map[string]routeSummary, len(c.routes)),
		SkippedLines:   c.skipped,
	}
	for key, rs := range c.routes {
		s := routeSummary{
			Count:      rs.count,
			Statuses:   make(map[string]int, len(rs.statuses)),
			DurationMs: make(map[string]statsSummary, len(rs.durations)),
		}
		for status, n := range rs.statuses {
			s.Statuses[strconv.Itoa(status)] = n
		}
		for name, d := range rs.durations {
			s.DurationMs[name] = d.summary()
		}
		if rs.items != nil {
			items := rs.items.summary()
			s.Items = &items
		}
		if len(rs.errorStages) > 0 {
			s.ErrorStages = rs.errorStages
		}
		out.Routes[key] = s
	}
	return out
}

// ShortString renders one line per route, slowest average first.
func (s summaryOutput) ShortString() string {
	keys := make([]string, 0, len(s.Routes))
	for k := range s.Routes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.Routes[keys[i]].DurationMs["total"].Avg > s.Routes[keys[j]].DurationMs["total"].Avg
	})

	var b strings.Builder
	b.WriteString("event=" + s.EventName + " total=" + strconv.Itoa(s.TotalEvents) +
		" warn=" + strconv.Itoa(s.SeverityCounts["WARN"]) + " error=" + strconv.Itoa(s.SeverityCounts["ERROR"]))
	for _, k := range keys {
		r := s.Routes[k]
		total := r.DurationMs["total"]
		b.WriteString("\n  " + k + " count=" + strconv.Itoa(r.Count) +
			" avg_total_ms=" + formatFloat(total.Avg) + " max_total_ms=" + formatFloat(total.Max))
	}
	return b.String()
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
