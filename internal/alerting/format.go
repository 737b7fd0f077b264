package alerting

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vapi/internal/feed"
	"vapi/internal/storage"
	"vapi/internal/textnorm"
)

const clickAction = "FLUTTER_NOTIFICATION_CLICK"

// vi-VN separators
const (
	groupSep   = "."
	decimalSep = ","
)

// Message is a rendered push notification for one persisted snapshot.
type Message struct {
	FeedKey    string
	Group      string
	Title      string
	Body       string
	Topic      string
	Data       map[string]string
	CapturedAt time.Time
}

// Formatter renders snapshots with Vietnamese labels and number formatting.
type Formatter struct{}

// NewFormatter returns a formatter using vi-VN separators ("42.550.000", "23.130,00").
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format renders the notification of a persisted snapshot of def.
func (f *Formatter) Format(def feed.Definition, snap storage.Snapshot) Message {
	tpl := def.Template
	title := tpl.Title
	if def.Grouped() && snap.Group != "" {
		title += "-" + snap.Group
	}

	lines := make([]string, 0, len(tpl.Lines))
	for _, line := range tpl.Lines {
		parts := make([]string, 0, len(line.Parts))
		for _, p := range line.Parts {
			value := f.value(snap, p.Field, tpl.Places)
			if line.Label != "" {
				parts = append(parts, p.Label+" "+value)
			} else {
				parts = append(parts, p.Label+": "+value)
			}
		}
		text := strings.Join(parts, " - ")
		if line.Label != "" {
			text = line.Label + ": " + text
		}
		lines = append(lines, text)
	}

	topic := Topic(def, snap.Group)
	return Message{
		FeedKey: def.Key(),
		Group:   snap.Group,
		Title:   title,
		Body:    strings.Join(lines, "\n"),
		Topic:   topic,
		Data: map[string]string{
			"click_action": clickAction,
			"id":           "/topics/" + topic,
			"status":       "done",
			"feed":         def.Key(),
			"group":        snap.Group,
			"datetime":     strconv.FormatInt(snap.CapturedAt.Unix(), 10),
		},
		CapturedAt: snap.CapturedAt,
	}
}

func (f *Formatter) value(snap storage.Snapshot, field string, places int32) string {
	v, ok := snap.Fields[field]
	if !ok {
		return "-"
	}
	// gold prices are shown as whole dong, truncated like the feed publishers do
	return formatDecimal(v, places)
}

// formatDecimal renders v with exactly places fraction digits and vi-VN
// separators without passing through float64.
func formatDecimal(v decimal.Decimal, places int32) string {
	s := v.Truncate(places).StringFixed(places)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(groupSep)
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteString(decimalSep)
		b.WriteString(frac)
	}
	return b.String()
}

// Topic derives the push topic of a feed. Gold feeds use "<name>gold", grouped
// feeds "<scope>.<name>.<group>" with the group reduced to topic-safe ASCII.
func Topic(def feed.Definition, group string) string {
	if def.Scope == feed.ScopeGold {
		return def.Name + "gold"
	}
	topic := def.Scope + "." + def.Name
	if group == "" {
		return topic
	}
	if def.GroupField == "currency" {
		return topic + "." + strings.ToUpper(textnorm.Slug(group))
	}
	return topic + "." + textnorm.Slug(group)
}
