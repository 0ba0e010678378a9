package types

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DecayFactor is the per-day exponential decay applied to property observations.
const DecayFactor = 0.01

// TextOptions controls how entities and relations are rendered.
type TextOptions struct {
	// Now is the reference time for confidence decay. Zero means time.Now().
	Now time.Time
	// IncludeID appends "(ID: ...)" after names.
	IncludeID bool
	// OmitDescription drops the relation (or entity) description.
	OmitDescription bool
	// OmitProperties drops the relation (or entity) properties.
	OmitProperties bool
	// OmitSourceDetails drops the source entity's description and properties.
	OmitSourceDetails bool
	// OmitTargetDetails drops the target entity's description and properties.
	OmitTargetDetails bool
}

func (o TextOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now
}

// DecayWeight is count * exp(-DecayFactor * days since lastSeen). A zero
// lastSeen counts as seen at now.
func DecayWeight(count int, lastSeen, now time.Time) float64 {
	if lastSeen.IsZero() {
		lastSeen = now
	}
	days := now.Sub(lastSeen).Hours() / 24
	return float64(count) * math.Exp(-DecayFactor*days)
}

// EntityText renders an entity as "(Type: NAME, desc: "...", props: {...})".
func EntityText(e *Entity, opts TextOptions) string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(e.Type)
	sb.WriteString(": ")
	sb.WriteString(e.Name)
	if opts.IncludeID {
		fmt.Fprintf(&sb, " (ID: %s)", e.ID)
	}
	if !opts.OmitDescription && e.Description != "" {
		fmt.Fprintf(&sb, ", desc: \"%s\"", e.Description)
	}
	if !opts.OmitProperties {
		sb.WriteString(propertiesText(e.Properties, opts.now()))
	}
	sb.WriteString(")")
	return sb.String()
}

// RelationText renders a relation as source-[NAME ...]->target, or
// source<-[NAME ...]-target for reverse matches.
func RelationText(r *Relation, opts TextOptions) string {
	if r == nil {
		return ""
	}
	now := opts.now()

	srcOpts := TextOptions{Now: now, IncludeID: opts.IncludeID}
	srcOpts.OmitDescription = opts.OmitSourceDetails
	srcOpts.OmitProperties = opts.OmitSourceDetails
	dstOpts := TextOptions{Now: now, IncludeID: opts.IncludeID}
	dstOpts.OmitDescription = opts.OmitTargetDetails
	dstOpts.OmitProperties = opts.OmitTargetDetails

	left, right := "-", "->"
	if r.Direction == DirectionReverse {
		left, right = "<-", "-"
	}

	var sb strings.Builder
	sb.WriteString(EntityText(r.Source, srcOpts))
	sb.WriteString(left)
	sb.WriteString("[")
	sb.WriteString(r.Name)
	if opts.IncludeID {
		fmt.Fprintf(&sb, " (ID: %s)", r.ID)
	}
	if !opts.OmitDescription && r.Description != "" {
		fmt.Fprintf(&sb, ", desc: \"%s\"", r.Description)
	}
	if !opts.OmitProperties {
		sb.WriteString(propertiesText(r.Properties, now))
	}
	sb.WriteString("]")
	sb.WriteString(right)
	sb.WriteString(EntityText(r.Target, dstOpts))
	return sb.String()
}

type confidence struct {
	value   string
	context string
	conf    float64
}

// propertiesText renders ", props: {k: v, ...}" or "" when nothing is shown.
func propertiesText(bag PropertyBag, now time.Time) string {
	var parts []string
	for _, p := range bag.Properties() {
		if IsReservedKey(p.Key) || len(p.Values) == 0 {
			continue
		}
		var total float64
		weights := make([]float64, len(p.Values))
		for i, v := range p.Values {
			weights[i] = DecayWeight(v.Count, v.LastSeen, now)
			total += weights[i]
		}
		if total == 0 {
			continue
		}
		if len(p.Values) == 1 {
			parts = append(parts, p.Key+": "+p.Values[0].Value)
			continue
		}
		confs := make([]confidence, len(p.Values))
		for i, v := range p.Values {
			confs[i] = confidence{
				value:   v.Value,
				context: v.Context,
				conf:    math.Round(weights[i]/total*1e4) / 1e4,
			}
		}
		sort.SliceStable(confs, func(i, j int) bool { return confs[i].conf > confs[j].conf })

		rendered := make([]string, len(confs))
		for i, c := range confs {
			info := fmt.Sprintf("%d%%", int(math.Round(100*c.conf)))
			if c.context != "" && c.context != "None" {
				info += ", ctx:" + c.context
			}
			rendered[i] = fmt.Sprintf("%s (%s)", c.value, info)
		}
		parts = append(parts, p.Key+": ["+strings.Join(rendered, ", ")+"]")
	}
	if len(parts) == 0 {
		return ""
	}
	return ", props: {" + strings.Join(parts, ", ") + "}"
}
