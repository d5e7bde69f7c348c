package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/fields"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// QueryDefinition is a totals request. Fields are "op(metric)" or the name
// of a derived metric; GroupBy holds tag keys.
type QueryDefinition struct {
	Fields    []string
	GroupBy   []string
	OrderBy   string
	Direction snql.Direction
	Limit     *int
}

// Group is one combination of group-by tag values and its totals
type Group struct {
	By     map[string]string      `json:"by"`
	Totals map[string]interface{} `json:"totals"`
}

// Totals is the result of a totals request
type Totals struct {
	Groups []Group `json:"groups"`
}

type requestedField struct {
	name     string
	field    fields.MetricField
	resolved fields.ResolvedMetric
}

// parseField accepts "op(metric)" and bare derived metric names
func (d *DataSource) parseField(name string) (fields.MetricField, error) {
	if d.builder.Catalog().Has(name) {
		return d.builder.MetricObject("", name), nil
	}
	op, metricName, err := metrics.ParseField(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metrics.ErrInvalidParams, err)
	}
	return d.builder.MetricObject(op, metricName), nil
}

// GetTotals computes the requested fields over the query window, one query
// per entity, optionally grouped by tag values
func (d *DataSource) GetTotals(ctx context.Context, projects []metrics.Project, def QueryDefinition) (Totals, error) {
	if len(projects) == 0 {
		return Totals{}, fmt.Errorf("%w: no projects", metrics.ErrInvalidParams)
	}
	if len(def.Fields) == 0 {
		return Totals{}, fmt.Errorf("%w: at least one field is required", metrics.ErrInvalidParams)
	}
	if def.Limit != nil && (*def.Limit <= 0 || *def.Limit > metrics.MaxPoints) {
		return Totals{}, fmt.Errorf("%w: limit must be between 1 and %d", metrics.ErrInvalidParams, metrics.MaxPoints)
	}
	for _, tag := range def.GroupBy {
		if !metrics.ValidTagName(tag) {
			return Totals{}, fmt.Errorf("%w: invalid tag name %q", metrics.ErrInvalidParams, tag)
		}
	}

	// Resolve every field before issuing any query
	byEntity := make(map[metrics.EntityKey][]requestedField)
	var entities []metrics.EntityKey
	seen := make(map[string]bool)
	for _, name := range def.Fields {
		if seen[name] {
			continue
		}
		seen[name] = true

		field, err := d.parseField(name)
		if err != nil {
			return Totals{}, err
		}
		resolved, err := d.builder.Resolve(ctx, field, projects)
		if err != nil {
			return Totals{}, err
		}
		if _, ok := byEntity[resolved.Entity]; !ok {
			entities = append(entities, resolved.Entity)
		}
		byEntity[resolved.Entity] = append(byEntity[resolved.Entity], requestedField{
			name:     name,
			field:    field,
			resolved: resolved,
		})
	}

	if (def.OrderBy != "" || def.Limit != nil) && len(entities) > 1 {
		return Totals{}, fmt.Errorf("%w: ordering and limits require all fields to be in one entity", metrics.ErrInvalidParams)
	}
	if def.OrderBy != "" && !seen[def.OrderBy] {
		return Totals{}, fmt.Errorf("%w: order by field %s must be selected", metrics.ErrInvalidParams, def.OrderBy)
	}

	groupBy := d.tagGroupBy(ctx, def.GroupBy)
	merger := newGroupMerger(def.GroupBy)
	for _, entity := range entities {
		requested := byEntity[entity]
		params, ok, err := d.totalsParams(ctx, entity, requested, groupBy, def)
		if err != nil {
			return Totals{}, err
		}
		if !ok {
			continue
		}
		params.Projects = projects
		params.OrgID = projects[0].OrganizationID

		rows, err := d.runner.Run(ctx, params)
		if err != nil {
			return Totals{}, err
		}
		for _, row := range rows {
			by, err := d.groupValues(ctx, def.GroupBy, row)
			if err != nil {
				return Totals{}, err
			}
			totals := merger.group(by)
			for _, rf := range requested {
				totals[rf.name] = aggregateValue(row[rf.resolved.Alias()])
			}
		}
	}

	if len(def.GroupBy) == 0 {
		merger.group(map[string]string{})
	}

	var all []requestedField
	for _, entity := range entities {
		all = append(all, byEntity[entity]...)
	}
	return Totals{Groups: merger.finish(all)}, nil
}

// totalsParams builds the query for the fields of one entity. It reports
// false when none of the fields' metrics were ever indexed.
func (d *DataSource) totalsParams(ctx context.Context, entity metrics.EntityKey, requested []requestedField, groupBy []snql.Expression, def QueryDefinition) (RunParams, bool, error) {
	idSet := make(map[int64]bool)
	selects := make([]snql.Expression, 0, len(requested))
	var orderBy []snql.OrderBy

	for _, rf := range requested {
		ids, err := d.builder.MetricIDs(ctx, rf.field, entity)
		if err != nil {
			return RunParams{}, false, err
		}
		for _, id := range ids {
			idSet[id] = true
		}

		fragment, err := d.builder.SelectFragment(ctx, rf.resolved)
		if err != nil {
			return RunParams{}, false, err
		}
		selects = append(selects, fragment)

		if rf.name == def.OrderBy {
			ob, err := d.builder.OrderBy(ctx, rf.resolved, def.Direction)
			if err != nil {
				return RunParams{}, false, err
			}
			orderBy = append(orderBy, ob)
		}
	}

	if len(idSet) == 0 {
		return RunParams{}, false, nil
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return RunParams{
		Entity:   entity,
		Select:   selects,
		Where:    []snql.Condition{snql.NewCondition(snql.NewColumn("metric_id"), snql.OpIn, snql.IntList(ids))},
		GroupBy:  groupBy,
		OrderBy:  orderBy,
		Limit:    def.Limit,
		Referrer: ReferrerTotals,
	}, true, nil
}

// tagGroupBy selects the value id of each tag, aliased by the tag key
func (d *DataSource) tagGroupBy(ctx context.Context, tags []string) []snql.Expression {
	exprs := make([]snql.Expression, 0, len(tags))
	for _, tag := range tags {
		exprs = append(exprs, snql.NewAliasedFunction("arrayElement", tag,
			snql.NewColumn("tags.value"),
			snql.NewFunction("indexOf",
				snql.NewColumn("tags.key"),
				snql.Int(indexer.ResolveOrUnresolved(ctx, d.indexer, tag)),
			),
		))
	}
	return exprs
}

// groupValues reverse resolves the tag value ids of a row. Rows without the
// tag carry id 0 and map to an empty value.
func (d *DataSource) groupValues(ctx context.Context, tags []string, row Row) (map[string]string, error) {
	by := make(map[string]string, len(tags))
	for _, tag := range tags {
		id, err := toInt64(row[tag])
		if err != nil {
			return nil, fmt.Errorf("unexpected value for tag %s: %w", tag, err)
		}
		if id <= 0 {
			by[tag] = ""
			continue
		}
		value, err := d.indexer.ReverseResolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to reverse resolve value of tag %s: %w", tag, err)
		}
		by[tag] = value
	}
	return by, nil
}

// groupMerger merges rows of several entities into groups, keeping the
// order in which groups first appear
type groupMerger struct {
	tags   []string
	order  []string
	groups map[string]*Group
}

func newGroupMerger(tags []string) *groupMerger {
	return &groupMerger{
		tags:   tags,
		groups: make(map[string]*Group),
	}
}

func (m *groupMerger) group(by map[string]string) map[string]interface{} {
	parts := make([]string, len(m.tags))
	for i, tag := range m.tags {
		parts[i] = tag + "=" + by[tag]
	}
	key := strings.Join(parts, "\x00")

	g, ok := m.groups[key]
	if !ok {
		g = &Group{By: by, Totals: make(map[string]interface{})}
		m.groups[key] = g
		m.order = append(m.order, key)
	}
	return g.Totals
}

// finish fills fields missing from a group with their empty-set value
func (m *groupMerger) finish(requested []requestedField) []Group {
	groups := make([]Group, 0, len(m.order))
	for _, key := range m.order {
		g := m.groups[key]
		for _, rf := range requested {
			if _, ok := g.Totals[rf.name]; !ok {
				g.Totals[rf.name] = defaultValue(rf.field)
			}
		}
		groups = append(groups, *g)
	}
	return groups
}

func defaultValue(field fields.MetricField) interface{} {
	switch f := field.(type) {
	case fields.RawMetric:
		v, _ := metrics.DefaultAggregate(f.Op)
		return v
	case *fields.DerivedMetric:
		if kind, ok := metrics.UnitType(f.Unit); ok {
			v, _ := metrics.DefaultAggregate(kind)
			return v
		}
	}
	return nil
}
