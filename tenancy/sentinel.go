package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/internal/ttlcache"
	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

// SentinelConfig configures the query audit
type SentinelConfig struct {
	// Tables are the tenant-owned tables whose statements must carry a tenant filter
	Tables []string
	// IndirectColumns are child keys accepted in place of a tenant_id filter
	IndirectColumns []string
	// Window deduplicates findings per table and route
	Window    time.Duration
	CacheSize int
	// RouteFunc labels statements whose wrapper was built without a route
	RouteFunc func(ctx context.Context) string
}

// Finding is a statement on a tenant-owned table without a direct tenant filter
type Finding struct {
	Table    string
	Route    string
	Indirect bool // an indirect column filter was accepted instead
}

// Sentinel inspects outgoing statements for missing tenant filters.
// It only logs; it never changes results or rejects a statement.
type Sentinel struct {
	tables    map[string]*regexp.Regexp
	direct    *regexp.Regexp
	indirect  *regexp.Regexp
	throttle  *ttlcache.Cache[string, struct{}]
	routeFunc func(ctx context.Context) string
	logger    *zap.Logger
	metrics   *observability.Metrics
}

var (
	statementKind = regexp.MustCompile(`^\s*(?:with\b.*?\)\s*)?(select|update|delete|insert)\b`)
	whitespace    = regexp.MustCompile(`\s+`)
	directFilter  = regexp.MustCompile(`(?:^|[^a-z0-9_.])(?:([a-z_][a-z0-9_]*)\.)?tenant_id\s*(?:=|in\s*\()`)
)

// aliasStopwords are words that may follow a table reference without aliasing it
var aliasStopwords = map[string]bool{
	"where": true, "join": true, "inner": true, "left": true, "right": true, "full": true,
	"cross": true, "natural": true, "on": true, "using": true, "set": true, "group": true,
	"order": true, "limit": true, "offset": true, "having": true, "window": true,
	"returning": true, "union": true, "except": true, "intersect": true, "for": true,
}

// NewSentinel builds a Sentinel; an empty table list audits nothing
func NewSentinel(cfg SentinelConfig, logger *zap.Logger, metrics *observability.Metrics) *Sentinel {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	s := &Sentinel{
		tables:    make(map[string]*regexp.Regexp, len(cfg.Tables)),
		direct:    directFilter,
		throttle:  ttlcache.New[string, struct{}](cfg.CacheSize, cfg.Window),
		routeFunc: cfg.RouteFunc,
		logger:    logger,
		metrics:   metrics,
	}

	for _, table := range cfg.Tables {
		t := strings.ToLower(strings.TrimSpace(table))
		if t == "" {
			continue
		}
		// Group 1 captures the alias of each reference.
		s.tables[t] = regexp.MustCompile(
			`(?:\b(?:from|join|update)\s+|,\s*)(?:"?[a-z_][a-z0-9_]*"?\.)?"?` + regexp.QuoteMeta(t) +
				`"?(?:\s+(?:as\s+)?([a-z_][a-z0-9_]*))?(?:[^a-z0-9_.]|$)`)
	}

	var cols []string
	for _, c := range cfg.IndirectColumns {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			cols = append(cols, regexp.QuoteMeta(c))
		}
	}
	if len(cols) > 0 {
		s.indirect = regexp.MustCompile(
			`(?:^|[^a-z0-9_.])(?:([a-z_][a-z0-9_]*)\.)?(?:` + strings.Join(cols, "|") + `)\s*(?:=|in\s*\()`)
	}

	return s
}

// Inspect returns the findings for query without logging them.
// Each reference to a tenant-owned table needs a tenant_id predicate that is
// unqualified or qualified with that reference's alias or table name.
// Assignments in an UPDATE's SET clause are not predicates.
func (s *Sentinel) Inspect(query string) []Finding {
	if len(s.tables) == 0 {
		return nil
	}

	normalized := whitespace.ReplaceAllString(strings.ToLower(query), " ")
	m := statementKind.FindStringSubmatch(normalized)
	if m == nil || m[1] == "insert" {
		return nil
	}

	predicates := normalized
	if m[1] == "update" {
		predicates = withoutSetClause(normalized)
	}
	direct := qualifiers(s.direct, predicates)
	var indirect map[string]bool
	if s.indirect != nil {
		indirect = qualifiers(s.indirect, predicates)
	}

	var findings []Finding
	for table, re := range s.tables {
		for _, ref := range re.FindAllStringSubmatch(normalized, -1) {
			alias := ref[1]
			if aliasStopwords[alias] {
				alias = ""
			}
			if covers(direct, table, alias) {
				continue
			}
			findings = append(findings, Finding{Table: table, Indirect: covers(indirect, table, alias)})
			break
		}
	}
	return findings
}

// qualifiers collects the qualifier of every predicate re matches; an
// unqualified predicate is recorded under "".
func qualifiers(re *regexp.Regexp, sql string) map[string]bool {
	matches := re.FindAllStringSubmatch(sql, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make(map[string]bool, len(matches))
	for _, m := range matches {
		out[m[1]] = true
	}
	return out
}

// covers reports whether a predicate applies to a reference of table.
// An unqualified tenant_id is only valid SQL when a single tenant-owned
// table is in scope, so it covers every reference.
func covers(preds map[string]bool, table, alias string) bool {
	if preds[""] || preds[table] {
		return true
	}
	return alias != "" && preds[alias]
}

// withoutSetClause drops everything between SET and WHERE of an UPDATE
func withoutSetClause(sql string) string {
	set := strings.Index(sql, " set ")
	if set < 0 {
		return sql
	}
	if where := strings.Index(sql[set:], " where "); where >= 0 {
		return sql[:set] + sql[set+where:]
	}
	return sql[:set]
}

// Check inspects query and reports findings, at most once per table and route per window
func (s *Sentinel) Check(ctx context.Context, query, route string) {
	findings := s.Inspect(query)
	if len(findings) == 0 {
		return
	}
	if route == "" {
		route = s.route(ctx)
	}

	for _, f := range findings {
		key := f.Table + "|" + route
		if !s.throttle.SetIfAbsent(key, struct{}{}) {
			continue
		}
		s.metrics.AuditWarning(f.Table, f.Indirect)

		logger := observability.FromContext(ctx, s.logger)
		if f.Indirect {
			// The parent row behind the indirect column is not verified to be tenant scoped
			logger.Info("statement relies on indirect tenant filter",
				zap.String("table", f.Table),
				zap.String("route", route),
				zap.Bool("indirect_filter", true))
			continue
		}
		logger.Warn("statement on tenant-owned table without tenant filter",
			zap.String("table", f.Table),
			zap.String("route", route),
			zap.Bool("indirect_filter", false),
			zap.String("query", truncate(query, 240)))
	}
}

func (s *Sentinel) route(ctx context.Context) string {
	if s.routeFunc != nil {
		if r := s.routeFunc(ctx); r != "" {
			return r
		}
	}
	return "unknown"
}

// Wrap returns an executor that audits every statement before delegating.
// An empty route is resolved per statement through RouteFunc.
func (s *Sentinel) Wrap(exec repositories.Executor, route string) repositories.Executor {
	return &auditedExecutor{next: exec, sentinel: s, route: route}
}

type auditedExecutor struct {
	next     repositories.Executor
	sentinel *Sentinel
	route    string
}

func (a *auditedExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	a.sentinel.Check(ctx, query, a.route)
	return a.next.ExecContext(ctx, query, args...)
}

func (a *auditedExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	a.sentinel.Check(ctx, query, a.route)
	return a.next.QueryContext(ctx, query, args...)
}

func (a *auditedExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	a.sentinel.Check(ctx, query, a.route)
	return a.next.QueryRowContext(ctx, query, args...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
