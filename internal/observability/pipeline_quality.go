package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
	"github.com/carelattice/taxonomy-backend/internal/platform/ctxutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

// ClassifyRowError maps a row-local failure onto a data-quality issue label.
// Unrecognized errors count as plain rejections.
func ClassifyRowError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, pkgerrors.ErrUnknownColumn):
		return "unknown_column"
	case errors.Is(err, pkgerrors.ErrEmptyValue), errors.Is(err, pkgerrors.ErrEmptyNodeRow):
		return "empty_value"
	case errors.Is(err, pkgerrors.ErrMultiNodeRow):
		return "multi_node_row"
	case errors.Is(err, pkgerrors.ErrRootLevelMismatch):
		return "orphan_row"
	case errors.Is(err, pkgerrors.ErrNaturalKeyConflict):
		return "natural_key_conflict"
	case errors.Is(err, pkgerrors.ErrLayoutInvalid), errors.Is(err, pkgerrors.ErrDuplicateLevel):
		return "layout_invalid"
	default:
		return "row_rejected"
	}
}

type dqAlertState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

var dqAlerts dqAlertState

// ReportRowQuality classifies a batch of row failures, bumps the data-quality
// counters and, when enabled, posts a rate-limited alert for the stage.
func ReportRowQuality(ctx context.Context, log *logger.Logger, stage string, errs []error, meta map[string]any) {
	if len(errs) == 0 {
		return
	}
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "unknown"
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			meta["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			meta["request_id"] = td.RequestID
		}
	}

	issueCounts := map[string]int{}
	sampleErrors := make([]string, 0, 3)
	for _, err := range errs {
		if err == nil {
			continue
		}
		if len(sampleErrors) < 3 {
			sampleErrors = append(sampleErrors, err.Error())
		}
		issue := ClassifyRowError(err)
		issueCounts[issue]++
		if m := Current(); m != nil {
			m.IncDataQuality(stage, issue, "")
		}
	}
	if len(issueCounts) == 0 {
		return
	}

	if log != nil {
		log.Warn("data quality issue detected",
			"stage", stage,
			"issues", issueCounts,
			"sample_errors", sampleErrors,
			"meta", meta,
		)
	}
	sendDataQualityAlert(stage, issueCounts, sampleErrors, meta, log)
}

func dataQualityAlertsEnabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("DATA_QUALITY_ALERTS_ENABLED")))
	if v == "" {
		return false
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func dataQualityAlertWebhook() string {
	val := strings.TrimSpace(os.Getenv("DATA_QUALITY_ALERT_WEBHOOK_URL"))
	if val != "" {
		return val
	}
	return strings.TrimSpace(os.Getenv("SLO_ALERT_WEBHOOK_URL"))
}

func dataQualityAlertMinInterval() time.Duration {
	raw := strings.TrimSpace(os.Getenv("DATA_QUALITY_ALERT_MIN_INTERVAL_SECONDS"))
	if raw == "" {
		return 5 * time.Minute
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}

func sendDataQualityAlert(stage string, issueCounts map[string]int, sampleErrors []string, meta map[string]any, log *logger.Logger) {
	if !dataQualityAlertsEnabled() {
		return
	}
	webhook := dataQualityAlertWebhook()
	if webhook == "" || len(issueCounts) == 0 {
		return
	}
	key := stage
	dqAlerts.mu.Lock()
	if dqAlerts.last == nil {
		dqAlerts.last = map[string]time.Time{}
	}
	last := dqAlerts.last[key]
	minInterval := dataQualityAlertMinInterval()
	if !last.IsZero() && time.Since(last) < minInterval {
		dqAlerts.mu.Unlock()
		return
	}
	dqAlerts.last[key] = time.Now()
	dqAlerts.mu.Unlock()

	payload := map[string]any{
		"title":         "Data quality issue",
		"stage":         stage,
		"issues":        issueCounts,
		"sample_errors": sampleErrors,
		"meta":          meta,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	postAlert(webhook, payload, log, "data quality")
}

// InvariantCount is one structural check result. Count is the number of
// violating entities, zero when the store honors the invariant.
type InvariantCount struct {
	Check string
	Count int64
}

// invariantChecks are counting queries over the live store. Each one should
// read zero on a healthy database; non-zero means a writer bypassed its
// guard or a migration left debris.
var invariantChecks = []struct {
	name  string
	query string
}{
	{
		name: "duplicate_node_keys",
		query: `SELECT count(*) FROM (
			SELECT taxonomy_id, node_type_id, customer_id, COALESCE(parent_node_id, 0), value_key
			FROM silver_taxonomy_nodes
			WHERE status = 'active' AND deleted_at IS NULL
			GROUP BY taxonomy_id, node_type_id, customer_id, COALESCE(parent_node_id, 0), value_key
			HAVING count(*) > 1
		) dup`,
	},
	{
		name: "multiple_open_versions",
		query: `SELECT count(*) FROM (
			SELECT taxonomy_id
			FROM silver_taxonomy_versions
			WHERE version_to_date IS NULL
			GROUP BY taxonomy_id
			HAVING count(*) > 1
		) dup`,
	},
	{
		name: "multiple_active_mappings",
		query: `SELECT count(*) FROM (
			SELECT child_node_id
			FROM gold_mappings
			WHERE is_active = TRUE AND deleted_at IS NULL
			GROUP BY child_node_id
			HAVING count(*) > 1
		) dup`,
	},
	{
		name: "orphan_parents",
		query: `SELECT count(*)
			FROM silver_taxonomy_nodes c
			WHERE c.status = 'active' AND c.deleted_at IS NULL AND c.parent_node_id IS NOT NULL
			AND NOT EXISTS (
				SELECT 1 FROM silver_taxonomy_nodes p
				WHERE p.id = c.parent_node_id
				AND p.taxonomy_id = c.taxonomy_id
				AND p.status = 'active' AND p.deleted_at IS NULL
			)`,
	},
	{
		name: "level_order",
		query: `SELECT count(*)
			FROM silver_taxonomy_nodes c
			JOIN silver_taxonomy_nodes p ON p.id = c.parent_node_id
			WHERE c.status = 'active' AND c.deleted_at IS NULL
			AND p.deleted_at IS NULL
			AND c.level <= p.level`,
	},
	{
		name: "misplaced_roots",
		query: `SELECT count(*)
			FROM silver_taxonomy_nodes
			WHERE status = 'active' AND deleted_at IS NULL
			AND parent_node_id IS NULL AND level <> 0`,
	},
}

// RunInvariantScan executes every structural check once and returns all
// counts, zeroes included, so gauges can be reset between scans.
func RunInvariantScan(ctx context.Context, db *gorm.DB) ([]InvariantCount, error) {
	if db == nil {
		return nil, nil
	}
	out := make([]InvariantCount, 0, len(invariantChecks))
	for _, check := range invariantChecks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var count int64
		if err := db.WithContext(ctx).Raw(check.query).Scan(&count).Error; err != nil {
			return nil, err
		}
		out = append(out, InvariantCount{Check: check.name, Count: count})
	}
	return out, nil
}

type invariantAlertState struct {
	mu   sync.Mutex
	last time.Time
}

var invariantAlerts invariantAlertState

// StartInvariantScanner runs the structural checks on a timer, publishing
// violation gauges and alerting when any check goes non-zero.
func StartInvariantScanner(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if db == nil || !invariantScanEnabled() {
		return
	}
	interval := invariantScanInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runInvariantScanOnce(ctx, log, db)
			}
		}
	}()
	if log != nil {
		log.Info("invariant scanner started", "interval", interval.String(), "checks", len(invariantChecks))
	}
}

func runInvariantScanOnce(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	start := time.Now()
	counts, err := RunInvariantScan(ctx, db)
	metrics := Current()
	if err != nil {
		if metrics != nil {
			metrics.ObserveInvariantScan(time.Since(start), "error")
		}
		if log != nil {
			log.Warn("invariant scan failed", "error", err)
		}
		return
	}
	violated := map[string]int64{}
	for _, c := range counts {
		if metrics != nil {
			metrics.SetInvariantViolations(c.Check, float64(c.Count))
		}
		if c.Count > 0 {
			violated[c.Check] = c.Count
		}
	}
	status := "clean"
	if len(violated) > 0 {
		status = "violated"
	}
	if metrics != nil {
		metrics.ObserveInvariantScan(time.Since(start), status)
	}
	if len(violated) == 0 {
		return
	}
	if log != nil {
		log.Warn("invariant violations detected", "violations", violated)
	}
	sendInvariantAlert(violated, log)
}

func invariantScanEnabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("INVARIANT_SCAN_ENABLED")))
	if v == "" {
		return false
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func invariantScanInterval() time.Duration {
	raw := strings.TrimSpace(os.Getenv("INVARIANT_SCAN_INTERVAL_SECONDS"))
	if raw == "" {
		return 5 * time.Minute
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}

func invariantAlertWebhook() string {
	val := strings.TrimSpace(os.Getenv("INVARIANT_ALERT_WEBHOOK_URL"))
	if val != "" {
		return val
	}
	return strings.TrimSpace(os.Getenv("SLO_ALERT_WEBHOOK_URL"))
}

func invariantAlertMinInterval() time.Duration {
	raw := strings.TrimSpace(os.Getenv("INVARIANT_ALERT_MIN_INTERVAL_SECONDS"))
	if raw == "" {
		return 10 * time.Minute
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}

func sendInvariantAlert(violated map[string]int64, log *logger.Logger) {
	webhook := invariantAlertWebhook()
	if webhook == "" {
		return
	}
	invariantAlerts.mu.Lock()
	last := invariantAlerts.last
	if !last.IsZero() && time.Since(last) < invariantAlertMinInterval() {
		invariantAlerts.mu.Unlock()
		return
	}
	invariantAlerts.last = time.Now()
	invariantAlerts.mu.Unlock()

	payload := map[string]any{
		"title":      "Taxonomy invariant violation",
		"violations": violated,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	postAlert(webhook, payload, log, "invariant")
}

func postAlert(webhook string, payload map[string]any, log *logger.Logger, kind string) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		if log != nil {
			log.Warn(kind+" alert request build failed", "error", err)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		if log != nil {
			log.Warn(kind+" alert post failed", "error", err)
		}
		return
	}
	_ = resp.Body.Close()
	if log != nil {
		log.Info(kind+" alert sent", "status", resp.StatusCode)
	}
}
