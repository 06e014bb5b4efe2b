package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests          *CounterVec
	apiLatency           *HistogramVec
	apiInflight          *Gauge
	apiReqTotal          *Counter
	apiReqError          *Counter
	apiReqGood           *Counter
	llmRequests          *CounterVec
	llmLatency           *HistogramVec
	llmTokens            *CounterVec
	llmCost              *CounterVec
	dataQuality          *CounterVec
	clientPerf           *HistogramVec
	clientError          *CounterVec
	jobTime              *HistogramVec
	stageTime            *HistogramVec
	stageCt              *CounterVec
	stageTotal           *Counter
	stageError           *Counter
	stageRetry           *CounterVec
	loadsFinalized       *CounterVec
	loadRows             *CounterVec
	nodesWritten         *CounterVec
	versionTransitions   *CounterVec
	mappingDecisions     *CounterVec
	mappingDecisionTotal *Counter
	mappingAutoTotal     *Counter
	remapOutcomes        *CounterVec
	remapRuns            *CounterVec
	promotionChanges     *CounterVec
	promotionRuns        *Counter
	callbackDeliveries   *CounterVec
	eventsPublished      *CounterVec
	invariantViolations  *GaugeVec
	invariantScanTotal   *Counter
	invariantScanSlow    *Counter
	invariantScanTime    *HistogramVec
	costTotal            *CounterVec
	securityEvents       *CounterVec
	queueDepth           *GaugeVec
	queueOldestAge       *Gauge
	pgStats              *GaugeVec
	redisUp              *Gauge
	redisPing            *Gauge
	sloCompliance        *GaugeVec
	sloBudget            *GaugeVec
	sloBurn              *GaugeVec
	sloLatencyThreshold  float64
	scanSlowThreshold    float64
	workerTotal          *Counter
	workerError          *Counter
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

var (
	llmTelemetryOnce      sync.Once
	llmTelemetryOn        bool
	llmCostInputPer1KUSD  float64
	llmCostOutputPer1KUSD float64
)

func llmTelemetryEnabled() bool {
	llmTelemetryOnce.Do(loadLLMTelemetryConfig)
	return llmTelemetryOn
}

func llmCostRates() (float64, float64) {
	llmTelemetryOnce.Do(loadLLMTelemetryConfig)
	return llmCostInputPer1KUSD, llmCostOutputPer1KUSD
}

func loadLLMTelemetryConfig() {
	llmTelemetryOn = parseBoolEnv("LLM_TELEMETRY_ENABLED", false)
	llmCostInputPer1KUSD = parseFloatEnv("LLM_COST_INPUT_PER_1K", 0)
	llmCostOutputPer1KUSD = parseFloatEnv("LLM_COST_OUTPUT_PER_1K", 0)
}

func parseBoolEnv(key string, fallback bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if val == "" {
		return fallback
	}
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseFloatEnv(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		latencyThreshold := 0.5
		if v := strings.TrimSpace(os.Getenv("SLO_API_LATENCY_THRESHOLD_SECONDS")); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				latencyThreshold = f
			}
		}
		scanThreshold := 5.0
		if v := strings.TrimSpace(os.Getenv("INVARIANT_SCAN_SLOW_THRESHOLD_SECONDS")); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				scanThreshold = f
			}
		}
		instance = &Metrics{
			apiRequests: NewCounterVec("cl_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"cl_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			apiInflight: NewGauge("cl_api_inflight_requests", "In-flight API requests."),
			apiReqTotal: NewCounter("cl_api_requests_total_all", "Total API requests (all)."),
			apiReqError: NewCounter("cl_api_requests_error_total", "Total API requests with 5xx status."),
			apiReqGood:  NewCounter("cl_api_requests_good_latency_total", "Total API requests under SLO latency threshold."),
			llmRequests: NewCounterVec("cl_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
			llmLatency: NewHistogramVec(
				"cl_llm_request_duration_seconds",
				"LLM request latency in seconds by model/endpoint/status.",
				[]string{"model", "endpoint", "status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			),
			llmTokens:   NewCounterVec("cl_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
			llmCost:     NewCounterVec("cl_llm_cost_usd_total", "Estimated LLM cost (USD) by model/direction.", []string{"model", "direction"}),
			dataQuality: NewCounterVec("cl_data_quality_issues_total", "Data quality issues by stage/issue/key.", []string{"stage", "issue", "key"}),
			clientPerf: NewHistogramVec(
				"cl_client_perf_seconds",
				"Client performance timing by kind/name.",
				[]string{"kind", "name"},
				[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			clientError: NewCounterVec("cl_client_error_total", "Client errors by kind.", []string{"kind"}),
			jobTime: NewHistogramVec(
				"cl_job_duration_seconds",
				"Background job duration in seconds by kind/status.",
				[]string{"kind", "status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300, 900},
			),
			stageTime: NewHistogramVec(
				"cl_pipeline_stage_duration_seconds",
				"Pipeline stage duration in seconds by pipeline/stage/status.",
				[]string{"pipeline", "stage", "status"},
				[]float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			),
			stageCt: NewCounterVec(
				"cl_pipeline_stage_total",
				"Pipeline stage count by pipeline/stage/status.",
				[]string{"pipeline", "stage", "status"},
			),
			stageTotal: NewCounter("cl_pipeline_stage_total_all", "Pipeline stage count (all)."),
			stageError: NewCounter("cl_pipeline_stage_error_total", "Pipeline stage count with failure status."),
			stageRetry: NewCounterVec(
				"cl_pipeline_stage_retry_total",
				"Pipeline stage retries by pipeline/stage.",
				[]string{"pipeline", "stage"},
			),
			loadsFinalized: NewCounterVec(
				"cl_loads_finalized_total",
				"Finalized loads by kind/status.",
				[]string{"kind", "status"},
			),
			loadRows: NewCounterVec(
				"cl_load_rows_total",
				"Bronze rows by terminal status.",
				[]string{"status"},
			),
			nodesWritten: NewCounterVec(
				"cl_silver_nodes_written_total",
				"Silver node writes by operation.",
				[]string{"op"},
			),
			versionTransitions: NewCounterVec(
				"cl_version_transitions_total",
				"Taxonomy version transitions by change type.",
				[]string{"change_type"},
			),
			mappingDecisions: NewCounterVec(
				"cl_mapping_decisions_total",
				"Mapping decisions by strategy/status.",
				[]string{"strategy", "status"},
			),
			mappingDecisionTotal: NewCounter("cl_mapping_decisions_total_all", "Mapping decisions (all)."),
			mappingAutoTotal:     NewCounter("cl_mapping_decisions_auto_total", "Mapping decisions written active without review."),
			remapOutcomes: NewCounterVec(
				"cl_remap_nodes_total",
				"Remapped child nodes by outcome.",
				[]string{"outcome"},
			),
			remapRuns: NewCounterVec(
				"cl_remap_runs_total",
				"Remap runs by terminal status.",
				[]string{"status"},
			),
			promotionChanges: NewCounterVec(
				"cl_promotion_changes_total",
				"Production projection changes by operation.",
				[]string{"op"},
			),
			promotionRuns: NewCounter("cl_promotion_runs_total", "Production projection syncs."),
			callbackDeliveries: NewCounterVec(
				"cl_load_callbacks_total",
				"Load callback deliveries by status.",
				[]string{"status"},
			),
			eventsPublished: NewCounterVec(
				"cl_events_published_total",
				"Realtime events published by channel/event.",
				[]string{"channel", "event"},
			),
			invariantViolations: NewGaugeVec(
				"cl_invariant_violations",
				"Current invariant violations by check.",
				[]string{"check"},
			),
			invariantScanTotal: NewCounter("cl_invariant_scan_total", "Invariant scans performed."),
			invariantScanSlow:  NewCounter("cl_invariant_scan_slow_total", "Invariant scans over latency threshold."),
			invariantScanTime: NewHistogramVec(
				"cl_invariant_scan_duration_seconds",
				"Invariant scan duration in seconds.",
				[]string{"status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			),
			costTotal: NewCounterVec(
				"cl_cost_usd_total",
				"Cost telemetry (USD) by category/source.",
				[]string{"category", "source"},
			),
			securityEvents: NewCounterVec(
				"cl_security_events_total",
				"Security-related events by type.",
				[]string{"event"},
			),
			queueDepth:          NewGaugeVec("cl_job_queue_depth", "Job queue depth by status.", []string{"status"}),
			queueOldestAge:      NewGauge("cl_job_queue_oldest_age_seconds", "Age of the oldest queued job in seconds."),
			pgStats:             NewGaugeVec("cl_postgres_stats", "Postgres connection stats.", []string{"metric"}),
			redisUp:             NewGauge("cl_redis_up", "Redis connectivity (1=up, 0=down)."),
			redisPing:           NewGauge("cl_redis_ping_seconds", "Redis ping latency in seconds."),
			sloCompliance:       NewGaugeVec("cl_slo_compliance", "SLO compliance (SLI) over window.", []string{"slo", "window"}),
			sloBudget:           NewGaugeVec("cl_slo_error_budget_remaining", "Error budget remaining (0-1).", []string{"slo", "window"}),
			sloBurn:             NewGaugeVec("cl_slo_burn_rate", "Error budget burn rate.", []string{"slo", "window"}),
			sloLatencyThreshold: latencyThreshold,
			scanSlowThreshold:   scanThreshold,
			workerTotal:         NewCounter("cl_jobs_total_all", "Total background jobs executed."),
			workerError:         NewCounter("cl_jobs_error_total", "Total background jobs with failure status."),
		}
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	if err := m.apiRequests.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiInflight.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiReqTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiReqError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiReqGood.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.llmRequests.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.llmLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.llmTokens.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.llmCost.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.dataQuality.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.clientPerf.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.clientError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.jobTime.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.stageTime.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.stageCt.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.stageTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.stageError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.stageRetry.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.loadsFinalized.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.loadRows.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.nodesWritten.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.versionTransitions.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.mappingDecisions.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.mappingDecisionTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.mappingAutoTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.remapOutcomes.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.remapRuns.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.promotionChanges.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.promotionRuns.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.callbackDeliveries.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.eventsPublished.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.invariantViolations.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.invariantScanTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.invariantScanSlow.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.invariantScanTime.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.costTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.securityEvents.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.queueDepth.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.queueOldestAge.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.pgStats.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.redisUp.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.redisPing.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sloCompliance.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sloBudget.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sloBurn.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.workerTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.workerError.WritePrometheus(w); err != nil {
		return err
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	m.apiReqTotal.Inc()
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
	if m.sloLatencyThreshold > 0 && dur.Seconds() <= m.sloLatencyThreshold {
		m.apiReqGood.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveJob(kind, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.jobTime.Observe(dur.Seconds(), kind, status)
	m.workerTotal.Inc()
	if isFailureStatus(status) {
		m.workerError.Inc()
	}
}

func (m *Metrics) ObserveStage(pipeline, stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if pipeline == "" {
		pipeline = "unknown"
	}
	if stage == "" {
		stage = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.stageCt.Inc(pipeline, stage, status)
	m.stageTotal.Inc()
	if isFailureStatus(status) {
		m.stageError.Inc()
	}
	if dur > 0 {
		m.stageTime.Observe(dur.Seconds(), pipeline, stage, status)
	}
}

func (m *Metrics) IncStageRetry(pipeline, stage string) {
	if m == nil {
		return
	}
	if pipeline == "" {
		pipeline = "unknown"
	}
	if stage == "" {
		stage = "unknown"
	}
	m.stageRetry.Inc(pipeline, stage)
}

func (m *Metrics) IncLoadFinalized(kind, status string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.loadsFinalized.Inc(kind, status)
}

func (m *Metrics) AddLoadRows(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.loadRows.Add(float64(n), status)
}

func (m *Metrics) AddNodesWritten(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.nodesWritten.Add(float64(n), op)
}

func (m *Metrics) IncVersionTransition(changeType string) {
	if m == nil {
		return
	}
	if changeType == "" {
		changeType = "unknown"
	}
	m.versionTransitions.Inc(changeType)
}

func (m *Metrics) IncMappingDecision(strategy, status string) {
	if m == nil {
		return
	}
	strategy = strings.TrimSpace(strategy)
	if strategy == "" {
		strategy = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	m.mappingDecisions.Inc(strategy, status)
	m.mappingDecisionTotal.Inc()
	if status == "active" {
		m.mappingAutoTotal.Inc()
	}
}

func (m *Metrics) AddRemapOutcomes(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.remapOutcomes.Add(float64(n), outcome)
}

func (m *Metrics) IncRemapRun(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.remapRuns.Inc(status)
}

func (m *Metrics) AddPromotionChanges(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.promotionChanges.Add(float64(n), op)
}

func (m *Metrics) IncPromotionRun() {
	if m == nil {
		return
	}
	m.promotionRuns.Inc()
}

func (m *Metrics) IncCallback(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.callbackDeliveries.Inc(status)
}

func (m *Metrics) IncEventPublished(channel, event string) {
	if m == nil {
		return
	}
	if channel == "" {
		channel = "unknown"
	}
	if event == "" {
		event = "unknown"
	}
	m.eventsPublished.Inc(channel, event)
}

func (m *Metrics) SetInvariantViolations(check string, v float64) {
	if m == nil {
		return
	}
	check = strings.TrimSpace(check)
	if check == "" {
		check = "unknown"
	}
	if v < 0 {
		v = 0
	}
	m.invariantViolations.Set(v, check)
}

func (m *Metrics) ObserveInvariantScan(dur time.Duration, status string) {
	if m == nil {
		return
	}
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		status = "unknown"
	}
	secs := dur.Seconds()
	if secs < 0 {
		secs = 0
	}
	m.invariantScanTotal.Inc()
	if m.scanSlowThreshold > 0 && secs > m.scanSlowThreshold {
		m.invariantScanSlow.Inc()
	}
	m.invariantScanTime.Observe(secs, status)
}

func (m *Metrics) AddCost(category, source string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = "unknown"
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "unknown"
	}
	m.costTotal.Add(amount, category, source)
}

func (m *Metrics) IncSecurityEvent(event string) {
	if m == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		event = "unknown"
	}
	m.securityEvents.Inc(event)
}

func (m *Metrics) ObserveClientPerf(kind, name string, seconds float64) {
	if m == nil {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unknown"
	}
	if seconds <= 0 {
		return
	}
	m.clientPerf.Observe(seconds, kind, name)
}

func (m *Metrics) IncClientError(kind string) {
	if m == nil {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	m.clientError.Inc(kind)
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil || !llmTelemetryEnabled() {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	totalTokens := inputTokens + outputTokens
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
	if totalTokens > 0 {
		m.llmTokens.Add(float64(totalTokens), model, "total")
	}
	inputRate, outputRate := llmCostRates()
	cost := 0.0
	if inputTokens > 0 && inputRate > 0 {
		in := (float64(inputTokens) / 1000.0) * inputRate
		m.llmCost.Add(in, model, "input")
		cost += in
	}
	if outputTokens > 0 && outputRate > 0 {
		out := (float64(outputTokens) / 1000.0) * outputRate
		m.llmCost.Add(out, model, "output")
		cost += out
	}
	if cost > 0 {
		m.AddCost("llm", "openai", cost)
	}
}

func (m *Metrics) IncDataQuality(stage, issue, key string) {
	if m == nil {
		return
	}
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "unknown"
	}
	issue = strings.TrimSpace(issue)
	if issue == "" {
		issue = "unknown"
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "none"
	}
	m.dataQuality.Inc(stage, issue, key)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
				m.pgStats.Set(float64(stats.MaxIdleClosed), "max_idle_closed")
				m.pgStats.Set(float64(stats.MaxIdleTimeClosed), "max_idle_time_closed")
				m.pgStats.Set(float64(stats.MaxLifetimeClosed), "max_lifetime_closed")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{
		jobs.StatusQueued,
		jobs.StatusRunning,
		jobs.StatusSucceeded,
		jobs.StatusFailed,
		jobs.StatusCanceled,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range statuses {
					m.queueDepth.Set(0, s)
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&jobs.JobRun{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					status := strings.TrimSpace(row.Status)
					if status == "" {
						status = "unknown"
					}
					m.queueDepth.Set(float64(row.Count), status)
				}
				var oldest *time.Time
				if err := db.WithContext(ctx).
					Model(&jobs.JobRun{}).
					Where("status = ?", jobs.StatusQueued).
					Select("min(created_at)").
					Scan(&oldest).Error; err != nil {
					if log != nil {
						log.Warn("metrics: oldest queued job query failed", "error", err)
					}
					continue
				}
				if oldest == nil {
					m.queueOldestAge.Set(0)
				} else {
					m.queueOldestAge.Set(time.Since(*oldest).Seconds())
				}
			}
		}
	}()
}

// ---- lightweight metric primitives (Prometheus exposition) ----

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val++
	g.mu.Unlock()
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val--
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	if len(status) < 3 {
		return false
	}
	return status[0] == '5'
}

func isFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "error", "timeout", "panic":
		return true
	default:
		return false
	}
}
