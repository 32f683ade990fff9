// Package pipeline sequences one chat request through the security gate,
// query generation, validation, execution and answer composition. The
// orchestrator itself is stateless; everything but the rate counters lives
// only for the duration of one request.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"datachat-backend/internal/db"
	"datachat-backend/internal/llm"
	"datachat-backend/internal/logger"
	"datachat-backend/internal/metrics"
	"datachat-backend/internal/ratelimit"
	"datachat-backend/internal/security"
	"datachat-backend/internal/sqlguard"
	"datachat-backend/internal/types"
)

// State names the position of a request in the pipeline. A request always
// ends in exactly one terminal state: StateResponded or StateError.
type State string

const (
	StateReceived      State = "RECEIVED"
	StateRateChecked   State = "RATE_CHECKED"
	StateThreatChecked State = "THREAT_CHECKED"
	StateSQLGenerated  State = "SQL_GENERATED"
	StateSQLGuarded    State = "SQL_GUARDED"
	StateExecuted      State = "EXECUTED"
	StateComposed      State = "COMPOSED"
	StateResponded     State = "RESPONDED"
	StateError         State = "ERROR"
)

// EndpointChat is the endpoint class the pipeline charges against.
const EndpointChat = "chat"

// Collaborator interfaces; the concrete types in their packages satisfy
// them, and tests substitute fakes.

type RateLimiter interface {
	Check(ctx context.Context, clientID, endpoint string) (ratelimit.Decision, error)
}

type ThreatScanner interface {
	Scan(text string) (security.Verdict, error)
}

type SchemaProvider interface {
	Description(ctx context.Context) (string, error)
}

type QueryGenerator interface {
	Generate(ctx context.Context, question, schemaDescription string) (llm.CandidateQuery, error)
}

type QueryValidator interface {
	Validate(sqlText string) sqlguard.Verdict
}

type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string) (*db.ResultSet, error)
}

type AnswerComposer interface {
	Compose(ctx context.Context, question, sqlText string, rs *db.ResultSet) (string, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, requestID, clientID, question, sqlText string, rowCount int, status string) error
}

// Request is one inbound chat turn.
type Request struct {
	ClientID string
	Message  string
}

// Outcome is the terminal result of processing one request.
type Outcome struct {
	State      State
	Kind       Kind
	HTTPStatus int
	Response   types.ChatResponse
}

type Pipeline struct {
	limiter  RateLimiter
	detector ThreatScanner
	schema   SchemaProvider
	genr     QueryGenerator
	guard    QueryValidator
	executor QueryExecutor
	composer AnswerComposer
	audit    AuditRecorder
	log      *logger.Logger
}

func New(limiter RateLimiter, detector ThreatScanner, schema SchemaProvider, genr QueryGenerator, guard QueryValidator, executor QueryExecutor, composer AnswerComposer, audit AuditRecorder) *Pipeline {
	return &Pipeline{
		limiter:  limiter,
		detector: detector,
		schema:   schema,
		genr:     genr,
		guard:    guard,
		executor: executor,
		composer: composer,
		audit:    audit,
		log:      logger.New("pipeline"),
	}
}

// Process runs the request through the state machine. Cheap failures (rate
// limit, unsafe input) reject before any completion-service or database
// call is made. No stage is retried; a failure in any stage is terminal.
func (p *Pipeline) Process(ctx context.Context, req Request) Outcome {
	requestID := uuid.NewString()
	state := StateReceived

	// Rate check
	decision, err := p.limiter.Check(ctx, req.ClientID, EndpointChat)
	if err != nil {
		return p.fail(requestID, req, state, KindInternal, err.Error(), 0)
	}
	if !decision.Allowed {
		metrics.ThrottledRequests.Inc()
		retry := int(decision.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		return p.fail(requestID, req, state, KindRateLimited, "request throttled", retry)
	}
	state = StateRateChecked

	// Threat check
	scanStart := time.Now()
	verdict, err := p.detector.Scan(req.Message)
	metrics.StageDuration.WithLabelValues("threat_check").Observe(float64(time.Since(scanStart).Milliseconds()))
	if err != nil {
		if errors.Is(err, security.ErrInputTooLong) {
			return p.fail(requestID, req, state, KindInputTooLong, err.Error(), 0)
		}
		return p.fail(requestID, req, state, KindInternal, err.Error(), 0)
	}
	if !verdict.IsSafe {
		metrics.BlockedInputs.Inc()
		p.log.Warn(req.ClientID, requestID, "unsafe input blocked", map[string]any{
			"matched_rules": verdict.MatchedRules,
			"risk_score":    verdict.RiskScore,
		})
		return p.fail(requestID, req, state, KindUnsafeInput, "threat detector hard block", 0)
	}
	state = StateThreatChecked

	// Generate
	schemaDescription, err := p.schema.Description(ctx)
	if err != nil {
		return p.fail(requestID, req, state, KindConnectionError, err.Error(), 0)
	}
	genStart := time.Now()
	candidate, err := p.genr.Generate(ctx, req.Message, schemaDescription)
	metrics.StageDuration.WithLabelValues("generate").Observe(float64(time.Since(genStart).Milliseconds()))
	if err != nil {
		if errors.Is(err, llm.ErrMultiStatement) {
			return p.fail(requestID, req, state, KindMultiStatementDetected, err.Error(), 0)
		}
		return p.fail(requestID, req, state, KindGenerationFailure, err.Error(), 0)
	}
	state = StateSQLGenerated

	// Guard
	guardVerdict := p.guard.Validate(candidate.SQL)
	if !guardVerdict.Allowed {
		metrics.GuardRejections.WithLabelValues(guardVerdict.Reason).Inc()
		p.log.Warn(req.ClientID, requestID, "candidate query rejected", map[string]any{
			"reason": guardVerdict.Reason,
			"detail": guardVerdict.Detail,
		})
		kind := KindGuardViolation
		if guardVerdict.Reason == sqlguard.ReasonMultiStatement {
			kind = KindMultiStatementDetected
		}
		return p.fail(requestID, req, state, kind, guardVerdict.Detail, 0)
	}
	state = StateSQLGuarded

	// Execute
	execStart := time.Now()
	rs, err := p.executor.Execute(ctx, guardVerdict.SQL)
	metrics.StageDuration.WithLabelValues("execute").Observe(float64(time.Since(execStart).Milliseconds()))
	if err != nil {
		switch {
		case errors.Is(err, db.ErrTimeout):
			return p.fail(requestID, req, state, KindExecutionTimeout, err.Error(), 0)
		case errors.Is(err, db.ErrConnection):
			return p.fail(requestID, req, state, KindConnectionError, err.Error(), 0)
		default:
			return p.fail(requestID, req, state, KindExecutionError, err.Error(), 0)
		}
	}
	state = StateExecuted

	// Compose; a failure here degrades instead of discarding the result.
	composeStart := time.Now()
	answer, err := p.composer.Compose(ctx, req.Message, guardVerdict.SQL, rs)
	metrics.StageDuration.WithLabelValues("compose").Observe(float64(time.Since(composeStart).Milliseconds()))
	if err != nil {
		p.log.Error(req.ClientID, requestID, "composition failed, degrading", map[string]any{"error": err.Error()})
		metrics.RequestsTotal.WithLabelValues("success", string(KindCompositionFailure)).Inc()
		answer = KindCompositionFailure.UserMessage()
	} else {
		metrics.RequestsTotal.WithLabelValues("success", "").Inc()
	}
	state = StateComposed

	p.recordAudit(ctx, requestID, req, guardVerdict.SQL, rs.RowCount, "success")
	p.log.InfoWithDuration(req.ClientID, requestID, "request completed", float64(candidate.Latency.Milliseconds()), map[string]any{
		"row_count": rs.RowCount,
		"truncated": rs.Truncated,
	})

	state = StateResponded
	return Outcome{
		State:      state,
		Kind:       KindNone,
		HTTPStatus: KindNone.HTTPStatus(),
		Response: types.ChatResponse{
			Status:   "success",
			Response: answer,
			SQL:      guardVerdict.SQL,
			RowCount: rs.RowCount,
		},
	}
}

// fail transitions into the absorbing error state, attaching the
// originating kind and its deterministic HTTP mapping.
func (p *Pipeline) fail(requestID string, req Request, from State, kind Kind, detail string, retryAfter int) Outcome {
	p.log.Error(req.ClientID, requestID, "request failed", map[string]any{
		"from_state": string(from),
		"error_kind": string(kind),
		"detail":     detail,
	})
	metrics.RequestsTotal.WithLabelValues("error", string(kind)).Inc()

	return Outcome{
		State:      StateError,
		Kind:       kind,
		HTTPStatus: kind.HTTPStatus(),
		Response: types.ChatResponse{
			Status:     "error",
			Error:      kind.UserMessage(),
			RetryAfter: retryAfter,
		},
	}
}

func (p *Pipeline) recordAudit(ctx context.Context, requestID string, req Request, sqlText string, rowCount int, status string) {
	if p.audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.audit.Record(auditCtx, requestID, req.ClientID, req.Message, sqlText, rowCount, status); err != nil {
		p.log.Warn(req.ClientID, requestID, "audit record failed", map[string]any{"error": err.Error()})
	}
}
