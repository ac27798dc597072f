package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
)

// Config is the adapter's retry policy. Values come from deployment
// configuration, not constants.
type Config struct {
	Retries        int           // additional attempts after the first
	Timeout        time.Duration // per-call timeout
	BackoffInitial time.Duration
}

// Adapter wraps the external extraction capability: per-call timeout,
// bounded retry with exponential backoff on transient failures, and
// normalization of the raw output into the canonical field mapping.
// Repeated calls with identical inputs are independent attempts; the
// capability is non-deterministic and results are never deduplicated.
type Adapter struct {
	capability Capability
	validator  *schema.Validator
	cfg        Config
	log        *slog.Logger
}

// NewAdapter builds an adapter around the given capability.
func NewAdapter(capability Capability, validator *schema.Validator, cfg Config, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	return &Adapter{capability: capability, validator: validator, cfg: cfg, log: log}
}

// Extract runs one extraction pass for doc and returns the normalized result
// at the given generation. Transient failures are retried up to the
// configured budget and never surfaced unless the budget is exhausted;
// malformed_input, unparseable and authorization failures are returned
// immediately. Pinned human values from prior always overwrite whatever the
// model produced for those fields.
func (a *Adapter) Extract(ctx context.Context, doc DocumentRef, ct constants.ContractType, generation int, prior *Context) (*model.ExtractionResult, error) {
	def, err := a.validator.Definition(ct)
	if err != nil {
		return nil, &Error{Kind: ErrMalformedInput, Cause: err}
	}

	rid := uuid.New().String()
	start := time.Now()
	a.log.Info("extract.start",
		"req_id", rid,
		"document_id", doc.ID,
		"contract_type", ct,
		"generation", generation,
		"corrected_pass", prior != nil,
	)

	attempt := 0
	operation := func() (model.FieldMap, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		raw, err := a.capability.Extract(callCtx, doc, ct, prior)
		if err != nil {
			kind := classify(err)
			a.log.Warn("extract.attempt_failed",
				"req_id", rid, "attempt", attempt, "kind", kind, "error", err)
			if kind != ErrTransient {
				return nil, backoff.Permanent(&Error{Kind: kind, Cause: err})
			}
			return nil, &Error{Kind: ErrTransient, Cause: err}
		}

		fields, err := NormalizeRaw(def, raw)
		if err != nil {
			// Unrecognizable field structure is not worth another model call.
			a.log.Warn("extract.unparseable", "req_id", rid, "attempt", attempt, "error", err)
			return nil, backoff.Permanent(err)
		}
		return fields, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.BackoffInitial

	fields, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(a.cfg.Retries+1)),
	)
	if err != nil {
		a.log.Error("extract.failed",
			"req_id", rid, "attempts", attempt, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		var ee *Error
		if errors.As(err, &ee) {
			return nil, ee
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &Error{Kind: ErrTransient, Cause: err}
	}

	provenance := make(map[string]constants.Provenance)
	if prior != nil {
		for name, val := range prior.Pinned {
			fields[name] = val
			provenance[name] = constants.ProvenanceHuman
		}
	}
	fields = PadRequired(def, fields)

	result := model.NewResult(ct, def.SchemaVersion, generation, fields, provenance)
	a.log.Info("extract.ok",
		"req_id", rid,
		"generation", generation,
		"fields", len(result.Fields),
		"attempts", attempt,
		"elapsed_ms", time.Since(start).Milliseconds())
	return result, nil
}

func classify(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransient
	}
	return ErrTransient
}
