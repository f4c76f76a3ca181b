// Package ledger is the instruction entry point. It turns a signed request
// into a program call, then runs the post-commit side effects: end-of-rental
// scheduling, lifecycle events and metrics.
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nft-rental-escrow/internal/deadline"
	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/escrow"
	"nft-rental-escrow/internal/events"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/metrics"
	"nft-rental-escrow/internal/security"
)

type Instruction string

const (
	InstructionList          Instruction = "list"
	InstructionRent          Instruction = "rent"
	InstructionEnd           Instruction = "end"
	InstructionDelist        Instruction = "delist"
	InstructionEmergencyExit Instruction = "emergency_exit"
)

// Request is one instruction with the attestations of everyone who signed
// it. Each attestation signs Digest(Instruction, Params).
type Request struct {
	Instruction Instruction     `json:"instruction"`
	Params      json.RawMessage `json:"params"`
	Signatures  []string        `json:"signatures,omitempty"`
}

// Result carries the committed outcome. A failed end-of-rental schedule does
// not fail the rent; it is reported in ScheduleError.
type Result struct {
	Instruction   Instruction           `json:"instruction"`
	Record        *domain.RentalRecord  `json:"record,omitempty"`
	Settlement    *domain.Settlement    `json:"settlement,omitempty"`
	Task          *domain.ScheduledTask `json:"task,omitempty"`
	ScheduleError string                `json:"schedule_error,omitempty"`
}

// Digest is what signers attest to for an instruction.
func Digest(instruction Instruction, params []byte) []byte {
	h := sha256.New()
	h.Write([]byte(instruction))
	h.Write([]byte{0})
	h.Write(params)
	return h.Sum(nil)
}

type Submitter interface {
	Submit(ctx context.Context, req Request) (*Result, error)
}

type Options struct {
	SignatureMaxAge time.Duration
	ScheduleOnRent  bool
	Now             func() time.Time
}

type submitter struct {
	program   escrow.Program
	bridge    deadline.Bridge
	publisher events.Publisher
	metrics   *metrics.Metrics
	opts      Options
}

func NewSubmitter(program escrow.Program, bridge deadline.Bridge, publisher events.Publisher, m *metrics.Metrics, opts Options) Submitter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if publisher == nil {
		publisher = events.NewLogPublisher()
	}
	return &submitter{program: program, bridge: bridge, publisher: publisher, metrics: m, opts: opts}
}

func (s *submitter) Submit(ctx context.Context, req Request) (res *Result, err error) {
	logger.EnterMethod("ledger.Submit", "instruction", string(req.Instruction), "signatures", len(req.Signatures))
	start := s.opts.Now()
	defer func() {
		s.observe(req.Instruction, start, err)
		if err != nil {
			logger.ExitMethodWithError("ledger.Submit", err, domain.KindOf(err) == domain.KindPrecondition,
				"instruction", string(req.Instruction))
			return
		}
		logger.ExitMethod("ledger.Submit", "instruction", string(req.Instruction))
	}()

	signers, err := s.verifySignatures(req)
	if err != nil {
		return nil, err
	}

	res = &Result{Instruction: req.Instruction}
	switch req.Instruction {
	case InstructionList:
		var p escrow.ListRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if res.Record, err = s.program.List(ctx, signers, p); err != nil {
			return nil, err
		}
		s.publish(ctx, events.RentalListed, res.Record.Address, res.Record)

	case InstructionRent:
		var p escrow.RentRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if res.Record, err = s.program.Rent(ctx, signers, p); err != nil {
			return nil, err
		}
		s.publish(ctx, events.RentalRented, res.Record.Address, res.Record)
		if s.opts.ScheduleOnRent && s.bridge != nil {
			s.scheduleEnd(ctx, res)
		}

	case InstructionEnd:
		var p escrow.EndRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if !p.Caller.IsZero() && !signers.Has(p.Caller) {
			return nil, domain.ErrMissingSignature
		}
		if res.Settlement, err = s.program.End(ctx, signers, p); err != nil {
			return nil, err
		}
		s.publish(ctx, events.RentalEnded, p.Record, res.Settlement)

	case InstructionDelist:
		var p escrow.DelistRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if res.Settlement, err = s.program.Delist(ctx, signers, p); err != nil {
			return nil, err
		}
		s.publish(ctx, events.RentalDelisted, p.Record, res.Settlement)

	case InstructionEmergencyExit:
		var p escrow.EmergencyExitRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if res.Settlement, err = s.program.EmergencyExit(ctx, signers, p); err != nil {
			return nil, err
		}
		s.publish(ctx, events.RentalExited, p.Record, res.Settlement)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, req.Instruction)
	}
	return res, nil
}

func (s *submitter) scheduleEnd(ctx context.Context, res *Result) {
	task, err := s.bridge.ScheduleEnd(ctx, res.Record)
	if err != nil {
		res.ScheduleError = err.Error()
		if s.metrics != nil {
			s.metrics.SchedulingFailures.Inc()
		}
		s.publish(ctx, events.ScheduleFailed, res.Record.Address, map[string]string{"error": err.Error()})
		return
	}
	res.Task = task
	s.publish(ctx, events.EndTaskScheduled, res.Record.Address, task)
}

// verifySignatures resolves every attestation to its signer. A bad
// attestation is treated as a missing signature.
func (s *submitter) verifySignatures(req Request) (domain.Signers, error) {
	digest := Digest(req.Instruction, req.Params)
	addrs := make([]domain.Address, 0, len(req.Signatures))
	for i, sig := range req.Signatures {
		addr, err := security.VerifyAttestation(sig, digest, s.opts.SignatureMaxAge)
		if err != nil {
			logger.Warn("Rejected attestation", "instruction", string(req.Instruction), "index", i, "error", err)
			return nil, fmt.Errorf("%w: attestation %d: %v", domain.ErrMissingSignature, i, err)
		}
		addrs = append(addrs, addr)
	}
	return domain.NewSigners(addrs...), nil
}

func (s *submitter) publish(ctx context.Context, typ events.Type, record domain.Address, data any) {
	ev := events.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Record:     record,
		OccurredOn: s.opts.Now().UTC(),
		Data:       data,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.WarnContext(ctx, "Failed to publish rental event", "type", string(typ), "record", record.String(), "error", err)
	}
}

func (s *submitter) observe(instruction Instruction, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = domain.CodeOf(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	s.metrics.Operations.WithLabelValues(string(instruction), outcome).Inc()
	s.metrics.OperationDuration.WithLabelValues(string(instruction)).Observe(s.opts.Now().Sub(start).Seconds())
}

func decodeParams(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	return nil
}
