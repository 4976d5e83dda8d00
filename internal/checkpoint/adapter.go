package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"checkpoint-gateway/backend/internal/config"
	"checkpoint-gateway/backend/internal/dodgeball"
	"checkpoint-gateway/backend/internal/util"
)

// Engine is the decision engine collaborator.
type Engine interface {
	Checkpoint(ctx context.Context, req dodgeball.CheckpointRequest) (*dodgeball.CheckpointResponse, error)
	Track(ctx context.Context, req dodgeball.TrackRequest) error
}

// EngineFactory builds an Engine from validated engine configuration.
type EngineFactory func(cfg config.EngineConfig) (Engine, error)

// NewDodgeballEngine is the EngineFactory backed by the REST client.
func NewDodgeballEngine(cfg config.EngineConfig) (Engine, error) {
	client, err := dodgeball.NewClient(dodgeball.Config{
		APIURL:  cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Request is the inbound checkpoint execution request.
type Request struct {
	CheckpointName string `json:"checkpointName"`
	Payload        any    `json:"payload,omitempty"`
	SourceToken    string `json:"sourceToken,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	VerificationID string `json:"verificationId,omitempty"`
}

// ResponseBody is the JSON body returned to the caller.
type ResponseBody struct {
	Verification *dodgeball.Verification `json:"verification,omitempty"`
	Message      string                  `json:"message,omitempty"`
}

// Result bundles the response with what produced it.
type Result struct {
	Status   int
	Body     ResponseBody
	Decision Decision
	Outcome  *dodgeball.CheckpointResponse
	Err      error
	Duration time.Duration
}

// EventRequest is a server-side event to forward to the engine.
type EventRequest struct {
	EventName   string `json:"eventName"`
	Payload     any    `json:"payload,omitempty"`
	SourceToken string `json:"sourceToken,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// AdapterConfig wires the adapter's collaborators.
type AdapterConfig struct {
	Engine      config.EngineConfig
	NewEngine   EngineFactory
	Predicates  *Predicates
	TrackEvents bool
}

// Adapter runs checkpoints against the decision engine and maps outcomes onto HTTP responses.
type Adapter struct {
	engineCfg   config.EngineConfig
	newEngine   EngineFactory
	predicates  Predicates
	trackEvents bool
}

const (
	undeterminedMessage = "checkpoint outcome undetermined"
	failedMessage       = "checkpoint verification failed"
)

// NewAdapter constructs an Adapter. A nil factory selects the REST client.
func NewAdapter(cfg AdapterConfig) *Adapter {
	factory := cfg.NewEngine
	if factory == nil {
		factory = NewDodgeballEngine
	}
	predicates := DefaultPredicates
	if cfg.Predicates != nil {
		predicates = *cfg.Predicates
	}
	return &Adapter{
		engineCfg:   cfg.Engine,
		newEngine:   factory,
		predicates:  predicates,
		trackEvents: cfg.TrackEvents,
	}
}

// Configured reports whether the engine settings are complete.
func (a *Adapter) Configured() bool {
	return a != nil && a.engineCfg.Validate() == nil
}

// Handle executes a checkpoint. It never returns an error: every failure is
// converted into a 500 result carrying the error text.
func (a *Adapter) Handle(ctx context.Context, req Request, clientIP string) (result Result) {
	timer := util.StartTimer()
	defer func() {
		if r := recover(); r != nil {
			result = a.failure(req, fmt.Errorf("checkpoint engine panic: %v", r))
		}
		result.Duration = timer.Elapsed()
	}()

	engine, err := a.engine()
	if err != nil {
		return a.failure(req, err)
	}

	event := dodgeball.Event{IP: clientIP, Data: req.Payload}
	if a.trackEvents {
		a.trackCheckpoint(ctx, engine, req)
	}

	outcome, err := engine.Checkpoint(ctx, dodgeball.CheckpointRequest{
		CheckpointName:    req.CheckpointName,
		Event:             event,
		SourceToken:       req.SourceToken,
		SessionID:         req.SessionID,
		UserID:            req.UserID,
		UseVerificationID: req.VerificationID,
		Options:           dodgeball.CheckpointOptions{Timeout: a.engineCfg.CheckpointTimeout},
	})
	if err != nil {
		return a.failure(req, err)
	}
	if outcome == nil {
		return a.failure(req, errors.New("decision engine returned no outcome"))
	}

	decision := Classify(a.predicates, outcome)
	result = Result{
		Status:   decision.HTTPStatus(),
		Decision: decision,
		Outcome:  outcome,
	}
	switch decision {
	case Allowed, Running, Denied:
		result.Body = ResponseBody{Verification: outcome.Verification}
	default:
		result.Body = ResponseBody{Message: undeterminedText(outcome)}
	}

	entry := logrus.WithFields(logrus.Fields{
		"checkpoint": req.CheckpointName,
		"decision":   decision,
		"status":     result.Status,
	})
	if outcome.Verification != nil {
		entry = entry.WithField("verification_id", outcome.Verification.ID)
		if outcome.Verification.StepData != nil && outcome.Verification.StepData.CustomMessage != "" {
			entry = entry.WithField("step_message", outcome.Verification.StepData.CustomMessage)
		}
	}
	if dodgeball.HasTimedOut(outcome) {
		entry = entry.WithField("timeout", true)
	}
	if decision == Undetermined {
		entry.Warn("checkpoint outcome undetermined")
	} else {
		entry.Info("checkpoint evaluated")
	}
	return result
}

// Track forwards a server-side event to the engine.
func (a *Adapter) Track(ctx context.Context, req EventRequest) error {
	if strings.TrimSpace(req.EventName) == "" {
		return errors.New("eventName is required")
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}
	return engine.Track(ctx, dodgeball.TrackRequest{
		Event:       dodgeball.TrackEvent{Type: req.EventName, Data: req.Payload},
		SourceToken: req.SourceToken,
		SessionID:   req.SessionID,
		UserID:      req.UserID,
	})
}

func (a *Adapter) engine() (Engine, error) {
	if a == nil {
		return nil, errors.New("checkpoint adapter is nil")
	}
	if err := a.engineCfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := a.newEngine(a.engineCfg)
	if err != nil {
		return nil, fmt.Errorf("create decision engine client: %w", err)
	}
	return engine, nil
}

func (a *Adapter) trackCheckpoint(ctx context.Context, engine Engine, req Request) {
	err := engine.Track(ctx, dodgeball.TrackRequest{
		Event:       dodgeball.TrackEvent{Type: "Event_" + req.CheckpointName, Data: req.Payload},
		SourceToken: req.SourceToken,
		SessionID:   req.SessionID,
		UserID:      req.UserID,
	})
	if err != nil {
		logrus.WithError(err).WithField("checkpoint", req.CheckpointName).Warn("track checkpoint event")
	}
}

func (a *Adapter) failure(req Request, err error) Result {
	logrus.WithError(err).WithField("checkpoint", req.CheckpointName).Error("checkpoint invocation failed")
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = "checkpoint invocation failed"
	}
	return Result{
		Status:   http.StatusInternalServerError,
		Body:     ResponseBody{Message: message},
		Decision: Undetermined,
		Err:      err,
	}
}

func undeterminedText(outcome *dodgeball.CheckpointResponse) string {
	if msg := outcome.Errors.String(); msg != "" {
		return msg
	}
	if v := outcome.Verification; v != nil && v.Error != nil && v.Error.Message != "" {
		return v.Error.Message
	}
	if dodgeball.HasFailed(outcome) {
		return failedMessage
	}
	return undeterminedMessage
}
