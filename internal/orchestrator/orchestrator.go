package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/speech"
	"voice-agent-platform/internal/textgen"
	"voice-agent-platform/internal/voices"
)

const (
	noteStoppedByUser = "Call stopped by user"
	noteShutdown      = "Call stopped: service shutting down"
)

// VoiceResolver looks up the agent conducting a call.
type VoiceResolver interface {
	Resolve(ctx context.Context, id string) (voices.VoiceProfile, error)
}

// UsageRecorder counts started calls against the account's plan.
type UsageRecorder interface {
	RecordCall(ctx context.Context, accountID string) error
}

// Observer is told about every transition the orchestrator writes.
type Observer interface {
	CallTransitioned(ctx context.Context, from calls.Status, c calls.Call)
}

// Orchestrator drives calls from scheduled through in-progress to a terminal
// status. It exclusively owns the set of active streams: an entry is removed
// by whichever path observes the end of the call first, and that path decides
// the terminal status.
type Orchestrator struct {
	store    calls.Store
	voices   VoiceResolver
	gen      textgen.Generator
	tts      speech.Synthesizer
	observer Observer
	usage    UsageRecorder
	clock    func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	active map[string]*stream
	wg     sync.WaitGroup
}

// stream is the cancellation handle of one running call.
type stream struct {
	cancel context.CancelFunc
	// stopNote is set by whoever removed the entry on behalf of a stop.
	stopNote string
}

type Option func(*Orchestrator)

func WithObserver(o Observer) Option        { return func(x *Orchestrator) { x.observer = o } }
func WithUsage(u UsageRecorder) Option      { return func(x *Orchestrator) { x.usage = u } }
func WithClock(now func() time.Time) Option { return func(x *Orchestrator) { x.clock = now } }
func WithLogger(l *slog.Logger) Option      { return func(x *Orchestrator) { x.log = l } }

func New(store calls.Store, voices VoiceResolver, gen textgen.Generator, tts speech.Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		voices: voices,
		gen:    gen,
		tts:    tts,
		clock:  time.Now,
		log:    slog.Default(),
		active: map[string]*stream{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is a call that passed its preconditions and is now in-progress.
type run struct {
	call  calls.Call
	voice voices.VoiceProfile
	s     *stream
	ctx   context.Context
}

// StartCall runs the whole call synchronously and returns its terminal record.
//
// Provider failures do not surface as errors: they end the call as missed
// with outcome failed. Errors are returned for unusable voice agents, calls
// that are not startable, a concurrent start of the same call and store failures.
func (o *Orchestrator) StartCall(ctx context.Context, call calls.Call) (calls.Call, error) {
	r, err := o.begin(ctx, ctx, call)
	if err != nil {
		return calls.Call{}, err
	}
	return o.finish(r)
}

// StartCallAsync checks preconditions and writes in-progress before returning;
// the conversation itself continues in the background, detached from ctx.
func (o *Orchestrator) StartCallAsync(ctx context.Context, call calls.Call) (calls.Call, error) {
	r, err := o.begin(ctx, context.WithoutCancel(ctx), call)
	if err != nil {
		return calls.Call{}, err
	}
	started := r.call

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.finish(r); err != nil {
			o.log.Error("call finish failed", "call_id", r.call.ID, "err", err)
		}
	}()
	return started, nil
}

// StopCall cancels the running stream of callID. It reports whether a stream
// was found; an unknown id is a no-op and writes nothing.
func (o *Orchestrator) StopCall(callID string) bool {
	return o.stop(callID, noteStoppedByUser)
}

// IsCallActive reports whether callID has a running stream.
func (o *Orchestrator) IsCallActive(callID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[callID]
	return ok
}

// ActiveCalls returns the ids of all running streams.
func (o *Orchestrator) ActiveCalls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every running call and waits for background runs to write
// their terminal status, or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for _, id := range o.ActiveCalls() {
		o.stop(id, noteShutdown)
	}
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) stop(callID, note string) bool {
	o.mu.Lock()
	s, ok := o.active[callID]
	if ok {
		delete(o.active, callID)
		s.stopNote = note
	}
	o.mu.Unlock()

	if ok {
		s.cancel()
		o.log.Info("call stop requested", "call_id", callID)
	}
	return ok
}

// claim removes the entry if it still belongs to s. A false result means a
// stop got there first and s.stopNote explains why.
func (o *Orchestrator) claim(callID string, s *stream) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.active[callID]; ok && cur == s {
		delete(o.active, callID)
		return true
	}
	return false
}

func (o *Orchestrator) begin(ctx, runParent context.Context, call calls.Call) (*run, error) {
	if strings.TrimSpace(call.ID) == "" {
		return nil, &ValidationError{Field: "id", Reason: "call id required"}
	}
	if call.Status != "" && call.Status != calls.StatusScheduled {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("call is %s, not scheduled", call.Status)}
	}

	voice, err := o.voices.Resolve(ctx, call.VoiceAgentID)
	if errors.Is(err, voices.ErrNotFound) {
		return nil, &ConfigurationError{VoiceAgentID: call.VoiceAgentID, Reason: "voice profile not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve voice agent: %w", err)
	}
	if voice.AccountID != "" && call.AccountID != "" && voice.AccountID != call.AccountID {
		return nil, &ConfigurationError{VoiceAgentID: call.VoiceAgentID, Reason: "voice profile belongs to another account"}
	}
	if !voice.CanSpeak() {
		return nil, &ConfigurationError{VoiceAgentID: call.VoiceAgentID, Reason: "voice profile has no synthesis voice id"}
	}

	runCtx, cancel := context.WithCancel(runParent)
	s := &stream{cancel: cancel}
	o.mu.Lock()
	if _, busy := o.active[call.ID]; busy {
		o.mu.Unlock()
		cancel()
		return nil, ErrCallAlreadyActive
	}
	o.active[call.ID] = s
	o.mu.Unlock()

	updated, err := o.store.Update(ctx, call.ID, calls.Patch{
		ExpectStatus: calls.Ptr(calls.StatusScheduled),
		Status:       calls.Ptr(calls.StatusInProgress),
	})
	if err != nil {
		o.claim(call.ID, s)
		cancel()
		if errors.Is(err, calls.ErrStatusConflict) {
			return nil, &ValidationError{Field: "status", Reason: "call is no longer scheduled"}
		}
		return nil, fmt.Errorf("orchestrator: mark in-progress: %w", err)
	}
	o.notify(ctx, calls.StatusScheduled, updated)

	if o.usage != nil {
		if err := o.usage.RecordCall(ctx, updated.AccountID); err != nil {
			o.log.Warn("record call usage failed", "call_id", updated.ID, "err", err)
		}
	}

	return &run{call: updated, voice: voice, s: s, ctx: runCtx}, nil
}

func (o *Orchestrator) finish(r *run) (calls.Call, error) {
	defer r.s.cancel()

	greeting, err := o.converse(r)

	// Terminal writes must land even after the stream was cancelled.
	writeCtx := context.WithoutCancel(r.ctx)

	var p calls.Patch
	switch {
	case !o.claim(r.call.ID, r.s):
		p = terminalPatch(calls.OutcomeCancelled, r.s.stopNote)
	case err != nil:
		p = terminalPatch(calls.OutcomeFailed, "Call failed: "+err.Error())
	default:
		now := o.clock()
		duration := durationSeconds(r.call.StartTime, now)
		p = calls.Patch{
			Status:        calls.Ptr(calls.StatusCompleted),
			Outcome:       calls.Ptr(calls.OutcomeCompleted),
			EndTime:       &now,
			Duration:      &duration,
			Transcription: &greeting,
			AppendNote:    calls.Ptr(fmt.Sprintf("Call completed successfully. Duration: %d seconds", duration)),
		}
	}
	if p.EndTime == nil {
		now := o.clock()
		p.EndTime = &now
	}
	p.ExpectStatus = calls.Ptr(calls.StatusInProgress)

	final, werr := o.store.Update(writeCtx, r.call.ID, p)
	if werr != nil {
		return calls.Call{}, fmt.Errorf("orchestrator: write terminal status: %w", werr)
	}
	o.notify(writeCtx, calls.StatusInProgress, final)
	return final, nil
}

// converse produces and speaks the greeting. Steps run sequentially.
func (o *Orchestrator) converse(r *run) (string, error) {
	persona := textgen.Persona{Name: r.voice.Name, Personality: r.voice.Personality, Context: r.voice.Context}
	greeting, err := o.gen.Generate(r.ctx, textgen.GreetingPrompt, persona, r.call.ContactName)
	if err != nil {
		return "", &UpstreamError{Provider: "textgen", Err: err}
	}

	settings := speech.Settings{
		Stability: r.voice.Settings.Stability,
		Speed:     r.voice.Settings.Speed,
		Pitch:     r.voice.Settings.Pitch,
	}
	if err := o.tts.Speak(r.ctx, greeting, r.voice.VoiceID, settings); err != nil {
		return "", &UpstreamError{Provider: "speech", Err: err}
	}
	return greeting, nil
}

func (o *Orchestrator) notify(ctx context.Context, from calls.Status, c calls.Call) {
	if o.observer != nil {
		o.observer.CallTransitioned(ctx, from, c)
	}
}

func terminalPatch(outcome calls.Outcome, note string) calls.Patch {
	return calls.Patch{
		Status:     calls.Ptr(calls.StatusMissed),
		Outcome:    &outcome,
		AppendNote: &note,
	}
}

// durationSeconds is floor(end-start) in seconds, never negative.
func durationSeconds(start, end time.Time) int {
	d := end.Sub(start).Seconds()
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d))
}
