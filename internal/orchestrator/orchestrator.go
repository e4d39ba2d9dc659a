// Package orchestrator implements the Turn Orchestrator (spec.md §4.6):
// the component that owns every piece of conversational policy for one
// call — echo suppression, filler filtering, barge-in, debounce and
// coalescing, the LLM response pipeline, who-speaks-first, voicemail and
// gatekeeper handling, the dead-air monitor, and hangup. The Carrier
// Session, STT Session, LLM Session, and TTS Session it drives are all
// policy-free; this package is where their outputs turn into decisions.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/audio"
	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/latency"
	"github.com/lexiqai/voice-orchestrator/internal/llm"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/stt"
	"github.com/lexiqai/voice-orchestrator/internal/telephony"
	"github.com/lexiqai/voice-orchestrator/internal/tts"
)

// clearRepeats is how many times SendClear is sent to the carrier on
// barge-in, spaced clearSpacing apart, since a single clear frame can race
// with audio already in the carrier's own send buffer.
const (
	clearRepeats = 3
	clearSpacing = 10 * time.Millisecond
)

// aiGreetingAMDWaitCap bounds how long an AI-speaks-first call waits for a
// carrier AMD verdict before greeting anyway (spec.md §4.6, "Who speaks
// first").
const aiGreetingAMDWaitCap = 2500 * time.Millisecond

// Deps bundles the vendor sessions and carrier bridge one Orchestrator
// drives. REST is optional: nil disables DTMF gatekeeper bypass. The
// orchestrator never calls REST.ForceHangup; it ends a call by closing the
// carrier connection.
type Deps struct {
	Carrier telephony.Session
	STT     stt.Session
	LLM     llm.Session
	TTS     tts.Session
	REST    *telephony.RESTClient
	Metrics *observability.Metrics
	Log     zerolog.Logger
}

// Orchestrator drives one call's full turn-taking lifecycle.
type Orchestrator struct {
	call *calltypes.Call
	deps Deps
	log  zerolog.Logger

	sm      *StateMachine
	ledger  *Ledger
	deadAir *DeadAirMonitor

	history    *calltypes.ConversationHistory
	transcript *calltypes.Transcript
	latencies  *latency.Recorder

	mu                sync.Mutex
	pendingUserText   strings.Builder
	responseTimer     *time.Timer
	recentAgentTexts  []string
	lastInterruptAt   time.Time
	userHasSpoken     bool
	userTurnCommitted bool
	voicemailDetected bool
	llmGenerating     bool
	awaitingFirstTTS  bool
	genCancel         context.CancelFunc

	sentenceSeq int

	endCh   chan string
	endOnce sync.Once
}

// New builds an Orchestrator for one call. Run must be called to drive it.
func New(call *calltypes.Call, deps Deps) *Orchestrator {
	agent := call.Agent
	o := &Orchestrator{
		call:       call,
		deps:       deps,
		log:        deps.Log.With().Str("call_id", call.CallID).Logger(),
		sm:         NewStateMachine(),
		ledger:     NewLedger(),
		history:    calltypes.NewConversationHistory(4000, nil),
		transcript: &calltypes.Transcript{},
		latencies:  latency.NewRecorder(),
		endCh:      make(chan string, 1),
	}
	o.deadAir = NewDeadAirMonitor(
		toDurations(agent.SilenceCheckInMS),
		agent.MaxCheckIns,
		time.Duration(agent.MaxCallSeconds)*time.Second,
		o.onDeadAirCheckIn,
		o.onDeadAirHangup,
	)
	return o
}

func toDurations(ms []int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

// Run drives the call until the carrier disconnects, the dead-air monitor
// ends it, or ctx is cancelled. It returns the end reason.
func (o *Orchestrator) Run(ctx context.Context) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordCallStart()
		defer o.deps.Metrics.RecordCallEnd()
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); o.pumpCarrierEvents(ctx) }()
	go func() { defer wg.Done(); o.pumpPartialTranscripts(ctx) }()
	go func() { defer wg.Done(); o.pumpFinalTranscripts(ctx) }()
	go func() { defer wg.Done(); o.pumpTTSAudio(ctx) }()

	go o.deadAir.Run(ctx, 1*time.Second)
	go o.runStartNode(ctx)

	var reason string
	select {
	case reason = <-o.endCh:
	case <-ctx.Done():
		reason = "context_cancelled"
	}

	cancel()
	_ = o.deps.Carrier.Close()
	wg.Wait()
	o.call.EndReason = reason
	o.call.EndedAt = time.Now()
	o.log.Info().Str("reason", reason).Msg("call ended")
	return reason
}

func (o *Orchestrator) end(reason string) {
	o.endOnce.Do(func() { o.endCh <- reason })
}

// Latencies returns every turn's recorded checkpoints, in order. Safe to
// call after Run returns; the call's owning goroutine has exited by then.
func (o *Orchestrator) Latencies() []latency.Checkpoint {
	return o.latencies.Checkpoints()
}

// Transcript returns the call's append-only transcript. Safe to call
// after Run returns.
func (o *Orchestrator) Transcript() *calltypes.Transcript {
	return o.transcript
}

// runStartNode implements who-speaks-first (spec.md §4.6): the AI greets
// immediately (after an optional bounded AMD wait), or it waits for the
// user, triggering a proactive greeting after SilenceTimeoutMS of silence
// if configured.
func (o *Orchestrator) runStartNode(ctx context.Context) {
	agent := o.call.Agent
	if agent.WhoSpeaksFirst == calltypes.SpeaksFirstUser {
		if !agent.AISpeaksAfterSilence {
			return
		}
		select {
		case <-time.After(time.Duration(agent.SilenceTimeoutMS) * time.Millisecond):
			o.mu.Lock()
			spoken := o.userHasSpoken
			o.mu.Unlock()
			if !spoken {
				o.speakGreeting(ctx)
			}
		case <-ctx.Done():
		}
		return
	}

	wait := time.Duration(agent.AMDWaitBeforeGreetingMS) * time.Millisecond
	if !agent.UseTelnyxAMD || wait <= 0 {
		o.speakGreeting(ctx)
		return
	}
	if wait > aiGreetingAMDWaitCap {
		wait = aiGreetingAMDWaitCap
	}
	select {
	case <-time.After(wait):
		o.mu.Lock()
		detected := o.voicemailDetected
		o.mu.Unlock()
		if !detected {
			o.speakGreeting(ctx)
		}
	case <-ctx.Done():
	}
}

func (o *Orchestrator) speakGreeting(ctx context.Context) {
	greeting := o.call.Agent.FirstGreeting
	if greeting == "" {
		return
	}
	o.sm.Transition(calltypes.TurnAgentSpeaking)
	o.speakSentence(ctx, calltypes.Sentence{Text: greeting, SentenceNum: 0, IsFirst: true, IsLast: true, SendTimestamp: time.Now()}, calltypes.PlaybackContent, nil)
	o.transcript.Append(calltypes.RoleAssistant, greeting, time.Now())
	o.history.Add(calltypes.TranscriptEntry{Role: calltypes.RoleAssistant, Text: greeting, Timestamp: time.Now()})
	o.pushRecentAgentText(greeting)
}

// pumpCarrierEvents forwards carrier audio to STT and reacts to carrier
// lifecycle events.
func (o *Orchestrator) pumpCarrierEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-o.deps.Carrier.Inbound():
			if !ok {
				o.end("carrier_disconnected")
				return
			}
			switch evt.Kind {
			case telephony.EventMedia:
				if o.deps.Metrics != nil {
					o.deps.Metrics.RecordAudioBytes("in", int64(len(evt.Frame.Payload)))
				}
				if err := o.deps.STT.SendAudio(evt.Frame.Payload); err != nil {
					o.log.Warn().Err(err).Msg("failed to forward audio to stt")
				}
			case telephony.EventDTMF:
				o.log.Debug().Str("digit", evt.Digit).Msg("received inbound dtmf")
			case telephony.EventStop:
				o.end("carrier_stop")
				return
			}
		}
	}
}

// pumpPartialTranscripts watches interim STT results for barge-in
// candidates while the agent holds the floor, and marks the turn as
// user-speaking once interim text starts arriving.
func (o *Orchestrator) pumpPartialTranscripts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-o.deps.STT.PartialTranscripts():
			if !ok {
				return
			}
			o.handlePartialTranscript(ctx, evt.Text)
		}
	}
}

func (o *Orchestrator) handlePartialTranscript(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	o.mu.Lock()
	agentActive := IsAgentActive(o.deps.TTS.IsHoldingFloor(), o.ledger.HoldsFloor(), o.llmGenerating, o.awaitingFirstTTS)
	recent := append([]string(nil), o.recentAgentTexts...)
	sinceInterrupt := time.Since(o.lastInterruptAt)
	o.mu.Unlock()

	if o.sm.Current() == calltypes.TurnIdle {
		o.sm.Transition(calltypes.TurnUserSpeaking)
	}

	wordCount := len(strings.Fields(text))
	echo := IsEcho(text, recent)
	filler := IsFiller(text)
	cooldown := time.Duration(o.call.Agent.InterruptionCooldownMS) * time.Millisecond
	threshold := o.call.Agent.WordCountThreshold

	if agentActive && ShouldBargeIn(wordCount, threshold, echo, filler, agentActive, sinceInterrupt, cooldown) {
		o.interrupt(ctx)
	}
}

// pumpFinalTranscripts accumulates committed transcript text and debounces
// it into user turns (spec.md §4.6, "Debounce / endpointing").
func (o *Orchestrator) pumpFinalTranscripts(ctx context.Context) {
	endpoints := o.deps.STT.EndpointSignals()
	finals := o.deps.STT.FinalTranscripts()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-finals:
			if !ok {
				return
			}
			o.onFinalTranscript(ctx, evt.Text)
		case _, ok := <-endpoints:
			if !ok {
				return
			}
			o.onEndpointSignal(ctx)
		}
	}
}

func (o *Orchestrator) onFinalTranscript(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.mu.Lock()
	alreadyBuffering := o.pendingUserText.Len() > 0
	if alreadyBuffering {
		o.pendingUserText.WriteByte(' ')
	}
	o.pendingUserText.WriteString(text)
	o.userHasSpoken = true
	o.mu.Unlock()

	o.deadAir.RecordActivity()

	// A fragment arriving while text is already buffered means the caller
	// is still mid-utterance; keep buffering on the shorter coalescing
	// window instead of the full endpointing wait (spec.md §4.6,
	// "Debounce / endpointing").
	if alreadyBuffering {
		o.resetResponseTimer(ctx, time.Duration(o.call.Agent.CoalescingWindowMS)*time.Millisecond)
		return
	}
	o.resetResponseTimer(ctx, time.Duration(o.call.Agent.EndpointingMS)*time.Millisecond)
}

func (o *Orchestrator) onEndpointSignal(ctx context.Context) {
	o.resetResponseTimer(ctx, time.Duration(o.call.Agent.EndpointingMS)*time.Millisecond)
}

func (o *Orchestrator) resetResponseTimer(ctx context.Context, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.responseTimer != nil {
		o.responseTimer.Stop()
	}
	if delay <= 0 {
		delay = time.Duration(o.call.Agent.EndpointingMS) * time.Millisecond
	}
	o.responseTimer = time.AfterFunc(delay, func() { o.commitUserTurn(ctx) })
}

func (o *Orchestrator) commitUserTurn(ctx context.Context) {
	o.mu.Lock()
	text := strings.TrimSpace(o.pendingUserText.String())
	o.pendingUserText.Reset()
	o.mu.Unlock()

	if text == "" {
		return
	}

	o.mu.Lock()
	spoken := o.userTurnCommitted
	o.userTurnCommitted = true
	o.mu.Unlock()

	if o.call.Agent.VoicemailDetectionEnabled {
		if IsVoicemailGreeting(text) || IsLongOpeningMonologue(text, spoken) {
			o.handleVoicemail(text)
			return
		}
		if digit, ok := GatekeeperDigit(text); ok {
			o.handleGatekeeper(digit)
			return
		}
	}

	o.mu.Lock()
	agentActive := IsAgentActive(o.deps.TTS.IsHoldingFloor(), o.ledger.HoldsFloor(), o.llmGenerating, o.awaitingFirstTTS)
	o.mu.Unlock()
	// Filler tokens ("uh-huh", "okay") are only dropped while the agent
	// holds the floor, where they're acknowledgements rather than turns
	// (spec.md §4.6, "Filler filter"). The same text once the agent has
	// finished speaking is very often a real one-word answer (a yes/no
	// confirmation) and must reach the LLM.
	if agentActive && IsFiller(text) {
		o.transcript.Append(calltypes.RoleUser, text, time.Now())
		return
	}

	o.sm.Transition(calltypes.TurnThinking)
	o.transcript.Append(calltypes.RoleUser, text, time.Now())
	o.history.Add(calltypes.TranscriptEntry{Role: calltypes.RoleUser, Text: text, Timestamp: time.Now()})

	genCtx, cancel := context.WithCancel(ctx)
	turnStartedAt := time.Now()
	cp := o.latencies.Begin(turnStartedAt.Add(-time.Duration(o.call.Agent.EndpointingMS) * time.Millisecond))
	cp.STTTranscriptReceived = turnStartedAt
	o.mu.Lock()
	o.llmGenerating = true
	o.awaitingFirstTTS = true
	o.genCancel = cancel
	o.mu.Unlock()

	go o.generate(genCtx, text, turnStartedAt, cp)
}

// MarkVoicemailDetectedAMD records a carrier-native AMD "machine" verdict
// delivered out-of-band (spec.md §4.6, "Voicemail/IVR"): unlike
// handleVoicemail's STT-content heuristic, this path is driven by the
// carrier's own answering-machine detection and ends the call with a
// distinct reason so operators can tell the two detectors apart. Safe to
// call from outside the orchestrator's own goroutines (e.g. a REST webhook
// handler running on a different goroutine in the same process).
func (o *Orchestrator) MarkVoicemailDetectedAMD() {
	o.mu.Lock()
	already := o.voicemailDetected
	o.voicemailDetected = true
	o.mu.Unlock()
	if already {
		return
	}
	o.log.Info().Msg("carrier amd reported machine detection")
	observability.RecordVoicemailDetection()
	o.end("voicemail_detected_amd")
}

// ConfirmPlaybackEnded removes the ledger entry whose ID equals playbackID.
// speakSentence names entries "<call id>-<sentence number>" and does not
// send those names to the carrier, so a carrier playback ID releases an
// entry only when it equals one of them; any other entry lapses at its
// ExpectedEndWallclock. Safe to call from outside the orchestrator's own
// goroutines.
func (o *Orchestrator) ConfirmPlaybackEnded(playbackID string) {
	o.ledger.Remove(playbackID)
}

func (o *Orchestrator) handleVoicemail(text string) {
	o.mu.Lock()
	o.voicemailDetected = true
	o.mu.Unlock()
	o.log.Info().Msg("voicemail/answering-machine detected")
	o.transcript.Append(calltypes.RoleUser, text, time.Now())
	observability.RecordVoicemailDetection()
	o.end("voicemail_detected")
}

func (o *Orchestrator) handleGatekeeper(digit string) {
	if o.deps.REST == nil {
		o.log.Warn().Str("digit", digit).Msg("gatekeeper digit detected but no REST client configured")
		return
	}
	if err := o.deps.REST.SendDTMFDigit(o.call.CallID, digit); err != nil {
		o.log.Error().Err(err).Msg("failed to send gatekeeper dtmf digit")
	}
}

// generate runs one LLM turn, streaming each completed sentence straight
// to TTS as it arrives (spec.md §4.6, "Response pipeline").
func (o *Orchestrator) generate(ctx context.Context, userTurn string, turnStartedAt time.Time, cp *latency.Checkpoint) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordOrchestratorStart()
	}
	o.sm.Transition(calltypes.TurnAgentSpeaking)

	cp.LLMRequestStart = time.Now()

	var firstSentence sync.Once

	// The LLM Session delivers whole sentences, not tokens, so
	// LLMFirstToken is stamped when the first sentence reaches the sink.
	// speakSentence stamps TTSFirstChunk and TTSAudioSent when
	// StreamSentence accepts that sentence, not when audio comes back.
	sink := func(s calltypes.Sentence) {
		if s.Text == "" {
			return
		}
		o.mu.Lock()
		o.sentenceSeq++
		s.SentenceNum = o.sentenceSeq
		o.mu.Unlock()
		firstSentence.Do(func() {
			cp.LLMFirstToken = time.Now()
			observability.RecordTimeToFirstSpeech(time.Since(turnStartedAt))
		})
		o.speakSentence(ctx, s, calltypes.PlaybackContent, cp)
		o.transcript.Append(calltypes.RoleAssistant, s.Text, time.Now())
		o.history.Add(calltypes.TranscriptEntry{Role: calltypes.RoleAssistant, Text: s.Text, Timestamp: time.Now()})
		o.pushRecentAgentText(s.Text)
	}

	err := o.deps.LLM.Generate(ctx, o.call.Agent.SystemPrompt, o.history.Entries, userTurn, sink)
	cp.LLMComplete = time.Now()

	o.mu.Lock()
	o.llmGenerating = false
	o.genCancel = nil
	o.mu.Unlock()

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordOrchestratorEnd(err == nil)
	}
	if err != nil && ctx.Err() == nil {
		o.log.Error().Err(err).Msg("llm generation failed")
		if o.call.Agent.FallbackApologyText != "" {
			o.speakSentence(ctx, calltypes.Sentence{Text: o.call.Agent.FallbackApologyText, IsFirst: true, IsLast: true, SendTimestamp: time.Now()}, calltypes.PlaybackContent, cp)
		}
	}
	o.sm.Transition(calltypes.TurnIdle)
}

func (o *Orchestrator) speakSentence(ctx context.Context, s calltypes.Sentence, kind calltypes.PlaybackKind, cp *latency.Checkpoint) {
	// A check-in must not reset the dead-air monitor, or its check-in
	// count would never reach MaxCheckIns.
	if kind != calltypes.PlaybackCheckIn {
		o.deadAir.RecordActivity()
	}
	if cp != nil && s.IsFirst {
		cp.TTSRequestStart = time.Now()
	}
	if err := o.deps.TTS.StreamSentence(s); err != nil {
		o.log.Error().Err(err).Msg("failed to stream sentence to tts")
		return
	}
	if cp != nil && s.IsFirst {
		now := time.Now()
		cp.TTSFirstChunk = now
		cp.TTSAudioSent = now
	}
	o.mu.Lock()
	o.awaitingFirstTTS = false
	o.mu.Unlock()
	playbackID := fmt.Sprintf("%s-%d", o.call.CallID, s.SentenceNum)
	o.ledger.Add(calltypes.PlaybackEntry{
		PlaybackID:           playbackID,
		ExpectedEndWallclock: time.Now().Add(estimatePlaybackDuration(s.Text)),
		Kind:                 kind,
	})
}

func estimatePlaybackDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(words)*400*time.Millisecond + time.Second
	if d < 1500*time.Millisecond {
		return 1500 * time.Millisecond
	}
	return d
}

// pumpTTSAudio forwards synthesized audio chunks to the carrier in order.
// Vendor chunks rarely land on a 160-byte boundary, so a Framer reframes
// the stream into exact 20ms carrier frames before anything goes out.
func (o *Orchestrator) pumpTTSAudio(ctx context.Context) {
	var seq uint64
	framer := audio.NewFramer(calltypes.FrameSizeBytes)
	sendFrame := func(payload []byte) {
		seq++
		if err := o.deps.Carrier.SendAudio(calltypes.AudioFrame{Seq: seq, Payload: payload}); err != nil {
			o.log.Warn().Err(err).Msg("failed to send audio to carrier")
			return
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordAudioBytes("out", int64(len(payload)))
		}
	}

	for {
		select {
		case <-ctx.Done():
			if tail := framer.Flush(); tail != nil {
				sendFrame(tail)
			}
			return
		case chunk, ok := <-o.deps.TTS.AudioChunks():
			if !ok {
				if tail := framer.Flush(); tail != nil {
					sendFrame(tail)
				}
				return
			}
			for _, frame := range framer.Push(chunk.Data) {
				sendFrame(frame)
			}
		}
	}
}

// interrupt implements barge-in (spec.md §4.6, "Barge-in decision"):
// cancel in-flight generation and TTS, flush the carrier's buffered audio,
// clear the ledger, and hand the floor back to the caller.
func (o *Orchestrator) interrupt(ctx context.Context) {
	observability.RecordBargeIn()
	o.sm.Transition(calltypes.TurnInterrupted)

	o.mu.Lock()
	if o.genCancel != nil {
		o.genCancel()
	}
	o.lastInterruptAt = time.Now()
	o.mu.Unlock()

	if err := o.deps.TTS.CancelPendingSentences(); err != nil {
		o.log.Warn().Err(err).Msg("failed to cancel pending tts sentences on barge-in")
	}
	if err := o.deps.TTS.ClearAudio(); err != nil {
		o.log.Warn().Err(err).Msg("failed to clear tts audio on barge-in")
	}
	o.ledger.Clear()

	for i := 0; i < clearRepeats; i++ {
		if err := o.deps.Carrier.SendClear(); err != nil {
			o.log.Warn().Err(err).Msg("failed to send clear to carrier")
		}
		if i < clearRepeats-1 {
			time.Sleep(clearSpacing)
		}
	}

	o.sm.Transition(calltypes.TurnIdle)
}

func (o *Orchestrator) pushRecentAgentText(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recentAgentTexts = append(o.recentAgentTexts, text)
	if len(o.recentAgentTexts) > calltypes.MaxRecentAgentTexts {
		o.recentAgentTexts = o.recentAgentTexts[len(o.recentAgentTexts)-calltypes.MaxRecentAgentTexts:]
	}
}

func (o *Orchestrator) onDeadAirCheckIn(checkInNum int) {
	prompt := o.call.Agent.CheckInPrompt
	if prompt == "" {
		return
	}
	o.log.Info().Int("check_in", checkInNum).Msg("dead-air check-in")
	observability.RecordDeadAirCheckIn()
	o.speakSentence(context.Background(), calltypes.Sentence{Text: prompt, IsFirst: true, IsLast: true, SendTimestamp: time.Now()}, calltypes.PlaybackCheckIn, nil)
	o.transcript.Append(calltypes.RoleAssistant, prompt, time.Now())
}

func (o *Orchestrator) onDeadAirHangup(reason string) {
	observability.RecordDeadAirHangup(reason)
	o.end(reason)
}
