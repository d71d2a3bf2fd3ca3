package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nexusmail/nexus-mailer/environments"
	"github.com/nexusmail/nexus-mailer/internal/domain"
	"github.com/nexusmail/nexus-mailer/internal/relay"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

// Small point-of-use interfaces so the worker can be exercised with fakes.

type workerStore interface {
	GetByBatchID(ctx context.Context, batchID string) ([]domain.Message, error)
}

type identityStore interface {
	GetByUserID(ctx context.Context, userID int64) (*domain.SMTPIdentity, error)
}

// Session is one live relay connection, driven sequentially by its worker.
type Session interface {
	Send(from, to string, msg []byte) error
	Close() error
}

// Opener creates authenticated relay sessions.
type Opener interface {
	Open(identity *domain.SMTPIdentity) (Session, error)
}

type bodyRewriter interface {
	Rewrite(body, token string) string
}

type outcomeSink interface {
	Record(ctx context.Context, outcome domain.BatchOutcome) error
	FailBatch(ctx context.Context, batchID string, cause error) error
}

// RelayOpener adapts the concrete relay manager to the worker's Opener.
type RelayOpener struct {
	Manager *relay.Manager
}

func (o RelayOpener) Open(identity *domain.SMTPIdentity) (Session, error) {
	return o.Manager.Open(identity)
}

// DeliveryWorker drives one batch end to end: load, connect, send each
// message with throttling, classify outcomes, and hand the accumulated
// result to the recorder. All relay I/O within a batch is sequential.
type DeliveryWorker struct {
	store      workerStore
	identities identityStore
	opener     Opener
	rewriter   bodyRewriter
	recorder   outcomeSink
	cfg        environments.DispatchConfig

	newToken func() string
	sleep    func(time.Duration)
}

func NewDeliveryWorker(
	store workerStore,
	identities identityStore,
	opener Opener,
	rewriter bodyRewriter,
	recorder outcomeSink,
	cfg environments.DispatchConfig,
) *DeliveryWorker {
	return &DeliveryWorker{
		store:      store,
		identities: identities,
		opener:     opener,
		rewriter:   rewriter,
		recorder:   recorder,
		cfg:        cfg,
		newToken:   uuid.NewString,
		sleep:      time.Sleep,
	}
}

// Run processes one claimed batch to terminal state.
func (w *DeliveryWorker) Run(ctx context.Context, batch domain.Batch) {
	messages, err := w.store.GetByBatchID(ctx, batch.ID)
	if err != nil {
		logger.Errorf("Batch %s: failed to load messages: %v", batch.ID, err)
		return
	}

	if len(messages) == 0 {
		logger.Debugf("Batch %s: nothing to do", batch.ID)
		return
	}

	identity, err := w.lookupIdentity(ctx, messages[0].UserID)
	if err != nil {
		// Terminal for the whole batch: no credentials means no send
		// attempt can ever succeed until the owner fixes their settings.
		logger.Warnf("Batch %s: %v, failing %d messages", batch.ID, err, len(messages))
		if failErr := w.recorder.FailBatch(ctx, batch.ID, err); failErr != nil {
			logger.Errorf("Batch %s: failed to record configuration failure: %v", batch.ID, failErr)
		}
		return
	}

	session, err := w.openWithRetry(identity)
	if err != nil {
		logger.Warnf("Batch %s: %v, failing %d messages", batch.ID, err, len(messages))
		if failErr := w.recorder.FailBatch(ctx, batch.ID, err); failErr != nil {
			logger.Errorf("Batch %s: failed to record connection failure: %v", batch.ID, failErr)
		}
		return
	}

	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	outcome := domain.BatchOutcome{
		BatchID: batch.ID,
		Tokens:  make(map[int64]string),
	}

	// The inter-message delay is the primary defense against relay-side
	// rate limiting, sized to the identity's throughput ceiling.
	limiter := rate.NewLimiter(rate.Every(w.cfg.PerMessageDelay), 1)

	sentSinceOpen := 0

	for i := range messages {
		msg := &messages[i]

		// Scheduled connection hygiene: long sessions hit relay idle
		// timeouts, so refresh proactively rather than after a failure.
		if w.cfg.RefreshAfter > 0 && sentSinceOpen >= w.cfg.RefreshAfter {
			session.Close()
			session, err = w.opener.Open(identity)
			sentSinceOpen = 0
			if err != nil {
				logger.Warnf("Batch %s: connection refresh failed: %v", batch.ID, err)
				session = nil
			}
		}

		// A mid-batch reconnect failure fails only the message in flight;
		// every later message gets its own reopen attempt.
		if session == nil {
			session, err = w.opener.Open(identity)
			if err != nil {
				logger.Warnf("Batch %s: reconnect failed for message %d: %v", batch.ID, msg.ID, err)
				session = nil
				outcome.FailedIDs = append(outcome.FailedIDs, msg.ID)
				continue
			}
		}

		token := w.ensureToken(msg, &outcome)

		body := w.rewriter.Rewrite(relay.AppendSignature(msg.Body, identity.Signature), token)
		wire := relay.FormatMessage(identity.FromEmail, msg.Recipient, msg.Subject, body)

		if err := limiter.Wait(ctx); err != nil {
			// Only possible with a cancelled ctx, which the pool never
			// hands us mid-batch; treat as a transient miss to be safe.
			logger.Errorf("Batch %s: throttle wait interrupted: %v", batch.ID, err)
		}

		sendErr := session.Send(identity.FromEmail, msg.Recipient, wire)
		result := relay.Classify(sendErr)
		sentSinceOpen++

		if result == relay.OutcomeTransient {
			// The connection broke mid-exchange. One retry on a fresh
			// session; a second failure settles this message as failed.
			session.Close()
			session, result = w.retryTransient(batch.ID, msg, identity, wire)
			sentSinceOpen = 0
		}

		switch result {
		case relay.OutcomeSent:
			outcome.SentIDs = append(outcome.SentIDs, msg.ID)
		case relay.OutcomeRateLimited:
			// The relay may have queued the message before rejecting, and
			// a duplicate send is worse than an unconfirmed one. Count it
			// and move on; never resend within this run.
			outcome.SentIDs = append(outcome.SentIDs, msg.ID)
			outcome.RateLimited++
			logger.Warnf("Batch %s: relay rate-limit signal on message %d, recorded as sent", batch.ID, msg.ID)
		default:
			outcome.FailedIDs = append(outcome.FailedIDs, msg.ID)
			logger.Warnf("Batch %s: message %d failed: %v", batch.ID, msg.ID, sendErr)
		}
	}

	if err := w.recorder.Record(ctx, outcome); err != nil {
		// Recorder already alerted; nothing safe to retry here.
		logger.Errorf("Batch %s: outcome commit failed: %v", batch.ID, err)
		return
	}

	logger.Infof("Batch %s complete: %d sent, %d failed, %d rate-limited",
		batch.ID, len(outcome.SentIDs), len(outcome.FailedIDs), outcome.RateLimited)
}

// lookupIdentity resolves and validates the batch owner's sending identity.
func (w *DeliveryWorker) lookupIdentity(ctx context.Context, userID int64) (*domain.SMTPIdentity, error) {
	identity, err := w.identities.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity for user %d: %w", userID, err)
	}

	if identity == nil {
		return nil, ErrNoIdentity
	}

	if identity.Host == "" || identity.Port == 0 || identity.FromEmail == "" {
		return nil, fmt.Errorf("%w: identity %d is missing host, port or sender", ErrNoIdentity, identity.ID)
	}

	return identity, nil
}

// openWithRetry establishes the batch's initial connection within the
// configured budget. Exhausting it is terminal for the whole batch.
func (w *DeliveryWorker) openWithRetry(identity *domain.SMTPIdentity) (Session, error) {
	var lastErr error

	attempts := w.cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		session, err := w.opener.Open(identity)
		if err == nil {
			return session, nil
		}

		lastErr = err
		logger.Warnf("Relay connection attempt %d/%d failed: %v", attempt, attempts, err)

		if attempt < attempts {
			w.sleep(w.cfg.ConnectBackoff * time.Duration(attempt))
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrConnectExhausted, lastErr)
}

// retryTransient reopens the connection and resends the in-flight message
// once. Returns the session to continue with (nil when reopening failed)
// and the settled classification for the message.
func (w *DeliveryWorker) retryTransient(
	batchID string,
	msg *domain.Message,
	identity *domain.SMTPIdentity,
	wire []byte,
) (Session, relay.Outcome) {
	session, err := w.opener.Open(identity)
	if err != nil {
		logger.Warnf("Batch %s: reconnect for retry of message %d failed: %v", batchID, msg.ID, err)
		return nil, relay.OutcomeFatal
	}

	retryErr := session.Send(identity.FromEmail, msg.Recipient, wire)
	result := relay.Classify(retryErr)

	if result == relay.OutcomeTransient {
		// Second connection loss in a row: settle this message as failed
		// and drop the session so the next message reopens from scratch.
		session.Close()
		return nil, relay.OutcomeFatal
	}

	return session, result
}

// ensureToken assigns a tracking token when the message has none yet.
// Assignment happens before the send attempt so even a failed attempt keeps
// its token, preserving token uniqueness across retries.
func (w *DeliveryWorker) ensureToken(msg *domain.Message, outcome *domain.BatchOutcome) string {
	if msg.TrackingToken != nil && *msg.TrackingToken != "" {
		return *msg.TrackingToken
	}

	token := w.newToken()
	msg.TrackingToken = &token
	outcome.Tokens[msg.ID] = token

	return token
}
