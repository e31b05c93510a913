// ABOUTME: Direct messaging between agents over per-recipient durable inbox streams
// ABOUTME: Sends append to the recipient's log; reads replay it without consuming

package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadworks/heddle/internal/stream"
)

// ErrNoRecipient is returned by Send when the message names no recipient.
var ErrNoRecipient = errors.New("message must name a recipient")

// ErrNoSender is returned by Send when the message names no sender.
var ErrNoSender = errors.New("message must name a sender")

// MessageTypeShutdownRequest is the well-known type agents watch for when
// the coordinator asks them to wind down.
const MessageTypeShutdownRequest = "shutdown-request"

// CoordinatorSender is the sender GUID stamped on coordinator-originated
// messages such as shutdown requests.
const CoordinatorSender = "coordinator"

// readDrainTimeout bounds how long a read waits at the tail of an inbox
// before concluding it is drained.
const readDrainTimeout = 500 * time.Millisecond

// DirectMessage is one mailbox entry. Field names match the wire format.
type DirectMessage struct {
	SenderGUID    string            `json:"senderGuid"`
	RecipientGUID string            `json:"recipientGuid"`
	Message       string            `json:"message"`
	MessageType   string            `json:"messageType"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// ReadFilter narrows Read results. Fields are conjunctive; zero values
// match every message.
type ReadFilter struct {
	MessageType string
	SenderGUID  string
}

// Service delivers direct messages through per-recipient streams. Messages
// persist for offline recipients and survive any number of reads; the
// inbox is a log, not a queue.
type Service struct {
	log       stream.Log
	projectID string
	maxMsgs   int64
	maxAge    time.Duration
	logger    *slog.Logger
}

// New creates a mailbox service. maxMsgs and maxAge bound each inbox's
// retention; zero means unlimited.
func New(log stream.Log, projectID string, maxMsgs int64, maxAge time.Duration, logger *slog.Logger) *Service {
	return &Service{
		log:       log,
		projectID: projectID,
		maxMsgs:   maxMsgs,
		maxAge:    maxAge,
		logger:    logger.With("component", "mailbox"),
	}
}

// Send appends the message to the recipient's inbox, creating the inbox
// stream on first use. The recipient does not need to exist or be online.
func (s *Service) Send(ctx context.Context, msg DirectMessage) error {
	if msg.RecipientGUID == "" {
		return ErrNoRecipient
	}
	if msg.SenderGUID == "" {
		return ErrNoSender
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if err := s.ensureInbox(ctx, msg.RecipientGUID); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	subject := stream.InboxSubject(s.projectID, msg.RecipientGUID)
	if err := s.log.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	s.logger.Debug("message sent",
		"sender", msg.SenderGUID, "recipient", msg.RecipientGUID, "type", msg.MessageType)
	return nil
}

// Read returns the recipient's messages matching the filter, oldest first.
// Reading never removes messages: it replays the inbox with an ephemeral
// consumer, so a filtered read leaves everything in place for later reads.
// A recipient with no inbox yet has no messages.
func (s *Service) Read(ctx context.Context, recipientGUID string, f ReadFilter) ([]DirectMessage, error) {
	if err := s.ensureInbox(ctx, recipientGUID); err != nil {
		return nil, err
	}

	cons, err := s.log.Consume(ctx, stream.InboxStreamName(s.projectID, recipientGUID), stream.ConsumerConfig{})
	if err != nil {
		return nil, fmt.Errorf("opening inbox reader: %w", err)
	}
	defer cons.Stop()

	var out []DirectMessage
	for {
		nextCtx, cancel := context.WithTimeout(ctx, readDrainTimeout)
		m, err := cons.Next(nextCtx)
		cancel()
		if errors.Is(err, stream.ErrNoMessages) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading inbox: %w", err)
		}

		var msg DirectMessage
		if err := json.Unmarshal(m.Data(), &msg); err != nil {
			s.logger.Warn("skipping malformed mailbox entry", "recipient", recipientGUID, "error", err)
			_ = m.Ack()
			continue
		}
		_ = m.Ack()

		if f.MessageType != "" && msg.MessageType != f.MessageType {
			continue
		}
		if f.SenderGUID != "" && msg.SenderGUID != f.SenderGUID {
			continue
		}
		out = append(out, msg)
	}
}

// SignalShutdown delivers a shutdown request to the agent's inbox on
// behalf of the coordinator. Satisfies registry.ShutdownSignaler.
func (s *Service) SignalShutdown(ctx context.Context, guid string, graceful bool, reason string) error {
	mode := "graceful"
	if !graceful {
		mode = "immediate"
	}
	return s.Send(ctx, DirectMessage{
		SenderGUID:    CoordinatorSender,
		RecipientGUID: guid,
		Message:       "please finish current work and shut down",
		MessageType:   MessageTypeShutdownRequest,
		Metadata:      map[string]string{"mode": mode, "reason": reason},
	})
}

func (s *Service) ensureInbox(ctx context.Context, recipientGUID string) error {
	cfg := stream.Config{
		Name:     stream.InboxStreamName(s.projectID, recipientGUID),
		Subjects: []string{stream.InboxSubject(s.projectID, recipientGUID)},
		MaxAge:   s.maxAge,
		MaxMsgs:  s.maxMsgs,
	}
	if err := s.log.EnsureStream(ctx, cfg); err != nil {
		return fmt.Errorf("ensuring inbox %s: %w", cfg.Name, err)
	}
	return nil
}
