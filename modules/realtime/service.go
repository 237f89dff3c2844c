package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/events"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/time/rate"
)

// PresenceDirectory records user presence in the store.
type PresenceDirectory interface {
	SetOnline(ctx context.Context, id string, online bool, at time.Time) error
}

// MessageStore persists messages and conversation membership.
type MessageStore interface {
	ParticipantFinder
	CreateMessage(ctx context.Context, convType, senderID, recipientID, content, conversationID string) (*messaging.Message, error)
	UpsertConversationMeta(ctx context.Context, meta store.ConversationMeta) error
	FindOtherParticipant(ctx context.Context, conversationID, excludeUserID string) (string, error)
	ListParticipants(ctx context.Context, conversationID string) ([]messaging.Participant, error)
	UpdateParticipantLastRead(ctx context.Context, conversationID, userID string, at time.Time) error
	FindMessageConversation(ctx context.Context, messageID string) (string, error)
}

// Limits configures per-connection inbound rate limiting. A zero rate
// disables it.
type Limits struct {
	EventsPerSecond float64
	Burst           int
}

// Service tracks connections, publishes presence and dispatches inbound
// events.
type Service struct {
	registry *Registry
	router   *Router
	users    PresenceDirectory
	messages MessageStore
	limits   Limits
	metrics  *Metrics
	eventBus mono.EventBus
	logger   types.Logger
	now      func() time.Time
}

// NewService creates a new realtime service.
func NewService(registry *Registry, users PresenceDirectory, messages MessageStore, limits Limits, metrics *Metrics, logger types.Logger) *Service {
	return &Service{
		registry: registry,
		router:   NewRouter(registry, messages, metrics, logger),
		users:    users,
		messages: messages,
		limits:   limits,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// SetEventBus sets the bus used for domain events. Events are not published
// without one.
func (s *Service) SetEventBus(bus mono.EventBus) {
	s.eventBus = bus
}

// Registry returns the connection registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Router returns the room router.
func (s *Service) Router() *Router {
	return s.router
}

// Connect registers a connection for an admitted principal, joins its default
// rooms and announces the user online if this is their first connection.
func (s *Service) Connect(ctx context.Context, p messaging.Principal) *Conn {
	var limiter *rate.Limiter
	if s.limits.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.limits.EventsPerSecond), s.limits.Burst)
	}
	c := NewConn(p, limiter)

	unlock := s.registry.Lock(c.UserID)
	defer unlock()

	first := s.registry.Add(c)
	s.router.JoinPersonal(c)
	s.router.JoinAdmin(c)

	s.logger.Info("WebSocket connected", "userID", c.UserID, "connID", c.ID, "first", first)
	if first {
		s.publishPresence(ctx, c.UserID, true)
	}
	return c
}

// Disconnect closes the connection, leaves its rooms and announces the user
// offline if it was their last connection. Safe to call more than once.
func (s *Service) Disconnect(ctx context.Context, c *Conn) {
	c.Close()

	unlock := s.registry.Lock(c.UserID)
	defer unlock()

	last := s.registry.Remove(c)
	s.router.LeaveAll(c)

	s.logger.Info("WebSocket disconnected", "userID", c.UserID, "connID", c.ID, "last", last)
	if last {
		s.publishPresence(ctx, c.UserID, false)
	}
}

func (s *Service) publishPresence(ctx context.Context, userID string, online bool) {
	at := s.now()
	if err := s.users.SetOnline(ctx, userID, online, at); err != nil {
		s.logger.Error("Failed to update online status", "userID", userID, "online", online, "error", err)
	}

	event := EventUserOffline
	if online {
		event = EventUserOnline
	}
	s.router.BroadcastAll(event, PresencePayload{UserID: userID}, userID)
	s.metrics.presence(online)

	if s.eventBus == nil {
		return
	}
	if err := events.PresenceChangedV1.Publish(s.eventBus, events.PresenceChangedEvent{
		UserID:    userID,
		Online:    online,
		Timestamp: at,
	}, nil); err != nil {
		s.logger.Warn("Failed to publish PresenceChanged event", "userID", userID, "error", err)
	}
}

// HandleEvent decodes and dispatches one inbound frame. Failures are answered
// on the same connection and never end it.
func (s *Service) HandleEvent(ctx context.Context, c *Conn, data []byte) {
	eventType := "unknown"
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in event handler",
				"userID", c.UserID,
				"connID", c.ID,
				"event", eventType,
				"panic", fmt.Sprint(r))
			s.metrics.inboundEvent(eventType, "panic")
			s.replyError(c, errorEventFor(eventType), errInternal)
		}
	}()

	if c.Closed() {
		return
	}

	decodedType, ev, err := DecodeEvent(data)
	if decodedType != "" {
		eventType = decodedType
	}
	if !c.Allow() {
		s.metrics.inboundEvent(eventType, "rate_limited")
		s.replyError(c, EventError, ErrRateLimited)
		return
	}
	if err != nil {
		s.logger.Debug("Rejected inbound event", "userID", c.UserID, "connID", c.ID, "error", err)
		if errors.Is(err, ErrUnknownEvent) {
			s.metrics.inboundEvent("unknown", "rejected")
			s.replyError(c, EventError, err)
			return
		}
		s.metrics.inboundEvent(eventType, "rejected")
		s.replyError(c, errorEventFor(eventType), ErrMalformedEvent)
		return
	}

	switch ev := ev.(type) {
	case SendMessage:
		err = s.sendMessage(ctx, c, ev)
	case Typing:
		err = s.typing(ctx, c, ev)
	case MarkRead:
		err = s.markRead(ctx, c, ev)
	case JoinConversation:
		s.router.JoinConversation(ctx, c, ev.ConversationID)
	case LeaveConversation:
		s.router.LeaveConversation(c, ev.ConversationID)
	}

	if err != nil {
		s.metrics.inboundEvent(eventType, "error")
		s.replyError(c, errorEventFor(eventType), err)
		return
	}
	s.metrics.inboundEvent(eventType, "ok")
}

func (s *Service) replyError(c *Conn, event string, err error) {
	s.router.SendTo(c, event, ErrorPayload{Error: err.Error()})
}

func errorEventFor(eventType string) string {
	switch eventType {
	case EventSendMessage:
		return EventMessageError
	case EventMarkRead:
		return EventMarkReadError
	default:
		return EventError
	}
}

func (s *Service) sendMessage(ctx context.Context, c *Conn, ev SendMessage) error {
	if err := ValidateSend(ev, c.UserID); err != nil {
		return err
	}

	conversationID, members, err := s.resolveConversation(ctx, c, ev)
	if err != nil {
		return err
	}

	msg, err := s.messages.CreateMessage(ctx, ev.Type, c.UserID, ev.RecipientID, ev.Content, conversationID)
	if err != nil {
		s.logger.Error("Failed to create message", "userID", c.UserID, "connID", c.ID, "operation", EventSendMessage, "error", err)
		return errSendFailed
	}

	if err := s.messages.UpsertConversationMeta(ctx, store.ConversationMeta{
		ConversationID: msg.ConversationID,
		Type:           msg.Type,
		ParticipantIDs: members,
		LastMessageAt:  msg.CreatedAt,
		Preview:        msg.Content,
	}); err != nil {
		// The message itself is stored, so delivery goes ahead.
		s.logger.Error("Failed to update conversation", "userID", c.UserID, "conversationID", msg.ConversationID, "error", err)
	}

	payload := MessagePayload{Message: *msg, SenderUsername: c.Username}
	rooms := []string{
		messaging.ConversationRoom(msg.ConversationID),
		messaging.PersonalRoom(c.UserID),
	}
	if ev.RecipientID == messaging.AdminRecipient {
		rooms = append(rooms, messaging.AdminRoom)
	} else {
		rooms = append(rooms, messaging.PersonalRoom(ev.RecipientID))
		if msg.Type == messaging.ConversationAdmin && c.IsAdmin {
			rooms = append(rooms, messaging.AdminRoom)
		}
	}
	s.router.BroadcastRooms(rooms, EventNewMessage, payload, c)
	s.router.SendTo(c, EventMessageSent, payload)

	s.logger.Debug("Message sent", "userID", c.UserID, "conversationID", msg.ConversationID, "messageID", msg.ID)

	if s.eventBus != nil {
		if err := events.MessageSentV1.Publish(s.eventBus, events.MessageSentEvent{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			RecipientID:    msg.RecipientID,
			Type:           msg.Type,
			Timestamp:      msg.CreatedAt,
		}, nil); err != nil {
			s.logger.Warn("Failed to publish MessageSent event", "messageID", msg.ID, "error", err)
		}
	}
	return nil
}

// resolveConversation returns the conversation a send goes to and the users
// the send may record as its participants. A derived ID names both parties,
// so they are its members. Any other client-chosen conversation must already
// hold both sender and recipient, and the send adds nobody to it.
func (s *Service) resolveConversation(ctx context.Context, c *Conn, ev SendMessage) (string, []string, error) {
	if ev.Type == messaging.ConversationAdmin && !c.IsAdmin && ev.RecipientID != messaging.AdminRecipient {
		return "", nil, ErrAdminOnly
	}

	derived := messaging.ConversationID(ev.Type, c.UserID, ev.RecipientID)
	if ev.ConversationID == "" || ev.ConversationID == derived {
		return derived, []string{c.UserID, ev.RecipientID}, nil
	}

	if err := s.requireParticipant(ctx, ev.ConversationID, c.UserID); err != nil {
		return "", nil, err
	}
	if ev.RecipientID != messaging.AdminRecipient {
		if err := s.requireParticipant(ctx, ev.ConversationID, ev.RecipientID); err != nil {
			return "", nil, err
		}
	}
	return ev.ConversationID, nil, nil
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := s.messages.FindParticipant(ctx, conversationID, userID)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrParticipantNotFound) {
		return ErrNotParticipant
	}
	s.logger.Error("Failed to check participant", "userID", userID, "conversationID", conversationID, "error", err)
	return errSendFailed
}

// typing never reports errors to the sender; unresolvable recipients are
// dropped.
func (s *Service) typing(ctx context.Context, c *Conn, ev Typing) error {
	recipient := ev.RecipientID
	if recipient == "" && ev.ConversationID != "" {
		recipient = s.resolveOtherParticipant(ctx, c, ev.ConversationID)
	}
	if recipient == "" || recipient == c.UserID {
		return nil
	}

	room := messaging.PersonalRoom(recipient)
	if recipient == messaging.AdminRecipient {
		room = messaging.AdminRoom
	}
	s.router.Broadcast(room, ev.EventType(), TypingPayload{
		SenderID:       c.UserID,
		SenderUsername: c.Username,
		ConversationID: ev.ConversationID,
		Type:           ev.Type,
	}, c)
	return nil
}

func (s *Service) resolveOtherParticipant(ctx context.Context, c *Conn, conversationID string) string {
	if _, err := s.messages.FindParticipant(ctx, conversationID, c.UserID); err != nil {
		if !errors.Is(err, store.ErrParticipantNotFound) {
			s.logger.Warn("Failed to check participant", "userID", c.UserID, "conversationID", conversationID, "error", err)
		}
		return ""
	}

	other, err := s.messages.FindOtherParticipant(ctx, conversationID, c.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrParticipantNotFound) {
			s.logger.Warn("Failed to resolve typing recipient", "userID", c.UserID, "conversationID", conversationID, "error", err)
		}
		return ""
	}
	return other
}

// markRead moves the caller's read marker for the conversation, sends a
// receipt per message to every other participant and acknowledges the
// caller's connection.
func (s *Service) markRead(ctx context.Context, c *Conn, ev MarkRead) error {
	if len(ev.MessageIDs) == 0 {
		return ErrNoMessageIDs
	}

	conversationID := ev.ConversationID
	if conversationID == "" {
		id, err := s.messages.FindMessageConversation(ctx, ev.MessageIDs[0])
		if err != nil {
			if errors.Is(err, store.ErrMessageNotFound) {
				return ErrMessageNotFound
			}
			s.logger.Error("Failed to resolve message conversation", "userID", c.UserID, "messageID", ev.MessageIDs[0], "error", err)
			return errMarkReadFailed
		}
		conversationID = id
	}

	if err := s.messages.UpdateParticipantLastRead(ctx, conversationID, c.UserID, s.now()); err != nil {
		if errors.Is(err, store.ErrParticipantNotFound) {
			return ErrNotParticipant
		}
		s.logger.Error("Failed to update last read", "userID", c.UserID, "conversationID", conversationID, "error", err)
		return errMarkReadFailed
	}

	participants, err := s.messages.ListParticipants(ctx, conversationID)
	if err != nil {
		s.logger.Error("Failed to list participants", "userID", c.UserID, "conversationID", conversationID, "error", err)
		return errMarkReadFailed
	}

	for _, p := range participants {
		if p.UserID == c.UserID {
			continue
		}
		room := messaging.PersonalRoom(p.UserID)
		for _, messageID := range ev.MessageIDs {
			s.router.Broadcast(room, EventMessageRead, MessageReadPayload{
				MessageID:      messageID,
				UserID:         c.UserID,
				ConversationID: conversationID,
			}, nil)
		}
	}

	s.router.SendTo(c, EventMessagesMarkedRead, MarkedReadPayload{
		MessageIDs:     ev.MessageIDs,
		ConversationID: conversationID,
	})
	return nil
}

// Notify pushes a notification to every connection of userID and returns
// how many connections received it.
func (s *Service) Notify(userID string, n Notification) int {
	return s.router.Broadcast(messaging.PersonalRoom(userID), EventNewNotification, n, nil)
}
