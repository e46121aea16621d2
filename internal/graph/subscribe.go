package graph

import "github.com/nebulachat/nebula/internal/store"

// subscriber pairs a callback with a registration id, so disposing a
// subscription that has already been replaced does not tear down its
// replacement.
type subscriber struct {
	id uint64
	fn func(messages []store.Message)
}

// Subscription is the disposable handle returned by Subscribe.
type Subscription struct {
	client         *Client
	conversationID string
	id             uint64
}

// Unsubscribe removes the registration; no further callbacks fire for the
// conversation. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.client == nil {
		return
	}
	s.client.mu.Lock()
	if sub, ok := s.client.subs[s.conversationID]; ok && sub.id == s.id {
		delete(s.client.subs, s.conversationID)
	}
	s.client.mu.Unlock()
	s.client = nil
}

// Subscribe registers fn for conversationID and immediately invokes it
// once, synchronously, with the current message snapshot, the initial
// delivery a GraphQL subscription would make. Afterwards fn is invoked
// again every time a message is appended to the conversation.
//
// Constraint: at most one live subscriber per conversation id. A second
// Subscribe on the same id replaces the first; the replaced subscriber
// receives no further callbacks. This fits one active chat view at a
// time; a multi-view presentation needs a fan-out set per key instead.
func (c *Client) Subscribe(conversationID string, fn func(messages []store.Message)) *Subscription {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[conversationID] = subscriber{id: id, fn: fn}
	c.mu.Unlock()

	fn(c.db.MessagesByConversation(conversationID))

	c.logger.Debug("subscribed", "conversation_id", conversationID)
	return &Subscription{client: c, conversationID: conversationID, id: id}
}

// notify delivers the conversation's current message list to its
// subscriber, if any. Delivery is synchronous with the write that
// triggered it; a vanished subscriber simply misses the notification.
func (c *Client) notify(conversationID string) {
	c.mu.Lock()
	sub, ok := c.subs[conversationID]
	c.mu.Unlock()
	if !ok {
		return
	}
	sub.fn(c.db.MessagesByConversation(conversationID))
}
