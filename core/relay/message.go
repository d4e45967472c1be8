package relay

import (
	"context"
	"errors"

	"Tunehub/logger"
	"Tunehub/model"
	"Tunehub/repository"
)

// sendMessage persists one direct message and delivers it. Delivery to the
// receiver is only attempted once the write has succeeded.
func (s *Server) sendMessage(ctx context.Context, c *Client, p SendMessage) {
	if err := p.Validate(!s.opts.Hardened); err != nil {
		logger.Debug("relay message dropped",
			logger.ErrorField(err),
			logger.String("user", c.externalID))
		if s.opts.Hardened {
			c.emit(EventError, ErrTextInvalidMessage)
		}
		return
	}

	pctx, cancel := s.persistContext(ctx)
	defer cancel()

	senderID := p.SenderID
	if s.opts.Hardened {
		sender, err := s.gateway.FindByExternalID(pctx, c.externalID)
		if err != nil {
			logger.Warn("relay sender lookup failed",
				logger.ErrorField(err),
				logger.String("user", c.externalID))
			c.emit(EventError, ErrTextSendFailed)
			return
		}
		senderID = sender.ID
	}

	receiver, err := s.gateway.FindUserByID(pctx, p.ReceiverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Debug("relay receiver not found",
				logger.String("receiver", p.ReceiverID),
				logger.String("user", c.externalID))
		} else {
			logger.Warn("relay receiver lookup failed",
				logger.ErrorField(err),
				logger.String("receiver", p.ReceiverID))
		}
		return
	}

	msg := &model.Message{
		Sender:   senderID,
		Receiver: p.ReceiverID,
		Content:  p.Content,
	}
	if err := s.gateway.CreateMessage(pctx, msg); err != nil {
		logger.Error("failed to persist message",
			logger.ErrorField(err),
			logger.String("sender", senderID),
			logger.String("receiver", p.ReceiverID))
		c.emit(EventError, ErrTextSendFailed)
		return
	}

	if h, ok := s.registry.Handle(receiver.ExternalID); ok {
		h.emit(EventReceiveMessage, msg)
	}
	c.emit(EventMessageSent, msg)
}
