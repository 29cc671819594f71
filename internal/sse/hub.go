package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborlight/careledger-backend/internal/logger"
)

type FeedEvent string

const (
	FeedEventActivityRecorded FeedEvent = "ActivityRecorded"
)

// FeedMessage is one activity-feed notification. Channel is the client-record
// feed it belongs to, ClientChannel(clientID).
type FeedMessage struct {
	Channel string    `json:"channel"`
	Event   FeedEvent `json:"event"`
	Data    any       `json:"data,omitempty"`
}

// ClientChannel names the feed channel for one client record.
func ClientChannel(clientID uuid.UUID) string {
	return "client:" + clientID.String()
}

type FeedSubscriber struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan FeedMessage
	done     chan struct{}
}

type FeedHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*FeedSubscriber]bool
}

func NewFeedHub(log *logger.Logger) *FeedHub {
	return &FeedHub{
		logger:        log.With("component", "FeedHub"),
		subscriptions: make(map[string]map[*FeedSubscriber]bool),
	}
}

func (hub *FeedHub) NewSubscriber() *FeedSubscriber {
	return &FeedSubscriber{
		ID:       uuid.New(),
		Channels: make(map[string]bool),
		Outbound: make(chan FeedMessage, 10),
		done:     make(chan struct{}),
	}
}

func (hub *FeedHub) AddChannel(sub *FeedSubscriber, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}

	sub.Channels[channel] = true

	subs, exists := hub.subscriptions[channel]
	if !exists {
		subs = make(map[*FeedSubscriber]bool)
		hub.subscriptions[channel] = subs
	}
	subs[sub] = true

	hub.logger.Debug("Feed subscriber added", "subscriberID", sub.ID, "channel", channel)
}

func (hub *FeedHub) RemoveSubscriber(sub *FeedSubscriber) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range sub.Channels {
		if subMap, ok := hub.subscriptions[ch]; ok {
			delete(subMap, sub)
			if len(subMap) == 0 {
				delete(hub.subscriptions, ch)
			}
		}
	}
	sub.Channels = make(map[string]bool)
	hub.logger.Debug("Feed subscriber removed from all channels", "subscriberID", sub.ID)
}

func (hub *FeedHub) Broadcast(msg FeedMessage) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if msg.Channel == "" {
		return
	}
	subMap, ok := hub.subscriptions[msg.Channel]
	if !ok {
		return
	}
	for s := range subMap {
		select {
		case s.Outbound <- msg:
		default:
			hub.logger.Warn("Dropping feed message; outbound buffer full", "subscriberID", s.ID)
		}
	}
}

func (hub *FeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request, sub *FeedSubscriber) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("Feed subscriber context done", "subscriberID", sub.ID, "err", ctx.Err())
			return
		case <-sub.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-sub.Outbound:
			jsonBytes, err := json.Marshal(msg)
			if err != nil {
				hub.logger.Warn("Failed to marshal feed message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: message\n")
			_, _ = fmt.Fprintf(w, "data: %s\n\n", string(jsonBytes))
			flusher.Flush()
		}
	}
}

func (hub *FeedHub) CloseSubscriber(sub *FeedSubscriber) {
	close(sub.done)
	hub.RemoveSubscriber(sub)
	close(sub.Outbound)
}
