package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/diceledger/internal/rolls"
)

const (
	RealtimeEventRollSubmitted = "roll-submitted"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "diceledger-backend"
	allCampaignsTopic          = ""
)

// RealtimeMessage announces a newly recorded roll.
type RealtimeMessage struct {
	EventType     string
	RollID        int64
	CharacterName string
	CampaignName  string
	Dice          rolls.DiceValues
	Timestamp     time.Time
}

// RealtimeDispatcher fans roll events out to stream subscribers. Subscribers
// of a campaign receive that campaign's rolls; subscribers without a campaign
// receive every roll.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func campaignTopic(campaign string) string {
	return strings.ToLower(strings.TrimSpace(campaign))
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, campaign string) (<-chan RealtimeMessage, func()) {
	topic := campaignTopic(campaign)
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(topic, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(topic, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish never blocks; a subscriber with a full buffer misses the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	topics := []string{allCampaignsTopic}
	if topic := campaignTopic(message.CampaignName); topic != allCampaignsTopic {
		topics = append(topics, topic)
	}

	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0)
	for _, topic := range topics {
		for _, subscriber := range d.subscribers[topic] {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total := 0
	for _, subscribers := range d.subscribers {
		total += len(subscribers)
	}
	return total
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(topic string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[topic][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(topic string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}
