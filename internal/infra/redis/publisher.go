package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-live-service/internal/domain"
)

const publishBuffer = 256

// Publisher mirrors engine events onto Redis pub/sub so other processes can
// follow a competition. Events are queued and sent by Run; when the queue is
// full new events are dropped.
type Publisher struct {
	client *redis.Client
	prefix string
	events chan domain.Event
}

func NewPublisher(client *redis.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "trivia:competition:"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		events: make(chan domain.Event, publishBuffer),
	}
}

// Channel names the pub/sub channel of a competition.
func (p *Publisher) Channel(competitionID string) string {
	return p.prefix + competitionID
}

func (p *Publisher) StateChanged(competitionID string, state domain.GameState) {
	p.enqueue(domain.Event{Type: domain.EventState, CompetitionID: competitionID, State: &state})
}

func (p *Publisher) TimerTick(competitionID string, remaining int) {
	p.enqueue(domain.Event{Type: domain.EventTimer, CompetitionID: competitionID, TimeRemaining: &remaining})
}

func (p *Publisher) ScoresChanged(competitionID string, teams []domain.Team) {
	p.enqueue(domain.Event{Type: domain.EventScores, CompetitionID: competitionID, Teams: teams})
}

func (p *Publisher) enqueue(ev domain.Event) {
	select {
	case p.events <- ev:
	default:
		log.Printf("redis: publish queue full, dropping %s event for %s", ev.Type, ev.CompetitionID)
	}
}

// Run publishes queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.events:
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("redis: encode %s event: %v", ev.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.Channel(ev.CompetitionID), data).Err(); err != nil {
		log.Printf("redis: publish %s event for %s: %v", ev.Type, ev.CompetitionID, err)
	}
}
