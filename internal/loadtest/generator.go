package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
)

var samplePhrases = []string{
	"hello everyone",
	"how is it going",
	"did anyone catch the game last night",
	"brb grabbing coffee",
	"that is hilarious",
	"can someone share the link again",
	"agreed, let's do it",
	"what time works for you all",
	"nice to meet you all",
	"see you tomorrow",
}

// Generator produces a bounded stream of synthetic chat messages into
// the shared queue, blocking when the queue is full. After the last
// message it enqueues one sentinel (nil) per consumer worker so every
// worker observes exactly one termination signal.
type Generator struct {
	queue   chan<- *domain.ChatMessage
	total   int
	workers int
	rng     *rand.Rand
}

func NewGenerator(queue chan<- *domain.ChatMessage, total, workers int, seed int64) *Generator {
	return &Generator{
		queue:   queue,
		total:   total,
		workers: workers,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (g *Generator) Run(ctx context.Context) error {
	for i := 0; i < g.total; i++ {
		msg := g.next()
		select {
		case g.queue <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i := 0; i < g.workers; i++ {
		select {
		case g.queue <- nil:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (g *Generator) next() *domain.ChatMessage {
	userID := g.rng.Intn(100000) + 1
	msg := domain.NewChatMessage(
		strconv.Itoa(userID),
		fmt.Sprintf("user_%d", userID),
		samplePhrases[g.rng.Intn(len(samplePhrases))],
	)
	return msg
}
