package kafka_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/kafka"
	"github.com/papercomputeco/recall/pkg/logger"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer    *fakeWriter
		publisher *kafka.Publisher
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		var err error
		publisher, err = kafka.NewPublisher(kafka.Config{Writer: writer, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires brokers without an injected writer", func() {
		_, err := kafka.NewPublisher(kafka.Config{})
		Expect(err).To(MatchError(ContainSubstring("brokers are required")))
	})

	It("builds a real writer from brokers", func() {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("rejects nil events", func() {
		Expect(publisher.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
	})

	It("writes JSON keyed by conversation id", func() {
		event := eventstream.NewTurnPersistedEvent("c1", "alice",
			conversation.NewTextMessage(conversation.RoleUser, "hello"),
			conversation.NewTextMessage(conversation.RoleAssistant, "hi"),
		)
		Expect(publisher.PublishTurn(context.Background(), event)).To(Succeed())

		Expect(writer.messages).To(HaveLen(1))
		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("c1"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeTurnPersisted)}))

		var decoded eventstream.TurnPersistedEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.AssistantMessage.Text()).To(Equal("hi"))
	})

	It("wraps writer failures", func() {
		writer.err = errors.New("broker down")
		err := publisher.PublishTurn(context.Background(), eventstream.NewTurnPersistedEvent("c1", "a", conversation.Message{}, conversation.Message{}))
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
