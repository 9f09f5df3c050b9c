package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/models"
)

// Producer wraps a shared kafka-go writer. Topic is supplied per message
// so one writer serves all booking and occupancy topics.
type Producer struct {
	Writer *kafka.Writer
	Topics TopicSet
}

// TopicSet names the topics this service publishes to.
type TopicSet struct {
	BookingCreated   string
	BookingCancelled string
	BookingCheckedIn string
	OccupancyStatus  string
}

func NewProducer(brokers []string, topics TopicSet) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics}
}

// Publish writes a raw message to the given topic.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

// PublishBookingCreated streams the booking creation event.
func (p *Producer) PublishBookingCreated(booking models.Booking) error {
	msgBytes, err := json.Marshal(booking)
	if err != nil {
		return err
	}
	return p.Publish(p.Topics.BookingCreated, booking.ID, msgBytes)
}

// PublishBookingCancelled streams the booking cancellation event.
func (p *Producer) PublishBookingCancelled(booking models.Booking) error {
	msgBytes, err := json.Marshal(booking)
	if err != nil {
		return err
	}
	return p.Publish(p.Topics.BookingCancelled, booking.ID, msgBytes)
}

// PublishBookingCheckedIn streams the attendance confirmation event.
func (p *Producer) PublishBookingCheckedIn(booking models.Booking) error {
	msgBytes, err := json.Marshal(booking)
	if err != nil {
		return err
	}
	return p.Publish(p.Topics.BookingCheckedIn, booking.ID, msgBytes)
}

// PublishOccupancyStatus streams a seat count change for live views.
func (p *Producer) PublishOccupancyStatus(event models.OccupancyEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(p.Topics.OccupancyStatus, event.OccurrenceID, msgBytes)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
