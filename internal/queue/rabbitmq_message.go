package queue

import (
	"errors"
	"sync/atomic"
)

// ErrAlreadySettled is returned when a message is acked or nacked twice.
var ErrAlreadySettled = errors.New("message already settled")

// acknowledger is the part of *amqp.Channel a delivery needs.
type acknowledger interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
}

// Message is one delivered learning job. It must be settled exactly once
// with Ack or Nack.
type Message struct {
	Job         *Job
	DeliveryTag uint64
	// Redelivered is set by the broker when an earlier delivery of the same
	// message was not acked.
	Redelivered bool

	acker   acknowledger
	settled atomic.Bool
}

var _ MessageInterface = (*Message)(nil)

// Ack removes the message from the queue.
func (m *Message) Ack() error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return m.acker.Ack(m.DeliveryTag, false)
}

// Nack returns the message to the queue, or dead-letters it when requeue
// is false.
func (m *Message) Nack(requeue bool) error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return m.acker.Nack(m.DeliveryTag, false, requeue)
}

// GetJob returns the decoded job
func (m *Message) GetJob() *Job {
	return m.Job
}
