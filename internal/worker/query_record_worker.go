package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"corpusqa/internal/model"
	"corpusqa/internal/repository"
)

// QueryRecordWorker drains the query event queue into the history table,
// keeping persistence off the request path.
type QueryRecordWorker struct {
	conn      *amqp.Connection
	records   *repository.QueryRecordRepository
	queueName string
	log       *logrus.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueryRecordWorker(conn *amqp.Connection, records *repository.QueryRecordRepository, queueName string, log *logrus.Logger) *QueryRecordWorker {
	return &QueryRecordWorker{
		conn:      conn,
		records:   records,
		queueName: queueName,
		log:       log,
	}
}

func (w *QueryRecordWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event model.QueryEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					w.log.WithError(err).Warn("decode query event failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := w.records.Create(event.Record()); err != nil {
					w.log.WithError(err).WithField("query_id", event.QueryID).Error("persist query record failed")
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *QueryRecordWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
