package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// streamName — JetStream-поток, в который пишутся все события бота.
const streamName = "DICEBOT_EVENTS"

// NATSPublisher публикует события в JetStream.
type NATSPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
}

// NewNATSPublisher подключается к NATS и гарантирует наличие потока.
func NewNATSPublisher(servers, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("dicebot"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS отключился с ошибкой")
			} else {
				log.Warn("NATS отключился")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS переподключился")
		}),
	}

	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("не удалось создать JetStream-контекст: %w", err)
	}

	p := &NATSPublisher{nc: nc, js: js, prefix: prefix}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	log.WithField("servers", servers).Info("Подключение к NATS установлено")
	return p, nil
}

// Subject возвращает subject для типа события.
func Subject(prefix string, t EventType) string {
	return prefix + "." + string(t)
}

// Publish сериализует событие в JSON и отправляет в JetStream.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", event.Type(), err)
	}

	subject := Subject(p.prefix, event.Type())
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("ошибка публикации в %s: %w", subject, err)
	}
	return nil
}

// Close закрывает соединение.
func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		log.Info("Соединение с NATS закрыто")
	}
	return nil
}

func (p *NATSPublisher) ensureStream() error {
	if _, err := p.js.StreamInfo(streamName); err == nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:        streamName,
		Subjects:    []string{p.prefix + ".>"},
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Description: "События dice-бота: раунды, рефералы, пополнения",
	})
	if err != nil {
		return fmt.Errorf("не удалось создать поток %s: %w", streamName, err)
	}

	log.WithField("stream", streamName).Info("Создан JetStream-поток")
	return nil
}

// PublishAsync отправляет событие, не блокируя вызывающего; ошибки логируются.
func PublishAsync(p Publisher, event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, event); err != nil {
			log.WithError(err).WithField("event", event.Type()).Warn("Событие не опубликовано")
		}
	}()
}
