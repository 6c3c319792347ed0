package observability

import (
	"github.com/segmentio/kafka-go"
)

// KafkaHeadersCarrier адаптирует заголовки kafka сообщения к propagation.TextMapCarrier
type KafkaHeadersCarrier struct {
	headers *[]kafka.Header
}

// NewKafkaHeadersCarrier создаёт carrier поверх headers сообщения (Inject дописывает в них)
func NewKafkaHeadersCarrier(headers *[]kafka.Header) *KafkaHeadersCarrier {
	return &KafkaHeadersCarrier{headers: headers}
}

// Get возвращает первое значение по ключу
func (c *KafkaHeadersCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set заменяет или добавляет заголовок
func (c *KafkaHeadersCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys возвращает все ключи
func (c *KafkaHeadersCarrier) Keys() []string {
	out := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		out = append(out, h.Key)
	}
	return out
}
