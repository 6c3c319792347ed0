package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// clientTransport создаёт client span на каждый исходящий запрос и инжектит traceparent в заголовки
type clientTransport struct {
	base   http.RoundTripper
	tracer trace.Tracer
	peer   string
}

// HTTPClientTransport оборачивает base (nil = http.DefaultTransport).
// peer попадает в имя span'а вместо URL: в пути Telegram лежит токен бота.
func HTTPClientTransport(serviceName, peer string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &clientTransport{
		base:   base,
		tracer: otel.Tracer(serviceName),
		peer:   peer,
	}
}

func (t *clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), fmt.Sprintf("HTTP %s %s", req.Method, t.peer),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", req.URL.Hostname()),
			attribute.String("peer.service", t.peer),
		),
	)
	defer span.End()

	// RoundTripper не должен менять исходный запрос
	req = req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
