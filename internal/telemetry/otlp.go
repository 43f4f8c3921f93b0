package telemetry

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// otlpHTTPExporter posts finished spans to an OTLP/HTTP collector using the JSON encoding.
type otlpHTTPExporter struct {
	endpoint string
	client   *http.Client
}

func newOTLPHTTPExporter(endpoint string) *otlpHTTPExporter {
	return &otlpHTTPExporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type otlpTraceRequest struct {
	ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
}

type otlpResourceSpans struct {
	Resource   otlpResource     `json:"resource"`
	ScopeSpans []otlpScopeSpans `json:"scopeSpans"`
}

type otlpResource struct {
	Attributes []otlpKeyValue `json:"attributes,omitempty"`
}

type otlpScopeSpans struct {
	Scope otlpScope  `json:"scope"`
	Spans []otlpSpan `json:"spans"`
}

type otlpScope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type otlpSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId,omitempty"`
	Name              string         `json:"name"`
	Kind              int            `json:"kind"`
	StartTimeUnixNano string         `json:"startTimeUnixNano"`
	EndTimeUnixNano   string         `json:"endTimeUnixNano"`
	Attributes        []otlpKeyValue `json:"attributes,omitempty"`
	Status            otlpStatus     `json:"status"`
}

type otlpStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type otlpKeyValue struct {
	Key   string       `json:"key"`
	Value otlpAnyValue `json:"value"`
}

type otlpAnyValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *otlpHTTPExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	payload, err := json.Marshal(buildOTLPTraceRequest(spans))
	if err != nil {
		return fmt.Errorf("encode otlp request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build otlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send otlp request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
		if readErr != nil {
			return fmt.Errorf("otlp export failed status=%d body-read-error=%v", resp.StatusCode, readErr)
		}
		return fmt.Errorf("otlp export failed status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *otlpHTTPExporter) Shutdown(_ context.Context) error {
	return nil
}

func buildOTLPTraceRequest(spans []sdktrace.ReadOnlySpan) otlpTraceRequest {
	type scopeKey struct {
		name    string
		version string
	}

	request := otlpTraceRequest{}
	resourceIndex := make(map[string]int)
	scopeIndex := make(map[string]map[scopeKey]int)

	for _, span := range spans {
		resourceKey := ""
		var resourceAttrs []attribute.KeyValue
		if res := span.Resource(); res != nil {
			resourceKey = res.Encoded(attribute.DefaultEncoder())
			resourceAttrs = res.Attributes()
		}
		ri, ok := resourceIndex[resourceKey]
		if !ok {
			ri = len(request.ResourceSpans)
			resourceIndex[resourceKey] = ri
			scopeIndex[resourceKey] = make(map[scopeKey]int)
			request.ResourceSpans = append(request.ResourceSpans, otlpResourceSpans{
				Resource: otlpResource{Attributes: toOTLPAttributes(resourceAttrs)},
			})
		}

		scope := span.InstrumentationScope()
		key := scopeKey{name: scope.Name, version: scope.Version}
		si, ok := scopeIndex[resourceKey][key]
		if !ok {
			si = len(request.ResourceSpans[ri].ScopeSpans)
			scopeIndex[resourceKey][key] = si
			request.ResourceSpans[ri].ScopeSpans = append(request.ResourceSpans[ri].ScopeSpans, otlpScopeSpans{
				Scope: otlpScope{Name: scope.Name, Version: scope.Version},
			})
		}

		request.ResourceSpans[ri].ScopeSpans[si].Spans = append(request.ResourceSpans[ri].ScopeSpans[si].Spans, toOTLPSpan(span))
	}
	return request
}

func toOTLPSpan(span sdktrace.ReadOnlySpan) otlpSpan {
	spanContext := span.SpanContext()
	traceID := spanContext.TraceID()
	spanID := spanContext.SpanID()

	converted := otlpSpan{
		TraceID:           hex.EncodeToString(traceID[:]),
		SpanID:            hex.EncodeToString(spanID[:]),
		Name:              span.Name(),
		Kind:              int(span.SpanKind()),
		StartTimeUnixNano: strconv.FormatInt(span.StartTime().UnixNano(), 10),
		EndTimeUnixNano:   strconv.FormatInt(span.EndTime().UnixNano(), 10),
		Attributes:        toOTLPAttributes(span.Attributes()),
		Status: otlpStatus{
			Code:    int(span.Status().Code),
			Message: span.Status().Description,
		},
	}
	if parent := span.Parent(); parent.HasSpanID() {
		parentID := parent.SpanID()
		converted.ParentSpanID = hex.EncodeToString(parentID[:])
	}
	return converted
}

func toOTLPAttributes(attrs []attribute.KeyValue) []otlpKeyValue {
	converted := make([]otlpKeyValue, 0, len(attrs))
	for _, attr := range attrs {
		value := otlpAnyValue{}
		switch attr.Value.Type() {
		case attribute.BOOL:
			v := attr.Value.AsBool()
			value.BoolValue = &v
		case attribute.INT64:
			v := strconv.FormatInt(attr.Value.AsInt64(), 10)
			value.IntValue = &v
		case attribute.FLOAT64:
			v := attr.Value.AsFloat64()
			value.DoubleValue = &v
		default:
			v := attr.Value.Emit()
			value.StringValue = &v
		}
		converted = append(converted, otlpKeyValue{Key: string(attr.Key), Value: value})
	}
	return converted
}
