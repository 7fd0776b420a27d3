package framepub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/framepub/transport/transporttest"
)

func TestServiceExportsPropagateErrors(t *testing.T) {
	if _, err := TryNewService(nil, NewNopServiceLogger(), context.Background(), ServiceDependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}

	if _, err := TryNewListener(&Config{}, nil, context.Background(), ListenerDependencies{}); !errors.Is(err, ErrLoggerRequired) {
		t.Fatalf("expected logger required error, got %v", err)
	}

	if _, err := NewEndpoint(nil, "topic", CounterSchema); !errors.Is(err, ErrEndpointInit) {
		t.Fatalf("expected endpoint init error, got %v", err)
	}
}

func TestServiceThroughFacade(t *testing.T) {
	pub := transporttest.NewPublisher()
	factory := TransportFactoryFunc(func(ctx context.Context, conf *Config, logger watermill.LoggerAdapter) (Transport, error) {
		var tr Transport
		tr.Publisher = pub
		tr.Capabilities = GetCapabilities("channel")
		return tr, nil
	})

	var svc *Service
	hooks := TickHooks{OnTickDone: func(tc TickContext) {
		if tc.Tick == 2 {
			svc.Stop()
		}
	}}

	svc, err := TryNewService(&Config{TimerPeriod: time.Millisecond}, NewNopServiceLogger(), context.Background(), ServiceDependencies{
		TransportFactory: factory,
		Registerer:       prometheus.NewRegistry(),
		Hooks:            hooks,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer svc.Close()

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start returned %v", err)
	}

	counters := pub.Messages(DefaultCounterTopic)
	if len(counters) != 2 {
		t.Fatalf("expected 2 counters, got %d", len(counters))
	}
	for i, msg := range counters {
		assertCounter(t, msg, int32(i))
	}
	if got := len(pub.Messages(DefaultImageTopic)); got != 2 {
		t.Fatalf("expected 2 frames, got %d", got)
	}
	if state := svc.Executor().State(); state != ExecutorStopped {
		t.Fatalf("expected stopped executor, got %s", state)
	}
}

func assertCounter(t *testing.T, msg *message.Message, want int32) {
	t.Helper()
	got, err := DecodeCounter(msg.Payload)
	if err != nil {
		t.Fatalf("decode counter: %v", err)
	}
	if got != want {
		t.Fatalf("expected counter %d, got %d", want, got)
	}
	if msg.Metadata.Get(MetadataKeySchema) != CounterSchema {
		t.Fatalf("unexpected schema %q", msg.Metadata.Get(MetadataKeySchema))
	}
}

func TestFrameExports(t *testing.T) {
	frame, err := NewFramedBinaryMessage(DefaultFrameID, DefaultFormat, DefaultPayloadCapacity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer frame.Release()

	if err := frame.RefillPayload(SourcePattern(DefaultPayloadCapacity + 1)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if err := frame.RefillPayload(SourcePattern(DefaultPayloadCapacity)); err != nil {
		t.Fatalf("refill failed: %v", err)
	}

	payload, err := frame.Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	decoded, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Header.FrameID != DefaultFrameID || len(decoded.Data) != DefaultPayloadCapacity {
		t.Fatalf("unexpected frame %+v", decoded)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata("key", "value").WithTick(3)
	if md["key"] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
	if md[MetadataKeyTick] != "3" {
		t.Fatalf("expected tick 3, got %q", md[MetadataKeyTick])
	}
}

func TestTransportRegistryExport(t *testing.T) {
	if !DefaultTransportRegistry.Has("channel") {
		t.Fatal("expected channel transport to be registered")
	}
}
