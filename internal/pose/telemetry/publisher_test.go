package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/physio.track/internal/metrics"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/l6form"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startBufconn(t *testing.T, cfg Config) (*Publisher, *grpc.ClientConn, *metrics.Manager) {
	t.Helper()
	m := metrics.NewTestManager()
	lis := bufconn.Listen(1 << 20)
	pub := NewPublisher(cfg, m)
	require.NoError(t, pub.Serve(lis))
	t.Cleanup(pub.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return pub, conn, m
}

func waitClients(t *testing.T, pub *Publisher, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return pub.Stats().ClientCount == n }, 2*time.Second, 5*time.Millisecond)
}

func sample(reps int) pipeline.SessionMetrics {
	return pipeline.SessionMetrics{
		Backend:          "bilstm",
		SessionID:        "6f1c2d7e-0000-4000-8000-000000000001",
		Generation:       2,
		Active:           true,
		RepCount:         reps,
		CurrentPhase:     l4model.PhaseDown,
		ExerciseType:     "squat",
		TypeConfidence:   0.875,
		LastFormScore:    81.5,
		AverageFormScore: 77.25,
		FormHistory:      []float64{73, 81.5},
		LastFeedback: &l6form.Feedback{
			Message:  "Good form, maintain your posture",
			Severity: l6form.SeveritySuccess,
			Score:    77.25,
			At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Classifications: 40,
		FramesReceived:  70,
		WindowLen:       30,
	}
}

func TestPublisher_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg, nil)

	require.NoError(t, pub.Start())
	assert.True(t, pub.Stats().Running)
	assert.NotNil(t, pub.Addr())
	assert.Error(t, pub.Start(), "second start")

	pub.Stop()
	assert.False(t, pub.Stats().Running)
	pub.Stop()
	assert.Error(t, pub.Start(), "restart after stop")
}

func TestPublisher_PublishNotRunning(t *testing.T) {
	pub := NewPublisher(DefaultConfig(), nil)
	pub.Publish(sample(1))
	assert.Equal(t, uint64(0), pub.Stats().Published)
}

func TestPublisher_StreamsSnapshots(t *testing.T) {
	pub, conn, m := startBufconn(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := Subscribe(ctx, conn)
	require.NoError(t, err)
	waitClients(t, pub, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GaugeTelemetryClients))

	want := sample(3)
	pub.Publish(want)
	got, err := sub.RecvMetrics()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	pub.Publish(sample(4))
	got, err = sub.RecvMetrics()
	require.NoError(t, err)
	assert.Equal(t, 4, got.RepCount)

	cancel()
	waitClients(t, pub, 0)
}

func TestPublisher_NewClientGetsLatest(t *testing.T) {
	pub, conn, _ := startBufconn(t, DefaultConfig())
	pub.Publish(sample(7))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := Subscribe(ctx, conn)
	require.NoError(t, err)

	got, err := sub.RecvMetrics()
	require.NoError(t, err)
	assert.Equal(t, 7, got.RepCount)
}

func TestPublisher_ClientLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 1
	pub, conn, _ := startBufconn(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := Subscribe(ctx, conn)
	require.NoError(t, err)
	waitClients(t, pub, 1)

	second, err := Subscribe(ctx, conn)
	require.NoError(t, err)
	_, err = second.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestPublisher_StopEndsStreams(t *testing.T) {
	pub, conn, _ := startBufconn(t, DefaultConfig())

	sub, err := Subscribe(context.Background(), conn)
	require.NoError(t, err)
	waitClients(t, pub, 1)

	pub.Stop()
	_, err = sub.Recv()
	assert.True(t, errors.Is(err, io.EOF) || status.Code(err) == codes.Unavailable, "got %v", err)
}

func TestPublisher_DropsForSlowClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientBuffer = 2
	pub, _, m := startBufconn(t, cfg)

	// registered directly so nothing drains the queue
	client, err := pub.addClient()
	require.NoError(t, err)
	defer pub.removeClient(client.id)

	for i := 0; i < 10; i++ {
		pub.Publish(sample(i))
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return pub.Stats().Dropped == 8 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, client.ch, 2)
	assert.Equal(t, float64(8), testutil.ToFloat64(m.CounterTelemetryDropped))
	assert.Equal(t, uint64(10), pub.Stats().Published)
}

func TestEncodeMetrics_WireNames(t *testing.T) {
	st, err := EncodeMetrics(sample(2))
	require.NoError(t, err)
	fields := st.GetFields()
	assert.Equal(t, "down", fields["current_phase"].GetStringValue())
	assert.Equal(t, float64(2), fields["rep_count"].GetNumberValue())
	assert.Equal(t, "success", fields["last_feedback"].GetStructValue().GetFields()["severity"].GetStringValue())
	assert.Len(t, fields["form_history"].GetListValue().GetValues(), 2)

	back, err := DecodeMetrics(st)
	require.NoError(t, err)
	assert.Equal(t, sample(2), back)
}
