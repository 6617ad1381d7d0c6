package telemetry

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/physio.track/internal/metrics"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
)

// Config holds configuration for the telemetry gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the per-client queue depth before snapshots are dropped
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   8,
		ClientBuffer: 16,
	}
}

// Publisher manages the gRPC server and snapshot streaming.
type Publisher struct {
	config   Config
	metrics  *metrics.Manager
	server   *grpc.Server
	listener net.Listener

	// Snapshot broadcasting
	snapshotCh chan *structpb.Struct
	clients    map[string]*clientStream
	clientsMu  sync.RWMutex
	latest     atomic.Pointer[structpb.Struct]

	// Stats
	published   atomic.Uint64
	clientCount atomic.Int32
	dropped     atomic.Uint64

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// clientStream represents a connected streaming client.
type clientStream struct {
	id string
	ch chan *structpb.Struct
}

var _ TelemetryServer = (*Publisher)(nil)

// NewPublisher creates a new Publisher with the given configuration. m may be nil.
func NewPublisher(cfg Config, m *metrics.Manager) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:     cfg,
		metrics:    m,
		snapshotCh: make(chan *structpb.Struct, 64),
		clients:    make(map[string]*clientStream),
		stopCh:     make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves the Telemetry service on lis in the background. The
// publisher owns lis from here on. A stopped publisher cannot be restarted.
func (p *Publisher) Serve(lis net.Listener) error {
	select {
	case <-p.stopCh:
		lis.Close()
		return fmt.Errorf("publisher stopped")
	default:
	}
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	p.server.RegisterService(&ServiceDesc, p)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		diagf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) && p.running.Load() {
			opsf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends every stream and stops the server. Safe to call twice.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
	diagf("gRPC server stopped")
}

// Publish queues a snapshot for every connected client. It never blocks;
// a full queue drops the snapshot. Matches the pipeline sink signature.
func (p *Publisher) Publish(m pipeline.SessionMetrics) {
	if !p.running.Load() {
		return
	}
	msg, err := EncodeMetrics(m)
	if err != nil {
		opsf("dropping snapshot: %v", err)
		return
	}
	p.latest.Store(msg)
	select {
	case p.snapshotCh <- msg:
		p.published.Add(1)
	default:
		p.drop()
		tracef("snapshot queue full, dropped generation %d", m.Generation)
	}
}

func (p *Publisher) drop() {
	p.dropped.Add(1)
	p.metrics.TelemetryDropped()
}

// broadcastLoop distributes snapshots to all connected clients.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case msg := <-p.snapshotCh:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.ch <- msg:
				default:
					// slow client
					p.drop()
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// StreamMetrics implements TelemetryServer. A new client first receives the
// most recent snapshot, if any.
func (p *Publisher) StreamMetrics(_ *emptypb.Empty, stream grpc.ServerStream) error {
	client, err := p.addClient()
	if err != nil {
		return err
	}
	defer p.removeClient(client.id)

	if last := p.latest.Load(); last != nil {
		if err := stream.SendMsg(last); err != nil {
			return err
		}
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case msg := <-client.ch:
			start := time.Now()
			if err := stream.SendMsg(msg); err != nil {
				opsf("client %s: send failed: %v", client.id, err)
				return err
			}
			tracef("client %s: sent snapshot in %s", client.id, time.Since(start))
		}
	}
}

// addClient registers a new streaming client.
func (p *Publisher) addClient() (*clientStream, error) {
	p.clientsMu.Lock()
	if len(p.clients) >= p.config.MaxClients {
		p.clientsMu.Unlock()
		return nil, status.Errorf(codes.ResourceExhausted, "telemetry client limit %d reached", p.config.MaxClients)
	}
	client := &clientStream{
		id: uuid.NewString(),
		ch: make(chan *structpb.Struct, p.config.ClientBuffer),
	}
	p.clients[client.id] = client
	p.clientsMu.Unlock()

	n := p.clientCount.Add(1)
	p.metrics.TelemetryClients(int(n))
	diagf("client connected: %s (total: %d)", client.id, n)
	return client, nil
}

// removeClient unregisters a streaming client.
func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()
	if !ok {
		return
	}
	n := p.clientCount.Add(-1)
	p.metrics.TelemetryClients(int(n))
	diagf("client disconnected: %s (remaining: %d)", id, n)
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published:   p.published.Load(),
		Dropped:     p.dropped.Load(),
		ClientCount: p.clientCount.Load(),
		Running:     p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	ClientCount int32  `json:"client_count"`
	Running     bool   `json:"running"`
}
