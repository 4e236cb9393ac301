package sink

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	v1_metrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

// Sink is an OTLP/gRPC metrics receiver that logs the PAoI points it is
// sent.
type Sink struct {
	addr *url.URL
	log  *zap.Logger
	srv  *grpc.Server
	lis  net.Listener
	svc  *otlpMetricsRPCService
}

func New(addr string, log *zap.Logger) (*Sink, error) {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = fmt.Sprintf("http://%s", addr)
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	return &Sink{
		addr: u,
		log:  log,
		srv:  grpc.NewServer(),
		svc:  &otlpMetricsRPCService{log: log},
	}, nil
}

// Addr is the bound address once started, the configured one before.
func (s *Sink) Addr() string {
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return s.addr.Host
}

func (s *Sink) Start() error {
	v1_metrics.RegisterMetricsServiceServer(s.srv, s.svc)

	lis, err := net.Listen("tcp", s.addr.Host)
	if err != nil {
		return err
	}
	s.lis = lis

	go func() {
		if err := s.srv.Serve(lis); err != nil {
			s.log.Error("failed to shutdown grpc server", zap.Error(err))
		}
	}()

	return nil
}

func (s *Sink) Stop() {
	s.srv.GracefulStop()
}

// Points is the number of PAoI points received so far.
func (s *Sink) Points() int64 {
	return s.svc.points.Load()
}

// Last returns the most recent PAoI point.
func (s *Sink) Last() (Point, bool) {
	return s.svc.lastPoint()
}
