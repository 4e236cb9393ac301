package control

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/msg_tracker"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	addr           string
	log            *zap.Logger
	mt             *msg_tracker.Tracker
	srv            *http.Server
	lis            net.Listener
	reportInterval time.Duration
	reportStop     chan bool
	reportWg       *sync.WaitGroup

	progressMu sync.RWMutex
	progress   ProgressFunc
}

func New(addr string, mt *msg_tracker.Tracker, gatherer prometheus.Gatherer, reportInterval time.Duration, log *zap.Logger) *Server {
	s := &Server{
		addr:           addr,
		log:            log,
		mt:             mt,
		reportInterval: reportInterval,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/published", s.handlePublished).Methods(http.MethodPost)
	r.HandleFunc("/api/progress", s.handleProgress).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.srv = &http.Server{
		Addr:    addr,
		Handler: r,
	}

	return s
}

// SetProgress installs the source of /api/progress, replaced on every run.
func (s *Server) SetProgress(fn ProgressFunc) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.progress = fn
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	s.log.Debug("Starting control server", zap.String("addr", s.addr))

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.lis = lis

	go func() {
		if err := s.srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.log.Error("control server error", zap.Error(err))
		}
	}()

	s.reportStop = make(chan bool)
	s.reportWg = &sync.WaitGroup{}
	if s.reportInterval <= 0 {
		return nil
	}

	s.reportWg.Add(1)
	go func() {
		defer s.reportWg.Done()

		tm := time.NewTicker(s.reportInterval)
		for {
			select {
			case <-tm.C:
				fmt.Printf("REPORT: %s\n", s.report(time.Now()))
			case <-s.reportStop:
				tm.Stop()
				return
			}
		}
	}()

	return nil
}

func (s *Server) report(now time.Time) string {
	var sb strings.Builder

	reports := s.mt.Report(now.Add(-1 * s.reportInterval))
	if len(reports) == 0 {
		sb.WriteString("No publishers reported")
		return sb.String()
	}

	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		r := reports[id]
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("Publisher %s, published: %d, received: %d, undelivered: %d",
			id, r.Published, r.Received, r.Undelivered))
		if r.Duplicates > 0 {
			sb.WriteString(fmt.Sprintf(", duplicates: %d", r.Duplicates))
		}
	}
	return sb.String()
}

func (s *Server) Stop() error {
	s.log.Debug("Stopping control server")
	err := s.srv.Close()
	if s.reportStop != nil {
		close(s.reportStop)
		s.reportWg.Wait()
	}
	return err
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return s.addr
}

func (s *Server) handlePublished(w http.ResponseWriter, r *http.Request) {
	var pub Published
	if err := json.NewDecoder(r.Body).Decode(&pub); err != nil {
		s.log.Error("failed to decode published notification", zap.Error(err))
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if pub.PublisherID == "" {
		http.Error(w, "pub_id is required", http.StatusBadRequest)
		return
	}
	if pub.Idx == 0 {
		http.Error(w, "idx is required", http.StatusBadRequest)
		return
	}

	s.mt.Published(pub.PublisherID, pub.Idx, pub.Timestamp)

	s.log.Debug("received published notification",
		zap.String("pub_id", pub.PublisherID),
		zap.Uint64("idx", pub.Idx),
		zap.Time("timestamp", pub.Timestamp),
	)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.progressMu.RLock()
	fn := s.progress
	s.progressMu.RUnlock()

	var p Progress
	if fn != nil {
		p = fn()
	}

	reports := s.mt.Report(time.Now().Add(-1 * s.reportInterval))
	if len(reports) > 0 {
		p.Publishers = make(map[string]PublisherProgress, len(reports))
		for id, rep := range reports {
			p.Publishers[id] = PublisherProgress{
				Published:   rep.Published,
				Received:    rep.Received,
				Duplicates:  rep.Duplicates,
				Undelivered: rep.Undelivered,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}
