// Command ingest listens for RTP on a UDP socket, feeds the packets through
// a jitter buffer and logs ordered release plus periodic reception reports.
// Useful for exercising the media plane against a live sender.
package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtckit/internal/infrastructure/monitoring"
	"rtckit/internal/media"
	"rtckit/internal/media/jitter"
	"rtckit/pkg/config"
	"rtckit/pkg/logger"

	"github.com/pion/rtp"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	addr, err := net.ResolveUDPAddr("udp", cfg.Ingest.Address)
	if err != nil {
		log.Fatalw("invalid ingest address", "address", cfg.Ingest.Address, "error", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Fatalw("failed to listen", "address", cfg.Ingest.Address, "error", err)
	}
	defer conn.Close()

	log.Infow("listening for rtp", "address", cfg.Ingest.Address, "latency", cfg.WebRTC.JitterLatency)

	collector := monitoring.NewCollector()
	buffer := jitter.New(cfg.WebRTC.JitterLatency)
	tracker := media.NewReceptionTracker()

	packets := make(chan *rtp.Packet, 256)
	go readLoop(conn, packets, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(cfg.Ingest.StatsPeriod)
	defer statsTicker.Stop()

	// The jitter buffer is externally timed: each operation returns the
	// delay until HandleTimeout must run.
	var timer *time.Timer
	var timerC <-chan time.Time
	resetTimer := func(d *time.Duration) {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		if d != nil {
			timer = time.NewTimer(*d)
			timerC = timer.C
		}
	}

	var prev jitter.Stats
	for {
		select {
		case pkt := <-packets:
			tracker.Observe(pkt)
			released, next := buffer.Insert(pkt)
			emit(released, log)
			resetTimer(next)

		case <-timerC:
			released, next := buffer.HandleTimeout()
			emit(released, log)
			resetTimer(next)

		case <-statsTicker.C:
			stats := buffer.Stats()
			collector.PacketsReleased(stats.Released - prev.Released)
			collector.JitterDrop("duplicate", stats.DuplicateDropped-prev.DuplicateDropped)
			collector.JitterDrop("late", stats.LateDropped-prev.LateDropped)
			collector.JitterDrop("padding", stats.PaddingDropped-prev.PaddingDropped)
			prev = stats

			if report := tracker.Report(0); report != nil {
				log.Infow("reception report",
					"ssrc", report.Reports[0].SSRC,
					"fraction_lost", report.Reports[0].FractionLost,
					"total_lost", report.Reports[0].TotalLost,
					"highest_seq", report.Reports[0].LastSequenceNumber,
					"released", stats.Released,
				)
			}

		case <-quit:
			released := buffer.Flush()
			emit(released, log)
			log.Infow("drained", "stats", buffer.Stats())
			return
		}
	}
}

func readLoop(conn *net.UDPConn, packets chan<- *rtp.Packet, log interface{ Warnw(string, ...interface{}) }) {
	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(append([]byte(nil), buf[:n]...)); err != nil {
			log.Warnw("dropping malformed packet", "error", err)
			continue
		}
		packets <- pkt
	}
}

func emit(released []*rtp.Packet, log interface{ Debugw(string, ...interface{}) }) {
	for _, pkt := range released {
		log.Debugw("release", "seq", pkt.SequenceNumber, "ts", pkt.Timestamp, "bytes", len(pkt.Payload))
	}
}
