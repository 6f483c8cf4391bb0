package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	pid      process.Process
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	// Request counters, incremented by the pipeline. Declared at
	// package level so they are usable before StartMon runs.
	DetectTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detect_requests_total",
		Help: "Total number of detection requests processed",
	})
	OcrTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ocr_requests_total",
		Help: "Total number of OCR requests processed",
	})
	ErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Total number of pipeline runs that ended in an error classification",
	})
)

var srv *http.Server

func prom(port int) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, DetectTotal, OcrTotal, ErrorTotal)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Prometheus server ListenAndServe error: %v\n", err)
		}
	}()
}

func checkProcessInfo() {
	memInfo, _ := pid.MemoryInfo()
	var memMB = memInfo.RSS / 1024 / 1024
	cpuPercent, _ := pid.CPUPercent()
	memUsage.Set(float64(memMB))
	cpuUsage.Set(math.Round(cpuPercent*100) / 100)
}

// StartMon serves /metrics on the given port and samples process
// memory/CPU every 500ms until ctx is cancelled.
func StartMon(port int, ctx context.Context) {
	pid = process.Process{Pid: int32(os.Getpid())}
	go prom(port)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			checkProcessInfo()
		}
	}
	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil {
			fmt.Printf("Prometheus server Shutdown error: %v\n", err)
		}
	}
}
