package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"LayoutOcrServer/adhoc"
	"LayoutOcrServer/engine"
	"LayoutOcrServer/logger"
	"LayoutOcrServer/monitor"
	"LayoutOcrServer/ocr"
	"LayoutOcrServer/pipeline"

	"gopkg.in/yaml.v3"
)

type configStruct struct {
	HTTPPort      int                  `yaml:"HTTPPort"`
	MetricsPort   int                  `yaml:"MetricsPort"`
	OcrWorkers    int                  `yaml:"ocrWorkers"`
	OcrLanguages  []string             `yaml:"ocrLanguages"`
	SessionIdleMs int                  `yaml:"sessionIdleMs"`
	UseRegServer  bool                 `yaml:"UseRegServer"`
	RegServerPort int                  `yaml:"RegServerPort"`
	RegServerHost string               `yaml:"RegServerHost"`
	Models        []engine.ModelConfig `yaml:"models"`
}

// GetOutboundIP resolves the local egress IP by opening a routed UDP
// socket; no packet is actually sent.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func main() {
	if err := logger.InitProduction(); err != nil {
		fmt.Println("Failed to init logger:", err)
		return
	}
	defer logger.Sync()

	ip, err := GetOutboundIP()
	if err != nil {
		fmt.Println("Failed to get outbound IP:", err)
		return
	}
	fmt.Println("Outbound IP:", ip)

	fmt.Println(strings.Repeat("#", 64))
	cpuNum := runtime.NumCPU()
	fmt.Printf("CPU Cores: %d\n", cpuNum)

	configData, err := os.ReadFile("config.yaml")
	if err != nil {
		fmt.Println("Failed to read config file:", err)
		return
	}
	config := configStruct{}
	if err := yaml.Unmarshal(configData, &config); err != nil {
		fmt.Println("Failed to parse config file:", err)
		return
	}
	if config.HTTPPort == 0 {
		config.HTTPPort = 8080
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 50053
	}
	if config.SessionIdleMs <= 0 {
		config.SessionIdleMs = 60000
	}
	if config.OcrWorkers <= 0 {
		config.OcrWorkers = 1
		fmt.Println(strings.Repeat("!", 64))
		fmt.Println("Invalid ocrWorkers in config, defaulting to 1")
		fmt.Println(strings.Repeat("!", 64))
	} else if config.OcrWorkers > cpuNum {
		fmt.Println(strings.Repeat("!", 64))
		fmt.Println("Please noted that ocrWorkers exceeds CPU cores, which may lead to performance degradation.")
		fmt.Println(strings.Repeat("!", 64))
	}
	fmt.Println(" HTTP    Port:", config.HTTPPort)
	fmt.Println(" Metrics Port:", config.MetricsPort)
	fmt.Println("Configured OCR Workers:", config.OcrWorkers)
	fmt.Println("Configured Models:", len(config.Models))
	fmt.Println(strings.Repeat("#", 64))

	svc := engine.NewService(config.Models)
	extractor := ocr.New(ocr.Config{
		Workers:   config.OcrWorkers,
		Languages: config.OcrLanguages,
	})
	defer extractor.Close()
	pipe := pipeline.New(svc, extractor)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	if config.UseRegServer {
		adhoc.RegServerCfg = adhoc.RegServerConfig{}
		adhoc.RegServerCfg.SetAddress(config.RegServerHost, config.RegServerPort)
		go adhoc.SendAliveMessage(ip, config.HTTPPort, ctx, &wg)
	} else {
		fmt.Println("UseRegServer is set to false, skipping registration")
		wg.Done()
	}
	go monitor.StartMon(config.MetricsPort, ctx)

	h := &handler{
		pipe:     pipe,
		models:   svc,
		sessions: newSessionManager(pipe, time.Duration(config.SessionIdleMs)*time.Millisecond),
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.HTTPPort),
		Handler: newRouter(h),
	}
	go func() {
		fmt.Println("Starting HTTP Server on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.S().Errorf("HTTP server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.S().Errorf("HTTP server shutdown error: %v", err)
	}
	h.sessions.releaseAll()
	fmt.Println("Done")
	wg.Wait()
	fmt.Println("Safely exited")
}
