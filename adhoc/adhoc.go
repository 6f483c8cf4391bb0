package adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LayoutOcrServer/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const TimeOutSeconds = 5

// Capabilities advertised to the registry server.
var Capabilities = []string{"detect", "ocr", "one_shot_ocr"}

type RegisterRequest struct {
	Id           string   `json:"id"`
	IP           string   `json:"ip"`
	Port         int      `json:"port"`
	Capabilities []string `json:"capabilities"`
	TimeStamp    int64    `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

var RegServerCfg RegServerConfig

// SendAliveMessage announces this gateway to the registry server and
// keeps re-announcing on a ticker until ctx is cancelled.
func SendAliveMessage(selfIP string, selfPort int, ctx context.Context, wg *sync.WaitGroup) {
	addr := fmt.Sprintf("%s:%d", RegServerCfg.Addr, RegServerCfg.Port)
	defer wg.Done()
	ticker := time.NewTicker(TimeOutSeconds * time.Second)
	defer ticker.Stop()
	client := resty.New().SetTimeout(TimeOutSeconds * time.Second)
	id := uuid.NewString()
	doRequest := func() {
		var respBody RegisterResponse
		url := fmt.Sprintf("http://%s/api/register", addr)
		reqBody := RegisterRequest{
			Id:           id,
			IP:           selfIP,
			Port:         selfPort,
			Capabilities: Capabilities,
			TimeStamp:    time.Now().Unix(),
		}
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(reqBody).
			SetResult(&respBody).
			Post(url)
		if err != nil {
			logger.Log().Error(fmt.Sprintf("register request error: %v", err))
			return
		}
		if resp.IsError() {
			logger.Log().Error(fmt.Sprintf("registry server returned error: %s, body: %s", resp.Status(), resp.String()))
		}
	}
	doRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			doRequest()
		}
	}
}
