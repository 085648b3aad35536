// fallwatch-tail prints monitor events from a running fallwatch server.
//
// Usage:
//
//	fallwatch-tail [-url ws://localhost:5000/ws/events] [-raw]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-fallwatch/internal/log"
)

type event struct {
	Kind              string    `json:"kind"`
	Status            string    `json:"status"`
	Time              time.Time `json:"time"`
	Episode           string    `json:"episode"`
	AspectRatio       float64   `json:"aspect_ratio"`
	ConsecutiveFrames int       `json:"consecutive_frames"`
	Err               string    `json:"error"`
}

func main() {
	url := flag.String("url", "ws://localhost:5000/ws/events", "Events websocket URL")
	raw := flag.Bool("raw", false, "Print raw JSON messages")
	retry := flag.Duration("retry", 2*time.Second, "Reconnect delay (0 exits on disconnect)")
	flag.Parse()
	log.Init("info")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for {
		err := tail(ctx, *url, *raw)
		if ctx.Err() != nil {
			return
		}
		log.Warn("event stream closed", "url", *url, "error", err)
		if *retry <= 0 {
			os.Exit(1)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*retry):
		}
	}
}

func tail(ctx context.Context, url string, raw bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected", "url", url)

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if raw {
			fmt.Println(string(data))
			continue
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn("undecodable message", "error", err)
			continue
		}
		fmt.Println(format(ev))
	}
}

func format(ev event) string {
	ts := ev.Time.Local().Format("15:04:05")
	switch ev.Kind {
	case "status":
		return fmt.Sprintf("monitor is %s", ev.Status)
	case "fall_alert":
		return fmt.Sprintf("%s FALL DETECTED episode=%s ratio=%.2f frames=%d", ts, ev.Episode, ev.AspectRatio, ev.ConsecutiveFrames)
	case "recovered":
		return fmt.Sprintf("%s recovered episode=%s", ts, ev.Episode)
	case "failed":
		return fmt.Sprintf("%s monitor failed: %s", ts, ev.Err)
	default:
		return fmt.Sprintf("%s %s", ts, ev.Kind)
	}
}
