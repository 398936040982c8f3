// Command captouchd monitors capacitive-touch channels and publishes touch
// transitions to MQTT, with an HTTP status page.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/captouch/hw"
	"github.com/sweeney/captouch/hw/mpr121"
	"github.com/sweeney/captouch/internal/logic"
	"github.com/sweeney/captouch/internal/mqtt"
	"github.com/sweeney/captouch/internal/status"
	"github.com/sweeney/captouch/internal/web"
	"github.com/sweeney/captouch/touch"
)

func main() {
	backend := flag.String("backend", "mpr121", `hardware backend ("mpr121" or "fake")`)
	i2cBus := flag.String("i2c", "", "I2C bus name (empty = first available)")
	irqChip := flag.String("irq-chip", "gpiochip0", "GPIO chip carrying the touch IRQ line")
	irqLine := flag.Int("irq-line", 17, "GPIO line number of the touch IRQ")
	channels := flag.String("channels", "0,1,2,3", "comma-separated channel indexes to open")
	baseThreshold := flag.Uint("threshold", 400, "base trigger threshold used when calibration cannot derive one")
	poll := flag.Duration("poll", 250*time.Millisecond, "release-detection polling interval")
	holdoff := flag.Duration("holdoff", 200*time.Millisecond, "minimum spacing between touch events per channel")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	bufferCap := flag.Int("buffer", 64, "events queued while the broker is unreachable")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	readOnce := flag.Bool("read-once", false, "read all configured channels once and exit")

	flag.Parse()

	indexes, err := parseChannels(*channels)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	threshold, err := parseThreshold(*baseThreshold)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(*backend, *i2cBus, *irqChip, *irqLine, indexes, threshold,
		*poll, *holdoff, *broker, *bufferCap, *heartbeat, *httpAddr, *readOnce); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseChannels parses "0,2,5" into channel indexes.
func parseChannels(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse channels %q: %w", s, err)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	return out, nil
}

// parseThreshold range-checks the base threshold flag; the counter is 16 bit.
func parseThreshold(v uint) (uint16, error) {
	if v > 0xFFFF {
		return 0, fmt.Errorf("threshold %d out of range (max 65535)", v)
	}
	return uint16(v), nil
}

func run(backend, i2cBus, irqChip string, irqLine int, indexes []int, baseThreshold uint16,
	poll, holdoff time.Duration, broker string, bufferCap int, heartbeat time.Duration,
	httpAddr string, readOnce bool) error {

	// Initialize the hardware backend
	var (
		iface hw.Interface
		fake  *hw.Fake
	)
	switch backend {
	case "mpr121":
		dev, err := mpr121.Open(mpr121.Config{Bus: i2cBus, IRQChip: irqChip, IRQLine: irqLine})
		if err != nil {
			return fmt.Errorf("open mpr121: %w", err)
		}
		defer dev.Close()
		iface = dev
	case "fake":
		fake = hw.NewFake()
		for i := 0; i < hw.NumChannels; i++ {
			fake.SetRaw(i, 620)
			fake.SetFiltered(i, 600)
		}
		iface = fake
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}

	ctrl := touch.New(iface, touch.DefaultConfig())
	if err := ctrl.Init(); err != nil {
		return fmt.Errorf("init touch controller: %w", err)
	}
	defer ctrl.Dispose()

	var chans []*touch.Channel
	for _, idx := range indexes {
		ch, err := ctrl.OpenChannel(idx, touch.ChannelConfig{
			Select:    touch.SelectByChannel,
			Threshold: baseThreshold,
		})
		if err != nil {
			return fmt.Errorf("open channel %d: %w", idx, err)
		}
		defer ch.Close()
		chans = append(chans, ch)
		log.Printf("opened channel %d (gpio %d), threshold %d", ch.Index(), ch.GPIO(), ch.Threshold())
	}

	// Read-once mode
	if readOnce {
		for _, ch := range chans {
			v, err := ch.Read()
			if err != nil {
				return fmt.Errorf("read channel %d: %w", ch.Index(), err)
			}
			fmt.Printf("channel %d (gpio %d): %d\n", ch.Index(), ch.GPIO(), v)
		}
		return nil
	}

	// Initialize MQTT
	pub, err := mqtt.NewRealPublisher(broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	publisher := mqtt.NewBufferedPublisher(pub, pub, bufferCap)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      poll.Milliseconds(),
		HoldoffMs:   holdoff.Milliseconds(),
		HeartbeatMs: heartbeat.Milliseconds(),
		Broker:      broker,
		HTTPPort:    httpAddr,
		Backend:     backend,
	})

	monitor := logic.NewMonitor(holdoff, time.Now())
	for _, ch := range chans {
		monitor.Track(ch.Index(), ch.GPIO(), ch.Threshold())
	}
	tracker.Update(monitor.Snapshot(), monitor.TotalCounts())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	// Touch deliveries cross from the dispatch path into the loop over a
	// buffered channel; a full channel drops the delivery rather than
	// blocking dispatch.
	touches := make(chan logic.Input, 64)
	for _, ch := range chans {
		if err := ch.SubscribeValueChanged(func(ch *touch.Channel, value uint16) {
			select {
			case touches <- logic.Input{Channel: ch.Index(), Value: value, Time: time.Now()}:
			default:
				log.Printf("touch queue full, dropping delivery for channel %d", ch.Index())
			}
		}); err != nil {
			return fmt.Errorf("subscribe channel %d: %w", ch.Index(), err)
		}
	}

	if fake != nil {
		stop := make(chan struct{})
		defer close(stop)
		go simulateTouches(fake, indexes, 3*time.Second, stop)
		log.Printf("fake backend: simulating a touch every 3s")
	}

	log.Printf("started: backend=%s channels=%v poll=%v holdoff=%v broker=%s heartbeat=%v",
		backend, indexes, poll, holdoff, broker, heartbeat)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(chans, publisher, publisher, tracker, monitor, heartbeat, time.Now, touches, ticker.C, sigCh)
}

// simulateTouches drives the fake backend: every interval one channel's
// filtered counter dips below its calibrated threshold and the interrupt
// fires; the next poll sees the counter recovered and emits the release.
func simulateTouches(f *hw.Fake, indexes []int, interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	i := 0
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			idx := indexes[i%len(indexes)]
			i++
			f.SetFiltered(idx, 300)
			f.Trigger(1 << idx)
			// Recover after a moment so the poll detects the release.
			time.AfterFunc(interval/4, func() {
				f.SetFiltered(idx, 600)
			})
		}
	}
}

func runLoop(chans []*touch.Channel, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus,
	tracker *status.Tracker, monitor *logic.Monitor, heartbeat time.Duration,
	now func() time.Time, touches <-chan logic.Input, tick <-chan time.Time, sig <-chan os.Signal) error {

	publish := func(event *logic.Event) {
		if event == nil {
			return
		}
		log.Printf("event: %s channel=%d value=%d threshold=%d",
			event.Type, event.Channel, event.Value, event.Threshold)
		if err := publisher.Publish(*event); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
	}

	refresh := func() {
		tracker.Update(monitor.Snapshot(), monitor.TotalCounts())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			refresh()
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case in := <-touches:
			publish(monitor.Touch(in))
			refresh()

		case <-tick:
			t := now()
			for _, ch := range chans {
				v, err := ch.Read()
				if err != nil {
					log.Printf("read error on channel %d: %v", ch.Index(), err)
					continue
				}
				publish(monitor.Sample(logic.Input{Channel: ch.Index(), Value: v, Time: t}))
			}

			if hbData := monitor.CheckHeartbeat(t, heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v touches=%d releases=%d",
					hbData.Uptime, hbData.Total.Touches, hbData.Total.Releases)

				refresh()
				snap := tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			refresh()
		}
	}
}
