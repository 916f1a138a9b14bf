package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aeolun/epollchat/pkg/client"
)

const loremIpsum = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur."

var loremWords = strings.Fields(loremIpsum)

var errDisconnected = errors.New("disconnected")

// Stats tracks performance metrics
type Stats struct {
	messagesPosted    atomic.Int64
	messagesFailed    atomic.Int64
	linesReceived     atomic.Int64
	roundTrips        atomic.Int64
	totalResponseTime atomic.Int64 // in microseconds
	connectionErrors  atomic.Int64

	timeouts       atomic.Int64
	disconnections atomic.Int64
}

func (s *Stats) recordRoundTrip(responseTimeUs int64) {
	s.roundTrips.Add(1)
	s.totalResponseTime.Add(responseTimeUs)
}

func (s *Stats) recordTimeout() {
	s.messagesFailed.Add(1)
	s.timeouts.Add(1)
}

func (s *Stats) recordDisconnection() {
	s.messagesFailed.Add(1)
	s.disconnections.Add(1)
}

func (s *Stats) snapshot() (posted, received, failed, connErrors int64, avgResponseUs float64) {
	posted = s.messagesPosted.Load()
	received = s.linesReceived.Load()
	failed = s.messagesFailed.Load()
	connErrors = s.connectionErrors.Load()

	if trips := s.roundTrips.Load(); trips > 0 {
		avgResponseUs = float64(s.totalResponseTime.Load()) / float64(trips)
	}
	return
}

// BotClient is a scripted chat user
type BotClient struct {
	id       int
	nickname string
	conn     *client.Connection
	stats    *Stats
}

func NewBotClient(id int, serverAddr string, stats *Stats) (*BotClient, error) {
	conn, err := client.NewConnection(serverAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	return &BotClient{
		id:       id,
		nickname: fmt.Sprintf("bot%04d", id),
		conn:     conn,
		stats:    stats,
	}, nil
}

// Connect dials and logs in, waiting for the welcome
func (bc *BotClient) Connect() error {
	if err := bc.conn.Connect(); err != nil {
		return err
	}
	if err := bc.conn.Login(bc.nickname); err != nil {
		return err
	}

	_, err := bc.waitFor("Welcome "+bc.nickname, 5*time.Second)
	return err
}

// waitFor reads lines until one equals want, counting the others as
// received chat
func (bc *BotClient) waitFor(want string, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-bc.conn.Messages():
			if !ok || line == client.DisconnectedNotice {
				return 0, errDisconnected
			}
			if line == want {
				return time.Since(start), nil
			}
			bc.stats.linesReceived.Add(1)
		case <-deadline:
			return 0, fmt.Errorf("timeout waiting for %q", want)
		}
	}
}

func randomContent() string {
	wordCount := 5 + rand.Intn(16)
	words := make([]string, wordCount)
	for i := range words {
		words[i] = loremWords[rand.Intn(len(loremWords))]
	}
	return strings.Join(words, " ")
}

// PostRandomMessage broadcasts a message. Every probeEvery-th post is also
// sent privately to ourselves to measure the server round trip.
func (bc *BotClient) PostRandomMessage(iteration, probeEvery int) error {
	content := randomContent()
	if err := bc.conn.SendPublic(content); err != nil {
		bc.stats.messagesFailed.Add(1)
		return err
	}
	bc.stats.messagesPosted.Add(1)

	if probeEvery <= 0 || iteration%probeEvery != 0 {
		return nil
	}

	probe := fmt.Sprintf("probe %d %s", iteration, content)
	if err := bc.conn.SendPrivate(bc.nickname, probe); err != nil {
		bc.stats.messagesFailed.Add(1)
		return err
	}

	rtt, err := bc.waitFor("[Private from "+bc.nickname+"]: "+probe, 10*time.Second)
	switch {
	case errors.Is(err, errDisconnected):
		bc.stats.recordDisconnection()
		return err
	case err != nil:
		bc.stats.recordTimeout()
		return err
	}
	bc.stats.recordRoundTrip(rtt.Microseconds())
	return nil
}

// drain counts broadcast lines between posts
func (bc *BotClient) drain() error {
	for {
		select {
		case line, ok := <-bc.conn.Messages():
			if !ok || line == client.DisconnectedNotice {
				return errDisconnected
			}
			bc.stats.linesReceived.Add(1)
		default:
			return nil
		}
	}
}

func (bc *BotClient) Run(duration, minDelay, maxDelay time.Duration, probeEvery int, stop <-chan struct{}) {
	defer bc.conn.Close()

	endTime := time.Now().Add(duration)
	for iteration := 1; time.Now().Before(endTime); iteration++ {
		if err := bc.PostRandomMessage(iteration, probeEvery); errors.Is(err, errDisconnected) {
			log.Printf("[Bot %d] Disconnected", bc.id)
			return
		}
		if err := bc.drain(); err != nil {
			bc.stats.recordDisconnection()
			return
		}

		delay := minDelay
		if maxDelay > minDelay {
			delay += time.Duration(rand.Int63n(int64(maxDelay - minDelay)))
		}
		select {
		case <-stop:
			return
		case <-time.After(delay):
		}
	}
}

func main() {
	// Command-line flags
	serverAddr := flag.String("server", "localhost:8080", "Server address (host:port)")
	numClients := flag.Int("clients", 10, "Number of concurrent clients")
	duration := flag.Duration("duration", 1*time.Minute, "Test duration")
	minDelay := flag.Duration("min-delay", 100*time.Millisecond, "Minimum delay between posts")
	maxDelay := flag.Duration("max-delay", 1*time.Second, "Maximum delay between posts")
	probeEvery := flag.Int("probe-every", 5, "Measure round trip on every Nth post (0 disables)")
	flag.Parse()

	// Ramp up over 25% of test duration
	rampUpDuration := *duration / 4
	staggerDelay := rampUpDuration / time.Duration(*numClients)
	if staggerDelay < 1*time.Millisecond {
		staggerDelay = 1 * time.Millisecond
	}

	log.Printf("Starting load test:")
	log.Printf("  Server: %s", *serverAddr)
	log.Printf("  Clients: %d", *numClients)
	log.Printf("  Duration: %v", *duration)
	log.Printf("  Ramp-up: %v (%v per client)", rampUpDuration, staggerDelay)
	log.Printf("  Delay: %v - %v", *minDelay, *maxDelay)
	log.Printf("")

	stats := &Stats{}
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	// Stats reporter
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		startTime := time.Now()
		for {
			select {
			case <-ticker.C:
				posted, received, failed, connErrors, avgUs := stats.snapshot()
				elapsed := time.Since(startTime).Seconds()
				log.Printf("Stats: %d posted (%.1f/s), %d received, %d failed, %d conn errors, avg rtt %.2fms",
					posted, float64(posted)/elapsed, received, failed, connErrors, avgUs/1000.0)
			case <-stop:
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("Shutdown signal received, stopping test...")
		stopAll()
	}()

	var wg sync.WaitGroup
	for i := 0; i < *numClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			bot, err := NewBotClient(id, *serverAddr, stats)
			if err != nil {
				stats.connectionErrors.Add(1)
				return
			}
			if err := bot.Connect(); err != nil {
				stats.connectionErrors.Add(1)
				bot.conn.Close()
				return
			}

			// Only log every 100th client during ramp-up
			if id%100 == 0 {
				log.Printf("[Bot %d] Connected to %s", id, bot.conn.GetAddress())
			}

			bot.Run(*duration, *minDelay, *maxDelay, *probeEvery, stop)
		}(i)

		time.Sleep(staggerDelay)
	}

	wg.Wait()
	stopAll()

	posted, received, failed, connErrors, avgUs := stats.snapshot()
	log.Printf("=== Final Results ===")
	log.Printf("Duration: %v", *duration)
	log.Printf("Messages posted: %d (%.1f/s)", posted, float64(posted)/duration.Seconds())
	log.Printf("Lines received: %d", received)
	log.Printf("Messages failed: %d", failed)
	log.Printf("  - Timeouts: %d", stats.timeouts.Load())
	log.Printf("  - Disconnections: %d", stats.disconnections.Load())
	log.Printf("Connection errors: %d", connErrors)
	log.Printf("Round trips: %d, average %.2fms", stats.roundTrips.Load(), avgUs/1000.0)

	if posted > 0 {
		log.Printf("Success rate: %.1f%%", float64(posted)/float64(posted+failed)*100)
	}
}
