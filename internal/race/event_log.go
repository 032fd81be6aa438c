package race

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	EventBufferSize        = 1024
	MaxEventsPerSec        = 2000
	MaxEventsPerVehicle    = 60 // per second
	BatchFlushSize         = 64
	BatchFlushInterval     = 100 * time.Millisecond
	VehicleLimiterLifetime = 5 * time.Minute
)

// EventLog is a bounded, rate-limited race event recorder. The simulation
// goroutine emits; a background writer appends JSON lines to disk.
// A nil or stopped EventLog drops everything.
type EventLog struct {
	buffer    [EventBufferSize]Event
	writeHead uint64 // atomic
	readHead  uint64 // atomic

	globalLimiter   *rate.Limiter
	vehicleLimiters sync.Map // map[string]*vehicleLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	fileMu   sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

type vehicleLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append (empty keeps events in memory only)
// and starts the writer.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	el.filePath = filePath
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()

	log.Info().Str("path", filePath).Msg("📝 Event log started")
	return nil
}

// Stop flushes pending events and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit records an event. Returns false if dropped.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}
	if event.VehicleID != "" && !el.vehicleLimiter(event.VehicleID).Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	head := atomic.AddUint64(&el.writeHead, 1)
	tail := atomic.LoadUint64(&el.readHead)
	if head-tail >= EventBufferSize {
		// overwrite the oldest pending event
		atomic.AddUint64(&el.readHead, 1)
		atomic.AddUint64(&el.droppedCount, 1)
	}

	event.Sequence = head
	el.buffer[head%EventBufferSize] = event

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// EmitSimple builds and emits an event.
func (el *EventLog) EmitSimple(eventType EventType, tick uint64, vehicleID string, payload interface{}) bool {
	if el == nil || !el.running.Load() {
		return false
	}
	return el.Emit(NewEvent(eventType, tick, vehicleID, payload))
}

func (el *EventLog) vehicleLimiter(id string) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := el.vehicleLimiters.Load(id); ok {
		e := entry.(*vehicleLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &vehicleLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerVehicle, MaxEventsPerVehicle/4)}
	entry.lastUsed.Store(now)
	actual, _ := el.vehicleLimiters.LoadOrStore(id, entry)
	return actual.(*vehicleLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(VehicleLimiterLifetime)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-VehicleLimiterLifetime).UnixNano()
			el.vehicleLimiters.Range(func(key, value interface{}) bool {
				if value.(*vehicleLimiterEntry).lastUsed.Load() < cutoff {
					el.vehicleLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (el *EventLog) collectBatch(batch []Event) []Event {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	// sequences start at 1
	for i := tail + 1; i <= head && len(batch) < BatchFlushSize; i++ {
		batch = append(batch, el.buffer[i%EventBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&el.readHead, uint64(len(batch)))
	}
	return batch
}

// flushBatch appends newline-delimited JSON.
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		if _, err := el.file.Write(data); err != nil {
			log.Error().Err(err).Str("path", el.filePath).Msg("❌ Event log write failed")
			return
		}
	}
}

// Stats reports counters for monitoring.
func (el *EventLog) Stats() map[string]interface{} {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	return map[string]interface{}{
		"total":   atomic.LoadUint64(&el.totalCount),
		"dropped": atomic.LoadUint64(&el.droppedCount),
		"pending": head - tail,
		"running": el.running.Load(),
	}
}

func (el *EventLog) DroppedCount() uint64 {
	return atomic.LoadUint64(&el.droppedCount)
}

func (el *EventLog) TotalCount() uint64 {
	return atomic.LoadUint64(&el.totalCount)
}
