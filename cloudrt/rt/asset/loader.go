package asset

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/gekko3d/cloudfx/cloudrt/rt/volume"
	"github.com/google/uuid"
)

// Handle identifies a requested asset.
type Handle string

func NewHandle() Handle {
	return Handle(uuid.NewString())
}

type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// VolumeLoader decodes volume files off the render thread. Results are
// published into one Cell per handle; failures are logged and leave the
// cell empty for good.
type VolumeLoader struct {
	log  Logger
	pool worker.DynamicWorkerPool

	mu       sync.RWMutex
	submitMu sync.Mutex
	cells    map[Handle]*Cell[volume.DenseVolume]
	nextID   int

	// swapped in tests
	decodeFile func(path string) (*volume.DenseVolume, error)
	enqueue    func(task worker.Task)
}

func NewVolumeLoader(log Logger, workers int) *VolumeLoader {
	if workers <= 0 {
		workers = 1
	}
	pool := worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)
	return &VolumeLoader{
		log:        log,
		pool:       pool,
		cells:      make(map[Handle]*Cell[volume.DenseVolume]),
		decodeFile: volume.DecodeFile,
		enqueue:    func(task worker.Task) { pool.SubmitTask(task) },
	}
}

// Load queues a decode of path and returns immediately, even when the
// pool's queue is full.
func (l *VolumeLoader) Load(path string) Handle {
	return l.submit(path, func() (*volume.DenseVolume, error) {
		return l.decodeFile(path)
	})
}

// LoadBytes decodes an in-memory container.
func (l *VolumeLoader) LoadBytes(label string, data []byte) Handle {
	return l.submit(label, func() (*volume.DenseVolume, error) {
		return volume.Decode(bytes.NewReader(data))
	})
}

func (l *VolumeLoader) submit(label string, decode func() (*volume.DenseVolume, error)) Handle {
	h := NewHandle()
	cell := NewCell[volume.DenseVolume]()

	l.mu.Lock()
	l.cells[h] = cell
	id := l.nextID
	l.nextID++
	l.mu.Unlock()

	l.log.Debugf("volume %s: queued %s", h, label)
	task := worker.Task{
		ID: id,
		Do: func() (vol any, err error) {
			defer func() {
				// the pool has no recover of its own
				if r := recover(); r != nil {
					err = fmt.Errorf("asset: decode of %s panicked: %v", label, r)
					l.log.Errorf("volume %s: failed to load %s: %v", h, label, err)
					cell.Fail(err)
					vol = nil
				}
			}()
			return l.decode(h, label, cell, decode)
		},
	}
	// SubmitTask blocks while the queue is full; hand it off so the
	// caller never waits on the pool. Submissions stay serialized.
	go func() {
		l.submitMu.Lock()
		defer l.submitMu.Unlock()
		l.enqueue(task)
	}()
	return h
}

func (l *VolumeLoader) decode(h Handle, label string, cell *Cell[volume.DenseVolume], decode func() (*volume.DenseVolume, error)) (any, error) {
	start := time.Now()
	vol, err := decode()
	if err != nil {
		l.log.Errorf("volume %s: failed to load %s: %v", h, label, err)
		cell.Fail(err)
		return nil, err
	}
	l.log.Debugf("volume %s: decoded %s extent=%v in %s", h, label, vol.Extent, time.Since(start))
	cell.Publish(vol)
	return vol, nil
}

// Cell returns the slot for h, or nil for an unknown handle.
func (l *VolumeLoader) Cell(h Handle) *Cell[volume.DenseVolume] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cells[h]
}

// Get returns the decoded volume once available.
func (l *VolumeLoader) Get(h Handle) (*volume.DenseVolume, bool) {
	c := l.Cell(h)
	if c == nil {
		return nil, false
	}
	return c.Get()
}

// Handles lists every requested handle.
func (l *VolumeLoader) Handles() []Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Handle, 0, len(l.cells))
	for h := range l.cells {
		out = append(out, h)
	}
	return out
}
