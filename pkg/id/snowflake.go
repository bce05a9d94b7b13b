// Package id generates 64-bit, time-ordered, process-unique identifiers.
//
// The layout is snowflake style: 1 unused sign bit, 41 bits of milliseconds
// since a custom epoch, 10 bits of machine id and 12 bits of sequence.
// Identifiers are rendered as zero-padded decimal strings so that
// lexicographic order equals numeric order.
package id

import (
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"github.com/plaenen/iamcore/pkg/domain"
)

const (
	machineBits  = 10
	sequenceBits = 12

	maxMachineID = (1 << machineBits) - 1
	maxSequence  = (1 << sequenceBits) - 1

	timestampShift = machineBits + sequenceBits
	machineShift   = sequenceBits

	// clockTolerance is how far the wall clock may move backwards before
	// generation fails. Small regressions are waited out.
	clockTolerance = 500 * time.Millisecond
)

// epoch is 2023-01-01T00:00:00Z in unix milliseconds.
const epoch int64 = 1672531200000

// Generator produces monotonic, collision-free identifiers within a process.
// It is safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	machineID uint64
	lastMs    int64
	sequence  uint64
	now       func() time.Time
}

// NewGenerator creates a Generator for the given machine id (0..1023).
func NewGenerator(machineID uint16) (*Generator, error) {
	if machineID > maxMachineID {
		return nil, domain.NewInvalidArgument(nil, "IDGEN-x9Flq", fmt.Sprintf("machine id must be <= %d", maxMachineID))
	}
	return &Generator{
		machineID: uint64(machineID),
		now:       time.Now,
	}, nil
}

// NewGeneratorFromHost derives the machine id from the hostname.
// Deployments with stable, distinct hostnames get distinct ids.
func NewGeneratorFromHost() (*Generator, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, domain.NewInternal(err, "IDGEN-pWn2d", "unable to read hostname")
	}
	h := fnv.New32a()
	h.Write([]byte(host))
	return NewGenerator(uint16(h.Sum32() & maxMachineID))
}

// Next returns the next identifier.
// It fails only when the clock moved backwards beyond the tolerance.
func (g *Generator) Next() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli() - epoch
	if ms < g.lastMs {
		drift := time.Duration(g.lastMs-ms) * time.Millisecond
		if drift > clockTolerance {
			return 0, domain.NewInternal(nil, "IDGEN-k3VmB", fmt.Sprintf("clock moved backwards by %s", drift))
		}
		// Wait out small regressions (NTP slew).
		time.Sleep(drift)
		ms = g.lastMs
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence exhausted for this tick, spin to the next one.
			for ms <= g.lastMs {
				ms = g.now().UnixMilli() - epoch
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return uint64(ms)<<timestampShift | g.machineID<<machineShift | g.sequence, nil
}

// NextString returns the next identifier as a sortable decimal string.
func (g *Generator) NextString() (string, error) {
	id, err := g.Next()
	if err != nil {
		return "", err
	}
	// uint64 has at most 20 decimal digits; pad so strings sort numerically.
	return fmt.Sprintf("%020d", id), nil
}
