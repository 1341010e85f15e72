// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"soukou/internal/analysis"
	applog "soukou/internal/log"
)

const (
	// FlagTransient is set in Packet.Flags when the frame carries an onset.
	FlagTransient uint8 = 1 << 0

	// maxBars keeps a packet well inside a single datagram.
	maxBars = 1024
)

// UDPPublisher periodically takes the latest frame from a FrameCell, packs it
// into a binary packet and sends it with a UDPSender. A tick with no new
// frame sends nothing. It runs in a separate goroutine managed by Start and
// Stop.
type UDPPublisher struct {
	sender   *UDPSender
	source   *analysis.FrameCell
	interval time.Duration
	bars     int

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32

	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher reading frames from source. bars is the
// number of spectrum bars per packet; 0 sends the full spectrum. If interval
// is not positive it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source *analysis.FrameCell, bars int) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: frame source cannot be nil")
	}
	if bars < 0 || bars > maxBars {
		return nil, fmt.Errorf("UDPPublisher: bar count must be within [0, %d], got %d", maxBars, bars)
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bars: %d)", interval, bars)

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		bars:         bars,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process. Calling Start while running
// is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publishLatest()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-------------------+-----------+------+------------------------------------+
| Field             | Type      | Size | Description                        |
|-------------------|-----------|------|------------------------------------|
| Sequence Number   | uint32    | 4    | Monotonically increasing           |
| Timestamp         | int64     | 8    | Send time, nanoseconds since epoch |
| Frame Time        | float64   | 8    | Frame position in the stream, s    |
| RMS               | float32   | 4    | Raw RMS                            |
| RMS Smoothed      | float32   | 4    | Moving average of RMS              |
| dBFS              | float32   | 4    | Level in dBFS                      |
| Flags             | uint8     | 1    | Bit 0: transient                   |
| Bar Count         | uint16    | 2    | Number of floats (N)               |
| Bars              | []float32 | N*4  | Companded spectrum bars            |
+-------------------+-----------+------+------------------------------------+
*/

// Packet is the decoded form of one datagram.
type Packet struct {
	Sequence    uint32
	Timestamp   int64
	TimeSec     float64
	RMS         float32
	RMSSmoothed float32
	DBFS        float32
	Flags       uint8
	Bars        []float32
}

type packetHeader struct {
	Sequence    uint32
	Timestamp   int64
	TimeSec     float64
	RMS         float32
	RMSSmoothed float32
	DBFS        float32
	Flags       uint8
	Count       uint16
}

// publishLatest sends the frame waiting in the source, if any.
func (p *UDPPublisher) publishLatest() {
	frame, ok := p.source.Swap()
	if !ok {
		return
	}
	if err := p.send(frame); err != nil && !errors.Is(err, ErrSenderClosed) {
		applog.Errorf("UDPPublisher: %v", err)
	}
}

func (p *UDPPublisher) send(frame analysis.Frame) error {
	values := frame.Spectrum
	if p.bars > 0 {
		values = analysis.Buckets(frame.Spectrum, p.bars)
	}
	if len(values) > math.MaxUint16 {
		values = values[:math.MaxUint16]
	}
	if cap(p.f32Buffer) < len(values) {
		p.f32Buffer = make([]float32, len(values))
	}
	p.f32Buffer = p.f32Buffer[:len(values)]
	for i, v := range values {
		p.f32Buffer[i] = float32(v)
	}

	var flags uint8
	if frame.Transient {
		flags |= FlagTransient
	}

	p.sequenceNum++
	header := packetHeader{
		Sequence:    p.sequenceNum,
		Timestamp:   time.Now().UnixNano(),
		TimeSec:     frame.TimeSec,
		RMS:         float32(frame.RMS),
		RMSSmoothed: float32(frame.RMSSmoothed),
		DBFS:        float32(frame.DBFS),
		Flags:       flags,
		Count:       uint16(len(p.f32Buffer)),
	}

	p.packetBuffer.Reset()
	if err := binary.Write(p.packetBuffer, binary.BigEndian, header); err != nil {
		return fmt.Errorf("failed to pack header: %w", err)
	}
	if err := binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer); err != nil {
		return fmt.Errorf("failed to pack bars: %w", err)
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		return err
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	return nil
}

// DecodePacket parses a datagram produced by UDPPublisher.
func DecodePacket(data []byte) (Packet, error) {
	r := bytes.NewReader(data)
	var h packetHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return Packet{}, fmt.Errorf("failed to read packet header: %w", err)
	}
	bars := make([]float32, h.Count)
	if err := binary.Read(r, binary.BigEndian, bars); err != nil {
		return Packet{}, fmt.Errorf("failed to read %d bars: %w", h.Count, err)
	}
	if r.Len() != 0 {
		return Packet{}, fmt.Errorf("packet has %d trailing bytes: %w", r.Len(), io.ErrUnexpectedEOF)
	}
	return Packet{
		Sequence:    h.Sequence,
		Timestamp:   h.Timestamp,
		TimeSec:     h.TimeSec,
		RMS:         h.RMS,
		RMSSmoothed: h.RMSSmoothed,
		DBFS:        h.DBFS,
		Flags:       h.Flags,
		Bars:        bars,
	}, nil
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
