package n7745c

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/itohio/opmlog/pkg/visa"
)

// SCPI commands used by the continuous logging loop. The logging function
// lives on sense channel 2.
const (
	cmdIdentify      = "*IDN?"
	cmdOperationDone = "*OPC?"
	cmdLoggingParams = ":SENSe2:FUNCtion:PARameter:LOGGing %d,%s %s"
	cmdLoggingStart  = ":SENSe2:FUNCtion:STATe LOGG,STAR"
	cmdLoggingStop   = ":SENSe2:FUNCtion:STATe LOGG,STOP"
	cmdLoggingResult = ":SENSE2:CHANnel:FUNCtion:RESult?"
	resultBigEndian  = false
)

// ErrMalformedResponse is returned when the instrument answers with text
// that cannot be parsed.
var ErrMalformedResponse = errors.New("malformed instrument response")

// Instrument is an N7745C reached over a VISA transport.
type Instrument struct {
	t      Transport
	points atomic.Int64 // Configured logging points, bounds FetchResults
}

// New creates an Instrument on top of an open transport.
func New(t Transport) *Instrument {
	return &Instrument{t: t}
}

// Connect opens the VISA resource and identifies the instrument.
func Connect(ctx context.Context, resource string, opts visa.Options) (*Instrument, string, error) {
	session, err := visa.Open(ctx, resource, opts)
	if err != nil {
		return nil, "", err
	}

	inst := New(session)
	idn, err := inst.Identify(ctx)
	if err != nil {
		session.Close()
		return nil, "", fmt.Errorf("failed to identify %s: %w", resource, err)
	}
	log.Printf("connected to %s: %s", resource, idn)

	return inst, idn, nil
}

// Identify returns the *IDN? string.
func (d *Instrument) Identify(ctx context.Context) (string, error) {
	idn, err := d.t.Query(ctx, cmdIdentify)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(idn), nil
}

// ConfigureLogging sets the number of points and the integration time of one
// logging run.
func (d *Instrument) ConfigureLogging(ctx context.Context, points int, integration float64, unit TimeUnit) error {
	if points <= 0 {
		return fmt.Errorf("invalid point count %d", points)
	}
	if integration <= 0 {
		return fmt.Errorf("invalid integration time %g", integration)
	}
	cmd := fmt.Sprintf(cmdLoggingParams, points, strconv.FormatFloat(integration, 'g', -1, 64), unit)
	if err := d.t.Write(ctx, cmd); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	d.points.Store(int64(points))
	return nil
}

// StartLogging enables instrument-side logging.
func (d *Instrument) StartLogging(ctx context.Context) error {
	if err := d.t.Write(ctx, cmdLoggingStart); err != nil {
		return fmt.Errorf("failed to start logging: %w", err)
	}
	return nil
}

// StopLogging disables instrument-side logging.
func (d *Instrument) StopLogging(ctx context.Context) error {
	if err := d.t.Write(ctx, cmdLoggingStop); err != nil {
		return fmt.Errorf("failed to stop logging: %w", err)
	}
	return nil
}

// OperationComplete polls *OPC?. Any non-zero answer means complete.
func (d *Instrument) OperationComplete(ctx context.Context) (bool, error) {
	resp, err := d.t.Query(ctx, cmdOperationDone)
	if err != nil {
		return false, fmt.Errorf("failed to poll completion: %w", err)
	}
	return parseOPC(resp)
}

// FetchResults reads the logged samples, one value per point. A result
// longer than the configured point count is rejected.
func (d *Instrument) FetchResults(ctx context.Context) ([]float64, error) {
	raw, err := d.t.QueryBinaryFloat32(ctx, cmdLoggingResult, resultBigEndian, int(d.points.Load()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results: %w", err)
	}

	values := make([]float64, len(raw))
	for i, v := range raw {
		values[i] = float64(v)
	}
	return values, nil
}

// Close closes the transport.
func (d *Instrument) Close() error {
	return d.t.Close()
}

// parseOPC parses the textual *OPC? answer.
func parseOPC(resp string) (bool, error) {
	s := strings.TrimSpace(resp)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("%w: *OPC? returned %q", ErrMalformedResponse, resp)
	}
	return v != 0, nil
}
