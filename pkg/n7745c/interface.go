package n7745c

import "context"

// Device defines the interface for N7745C power meters (real or simulated).
type Device interface {
	Identify(ctx context.Context) (string, error)
	ConfigureLogging(ctx context.Context, points int, integration float64, unit TimeUnit) error
	StartLogging(ctx context.Context) error
	StopLogging(ctx context.Context) error
	OperationComplete(ctx context.Context) (bool, error)
	FetchResults(ctx context.Context) ([]float64, error)
	Close() error
}

// Transport is the message based I/O an Instrument needs.
// *visa.Session implements it.
type Transport interface {
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, query string) (string, error)
	QueryBinaryFloat32(ctx context.Context, query string, bigEndian bool, maxValues int) ([]float32, error)
	Close() error
}

// Ensure Instrument implements Device.
var _ Device = (*Instrument)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
