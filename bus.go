package peripherals

import (
	"context"
)

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a shared bus that addresses the target on every call.
// USB bridges such as the MCP2221 expose this shape.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// I2CDevice is a bus bound to a single target address.
type I2CDevice interface {
	BusReader
	BusWriter
}
