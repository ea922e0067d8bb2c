package visa

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/chewxy/math32"
)

// ErrMalformedBlock is returned when a binary response is not a valid
// IEEE 488.2 block.
var ErrMalformedBlock = errors.New("malformed binary block")

// blockLimit restricts the blocks readBlock accepts.
type blockLimit struct {
	maxLen   int  // Largest definite payload in bytes; 0 means unbounded
	definite bool // Reject indefinite blocks
}

// readBlock reads an IEEE 488.2 arbitrary block: either definite length
// "#<n><len><payload>" or indefinite "#0<payload>\n". The response message
// terminator that follows a definite block is consumed as well.
//
// An indefinite block ends at the first newline, so it cannot carry binary
// data containing 0x0A. Binary queries set limit.definite.
func readBlock(r *bufio.Reader, limit blockLimit) ([]byte, error) {
	b, err := skipSpace(r)
	if err != nil {
		return nil, err
	}
	if b != '#' {
		return nil, fmt.Errorf("%w: expected '#', got %q", ErrMalformedBlock, b)
	}

	nd, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if nd < '0' || nd > '9' {
		return nil, fmt.Errorf("%w: invalid header digit %q", ErrMalformedBlock, nd)
	}

	if nd == '0' {
		if limit.definite {
			return nil, fmt.Errorf("%w: indefinite block", ErrMalformedBlock)
		}
		data, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		return data[:len(data)-1], nil
	}

	lenDigits := make([]byte, int(nd-'0'))
	if _, err := io.ReadFull(r, lenDigits); err != nil {
		return nil, err
	}
	length, err := strconv.Atoi(string(lenDigits))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: invalid length %q", ErrMalformedBlock, lenDigits)
	}
	if limit.maxLen > 0 && length > limit.maxLen {
		return nil, fmt.Errorf("%w: length %d exceeds %d", ErrMalformedBlock, length, limit.maxLen)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	if err := readTerminator(r); err != nil {
		return nil, err
	}
	return data, nil
}

func skipSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, nil
	}
}

func readTerminator(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b == '\r' {
		if b, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if b != '\n' {
		return fmt.Errorf("%w: expected terminator after block, got %q", ErrMalformedBlock, b)
	}
	return nil
}

// decodeFloat32 decodes a packed float32 array.
func decodeFloat32(data []byte, bigEndian bool) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32 values", ErrMalformedBlock, len(data))
	}

	var order binary.ByteOrder = binary.LittleEndian
	if bigEndian {
		order = binary.BigEndian
	}

	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math32.Float32frombits(order.Uint32(data[i*4:]))
	}
	return values, nil
}
