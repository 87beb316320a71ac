// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exchange

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"github.com/pierrec/lz4"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
)

const (
	frameMagic   uint16 = 0x4d45
	headerLength        = 2 + 1 + 1 + 16

	flagCompressed uint8 = 1
)

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameEnd:
		return "end"
	case FrameError:
		return "error"
	}
	return "unknown"
}

func DataFrame(stream uuid.UUID, bat *batch.Batch) Frame {
	return Frame{Kind: FrameData, Stream: stream, Batch: bat}
}

func EndFrame(stream uuid.UUID) Frame {
	return Frame{Kind: FrameEnd, Stream: stream}
}

func ErrorFrame(stream uuid.UUID, err error) Frame {
	return Frame{Kind: FrameError, Stream: stream, Err: err}
}

// Encode layout: magic u16 | kind u8 | flags u8 | stream 16B | payload.
// A data payload is the marshaled batch, an error payload the marshaled
// moerr, an end frame has none.
func (c Codec) Encode(f Frame) ([]byte, error) {
	var payload []byte
	var err error
	switch f.Kind {
	case FrameData:
		if f.Batch == nil {
			return nil, moerr.NewInvalidInputNoCtx("data frame without batch")
		}
		payload, err = f.Batch.MarshalBinary()
	case FrameError:
		payload, err = moerr.DowncastError(f.Err).MarshalBinary()
	case FrameEnd:
	default:
		return nil, moerr.NewInvalidInputNoCtx("unknown frame kind %d", f.Kind)
	}
	if err != nil {
		return nil, err
	}

	var flags uint8
	if c.Compress && len(payload) > 0 {
		if payload, err = compress(payload); err != nil {
			return nil, err
		}
		flags |= flagCompressed
	}

	data := make([]byte, headerLength, headerLength+len(payload))
	binary.LittleEndian.PutUint16(data, frameMagic)
	data[2] = uint8(f.Kind)
	data[3] = flags
	copy(data[4:headerLength], f.Stream[:])
	return append(data, payload...), nil
}

func (c Codec) Decode(data []byte) (Frame, error) {
	var f Frame
	if len(data) < headerLength {
		return f, moerr.NewUnexpectedEOFNoCtx("exchange frame header")
	}
	if binary.LittleEndian.Uint16(data) != frameMagic {
		return f, moerr.NewInvalidInputNoCtx("bad exchange frame magic %x", data[:2])
	}
	f.Kind = FrameKind(data[2])
	flags := data[3]
	copy(f.Stream[:], data[4:headerLength])
	payload := data[headerLength:]

	if flags&flagCompressed != 0 {
		var err error
		if payload, err = decompress(payload); err != nil {
			return f, err
		}
	}

	switch f.Kind {
	case FrameData:
		bat := new(batch.Batch)
		if err := bat.UnmarshalBinary(payload); err != nil {
			return f, err
		}
		f.Batch = bat
	case FrameError:
		e := new(moerr.Error)
		if err := e.UnmarshalBinary(payload); err != nil {
			return f, err
		}
		f.Err = e
	case FrameEnd:
	default:
		return f, moerr.NewInvalidInputNoCtx("unknown frame kind %d", f.Kind)
	}
	return f, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, moerr.ConvertGoError(moerr.Context(), err)
	}
	if err := zw.Close(); err != nil {
		return nil, moerr.ConvertGoError(moerr.Context(), err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, moerr.ConvertGoError(moerr.Context(), err)
	}
	return out, nil
}
