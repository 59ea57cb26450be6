package rpc

import (
	"fmt"

	"peer-rpc/codec"
	"peer-rpc/message"
	"peer-rpc/protocol"
)

// Reply body status byte.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// writeArgs appends argc followed by one length-prefixed segment per argument.
func writeArgs(buf *protocol.Buffer, cd codec.Codec, args []any) error {
	buf.WriteUint32(uint32(len(args)))
	for i, a := range args {
		data, err := cd.Encode(a)
		if err != nil {
			return &EncodingError{Arg: i, Err: err}
		}
		buf.WriteBytes(data)
	}
	return nil
}

func readArgs(buf *protocol.Buffer) ([][]byte, error) {
	n, err := buf.ReadUint32()
	if err != nil {
		return nil, err
	}
	// every segment needs at least its 4-byte length
	if int64(n)*4 > int64(buf.Remaining()) {
		return nil, fmt.Errorf("argument count %d exceeds body: %w", n, protocol.ErrShortBuffer)
	}
	args := make([][]byte, n)
	for i := range args {
		if args[i], err = buf.ReadBytes(); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// writeReply appends the status byte and the encoded value or error text.
func writeReply(buf *protocol.Buffer, cd codec.Codec, reply *message.Reply) {
	if reply.Error == "" {
		data, err := cd.Encode(reply.Value)
		if err == nil {
			_ = buf.WriteByte(statusOK)
			buf.WriteBytes(data)
			return
		}
		reply = message.Failed(&EncodingError{Arg: -1, Err: err})
	}
	_ = buf.WriteByte(statusError)
	buf.WriteString(reply.Error)
}

// decodeResult turns a reply body, or the error that replaced it, into a Result.
func decodeResult[R any](cd codec.Codec, body []byte, err error) (res Result[R]) {
	if err != nil {
		res.Err = err
		return res
	}
	in := protocol.WrapBuffer(body)
	status, err := in.ReadByte()
	if err != nil {
		res.Err = &DecodingError{What: "reply status", Err: err}
		return res
	}
	seg, err := in.ReadBytes()
	if err != nil {
		res.Err = &DecodingError{What: "reply body", Err: err}
		return res
	}
	switch status {
	case statusOK:
		if err := cd.Decode(seg, &res.Value); err != nil {
			res.Err = &DecodingError{What: "result", Err: err}
		}
	case statusError:
		res.Err = &RemoteError{Message: string(seg)}
	default:
		res.Err = &DecodingError{What: "reply status", Err: fmt.Errorf("unknown status %d", status)}
	}
	return res
}
