// Package wire defines the KVS client/server request and response alphabet
// and its self-delimited JSON codec (spec §4.2/§4.3/§6.4).
package wire

import (
	"encoding/json"
	"fmt"
	"io"
)

// RequestKind tags a [Request]'s variant.
type RequestKind string

const (
	KindPing   RequestKind = "ping"
	KindGet    RequestKind = "get"
	KindSet    RequestKind = "set"
	KindRemove RequestKind = "remove"
)

// Request is one client request. Key/Value are populated according to Kind.
type Request struct {
	Kind  RequestKind `json:"kind"`
	Key   string      `json:"key,omitempty"`
	Value string      `json:"value,omitempty"`
}

// ResponseKind tags a [Response]'s variant.
type ResponseKind string

const (
	KindPong    ResponseKind = "pong"
	KindValue   ResponseKind = "value"
	KindSuccess ResponseKind = "success"
	KindError   ResponseKind = "error"
)

// Response is one server response.
//
// For KindValue, Value is nil when the key was not found (Get's None case)
// and non-nil otherwise. For KindError, Msg carries the error text.
type Response struct {
	Kind  ResponseKind `json:"kind"`
	Value *string      `json:"value,omitempty"`
	Msg   string       `json:"msg,omitempty"`
}

func PingRequest() Request             { return Request{Kind: KindPing} }
func GetRequest(key string) Request    { return Request{Kind: KindGet, Key: key} }
func RemoveRequest(key string) Request { return Request{Kind: KindRemove, Key: key} }

func SetRequest(key, value string) Request {
	return Request{Kind: KindSet, Key: key, Value: value}
}

func PongResponse() Response { return Response{Kind: KindPong} }

func SuccessResponse() Response { return Response{Kind: KindSuccess} }

func ErrorResponse(msg string) Response { return Response{Kind: KindError, Msg: msg} }

func ValueFoundResponse(v string) Response { return Response{Kind: KindValue, Value: &v} }

func ValueNotFoundResponse() Response { return Response{Kind: KindValue, Value: nil} }

// Decoder reads a stream of self-delimited JSON requests or responses off a
// shared connection, the same concatenated-JSON-object framing the log
// store uses for its records.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

func (d *Decoder) DecodeRequest() (Request, error) {
	var req Request

	if err := d.dec.Decode(&req); err != nil {
		return Request{}, err
	}

	return req, nil
}

func (d *Decoder) DecodeResponse() (Response, error) {
	var resp Response

	if err := d.dec.Decode(&resp); err != nil {
		return Response{}, err
	}

	return resp, nil
}

// Encoder writes self-delimited JSON requests or responses to a shared
// connection.
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) EncodeRequest(req Request) error {
	if err := e.enc.Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	return nil
}

func (e *Encoder) EncodeResponse(resp Response) error {
	if err := e.enc.Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}
