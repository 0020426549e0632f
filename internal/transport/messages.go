// Package transport implements a binary TCP wire protocol giving remote
// clients admission and cancel access to a matching.OrderBook.
package transport

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"lobengine/internal/event"
	"lobengine/internal/order"
)

var (
	ErrMessageTooShort  = errors.New("message too short")
	ErrInvalidMsgType   = errors.New("invalid message type")
)

// MessageType identifies a request frame's payload shape.
type MessageType uint8

const (
	MsgNewOrder MessageType = iota
	MsgCancelOrder
	MsgHeartbeat
)

const baseHeaderLen = 1 // MessageType

// NewOrderRequest is the wire form of an order admission request. Price
// and quantity travel as float64 bit patterns; callers at the matching
// boundary are responsible for the float64<->decimal.Decimal conversion,
// matching the teacher's own wire-level use of raw float64 fields.
type NewOrderRequest struct {
	Side        order.Side
	Type        order.Type
	TimeInForce order.TimeInForce
	Flags       order.Flag
	Price       float64
	Quantity    float64
	Timestamp   float64
	OrderID     string
	ClientID    string
}

// fixed fields: side(1) type(1) tif(1) flags(1) price(8) qty(8) ts(8) = 28
const newOrderFixedLen = 1 + 1 + 1 + 1 + 8 + 8 + 8

// EncodeNewOrder serializes req into a request frame (header + payload).
func EncodeNewOrder(req NewOrderRequest) []byte {
	idBytes := []byte(req.OrderID)
	clientBytes := []byte(req.ClientID)

	buf := make([]byte, baseHeaderLen+newOrderFixedLen+2+len(idBytes)+2+len(clientBytes))
	buf[0] = byte(MsgNewOrder)
	off := baseHeaderLen

	buf[off] = byte(req.Side)
	buf[off+1] = byte(req.Type)
	buf[off+2] = byte(req.TimeInForce)
	buf[off+3] = byte(req.Flags)
	off += 4

	binary.BigEndian.PutUint64(buf[off:], math.Float64bits(req.Price))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], math.Float64bits(req.Quantity))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], math.Float64bits(req.Timestamp))
	off += 8

	binary.BigEndian.PutUint16(buf[off:], uint16(len(idBytes)))
	off += 2
	copy(buf[off:], idBytes)
	off += len(idBytes)

	binary.BigEndian.PutUint16(buf[off:], uint16(len(clientBytes)))
	off += 2
	copy(buf[off:], clientBytes)

	return buf
}

// decodeNewOrder parses payload (everything after the 1-byte type header).
func decodeNewOrder(payload []byte) (NewOrderRequest, error) {
	if len(payload) < newOrderFixedLen+2 {
		return NewOrderRequest{}, ErrMessageTooShort
	}

	var req NewOrderRequest
	req.Side = order.Side(payload[0])
	req.Type = order.Type(payload[1])
	req.TimeInForce = order.TimeInForce(payload[2])
	req.Flags = order.Flag(payload[3])
	off := 4

	req.Price = math.Float64frombits(binary.BigEndian.Uint64(payload[off:]))
	off += 8
	req.Quantity = math.Float64frombits(binary.BigEndian.Uint64(payload[off:]))
	off += 8
	req.Timestamp = math.Float64frombits(binary.BigEndian.Uint64(payload[off:]))
	off += 8

	idLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if len(payload) < off+idLen+2 {
		return NewOrderRequest{}, ErrMessageTooShort
	}
	req.OrderID = string(payload[off : off+idLen])
	off += idLen

	clientLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if len(payload) < off+clientLen {
		return NewOrderRequest{}, ErrMessageTooShort
	}
	req.ClientID = string(payload[off : off+clientLen])

	return req, nil
}

// CancelOrderRequest is the wire form of a cancel request.
type CancelOrderRequest struct {
	OrderID string
}

// EncodeCancelOrder serializes req into a request frame.
func EncodeCancelOrder(req CancelOrderRequest) []byte {
	idBytes := []byte(req.OrderID)
	buf := make([]byte, baseHeaderLen+2+len(idBytes))
	buf[0] = byte(MsgCancelOrder)
	binary.BigEndian.PutUint16(buf[baseHeaderLen:], uint16(len(idBytes)))
	copy(buf[baseHeaderLen+2:], idBytes)
	return buf
}

func decodeCancelOrder(payload []byte) (CancelOrderRequest, error) {
	if len(payload) < 2 {
		return CancelOrderRequest{}, ErrMessageTooShort
	}
	idLen := int(binary.BigEndian.Uint16(payload))
	if len(payload) < 2+idLen {
		return CancelOrderRequest{}, ErrMessageTooShort
	}
	return CancelOrderRequest{OrderID: string(payload[2 : 2+idLen])}, nil
}

// Request is a decoded inbound frame.
type Request struct {
	Type   MessageType
	New    NewOrderRequest
	Cancel CancelOrderRequest
}

// DecodeRequest parses a full frame (including its 1-byte type header).
func DecodeRequest(frame []byte) (Request, error) {
	if len(frame) < baseHeaderLen {
		return Request{}, ErrMessageTooShort
	}
	typ := MessageType(frame[0])
	payload := frame[baseHeaderLen:]

	switch typ {
	case MsgNewOrder:
		req, err := decodeNewOrder(payload)
		if err != nil {
			return Request{}, err
		}
		return Request{Type: typ, New: req}, nil
	case MsgCancelOrder:
		req, err := decodeCancelOrder(payload)
		if err != nil {
			return Request{}, err
		}
		return Request{Type: typ, Cancel: req}, nil
	case MsgHeartbeat:
		return Request{Type: typ}, nil
	default:
		return Request{}, ErrInvalidMsgType
	}
}

// reportFixedLen: type(1) reason_len(1) has_price(1) price(8) has_qty(1) qty(8) ts(8) = 28
const reportFixedLen = 1 + 1 + 1 + 8 + 1 + 8 + 8

// EncodeEvent serializes e into a wire report frame.
func EncodeEvent(e event.Event) []byte {
	reasonBytes := []byte(e.Reason)
	orderIDBytes := []byte(e.OrderID)
	matchedIDBytes := []byte(e.MatchedOrderID)

	totalLen := reportFixedLen + 1 + len(reasonBytes) + 2 + len(orderIDBytes) + 2 + len(matchedIDBytes)
	buf := make([]byte, totalLen)

	buf[0] = byte(e.Type)
	off := 1

	buf[off] = uint8(len(reasonBytes))
	off++

	price := decimal.Zero
	if e.HasPrice {
		price = e.Price
		buf[off] = 1
	}
	off++
	priceF, _ := price.Float64()
	binary.BigEndian.PutUint64(buf[off:], math.Float64bits(priceF))
	off += 8

	qty := decimal.Zero
	if e.HasQuantity {
		qty = e.Quantity
		buf[off] = 1
	}
	off++
	qtyF, _ := qty.Float64()
	binary.BigEndian.PutUint64(buf[off:], math.Float64bits(qtyF))
	off += 8

	binary.BigEndian.PutUint64(buf[off:], math.Float64bits(e.Timestamp))
	off += 8

	copy(buf[off:], reasonBytes)
	off += len(reasonBytes)

	binary.BigEndian.PutUint16(buf[off:], uint16(len(orderIDBytes)))
	off += 2
	copy(buf[off:], orderIDBytes)
	off += len(orderIDBytes)

	binary.BigEndian.PutUint16(buf[off:], uint16(len(matchedIDBytes)))
	off += 2
	copy(buf[off:], matchedIDBytes)

	return buf
}

// DecodeEvent parses a wire report frame back into an Event, the inverse of
// EncodeEvent. Used by clients reading the event stream off a connection.
func DecodeEvent(frame []byte) (event.Event, error) {
	if len(frame) < reportFixedLen {
		return event.Event{}, ErrMessageTooShort
	}

	e := event.Event{Type: event.Type(frame[0])}
	reasonLen := int(frame[1])
	off := 2

	hasPrice := frame[off] == 1
	off++
	priceF := math.Float64frombits(binary.BigEndian.Uint64(frame[off:]))
	off += 8

	hasQty := frame[off] == 1
	off++
	qtyF := math.Float64frombits(binary.BigEndian.Uint64(frame[off:]))
	off += 8

	e.Timestamp = math.Float64frombits(binary.BigEndian.Uint64(frame[off:]))
	off += 8

	if hasPrice {
		e.Price = decimal.NewFromFloat(priceF)
		e.HasPrice = true
	}
	if hasQty {
		e.Quantity = decimal.NewFromFloat(qtyF)
		e.HasQuantity = true
	}

	if len(frame) < off+reasonLen+2 {
		return event.Event{}, ErrMessageTooShort
	}
	e.Reason = event.Reason(frame[off : off+reasonLen])
	off += reasonLen

	orderIDLen := int(binary.BigEndian.Uint16(frame[off:]))
	off += 2
	if len(frame) < off+orderIDLen+2 {
		return event.Event{}, ErrMessageTooShort
	}
	e.OrderID = string(frame[off : off+orderIDLen])
	off += orderIDLen

	matchedIDLen := int(binary.BigEndian.Uint16(frame[off:]))
	off += 2
	if len(frame) < off+matchedIDLen {
		return event.Event{}, ErrMessageTooShort
	}
	e.MatchedOrderID = string(frame[off : off+matchedIDLen])

	return e, nil
}
