package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/primitives"
	"time"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string `json:"key,omitempty"`     // Name of the primitive, used by all operations
	Count   int64  `json:"count,omitempty"`   // Used for: Emplace (param + result), Release, Arrive, CountDown
	Timeout uint64 `json:"timeout,omitempty"` // Milliseconds, used for: all *For operations

	// Response only fields
	Ok      bool   `json:"ok,omitempty"`       // Used for: Try* and *For responses
	Err     string `json:"err,omitempty"`      // Empty if no error, otherwise contains the error message
	ErrCode uint8  `json:"err_code,omitempty"` // primitives.RetCode of the error
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRequest creates a request for an operation that only needs a name
func NewRequest(t MessageType, key string) *Message {
	return &Message{
		MsgType: t,
		Key:     key,
	}
}

// NewCountRequest creates a request carrying a count (emplace parameter,
// release count, arrivals or count down)
func NewCountRequest(t MessageType, key string, count int64) *Message {
	return &Message{
		MsgType: t,
		Key:     key,
		Count:   count,
	}
}

// NewTimedRequest creates a request for a *For operation. Negative timeouts are
// sent as 0.
func NewTimedRequest(t MessageType, key string, timeout time.Duration) *Message {
	ms := uint64(0)
	if timeout > 0 {
		ms = uint64(timeout.Milliseconds())
	}
	return &Message{
		MsgType: t,
		Key:     key,
		Timeout: ms,
	}
}

// NewResponse creates a response of the given type
func NewResponse(t MessageType, ok bool, count int64, err error) *Message {
	msg := &Message{
		MsgType: t,
		Ok:      ok,
		Count:   count,
	}
	msg.SetError(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
		ErrCode: uint8(primitives.RetCInternalError),
	}
}

// TimeoutDuration returns the timeout of a *For request
func (m *Message) TimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Millisecond
}

// SetError stores err in the message. The code of a *primitives.Error is kept so
// that the receiver can classify the error with errors.Is.
func (m *Message) SetError(err error) {
	if err == nil {
		m.Err, m.ErrCode = "", 0
		return
	}
	m.Err = err.Error()
	m.ErrCode = uint8(primitives.RetCInternalError)

	var pErr *primitives.Error
	if errors.As(err, &pErr) {
		m.Err = pErr.Msg
		m.ErrCode = uint8(pErr.Code)
	}
}

// Error rebuilds the error carried by the message, nil if there is none
func (m *Message) Error() error {
	if m.Err == "" && m.ErrCode == 0 {
		return nil
	}
	return primitives.NewError(primitives.RetCode(m.ErrCode), m.Err)
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if int(t) < len(msgTypeNames) && msgTypeNames[t] != "" {
		return msgTypeNames[t]
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for i, name := range msgTypeNames {
		if name != "" && name == s {
			*t = MessageType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IMutexes operations

	MsgTMtxEmplace
	MsgTMtxErase
	MsgTMtxLock
	MsgTMtxTryLock
	MsgTMtxTryLockFor
	MsgTMtxUnlock
	MsgTMtxLockShared
	MsgTMtxTryLockShared
	MsgTMtxTryLockSharedFor
	MsgTMtxUnlockShared

	// ISemaphores operations

	MsgTSemEmplace
	MsgTSemErase
	MsgTSemAcquire
	MsgTSemTryAcquire
	MsgTSemTryAcquireFor
	MsgTSemRelease

	// IConditionVariables operations

	MsgTCVEmplace
	MsgTCVErase
	MsgTCVWait
	MsgTCVWaitFor
	MsgTCVNotifyOne
	MsgTCVNotifyAll

	// IBarriers operations

	MsgTBarEmplace
	MsgTBarErase
	MsgTBarArrive
	MsgTBarArriveAndWait
	MsgTBarArriveAndDrop
	MsgTBarWait
	MsgTBarWaitFor

	// ILatches operations

	MsgTLatEmplace
	MsgTLatErase
	MsgTLatCountDown
	MsgTLatArriveAndWait
	MsgTLatTryWait
	MsgTLatWait
	MsgTLatWaitFor

	msgTCount // number of message types, keep last
)

// msgTypeNames maps every message type to its wire name (used by JSON)
var msgTypeNames = [msgTCount]string{
	MsgTUnknown: "unknown",
	MsgTSuccess: "success",
	MsgTError:   "error",

	MsgTMtxEmplace:          "mutex.emplace",
	MsgTMtxErase:            "mutex.erase",
	MsgTMtxLock:             "mutex.lock",
	MsgTMtxTryLock:          "mutex.try_lock",
	MsgTMtxTryLockFor:       "mutex.try_lock_for",
	MsgTMtxUnlock:           "mutex.unlock",
	MsgTMtxLockShared:       "mutex.lock_shared",
	MsgTMtxTryLockShared:    "mutex.try_lock_shared",
	MsgTMtxTryLockSharedFor: "mutex.try_lock_shared_for",
	MsgTMtxUnlockShared:     "mutex.unlock_shared",

	MsgTSemEmplace:       "semaphore.emplace",
	MsgTSemErase:         "semaphore.erase",
	MsgTSemAcquire:       "semaphore.acquire",
	MsgTSemTryAcquire:    "semaphore.try_acquire",
	MsgTSemTryAcquireFor: "semaphore.try_acquire_for",
	MsgTSemRelease:       "semaphore.release",

	MsgTCVEmplace:   "cv.emplace",
	MsgTCVErase:     "cv.erase",
	MsgTCVWait:      "cv.wait",
	MsgTCVWaitFor:   "cv.wait_for",
	MsgTCVNotifyOne: "cv.notify_one",
	MsgTCVNotifyAll: "cv.notify_all",

	MsgTBarEmplace:       "barrier.emplace",
	MsgTBarErase:         "barrier.erase",
	MsgTBarArrive:        "barrier.arrive",
	MsgTBarArriveAndWait: "barrier.arrive_and_wait",
	MsgTBarArriveAndDrop: "barrier.arrive_and_drop",
	MsgTBarWait:          "barrier.wait",
	MsgTBarWaitFor:       "barrier.wait_for",

	MsgTLatEmplace:       "latch.emplace",
	MsgTLatErase:         "latch.erase",
	MsgTLatCountDown:     "latch.count_down",
	MsgTLatArriveAndWait: "latch.arrive_and_wait",
	MsgTLatTryWait:       "latch.try_wait",
	MsgTLatWait:          "latch.wait",
	MsgTLatWaitFor:       "latch.wait_for",
}

// Blocking reports whether a request of this type may wait for other
// connections. Blocking requests are not bound by the client request timeout.
func (t MessageType) Blocking() bool {
	switch t {
	case MsgTMtxLock, MsgTMtxTryLockFor, MsgTMtxLockShared, MsgTMtxTryLockSharedFor,
		MsgTSemAcquire, MsgTSemTryAcquireFor,
		MsgTCVWait, MsgTCVWaitFor,
		MsgTBarArriveAndWait, MsgTBarWait, MsgTBarWaitFor,
		MsgTLatArriveAndWait, MsgTLatWait, MsgTLatWaitFor:
		return true
	default:
		return false
	}
}
